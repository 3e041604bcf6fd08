// Package migrations embebe los archivos SQL del esquema.
package migrations

import "embed"

//go:embed sql/*.sql
var FS embed.FS

// Dir es el directorio dentro de FS donde viven las migraciones.
const Dir = "sql"
