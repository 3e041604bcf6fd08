package repository

import (
	"context"
	"time"
)

// Role representa un rol del catálogo.
type Role struct {
	ID string
	// Nombre del rol, ej: "MEDICO", "ADMINISTRADOR".
	Name string
	// Priority: menor número = mayor precedencia para la ruta de aterrizaje.
	Priority int
	IsAdmin  bool
	// LandingRoute es la ruta por defecto del frontend para este rol.
	LandingRoute string
	System       bool
}

// AssignedRole es un rol activo asignado a un usuario.
type AssignedRole struct {
	Role
	IsPrimary bool
}

// OverrideEffect es el efecto de una excepción por usuario.
type OverrideEffect string

const (
	EffectAllow OverrideEffect = "ALLOW"
	EffectDeny  OverrideEffect = "DENY"
)

// Override es una excepción de permiso por usuario. DENY siempre gana.
type Override struct {
	Permission string // código "recurso:accion"
	Effect     OverrideEffect
	ExpiresAt  *time.Time
}

// CatalogRepository expone las lecturas del catálogo RBAC que necesita el
// resolver de permisos. Solo lecturas: las mutaciones son flujos admin
// fuera de este core.
type CatalogRepository interface {
	// GetActiveRoles retorna los roles activos (no revocados) de un usuario,
	// ordenados por (is_primary desc, priority asc).
	GetActiveRoles(ctx context.Context, userID string) ([]AssignedRole, error)

	// GetRolePermissions retorna la unión de códigos de permiso otorgados
	// por los roles dados (asignaciones no revocadas).
	GetRolePermissions(ctx context.Context, roleIDs []string) ([]string, error)

	// GetActiveOverrides retorna los overrides vigentes (no revocados y no
	// expirados) de un usuario.
	GetActiveOverrides(ctx context.Context, userID string) ([]Override, error)
}
