package pg

import (
	"context"

	"github.com/dropDatabas3/custodia/internal/domain/repository"
)

// GetActiveRoles devuelve los roles vigentes del usuario, con el primario
// primero y el resto por prioridad ascendente.
func (s *Store) GetActiveRoles(ctx context.Context, userID string) ([]repository.AssignedRole, error) {
	const q = `
SELECT r.id, r.name, r.priority, r.is_admin, COALESCE(r.landing_route, ''), r.is_system,
       ra.is_primary
FROM role_assignment ra
JOIN role r ON r.id = ra.role_id
WHERE ra.user_id = $1
  AND ra.revoked_at IS NULL
ORDER BY ra.is_primary DESC, r.priority ASC;`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.AssignedRole
	for rows.Next() {
		var ar repository.AssignedRole
		if err := rows.Scan(&ar.ID, &ar.Name, &ar.Priority, &ar.IsAdmin,
			&ar.LandingRoute, &ar.System, &ar.IsPrimary); err != nil {
			return nil, err
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}

// GetRolePermissions devuelve la unión de códigos de permiso otorgados por
// los roles dados. El set de IDs viaja como un único parámetro array.
func (s *Store) GetRolePermissions(ctx context.Context, roleIDs []string) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	const q = `
SELECT DISTINCT p.code
FROM role_permission rp
JOIN permission p ON p.id = rp.permission_id
WHERE rp.role_id = ANY($1)
  AND rp.revoked_at IS NULL
ORDER BY p.code;`
	rows, err := s.pool.Query(ctx, q, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

// GetActiveOverrides devuelve las excepciones por usuario vigentes: no
// revocadas y sin expirar.
func (s *Store) GetActiveOverrides(ctx context.Context, userID string) ([]repository.Override, error) {
	const q = `
SELECT p.code, po.effect, po.expires_at
FROM user_permission_override po
JOIN permission p ON p.id = po.permission_id
WHERE po.user_id = $1
  AND po.revoked_at IS NULL
  AND (po.expires_at IS NULL OR po.expires_at > now())
ORDER BY p.code;`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Override
	for rows.Next() {
		var o repository.Override
		if err := rows.Scan(&o.Permission, &o.Effect, &o.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

var _ repository.CatalogRepository = (*Store)(nil)
