package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/custodia/internal/domain/repository"
)

// fakeCatalog implementa repository.CatalogRepository en memoria.
type fakeCatalog struct {
	roles     map[string][]repository.AssignedRole
	perms     map[string][]string // roleID -> permisos
	overrides map[string][]repository.Override
	err       error
	calls     int
}

func (f *fakeCatalog) GetActiveRoles(ctx context.Context, userID string) ([]repository.AssignedRole, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.roles[userID], nil
}

func (f *fakeCatalog) GetRolePermissions(ctx context.Context, roleIDs []string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, id := range roleIDs {
		for _, p := range f.perms[id] {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetActiveOverrides(ctx context.Context, userID string) ([]repository.Override, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.overrides[userID], nil
}

func medicoCatalog() *fakeCatalog {
	return &fakeCatalog{
		roles: map[string][]repository.AssignedRole{
			"u1": {{
				Role: repository.Role{
					ID: "r-medico", Name: "MEDICO", Priority: 10,
					LandingRoute: "/expedientes",
				},
				IsPrimary: true,
			}},
		},
		perms: map[string][]string{
			"r-medico": {"expedientes:read", "expedientes:write", "citas:read"},
		},
		overrides: map[string][]repository.Override{},
	}
}

func TestResolve_NoRoles(t *testing.T) {
	cat := &fakeCatalog{roles: map[string][]repository.AssignedRole{}}
	r := NewResolver(cat, time.Minute, "/inicio")

	d, err := r.Resolve(context.Background(), "nadie")
	require.NoError(t, err)
	require.False(t, d.IsAdmin)
	require.False(t, d.Wildcard)
	require.Empty(t, d.Permissions)
	require.Empty(t, d.Roles)
	require.Equal(t, "/inicio", d.LandingRoute)
}

func TestResolve_RoleGrants(t *testing.T) {
	r := NewResolver(medicoCatalog(), time.Minute, "/")

	d, err := r.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, d.IsAdmin)
	require.True(t, d.Has("expedientes:read"))
	require.True(t, d.Has("citas:read"))
	require.False(t, d.Has("usuarios:delete"))
	require.Equal(t, "/expedientes", d.LandingRoute)
	require.Equal(t, []string{"citas:read", "expedientes:read", "expedientes:write"}, d.PermissionList())
}

func TestResolve_DenyOverrideBeatsRoleGrant(t *testing.T) {
	cat := medicoCatalog()
	cat.overrides["u1"] = []repository.Override{
		{Permission: "expedientes:read", Effect: repository.EffectDeny},
	}
	r := NewResolver(cat, time.Minute, "/")

	d, err := r.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, d.Has("expedientes:read"), "DENY suprime el permiso aunque el rol lo otorgue")
	require.True(t, d.Has("expedientes:write"))
}

func TestResolve_AllowOverrideAddsPermission(t *testing.T) {
	cat := medicoCatalog()
	cat.overrides["u1"] = []repository.Override{
		{Permission: "reportes:read", Effect: repository.EffectAllow},
	}
	r := NewResolver(cat, time.Minute, "/")

	d, err := r.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, d.Has("reportes:read"))
}

func TestResolve_AdminWildcard(t *testing.T) {
	cat := &fakeCatalog{
		roles: map[string][]repository.AssignedRole{
			"admin1": {{
				Role: repository.Role{
					ID: "r-admin", Name: "ADMINISTRADOR", Priority: 1,
					IsAdmin: true, LandingRoute: "/admin",
				},
				IsPrimary: true,
			}},
		},
		perms:     map[string][]string{"r-admin": {"usuarios:read"}},
		overrides: map[string][]repository.Override{},
	}
	r := NewResolver(cat, time.Minute, "/")

	d, err := r.Resolve(context.Background(), "admin1")
	require.NoError(t, err)
	require.True(t, d.IsAdmin)
	require.True(t, d.Wildcard)
	require.True(t, d.Has("cualquier:cosa"))
	require.Equal(t, []string{"*"}, d.PermissionList())
}

func TestResolve_AdminWithDenyLosesOnlyThatPermission(t *testing.T) {
	cat := &fakeCatalog{
		roles: map[string][]repository.AssignedRole{
			"admin1": {{
				Role: repository.Role{
					ID: "r-admin", Name: "ADMINISTRADOR", Priority: 1,
					IsAdmin: true, LandingRoute: "/admin",
				},
				IsPrimary: true,
			}},
		},
		perms: map[string][]string{
			"r-admin": {"usuarios:read", "usuarios:write", "usuarios:delete"},
		},
		overrides: map[string][]repository.Override{
			"admin1": {{Permission: "usuarios:delete", Effect: repository.EffectDeny}},
		},
	}
	r := NewResolver(cat, time.Minute, "/")

	d, err := r.Resolve(context.Background(), "admin1")
	require.NoError(t, err)
	require.True(t, d.IsAdmin, "isAdmin se mantiene true aunque haya DENY")
	require.False(t, d.Wildcard, "con DENY vigente no hay bypass")
	require.True(t, d.Has("usuarios:read"))
	require.True(t, d.Has("usuarios:write"))
	require.False(t, d.Has("usuarios:delete"))
}

func TestResolve_IsIdempotentAndCached(t *testing.T) {
	cat := medicoCatalog()
	r := NewResolver(cat, time.Minute, "/")

	d1, err := r.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	d2, err := r.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, d1.PermissionList(), d2.PermissionList())
	require.Equal(t, 1, cat.calls, "la segunda resolución sale del cache")

	r.Invalidate("u1")
	_, err = r.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 2, cat.calls)
}

func TestResolve_InfrastructureErrorPropagates(t *testing.T) {
	boom := errors.New("pg down")
	cat := &fakeCatalog{err: boom}
	r := NewResolver(cat, time.Minute, "/")

	_, err := r.Resolve(context.Background(), "u1")
	require.Error(t, err)
	require.ErrorIs(t, err, boom, "un error de datastore nunca se interpreta como 'sin permisos'")
}

func TestResolve_LandingRouteFallsBackToFirstRole(t *testing.T) {
	cat := &fakeCatalog{
		roles: map[string][]repository.AssignedRole{
			"u2": {
				{Role: repository.Role{ID: "r-a", Name: "ENFERMERO", Priority: 5, LandingRoute: "/turnos"}},
				{Role: repository.Role{ID: "r-b", Name: "RECEPCION", Priority: 9, LandingRoute: "/citas"}},
			},
		},
		perms:     map[string][]string{},
		overrides: map[string][]repository.Override{},
	}
	r := NewResolver(cat, time.Minute, "/")

	d, err := r.Resolve(context.Background(), "u2")
	require.NoError(t, err)
	// Sin primario: el primero del orden (priority asc) define la ruta
	require.Equal(t, "/turnos", d.LandingRoute)
}
