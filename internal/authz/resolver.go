// Package authz computa el set efectivo de permisos de un usuario a partir
// de roles y overrides. Precedencia documentada y deliberada:
//
//	DENY > ALLOW > role-grant > admin-wildcard
//
// Un DENY siempre suprime el permiso, incluso para admins. No es un bug.
package authz

import (
	"context"
	"fmt"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/custodia/internal/domain/repository"
)

// RoleInfo es la vista mínima de un rol para el perfil de sesión.
type RoleInfo struct {
	Name         string `json:"name"`
	IsPrimary    bool   `json:"is_primary"`
	LandingRoute string `json:"landing_route"`
}

// Decision es el resultado de resolver permisos para un usuario.
// Inmutable una vez construida (se comparte desde el cache).
type Decision struct {
	// Permissions es el set efectivo. Vacío si Wildcard.
	Permissions map[string]struct{}
	// Wildcard: admin sin DENY vigentes ⇒ bypass total.
	Wildcard     bool
	IsAdmin      bool
	Roles        []RoleInfo
	LandingRoute string
}

// Has indica si la decisión otorga el permiso dado.
func (d *Decision) Has(perm string) bool {
	if d.Wildcard {
		return true
	}
	_, ok := d.Permissions[perm]
	return ok
}

// PermissionList devuelve los permisos ordenados, o ["*"] para wildcard.
func (d *Decision) PermissionList() []string {
	if d.Wildcard {
		return []string{"*"}
	}
	out := make([]string, 0, len(d.Permissions))
	for p := range d.Permissions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Resolver computa decisiones de autorización leyendo el catálogo RBAC.
// Cachea por usuario; Invalidate debe llamarse cuando cambian roles,
// permisos u overrides de ese usuario.
type Resolver struct {
	catalog repository.CatalogRepository
	cache   *gocache.Cache

	// DefaultLandingRoute se usa cuando el usuario no tiene roles o ninguno
	// define ruta.
	DefaultLandingRoute string
}

func NewResolver(catalog repository.CatalogRepository, cacheTTL time.Duration, defaultRoute string) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	if defaultRoute == "" {
		defaultRoute = "/"
	}
	return &Resolver{
		catalog:             catalog,
		cache:               gocache.New(cacheTTL, 2*cacheTTL),
		DefaultLandingRoute: defaultRoute,
	}
}

// Resolve computa (o devuelve del cache) la decisión para un usuario.
// Errores del catálogo se propagan envueltos: "sin permisos" y "el datastore
// no responde" son cosas distintas y el caller no debe confundirlas.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Decision, error) {
	if v, ok := r.cache.Get(userID); ok {
		return v.(*Decision), nil
	}

	roles, err := r.catalog.GetActiveRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: roles de %s: %w", userID, err)
	}

	d := &Decision{
		Permissions:  map[string]struct{}{},
		LandingRoute: r.DefaultLandingRoute,
	}

	if len(roles) == 0 {
		r.cache.SetDefault(userID, d)
		return d, nil
	}

	roleIDs := make([]string, 0, len(roles))
	for _, ar := range roles {
		roleIDs = append(roleIDs, ar.ID)
		if ar.IsAdmin {
			d.IsAdmin = true
		}
		d.Roles = append(d.Roles, RoleInfo{
			Name:         ar.Name,
			IsPrimary:    ar.IsPrimary,
			LandingRoute: ar.LandingRoute,
		})
	}
	// Los roles vienen ordenados (is_primary desc, priority asc): el primero
	// define la ruta de aterrizaje.
	if roles[0].LandingRoute != "" {
		d.LandingRoute = roles[0].LandingRoute
	}

	overrides, err := r.catalog.GetActiveOverrides(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: overrides de %s: %w", userID, err)
	}
	allow := map[string]struct{}{}
	deny := map[string]struct{}{}
	for _, o := range overrides {
		switch o.Effect {
		case repository.EffectDeny:
			deny[o.Permission] = struct{}{}
		case repository.EffectAllow:
			allow[o.Permission] = struct{}{}
		}
	}

	// Admin sin DENY: bypass total. Con DENY vigente se computa el set
	// completo igual que para no-admins, porque DENY gana siempre.
	if d.IsAdmin && len(deny) == 0 {
		d.Wildcard = true
		r.cache.SetDefault(userID, d)
		return d, nil
	}

	rolePerms, err := r.catalog.GetRolePermissions(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("authz: permisos de roles de %s: %w", userID, err)
	}

	// effective = (rolePerms ∪ allow) − deny
	for _, p := range rolePerms {
		d.Permissions[p] = struct{}{}
	}
	for p := range allow {
		d.Permissions[p] = struct{}{}
	}
	for p := range deny {
		delete(d.Permissions, p)
	}

	r.cache.SetDefault(userID, d)
	return d, nil
}

// Invalidate descarta la decisión cacheada de un usuario. Debe llamarse
// cada vez que cambian sus roles, permisos u overrides.
func (r *Resolver) Invalidate(userID string) {
	r.cache.Delete(userID)
}
