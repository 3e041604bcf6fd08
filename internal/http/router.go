// Package http arma el router del servicio.
package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/custodia/internal/http/handlers"
	"github.com/dropDatabas3/custodia/internal/http/middlewares"
)

// RouterConfig agrupa los handlers y la config CSRF del router.
type RouterConfig struct {
	Auth       *handlers.Auth
	Health     *handlers.Health
	CSRFHeader string
	CSRFCookie string
}

// NewRouter arma el árbol de rutas. El check CSRF corre en todo endpoint
// que muta estado con una sesión o un reset token de por medio; login y los
// dos primeros pasos del flujo de forgot quedan fuera porque el cliente
// todavía no recibió un valor CSRF (el canje del código emite uno junto con
// la cookie de reset).
func NewRouter(cfg RouterConfig) http.Handler {
	csrf := middlewares.WithCSRF(middlewares.CSRFConfig{
		HeaderName: cfg.CSRFHeader,
		CookieName: cfg.CSRFCookie,
	})
	session := middlewares.RequireSession(cfg.Auth.Cookies.AccessName,
		func(ctx context.Context, raw string) (string, error) {
			p, err := cfg.Auth.Service.Me(ctx, raw)
			if err != nil {
				return "", err
			}
			return p.UserID, nil
		})

	r := chi.NewRouter()

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/login", cfg.Auth.Login)
		r.Get("/csrf", cfg.Auth.CSRF)

		r.Post("/forgot", cfg.Auth.Forgot)
		r.Post("/forgot/verify", cfg.Auth.ForgotVerify)

		r.Group(func(r chi.Router) {
			r.Use(session)
			r.Get("/me", cfg.Auth.Me)
			r.Get("/verify", cfg.Auth.Verify)
		})

		r.Group(func(r chi.Router) {
			r.Use(csrf)
			r.Post("/reset", cfg.Auth.Reset)
			r.Post("/refresh", cfg.Auth.Refresh)
			r.Post("/logout", cfg.Auth.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(csrf, session)
			r.Post("/onboarding", cfg.Auth.Onboarding)
		})
	})

	return middlewares.Chain(r,
		middlewares.WithRequestID(),
		middlewares.WithLogging(),
	)
}
