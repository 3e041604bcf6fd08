package middlewares

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dropDatabas3/custodia/internal/auth"
)

// SessionValidator valida un access token crudo y devuelve el subject.
type SessionValidator func(ctx context.Context, raw string) (string, error)

// RequireSession exige un access token válido en la cookie indicada y deja
// el subject en el contexto (GetUserID). Sin cookie o con token inválido el
// request se rechaza con el código del dominio.
func RequireSession(cookieName string, validate SessionValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var raw string
			if ck, err := r.Cookie(cookieName); err == nil {
				raw = ck.Value
			}
			if raw == "" {
				writeReject(w, r, auth.ErrTokenInvalid)
				return
			}
			userID, err := validate(r.Context(), raw)
			if err != nil {
				e, ok := auth.AsError(err)
				if !ok {
					e = auth.Infra("session", err)
				}
				writeReject(w, r, e)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// writeReject escribe un rechazo sin depender del paquete http padre
// (evita el import cycle con el envelope de handlers).
func writeReject(w http.ResponseWriter, r *http.Request, e *auth.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      e.Code,
		"message":    e.Message,
		"request_id": GetRequestID(r.Context()),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
