package middlewares

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/custodia/internal/auth"
)

// CSRFConfig configura el check double-submit.
type CSRFConfig struct {
	HeaderName string // default X-CSRF-Token
	CookieName string // default csrf_token
}

// WithCSRF exige, para métodos inseguros, que el header CSRF coincida con la
// cookie en tiempo constante. Falta cualquiera de los dos lados ⇒ rechazo.
func WithCSRF(cfg CSRFConfig) Middleware {
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = "csrf_token"
	}

	isUnsafe := func(m string) bool {
		switch m {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			return true
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isUnsafe(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			hdr := strings.TrimSpace(r.Header.Get(headerName))
			var cookieVal string
			if ck, err := r.Cookie(cookieName); err == nil {
				cookieVal = ck.Value
			}
			if !auth.CSRFEqual(cookieVal, hdr) {
				writeReject(w, r, auth.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
