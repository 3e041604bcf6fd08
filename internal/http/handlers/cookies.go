// Package handlers implementa los endpoints HTTP del core de autenticación.
package handlers

import (
	"net/http"
	"strings"
	"time"
)

// CookieConfig son los nombres y atributos de las cookies de sesión.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	CSRFName    string
	ResetName   string
	Domain      string
	Secure      bool

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
}

func (c CookieConfig) build(name, value string, httpOnly bool, sameSite http.SameSite, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
	if strings.TrimSpace(c.Domain) != "" {
		ck.Domain = c.Domain
	}
	if ttl > 0 {
		ck.Expires = time.Now().Add(ttl).UTC()
		ck.MaxAge = int(ttl.Seconds())
	}
	return ck
}

// Matriz de atributos: access y csrf viajan Lax (se necesitan en navegación
// top-level), refresh va Strict, y csrf es la única legible por script.
func (c CookieConfig) Access(value string) *http.Cookie {
	return c.build(c.AccessName, value, true, http.SameSiteLaxMode, c.AccessTTL)
}

func (c CookieConfig) Refresh(value string) *http.Cookie {
	return c.build(c.RefreshName, value, true, http.SameSiteStrictMode, c.RefreshTTL)
}

func (c CookieConfig) CSRF(value string) *http.Cookie {
	return c.build(c.CSRFName, value, false, http.SameSiteLaxMode, c.AccessTTL)
}

func (c CookieConfig) Reset(value string) *http.Cookie {
	return c.build(c.ResetName, value, true, http.SameSiteStrictMode, c.ResetTTL)
}

func (c CookieConfig) deletion(name string, httpOnly bool, sameSite http.SameSite) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: sameSite,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
	}
	if strings.TrimSpace(c.Domain) != "" {
		ck.Domain = c.Domain
	}
	return ck
}

// ClearSession borra las tres cookies de sesión.
func (c CookieConfig) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.deletion(c.AccessName, true, http.SameSiteLaxMode))
	http.SetCookie(w, c.deletion(c.RefreshName, true, http.SameSiteStrictMode))
	http.SetCookie(w, c.deletion(c.CSRFName, false, http.SameSiteLaxMode))
}

// ClearReset borra la cookie del reset token.
func (c CookieConfig) ClearReset(w http.ResponseWriter) {
	http.SetCookie(w, c.deletion(c.ResetName, true, http.SameSiteStrictMode))
}

func cookieValue(r *http.Request, name string) string {
	if ck, err := r.Cookie(name); err == nil {
		return strings.TrimSpace(ck.Value)
	}
	return ""
}

// clientIP extrae la IP real del cliente: primer hop de X-Forwarded-For si
// está, si no RemoteAddr sin puerto.
func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return host
}
