package handlers

import (
	"net/http"

	"github.com/dropDatabas3/custodia/internal/auth"
	"github.com/dropDatabas3/custodia/internal/http/middlewares"
	tokens "github.com/dropDatabas3/custodia/internal/security/token"
)

// Auth expone el orquestador de autenticación como endpoints JSON.
type Auth struct {
	Service *auth.Service
	Cookies CookieConfig
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	CSRFToken string        `json:"csrf_token"`
	Profile   *auth.Profile `json:"profile,omitempty"`
}

// Login maneja POST /v1/auth/login. Un access token vigente en la cookie
// cuenta como sesión activa y produce conflicto.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	hasSession := false
	if raw := cookieValue(r, h.Cookies.AccessName); raw != "" {
		if _, err := h.Service.Me(r.Context(), raw); err == nil {
			hasSession = true
		}
	}

	res, err := h.Service.Login(r.Context(), auth.LoginInput{
		Username:   req.Username,
		Password:   req.Password,
		IP:         clientIP(r),
		HasSession: hasSession,
		RequestID:  middlewares.GetRequestID(r.Context()),
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	h.setSession(w, res.Session)
	WriteData(w, r, http.StatusOK, sessionResponse{
		CSRFToken: res.Session.CSRF,
		Profile:   &res.Profile,
	})
}

func (h *Auth) setSession(w http.ResponseWriter, s auth.Session) {
	http.SetCookie(w, h.Cookies.Access(s.Access))
	if s.Refresh != "" {
		http.SetCookie(w, h.Cookies.Refresh(s.Refresh))
	}
	http.SetCookie(w, h.Cookies.CSRF(s.CSRF))
}

// Refresh maneja POST /v1/auth/refresh (tras el check CSRF). Rota access y
// csrf; el refresh token no cambia.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := cookieValue(r, h.Cookies.RefreshName)
	if raw == "" {
		WriteError(w, r, auth.ErrTokenInvalid)
		return
	}
	sess, err := h.Service.Refresh(r.Context(), raw)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	http.SetCookie(w, h.Cookies.Access(sess.Access))
	http.SetCookie(w, h.Cookies.CSRF(sess.CSRF))
	WriteData(w, r, http.StatusOK, sessionResponse{CSRFToken: sess.CSRF})
}

// Logout maneja POST /v1/auth/logout (tras el check CSRF). Los tokens son
// stateless: cerrar sesión es borrar las cookies.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	h.Service.Logout(r.Context(),
		cookieValue(r, h.Cookies.AccessName),
		clientIP(r),
		middlewares.GetRequestID(r.Context()))
	h.Cookies.ClearSession(w)
	WriteData(w, r, http.StatusOK, nil)
}

// Me maneja GET /v1/auth/me: perfil vigente del subject del access token.
func (h *Auth) Me(w http.ResponseWriter, r *http.Request) {
	raw := cookieValue(r, h.Cookies.AccessName)
	if raw == "" {
		WriteError(w, r, auth.ErrTokenInvalid)
		return
	}
	profile, err := h.Service.Me(r.Context(), raw)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, r, http.StatusOK, profile)
}

type verifyResponse struct {
	UserID string `json:"user_id"`
}

// Verify maneja GET /v1/auth/verify: probe liviano de sesión. El middleware
// RequireSession ya validó el token y dejó el subject en el contexto.
func (h *Auth) Verify(w http.ResponseWriter, r *http.Request) {
	WriteData(w, r, http.StatusOK, verifyResponse{
		UserID: middlewares.GetUserID(r.Context()),
	})
}

// CSRF maneja GET /v1/auth/csrf: emite un valor nuevo para clientes que
// perdieron la cookie (p.ej. tras recargar con la sesión aún viva).
func (h *Auth) CSRF(w http.ResponseWriter, r *http.Request) {
	val, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		WriteError(w, r, auth.Infra("tokens.csrf", err))
		return
	}
	http.SetCookie(w, h.Cookies.CSRF(val))
	WriteData(w, r, http.StatusOK, sessionResponse{CSRFToken: val})
}

type onboardingRequest struct {
	NewPassword string `json:"new_password"`
	AcceptTerms bool   `json:"accept_terms"`
}

// Onboarding maneja POST /v1/auth/onboarding (tras el check CSRF).
func (h *Auth) Onboarding(w http.ResponseWriter, r *http.Request) {
	var req onboardingRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	raw := cookieValue(r, h.Cookies.AccessName)
	if raw == "" {
		WriteError(w, r, auth.ErrTokenInvalid)
		return
	}
	res, err := h.Service.CompleteOnboarding(r.Context(), raw, auth.OnboardingInput{
		NewPassword: req.NewPassword,
		AcceptTerms: req.AcceptTerms,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.setSession(w, res.Session)
	WriteData(w, r, http.StatusOK, sessionResponse{
		CSRFToken: res.Session.CSRF,
		Profile:   &res.Profile,
	})
}
