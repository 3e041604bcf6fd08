package handlers

import (
	"net/http"

	"github.com/dropDatabas3/custodia/internal/auth"
	"github.com/dropDatabas3/custodia/internal/http/middlewares"
	tokens "github.com/dropDatabas3/custodia/internal/security/token"
)

type forgotRequest struct {
	Username string `json:"username"`
}

// Forgot maneja POST /v1/auth/forgot: genera y envía el código de reset.
func (h *Auth) Forgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	err := h.Service.RequestResetCode(r.Context(), req.Username, clientIP(r),
		middlewares.GetRequestID(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, r, http.StatusAccepted, nil)
}

type forgotVerifyRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

// ForgotVerify maneja POST /v1/auth/forgot/verify: canjea el código por un
// reset token que viaja en su propia cookie. Emite además una cookie CSRF
// nueva para que el paso final pase el check double-submit.
func (h *Auth) ForgotVerify(w http.ResponseWriter, r *http.Request) {
	var req forgotVerifyRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	token, _, err := h.Service.VerifyResetCode(r.Context(), req.Username, req.Code,
		clientIP(r), middlewares.GetRequestID(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	csrfVal, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		WriteError(w, r, auth.Infra("tokens.csrf", err))
		return
	}
	http.SetCookie(w, h.Cookies.Reset(token))
	http.SetCookie(w, h.Cookies.CSRF(csrfVal))
	WriteData(w, r, http.StatusOK, sessionResponse{CSRFToken: csrfVal})
}

type resetRequest struct {
	NewPassword string `json:"new_password"`
}

// Reset maneja POST /v1/auth/reset: consume el reset token de la cookie,
// aplica la contraseña nueva y deja al usuario con sesión iniciada.
func (h *Auth) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	raw := cookieValue(r, h.Cookies.ResetName)
	if raw == "" {
		WriteError(w, r, auth.ErrTokenInvalid)
		return
	}
	res, err := h.Service.ResetPassword(r.Context(), raw, req.NewPassword,
		clientIP(r), middlewares.GetRequestID(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	h.Cookies.ClearReset(w)
	h.setSession(w, res.Session)
	WriteData(w, r, http.StatusOK, sessionResponse{
		CSRFToken: res.Session.CSRF,
		Profile:   &res.Profile,
	})
}
