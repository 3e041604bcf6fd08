package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind clasifica los errores del core en una taxonomía cerrada. El mapeo a
// HTTP y el tratamiento (exponer código vs. respuesta genérica) depende del
// kind, no del código puntual.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindAuthorization
	KindAccountState
	KindRateLimit
	KindInfrastructure
)

// Error es un error de negocio con código estable legible por máquina.
type Error struct {
	Kind    Kind
	Code    string
	Status  int
	Message string

	// RetryAfter se informa en rechazos por rate limit / bloqueo.
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Code + ": " + e.cause.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithRetryAfter devuelve una copia con el retry-after informado.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	cp := *e
	cp.RetryAfter = d
	return &cp
}

func newError(kind Kind, code string, status int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Status: status, Message: msg}
}

// Errores de negocio con código y status estables (contrato con el cliente).
var (
	ErrInvalidCredentials = newError(KindAuthentication, "INVALID_CREDENTIALS", http.StatusUnauthorized, "credenciales inválidas")
	ErrUserNotFound       = newError(KindAuthentication, "USER_NOT_FOUND", http.StatusNotFound, "usuario no encontrado")
	ErrUserInactive       = newError(KindAccountState, "USER_INACTIVE", http.StatusForbidden, "cuenta inactiva")
	ErrAccountLocked      = newError(KindAccountState, "ACCOUNT_LOCKED", http.StatusLocked, "cuenta bloqueada")
	ErrAccountExpired     = newError(KindAccountState, "ACCOUNT_EXPIRED", http.StatusUnauthorized, "cuenta expirada")
	ErrSessionActive      = newError(KindValidation, "SESSION_ACTIVE", http.StatusConflict, "ya existe una sesión activa")
	ErrRateLimited        = newError(KindRateLimit, "RATE_LIMIT_EXCEEDED", http.StatusTooManyRequests, "demasiados intentos")
	// ErrIPBlocked comparte código con el lock de cuenta pero es un bloqueo
	// escalado de la IP de origen, no del usuario.
	ErrIPBlocked        = newError(KindRateLimit, "ACCOUNT_LOCKED", http.StatusLocked, "origen bloqueado temporalmente")
	ErrPermissionDenied = newError(KindAuthorization, "PERMISSION_DENIED", http.StatusForbidden, "permiso denegado")
	ErrTokenInvalid     = newError(KindAuthentication, "TOKEN_INVALID", http.StatusUnauthorized, "token inválido")
	ErrTokenExpired     = newError(KindAuthentication, "TOKEN_EXPIRED", http.StatusUnauthorized, "token expirado")
	ErrInvalidCode      = newError(KindValidation, "INVALID_CODE", http.StatusBadRequest, "código incorrecto")
	ErrCodeExpired      = newError(KindValidation, "CODE_EXPIRED", http.StatusBadRequest, "código expirado")
	ErrWeakPassword     = newError(KindValidation, "WEAK_PASSWORD", http.StatusBadRequest, "la contraseña no cumple la política")
	ErrMissingFields    = newError(KindValidation, "MISSING_FIELDS", http.StatusBadRequest, "faltan campos requeridos")
)

// Infra envuelve un error de infraestructura (datastore/cache caídos).
// El detalle se loguea; al cliente solo le llega un 500 genérico.
func Infra(op string, cause error) *Error {
	return &Error{
		Kind:    KindInfrastructure,
		Code:    "INTERNAL_ERROR",
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("fallo de infraestructura en %s", op),
		cause:   cause,
	}
}

// AsError extrae un *Error de negocio si lo hay.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
