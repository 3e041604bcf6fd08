package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/custodia/internal/auth"
	"github.com/dropDatabas3/custodia/internal/http/middlewares"
	"github.com/dropDatabas3/custodia/internal/observability/logger"
)

type apiError struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RetryIn   int    `json:"retry_after_seconds,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

type apiResponse struct {
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// WriteJSON escribe una respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData envuelve el payload de éxito con el request id y el timestamp
// UTC. Toda respuesta del servicio lleva ambos, también las sin datos.
func WriteData(w http.ResponseWriter, r *http.Request, status int, v any) {
	WriteJSON(w, status, apiResponse{
		Data:      v,
		RequestID: middlewares.GetRequestID(r.Context()),
		Timestamp: nowISO(),
	})
}

// WriteError mapea un error del dominio al envelope JSON. Los errores que no
// son *auth.Error salen como 500 genérico; el detalle solo va al log.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := auth.AsError(err)
	if !ok {
		logger.From(r.Context()).Error("error no clasificado", logger.Err(err))
		e = auth.Infra("http", err)
	}
	if e.Kind == auth.KindInfrastructure {
		logger.From(r.Context()).Error("error de infraestructura",
			logger.Code(e.Code), logger.Err(err))
	}

	out := apiError{
		Error:     e.Code,
		Message:   e.Message,
		RequestID: middlewares.GetRequestID(r.Context()),
		Timestamp: nowISO(),
	}
	if e.RetryAfter > 0 {
		secs := int(e.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		out.RetryIn = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	WriteJSON(w, e.Status, out)
}

// ReadJSON decodifica el body JSON con límite de 1MB. Tolerante a campos
// desconocidos.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, r, auth.ErrMissingFields)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		WriteError(w, r, auth.ErrMissingFields)
		return false
	}
	return true
}
