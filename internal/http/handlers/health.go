package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger es cualquier dependencia con chequeo de vida (pg, redis).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health expone los probes de liveness y readiness.
type Health struct {
	// Deps se reporta por nombre en /readyz. Un Pinger nil se salta.
	Deps map[string]Pinger
}

// Healthz responde 200 siempre que el proceso esté vivo.
func (h *Health) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": nowISO()})
}

// Readyz chequea cada dependencia con timeout corto. Cualquier fallo ⇒ 503
// con el detalle por dependencia.
func (h *Health) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.Deps))
	for name, p := range h.Deps {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{"timestamp": nowISO(), "deps": deps}
	if status == http.StatusOK {
		body["status"] = "ready"
	} else {
		body["status"] = "degraded"
	}
	WriteJSON(w, status, body)
}
