// Package audit emite eventos de auditoría de autenticación. Desde la
// perspectiva de este core el sink es fire-and-forget: un fallo al
// persistir se loguea pero nunca afecta la respuesta al usuario.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/custodia/internal/domain/repository"
	"github.com/dropDatabas3/custodia/internal/observability/logger"
)

// Resultados posibles de un evento de auditoría.
const (
	ResultSuccess = "SUCCESS"
	ResultFail    = "FAIL"
)

// Event es la vista de emisión; el dispatcher la convierte al modelo de
// persistencia (repository.AuditEvent).
type Event struct {
	Event     string // ej: "auth.login"
	Result    string // SUCCESS | FAIL
	Code      string // código de negocio si FAIL
	ActorID   string
	Target    string
	IP        string
	RequestID string
	At        time.Time
}

// Sink recibe eventos emitidos.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// NoOpSink descarta los eventos. Para tests.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// LogSink escribe los eventos al logger estructurado. Es el fallback cuando
// no hay repositorio de auditoría configurado.
type LogSink struct{}

func (LogSink) Emit(ctx context.Context, ev Event) {
	logger.From(ctx).Named("audit").Info(ev.Event,
		zap.String("result", ev.Result),
		zap.String("code", ev.Code),
		zap.String("actor_id", ev.ActorID),
		zap.String("target", ev.Target),
		zap.String("ip", ev.IP),
		zap.String("request_id", ev.RequestID),
	)
}

// RepoSink persiste los eventos en el repositorio append-only.
type RepoSink struct {
	Repo repository.AuditRepository
	// NewID genera el id del evento; por defecto uuid v4.
	NewID func() string
}

func (s *RepoSink) Emit(ctx context.Context, ev Event) {
	newID := s.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	rec := repository.AuditEvent{
		ID:        newID(),
		Event:     ev.Event,
		Result:    ev.Result,
		Code:      ev.Code,
		ActorID:   ev.ActorID,
		Target:    ev.Target,
		IP:        ev.IP,
		RequestID: ev.RequestID,
		At:        ev.At,
	}
	if err := s.Repo.Append(ctx, rec); err != nil {
		logger.From(ctx).Named("audit").Warn("append failed", logger.Err(err))
	}
}
