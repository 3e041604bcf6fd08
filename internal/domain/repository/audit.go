package repository

import (
	"context"
	"time"
)

// AuditEvent es un evento de auditoría append-only.
type AuditEvent struct {
	ID        string
	Event     string // ej: "auth.login"
	Result    string // "SUCCESS" | "FAIL"
	Code      string // código de error de negocio si FAIL
	ActorID   string // user id si se conoce
	Target    string // username/recurso objetivo
	IP        string
	RequestID string
	At        time.Time
}

// AuditRepository persiste eventos de auditoría. Append-only.
type AuditRepository interface {
	Append(ctx context.Context, ev AuditEvent) error
}
