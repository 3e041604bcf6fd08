package pg

import (
	"context"

	"github.com/dropDatabas3/custodia/internal/domain/repository"
)

// Append inserta un evento de auditoría. Best-effort: el dispatcher loguea
// y sigue si esto falla.
func (s *Store) Append(ctx context.Context, ev repository.AuditEvent) error {
	const q = `
INSERT INTO audit_event (id, event, result, code, actor_id, target, ip, request_id, at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, q,
		ev.ID, ev.Event, ev.Result, ev.Code, ev.ActorID, ev.Target, ev.IP, ev.RequestID, ev.At)
	return err
}

var _ repository.AuditRepository = (*Store)(nil)
