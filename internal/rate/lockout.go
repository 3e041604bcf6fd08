package rate

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// KeyKind distingue los contadores de fallos por IP y por usuario.
// Los bloqueos son independientes por tipo de key.
type KeyKind string

const (
	KeyIP   KeyKind = "ip"
	KeyUser KeyKind = "user"
)

// Tier define un umbral de fallos y la duración del bloqueo que dispara.
type Tier struct {
	Threshold int64
	Block     time.Duration
}

// Escalado por defecto. El usuario escala más rápido que la IP porque una
// IP puede agrupar muchos usuarios legítimos (NAT).
var (
	DefaultIPTiers = []Tier{
		{Threshold: 15, Block: 15 * time.Minute},
		{Threshold: 30, Block: time.Hour},
		{Threshold: 50, Block: 24 * time.Hour},
	}
	DefaultUserTiers = []Tier{
		{Threshold: 5, Block: 5 * time.Minute},
		{Threshold: 10, Block: 15 * time.Minute},
		{Threshold: 15, Block: time.Hour},
		{Threshold: 20, Block: 24 * time.Hour},
	}
)

// Guard implementa el lockout escalado: contador monotónico de fallos con
// TTL + registro de bloqueo cuando el contador cruza exactamente un umbral.
type Guard struct {
	Client     *rdb.Client
	Prefix     string
	FailureTTL time.Duration
	IPTiers    []Tier
	UserTiers  []Tier
}

func NewGuard(client *rdb.Client, prefix string, failureTTL time.Duration) *Guard {
	if prefix == "" {
		prefix = "bf:"
	}
	if failureTTL <= 0 {
		failureTTL = 24 * time.Hour
	}
	return &Guard{
		Client:     client,
		Prefix:     prefix,
		FailureTTL: failureTTL,
		IPTiers:    DefaultIPTiers,
		UserTiers:  DefaultUserTiers,
	}
}

func (g *Guard) failKey(kind KeyKind, key string) string {
	return g.Prefix + "fail:" + string(kind) + ":" + key
}

func (g *Guard) blockKey(kind KeyKind, key string) string {
	return g.Prefix + "block:" + string(kind) + ":" + key
}

func (g *Guard) tiers(kind KeyKind) []Tier {
	if kind == KeyUser {
		return g.UserTiers
	}
	return g.IPTiers
}

// RecordFailure incrementa el contador de fallos de la key. Si el contador,
// tras incrementar, queda exactamente en un umbral, crea el bloqueo
// correspondiente y devuelve su duración. INCR es atómico y devuelve valores
// únicos, así que la comparación por igualdad no tiene carreras.
func (g *Guard) RecordFailure(ctx context.Context, kind KeyKind, key string) (time.Duration, error) {
	n, err := g.Client.Incr(ctx, g.failKey(kind, key)).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := g.Client.Expire(ctx, g.failKey(kind, key), g.FailureTTL).Err(); err != nil {
			return 0, err
		}
	}
	for _, t := range g.tiers(kind) {
		if n == t.Threshold {
			if err := g.Client.Set(ctx, g.blockKey(kind, key), "1", t.Block).Err(); err != nil {
				return 0, err
			}
			return t.Block, nil
		}
	}
	return 0, nil
}

// ResetFailures borra el contador de fallos (no el bloqueo activo).
// Un login exitoso solo resetea el contador del usuario, nunca el de la IP:
// el rastro forense de la IP de origen se preserva a propósito.
func (g *Guard) ResetFailures(ctx context.Context, kind KeyKind, key string) error {
	return g.Client.Del(ctx, g.failKey(kind, key)).Err()
}

// IsBlocked indica si la key tiene un bloqueo vigente.
func (g *Guard) IsBlocked(ctx context.Context, kind KeyKind, key string) (bool, error) {
	n, err := g.Client.Exists(ctx, g.blockKey(kind, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemainingBlock devuelve cuánto falta para que se levante el bloqueo.
// 0 si no hay bloqueo.
func (g *Guard) RemainingBlock(ctx context.Context, kind KeyKind, key string) (time.Duration, error) {
	d, err := g.Client.PTTL(ctx, g.blockKey(kind, key)).Result()
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}
