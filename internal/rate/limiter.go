package rate

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// slidingWindowScript ejecuta drop-expired + count + insert + expire como
// una sola operación atómica. Sin esto, dos requests concurrentes pueden
// pasar un check que debió bloquear al segundo.
var slidingWindowScript = rdb.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then retry = tonumber(oldest[2]) + window - now end
  return {0, count, retry}
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, count + 1, 0}
`)

// SlidingWindowLimiter: ventana deslizante sobre un ZSET de timestamps.
// A diferencia de una ventana fija, garantiza que en cualquier intervalo de
// W segundos pasan exactamente Max requests por key.
type SlidingWindowLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration

	// Now permite inyectar el reloj en tests. Nil = time.Now.
	Now func() time.Time
}

func NewSlidingWindowLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *SlidingWindowLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &SlidingWindowLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
	}
}

func (l *SlidingWindowLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (Result, error) {
	nowMs := l.now().UnixMilli()
	windowMs := l.Window.Milliseconds()
	// member único: dos hits en el mismo milisegundo no deben colapsar
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	raw, err := slidingWindowScript.Run(ctx, l.Client,
		[]string{l.Prefix + key},
		nowMs, windowMs, l.Max, member,
	).Result()
	if err != nil {
		return Result{}, err
	}

	vals, ok := raw.([]any)
	if !ok || len(vals) != 3 {
		return Result{}, errScriptReply
	}
	allowed := toInt64(vals[0]) == 1
	hits := toInt64(vals[1])
	retryMs := toInt64(vals[2])

	res := Result{
		Allowed:     allowed,
		CurrentHits: hits,
	}
	if allowed {
		res.Remaining = l.Max - hits
		if res.Remaining < 0 {
			res.Remaining = 0
		}
	} else {
		res.RetryAfter = time.Duration(retryMs) * time.Millisecond
		if res.RetryAfter <= 0 {
			res.RetryAfter = l.Window
		}
	}
	return res, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

type scriptReplyError struct{}

func (scriptReplyError) Error() string { return "rate: unexpected script reply" }

var errScriptReply = scriptReplyError{}
