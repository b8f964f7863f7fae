package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisResetAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisResetRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// NewRedisResetRateLimiter crea un rate limiter respaldado en Redis para
// compartir el conteo entre instancias del servicio.
func NewRedisResetRateLimiter(client *redis.Client, window time.Duration, max int) ResetRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisResetRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "reset:rl:",
	}
}

func (l *redisResetRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	redisKey := l.prefix + normalizedKey
	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisResetAllowScript, []string{redisKey}, seconds).Int()
	if err != nil {
		// Ante fallas de Redis preferimos no bloquear el flujo de reset.
		return true
	}
	return count <= l.max
}
