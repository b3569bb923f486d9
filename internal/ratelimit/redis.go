package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares fixed windows across processes via Redis. The first
// increment of a window sets the expiry; later increments reuse it, so the
// window boundary is identical for every process.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps a Redis client as a window store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:"}
}

// Incr implements WindowStore.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	full := s.prefix + key
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, full)
	pipe.ExpireNX(ctx, full, window)
	ttl := pipe.PTTL(ctx, full)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}
	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return int(incr.Val()), time.Now().Add(remaining), nil
}
