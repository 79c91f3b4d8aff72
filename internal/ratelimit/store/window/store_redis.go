package window

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"verigate/internal/ratelimit/models"
)

const redisKeyPrefix = "vrl:window:"

// RedisStore implements Store with a shared atomic counter, the extension
// point for multi-instance deployments where the in-memory approximation is
// not enough. INCR keeps the check-and-increment atomic across processes;
// key TTL replaces explicit eviction.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed window store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(source string, windowStart time.Time) string {
	return redisKeyPrefix + models.WindowKey(source, windowStart)
}

// Take atomically increments the window's counter and sets its expiry.
func (s *RedisStore) Take(ctx context.Context, source string, windowStart time.Time, window time.Duration) (int64, error) {
	key := redisKey(source, windowStart)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// One extra window of grace so Status can still read a just-rolled window.
	pipe.Expire(ctx, key, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment window %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Count returns the window's counter without incrementing.
func (s *RedisStore) Count(ctx context.Context, source string, windowStart time.Time) (int64, error) {
	count, err := s.client.Get(ctx, redisKey(source, windowStart)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read window %s: %w", redisKey(source, windowStart), err)
	}
	return count, nil
}
