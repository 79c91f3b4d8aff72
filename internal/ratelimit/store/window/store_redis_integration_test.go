//go:build integration

package window_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"verigate/internal/ratelimit/store/window"
	"verigate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *window.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = window.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.Client.FlushAll(context.Background()).Err())
}

func (s *RedisStoreSuite) TestTakeIncrements() {
	ctx := context.Background()
	start := time.Now().Truncate(time.Minute)

	for want := int64(1); want <= 3; want++ {
		count, err := s.store.Take(ctx, "moe_registry", start, time.Minute)
		s.Require().NoError(err)
		s.Equal(want, count)
	}

	count, err := s.store.Count(ctx, "moe_registry", start)
	s.Require().NoError(err)
	s.Equal(int64(3), count)
}

func (s *RedisStoreSuite) TestMissingWindowCountsZero() {
	count, err := s.store.Count(context.Background(), "never_seen", time.Now().Truncate(time.Minute))
	s.Require().NoError(err)
	s.Equal(int64(0), count)
}

func (s *RedisStoreSuite) TestWindowKeyExpires() {
	ctx := context.Background()
	start := time.Now().Truncate(time.Minute)

	_, err := s.store.Take(ctx, "moe_registry", start, time.Minute)
	s.Require().NoError(err)

	keys, err := s.redis.Client.Keys(ctx, "vrl:window:*").Result()
	s.Require().NoError(err)
	s.Require().Len(keys, 1)

	remaining := s.redis.Client.TTL(ctx, keys[0]).Val()
	s.Greater(remaining, time.Duration(0))
	s.LessOrEqual(remaining, 2*time.Minute)
}

// The shared counter is the whole point of the Redis store: concurrent
// takes across clients never lose increments.
func (s *RedisStoreSuite) TestConcurrentTakes() {
	ctx := context.Background()
	start := time.Now().Truncate(time.Minute)
	const goroutines = 50

	var wg sync.WaitGroup
	var failures atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.Take(ctx, "moe_registry", start, time.Minute); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load())
	count, err := s.store.Count(ctx, "moe_registry", start)
	s.Require().NoError(err)
	s.Equal(int64(goroutines), count)
}
