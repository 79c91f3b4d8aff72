// Package service implements per-source fixed-window admission control
// shared by all verification traffic.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"verigate/internal/ratelimit/metrics"
	"verigate/internal/ratelimit/models"
	"verigate/internal/ratelimit/store/window"
	"verigate/internal/retry"
	derrors "verigate/pkg/domain-errors"
)

// Window is the fixed admission window size.
const Window = time.Minute

// LimitProvider resolves a source's per-minute admission limit. The read may
// hit a configuration store, so Check wraps it in the retry executor.
type LimitProvider interface {
	RateLimit(ctx context.Context, source string) (int, error)
}

// Service is the fixed-window rate limiter. The window counters are the
// only mutable shared state of the verification core; the Store serializes
// concurrent increments.
type Service struct {
	store   window.Store
	limits  LimitProvider
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store window.Store, limits LimitProvider, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("window store is required")
	}
	if limits == nil {
		return nil, fmt.Errorf("limit provider is required")
	}

	svc := &Service{
		store:  store,
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check admits or rejects one request for the source's current window.
// Rejections carry a models.LimitExceededError with the wait until the
// window rolls over. This limiter is best-effort per process unless backed
// by the shared Redis store.
func (s *Service) Check(ctx context.Context, source string) error {
	limit, err := s.resolveLimit(ctx, source)
	if err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "failed to resolve rate limit")
	}

	windowStart := s.now().Truncate(Window)
	count, err := s.store.Take(ctx, source, windowStart, Window)
	if err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "failed to count admission window")
	}

	if count > int64(limit) {
		resetAt := windowStart.Add(Window)
		exceeded := &models.LimitExceededError{
			Source:     source,
			Limit:      limit,
			RetryAfter: resetAt.Sub(s.now()),
			ResetAt:    resetAt,
		}
		if s.metrics != nil {
			s.metrics.RecordCheck(source, "rejected")
		}
		if s.logger != nil {
			s.logger.Warn("rate limit exceeded",
				"source", source, "limit", limit, "reset_at", resetAt)
		}
		return derrors.Wrap(exceeded, derrors.CodeRateLimited, "rate limit exceeded")
	}

	if s.metrics != nil {
		s.metrics.RecordCheck(source, "allowed")
	}
	return nil
}

// Status reports the source's current window without consuming a slot.
func (s *Service) Status(ctx context.Context, source string) (*models.Status, error) {
	limit, err := s.resolveLimit(ctx, source)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to resolve rate limit")
	}

	windowStart := s.now().Truncate(Window)
	count, err := s.store.Count(ctx, source, windowStart)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to read admission window")
	}

	used := int(count)
	if used > limit {
		used = limit
	}
	return &models.Status{
		Source:    source,
		Limit:     limit,
		Used:      used,
		Remaining: limit - used,
		ResetAt:   windowStart.Add(Window),
	}, nil
}

// resolveLimit reads the per-source limit with a conservative retry budget;
// the provider may be backed by a store.
func (s *Service) resolveLimit(ctx context.Context, source string) (int, error) {
	result := retry.Do(ctx, "resolve_rate_limit", retry.Options{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		Logger:     s.logger,
	}, func(ctx context.Context) (int, error) {
		return s.limits.RateLimit(ctx, source)
	})
	if !result.Success {
		return 0, result.Err
	}
	return result.Data, nil
}
