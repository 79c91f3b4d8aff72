// Package retry implements the retry executor every outbound and persistence
// call in the verification core goes through.
//
// The executor never returns an error: every outcome, including exhaustion of
// the retry budget, is represented in the returned Result so callers branch on
// Success instead of unwinding. Transient faults (classified by tag or message
// substring) are retried with exponential backoff and full jitter; everything
// else fails on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// Transient-fault tags. An error whose tag or message matches one of the
// configured tags is considered retryable.
const (
	TagNetworkError        = "NETWORK_ERROR"
	TagTimeout             = "TIMEOUT"
	TagServiceUnavailable  = "SERVICE_UNAVAILABLE"
	TagRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	TagConnectionRefused   = "CONNECTION_REFUSED"
	TagDNSResolutionFailed = "DNS_RESOLUTION_FAILED"
)

// DefaultRetryableTags returns the transient-fault tags retried by default.
func DefaultRetryableTags() []string {
	return []string{
		TagNetworkError,
		TagTimeout,
		TagServiceUnavailable,
		TagRateLimitExceeded,
		TagConnectionRefused,
		TagDNSResolutionFailed,
	}
}

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 10 * time.Second
	defaultJitter     = 100 * time.Millisecond
)

// Options configures one retry execution. The zero value applies the
// defaults: 3 retries, 1s base delay, 10s delay cap, 100ms jitter and the
// default retryable tag set. MaxRetries bounds additional attempts beyond
// the first; a negative value disables retries entirely, and a negative
// Jitter disables jitter.
type Options struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Jitter        time.Duration
	RetryableTags []string
	Logger        *slog.Logger

	// Test seams.
	sleep func(context.Context, time.Duration) error
	randn func(int64) int64
}

func (o Options) normalized() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultMaxDelay
	}
	if o.Jitter == 0 {
		o.Jitter = defaultJitter
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	}
	if o.RetryableTags == nil {
		o.RetryableTags = DefaultRetryableTags()
	}
	if o.sleep == nil {
		o.sleep = sleepCtx
	}
	if o.randn == nil {
		o.randn = rand.Int63n
	}
	return o
}

// Result reports the outcome of a retried operation. Attempts is 1-indexed:
// an operation that succeeded immediately reports Attempts == 1.
type Result[T any] struct {
	Success       bool
	Data          T
	Err           error
	Attempts      int
	TotalDuration time.Duration
}

// Do executes op under the configured retry policy. It never returns an
// error; inspect the Result. The context is threaded into every attempt and
// a cancelled context aborts the backoff sleep.
func Do[T any](ctx context.Context, name string, opts Options, op func(context.Context) (T, error)) Result[T] {
	o := opts.normalized()
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= o.MaxRetries+1; attempt++ {
		data, err := op(ctx)
		if err == nil {
			return Result[T]{
				Success:       true,
				Data:          data,
				Attempts:      attempt,
				TotalDuration: time.Since(start),
			}
		}
		lastErr = err

		if !Retryable(err, o.RetryableTags) {
			if o.Logger != nil {
				o.Logger.Debug("operation failed with non-retryable error",
					"operation", name, "attempt", attempt, "error", err)
			}
			return Result[T]{Err: err, Attempts: attempt, TotalDuration: time.Since(start)}
		}
		if attempt == o.MaxRetries+1 {
			break
		}

		delay := backoffDelay(attempt, o)
		if o.Logger != nil {
			o.Logger.Warn("transient failure, retrying",
				"operation", name, "attempt", attempt, "delay", delay, "error", err)
		}
		if err := o.sleep(ctx, delay); err != nil {
			return Result[T]{
				Err:           fmt.Errorf("retry aborted: %w", errors.Join(err, lastErr)),
				Attempts:      attempt,
				TotalDuration: time.Since(start),
			}
		}
	}

	if o.Logger != nil {
		o.Logger.Error("retry budget exhausted",
			"operation", name, "attempts", o.MaxRetries+1, "error", lastErr)
	}
	return Result[T]{Err: lastErr, Attempts: o.MaxRetries + 1, TotalDuration: time.Since(start)}
}

// backoffDelay computes the sleep before the next attempt after the given
// 1-indexed attempt failed: min(base * 2^(attempt-1) + random(0,jitter), max).
func backoffDelay(attempt int, o Options) time.Duration {
	backoff := o.BaseDelay << (attempt - 1)
	if backoff <= 0 || backoff > o.MaxDelay {
		// Shift overflow or past the cap; jitter cannot raise it further.
		return o.MaxDelay
	}
	if o.Jitter > 0 {
		backoff += time.Duration(o.randn(int64(o.Jitter)))
	}
	if backoff > o.MaxDelay {
		return o.MaxDelay
	}
	return backoff
}

// Retryable reports whether the error matches any of the given transient
// tags, either via an attached tag or by message substring.
func Retryable(err error, tags []string) bool {
	if err == nil {
		return false
	}
	message := strings.ToUpper(err.Error())
	tag := TagOf(err)
	for _, t := range tags {
		if t == tag || strings.Contains(message, t) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
