package retry

import (
	"context"
	"time"
)

// WithTimeout bounds a single attempt's wall-clock time, independent of the
// retry loop. When the deadline expires before op returns, the result is a
// TIMEOUT-tagged error, which the default tag set classifies as retryable.
//
// op keeps running in its own goroutine after a timeout; it must honor the
// derived context to avoid leaking work.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data T
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := op(ctx)
		done <- outcome{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, Taggedf(TagTimeout, "operation exceeded %s deadline", timeout)
	case out := <-done:
		return out.data, out.err
	}
}
