// Package window provides fixed-window admission counters. The in-memory
// store is the single-process default; the Redis store shares one counter
// across instances when exact global limits are required.
package window

import (
	"context"
	"time"
)

// Store tracks per-source fixed-window counters.
type Store interface {
	// Take increments the counter for the window starting at windowStart
	// and returns the count after the increment. Implementations bound
	// the counter's lifetime to roughly the window duration.
	Take(ctx context.Context, source string, windowStart time.Time, window time.Duration) (int64, error)

	// Count returns the current counter for the window without
	// incrementing it. A missing window counts as zero.
	Count(ctx context.Context, source string, windowStart time.Time) (int64, error)
}
