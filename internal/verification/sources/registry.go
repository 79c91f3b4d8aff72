// Package sources provides the lookup of per-source external database
// configuration. The registry is fetched from, not owned by, the
// verification core; this in-memory implementation is seeded at startup and
// doubles as the rate limiter's limit provider.
package sources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"verigate/internal/verification/models"
	"verigate/pkg/platform/sentinel"
)

// DefaultRateLimitPerMinute applies when a source omits its own limit.
const DefaultRateLimitPerMinute = 60

// DefaultTimeout applies when a source omits its own outbound call deadline.
const DefaultTimeout = 10 * time.Second

// Registry is a concurrency-safe, in-memory source configuration provider.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]models.SourceConfig
}

// NewRegistry creates a registry seeded with the given configurations.
func NewRegistry(configs ...models.SourceConfig) (*Registry, error) {
	r := &Registry{configs: make(map[string]models.SourceConfig, len(configs))}
	for _, cfg := range configs {
		if err := r.Upsert(cfg); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Upsert inserts or replaces a source configuration, applying defaults for
// omitted limit and timeout fields.
func (r *Registry) Upsert(cfg models.SourceConfig) error {
	if cfg.SourceName == "" {
		return fmt.Errorf("source name is required")
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.SourceName] = cfg
	return nil
}

// SourceConfig returns the configuration for a source, or
// sentinel.ErrNotFound when the source is unknown. Inactive sources are
// returned as-is; callers decide how to treat them.
func (r *Registry) SourceConfig(_ context.Context, name string) (*models.SourceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("source %q: %w", name, sentinel.ErrNotFound)
	}
	return &cfg, nil
}

// RateLimit returns the per-minute admission limit for a source. Unknown
// sources fall back to the default limit so the limiter still protects the
// downstream quota.
func (r *Registry) RateLimit(_ context.Context, name string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.configs[name]; ok {
		return cfg.RateLimitPerMinute, nil
	}
	return DefaultRateLimitPerMinute, nil
}
