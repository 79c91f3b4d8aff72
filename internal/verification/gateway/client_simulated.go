package gateway

import (
	"context"
	"sync"
	"time"

	"verigate/internal/retry"
	"verigate/internal/verification/models"
	derrors "verigate/pkg/domain-errors"
)

// SimulatedClient stands in for the real government database connections.
// It answers deterministically with a configurable latency and failure
// behavior to mimic real-world calls.
type SimulatedClient struct {
	// Latency is slept before every answer.
	Latency time.Duration
	// Reject makes the source answer "no matching record" for every claim.
	Reject bool

	mu sync.Mutex
	// remaining transient failures before calls start succeeding
	transientFailures int
}

// FailTransiently arms the next n calls to fail with a retryable
// SERVICE_UNAVAILABLE error.
func (c *SimulatedClient) FailTransiently(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transientFailures = n
}

func (c *SimulatedClient) takeFailure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transientFailures > 0 {
		c.transientFailures--
		return true
	}
	return false
}

func (c *SimulatedClient) Verify(ctx context.Context, cfg models.SourceConfig, req models.VerificationRequest) (*models.VerifyResponse, error) {
	if c.Latency > 0 {
		timer := time.NewTimer(c.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if c.takeFailure() {
		return nil, retry.Taggedf(retry.TagServiceUnavailable, "%s is temporarily unavailable", cfg.SourceName)
	}
	if c.Reject {
		return nil, derrors.Newf(derrors.CodeRejected, "no matching record in %s", cfg.SourceName)
	}

	details := map[string]any{"method": "registry_lookup"}
	for k, v := range req.Payload {
		details[k] = v
	}
	return &models.VerifyResponse{
		Verified:         true,
		VerificationDate: time.Now().UTC(),
		Source:           cfg.SourceName,
		Details:          details,
	}, nil
}
