// Package gateway is the single egress point to the external government
// databases. It resolves per-source configuration, applies the outbound
// retry budget and per-attempt deadline, and separates transient transport
// faults from semantic rejections: a source saying "no matching record" is
// an answer, not a failure, and is never retried.
package gateway

//go:generate mockgen -source=gateway.go -destination=mocks/mocks.go -package=mocks SourceProvider,Client

import (
	"context"
	"errors"
	"time"

	"verigate/internal/auditlog"
	"verigate/internal/retry"
	"verigate/internal/verification/models"
	derrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
)

const serviceName = "verifier_gateway"

// SourceProvider resolves the static configuration of an external source.
// Implementations return sentinel.ErrNotFound for unknown sources.
type SourceProvider interface {
	SourceConfig(ctx context.Context, name string) (*models.SourceConfig, error)
}

// Client performs one verification call against an external source. A
// transient fault is an error carrying a retry tag; a semantic rejection is
// a derrors.CodeRejected error and is terminal.
type Client interface {
	Verify(ctx context.Context, cfg models.SourceConfig, req models.VerificationRequest) (*models.VerifyResponse, error)
}

// Gateway mediates all calls to external verification sources.
type Gateway struct {
	sources SourceProvider
	client  Client
	log     *auditlog.Logger

	resolveRetry retry.Options
	verifyRetry  retry.Options
}

type Option func(*Gateway)

func WithLogger(log *auditlog.Logger) Option {
	return func(g *Gateway) {
		g.log = log
	}
}

// WithResolveRetry overrides the configuration lookup retry budget.
func WithResolveRetry(opts retry.Options) Option {
	return func(g *Gateway) {
		g.resolveRetry = opts
	}
}

// WithVerifyRetry overrides the outbound call retry budget.
func WithVerifyRetry(opts retry.Options) Option {
	return func(g *Gateway) {
		g.verifyRetry = opts
	}
}

func New(sources SourceProvider, client Client, opts ...Option) (*Gateway, error) {
	if sources == nil {
		return nil, errors.New("source provider is required")
	}
	if client == nil {
		return nil, errors.New("verifier client is required")
	}

	g := &Gateway{
		sources: sources,
		client:  client,
		// configuration lookups are cheap and local
		resolveRetry: retry.Options{MaxRetries: 2, BaseDelay: 500 * time.Millisecond},
		// outbound calls get the full transient budget
		verifyRetry: retry.Options{MaxRetries: 3, BaseDelay: 1 * time.Second, MaxDelay: 8 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ResolveConfig looks up a source's configuration. An unknown or inactive
// source resolves to (nil, nil): absence of configuration is a fact about
// the deployment, not a transport failure, and the caller decides what a
// missing source means for the request.
func (g *Gateway) ResolveConfig(ctx context.Context, sourceName string) (*models.SourceConfig, error) {
	result := retry.Do(ctx, "resolve_source_config", g.resolveRetry, func(ctx context.Context) (*models.SourceConfig, error) {
		return g.sources.SourceConfig(ctx, sourceName)
	})
	if !result.Success {
		if errors.Is(result.Err, sentinel.ErrNotFound) {
			g.logWarn("resolve_config", "no configuration for source", sourceName, nil)
			return nil, nil
		}
		g.logError("resolve_config", "failed to resolve source configuration", sourceName, result.Err)
		return nil, derrors.Wrap(result.Err, derrors.CodeUnavailable, "failed to resolve source configuration")
	}

	cfg := result.Data
	if !cfg.Active {
		g.logWarn("resolve_config", "source is inactive", sourceName, nil)
		return nil, nil
	}
	return cfg, nil
}

// Verify calls the external source under the outbound retry budget, bounding
// each attempt by the source's configured timeout. It reports how many
// attempts were consumed alongside the outcome. A rejection passes through
// with its code intact; an exhausted budget or other transport failure
// surfaces as derrors.CodeUnavailable.
func (g *Gateway) Verify(ctx context.Context, cfg models.SourceConfig, req models.VerificationRequest) (*models.VerifyResponse, int, error) {
	result := retry.Do(ctx, "verify_"+cfg.SourceName, g.verifyRetry, func(ctx context.Context) (*models.VerifyResponse, error) {
		return retry.WithTimeout(ctx, cfg.Timeout, func(ctx context.Context) (*models.VerifyResponse, error) {
			return g.client.Verify(ctx, cfg, req)
		})
	})
	if !result.Success {
		if derrors.CodeOf(result.Err) == derrors.CodeRejected {
			g.logInfo("verify", "source rejected the claim", cfg.SourceName, map[string]any{
				"request_id": req.ID.String(),
				"attempts":   result.Attempts,
			})
			return nil, result.Attempts, result.Err
		}
		g.logError("verify", "external source call failed", cfg.SourceName, result.Err)
		return nil, result.Attempts, derrors.Wrap(result.Err, derrors.CodeUnavailable, "external source unavailable")
	}

	g.logInfo("verify", "source verified the claim", cfg.SourceName, map[string]any{
		"request_id": req.ID.String(),
		"attempts":   result.Attempts,
		"duration":   result.TotalDuration.String(),
	})
	return result.Data, result.Attempts, nil
}

func (g *Gateway) logInfo(operation, message, source string, metadata map[string]any) {
	if g.log == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["source"] = source
	g.log.Info(serviceName, operation, message, auditlog.Fields{Metadata: metadata})
}

func (g *Gateway) logWarn(operation, message, source string, err error) {
	if g.log == nil {
		return
	}
	g.log.Warning(serviceName, operation, message, auditlog.Fields{
		Err:      err,
		Metadata: map[string]any{"source": source},
	})
}

func (g *Gateway) logError(operation, message, source string, err error) {
	if g.log == nil {
		return
	}
	g.log.Error(serviceName, operation, message, auditlog.Fields{
		Err:      err,
		Metadata: map[string]any{"source": source},
	})
}
