// Package service implements the credential verifiers: kind-specific
// pipelines that sequence rate limiting, request persistence, the external
// gateway call and credential creation.
//
// The pipeline's public contract never returns an error. Every outcome,
// including a panic caught at the boundary, is a typed Result so callers
// render a failed verification without unwinding. Business-outcome failure
// (a source rejecting a claim) and transient-fault failure (exhausted
// transport retries) both finalize the request as failed but keep their
// distinct codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"verigate/internal/auditlog"
	rlmodels "verigate/internal/ratelimit/models"
	"verigate/internal/verification/metrics"
	"verigate/internal/verification/models"
	id "verigate/pkg/domain"
	derrors "verigate/pkg/domain-errors"
)

const serviceName = "credential_verifier"

// DefaultSources maps each verification kind to the external authority that
// answers for it.
var DefaultSources = map[models.Kind]string{
	models.KindEducation:     "moe_registry",
	models.KindEmployment:    "mohre_registry",
	models.KindCertification: "cert_authority",
}

// RateLimiter admits or rejects one verification for a source's current
// window.
type RateLimiter interface {
	Check(ctx context.Context, source string) error
}

// RequestStore persists the request lifecycle and the credential artifact.
type RequestStore interface {
	CreateRequest(ctx context.Context, userID id.UserID, sourceName string, kind models.Kind, payload map[string]string) (*models.VerificationRequest, error)
	FinalizeRequest(ctx context.Context, requestID id.RequestID, status models.RequestStatus, response map[string]any) error
	CreateCredential(ctx context.Context, cred models.VerifiedCredential) (*models.VerifiedCredential, error)
}

// VerifierGateway resolves source configuration and performs the outbound
// verification call.
type VerifierGateway interface {
	ResolveConfig(ctx context.Context, sourceName string) (*models.SourceConfig, error)
	Verify(ctx context.Context, cfg models.SourceConfig, req models.VerificationRequest) (*models.VerifyResponse, int, error)
}

// Result is the pipeline's only output shape. VerificationID is empty when
// the pipeline failed before a request was created. RetryAfter carries the
// "try again in N seconds" hint for rate-limited attempts.
type Result struct {
	Success        bool                       `json:"success"`
	Credential     *models.VerifiedCredential `json:"credential,omitempty"`
	Error          string                     `json:"error,omitempty"`
	Code           derrors.Code               `json:"code,omitempty"`
	VerificationID string                     `json:"verification_id,omitempty"`
	RetryAfter     int                        `json:"retry_after_seconds,omitempty"`
}

// Service runs the verification pipelines.
type Service struct {
	limiter RateLimiter
	store   RequestStore
	gateway VerifierGateway
	log     *auditlog.Logger
	metrics *metrics.Metrics
	sources map[models.Kind]string
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(log *auditlog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSource overrides the external authority consulted for a kind.
func WithSource(kind models.Kind, source string) Option {
	return func(s *Service) {
		s.sources[kind] = source
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(limiter RateLimiter, store RequestStore, gateway VerifierGateway, opts ...Option) (*Service, error) {
	if limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if store == nil {
		return nil, errors.New("request store is required")
	}
	if gateway == nil {
		return nil, errors.New("verifier gateway is required")
	}

	s := &Service{
		limiter: limiter,
		store:   store,
		gateway: gateway,
		sources: make(map[models.Kind]string, len(DefaultSources)),
		now:     time.Now,
	}
	for kind, source := range DefaultSources {
		s.sources[kind] = source
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// VerifyEducation verifies a degree claim against the education registry.
func (s *Service) VerifyEducation(ctx context.Context, userID id.UserID, claim EducationClaim) Result {
	return s.verify(ctx, userID, claim)
}

// VerifyEmployment verifies an employment claim against the labor registry.
func (s *Service) VerifyEmployment(ctx context.Context, userID id.UserID, claim EmploymentClaim) Result {
	return s.verify(ctx, userID, claim)
}

// VerifyCertification verifies a certification claim against the certifying
// authority.
func (s *Service) VerifyCertification(ctx context.Context, userID id.UserID, claim CertificationClaim) Result {
	return s.verify(ctx, userID, claim)
}

// verify is the shared pipeline. Steps run strictly in sequence; the only
// retries happen inside the store and gateway calls. Any panic below the
// boundary is converted into a typed failure with full context logged.
func (s *Service) verify(ctx context.Context, userID id.UserID, c claim) (res Result) {
	tr := otel.Tracer("verification/Service")
	ctx, span := tr.Start(ctx, "Verify",
		trace.WithAttributes(
			attribute.String("verification.kind", string(c.kind())),
			attribute.String("user.id", userID.String()),
		))
	defer span.End()

	kind := c.kind()
	source := s.sources[kind]
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("verification pipeline panicked: %v", r)
			s.logFailure(userID, "", kind, source, start, err)
			res = Result{
				Success: false,
				Error:   "internal error during verification",
				Code:    derrors.CodeInternal,
			}
		}
		s.record(kind, res, start)
	}()

	if userID.IsNil() {
		return s.failure(userID, "", kind, source, start,
			derrors.New(derrors.CodeInvalidInput, "user id is required"))
	}
	if err := c.validate(); err != nil {
		// no side effects: nothing was persisted, no window slot consumed
		return s.failure(userID, "", kind, source, start, err)
	}

	if err := s.limiter.Check(ctx, source); err != nil {
		return s.failure(userID, "", kind, source, start, err)
	}

	req, err := s.store.CreateRequest(ctx, userID, source, kind, c.payload())
	if err != nil {
		return s.failure(userID, "", kind, source, start, err)
	}
	requestID := req.ID.String()
	span.SetAttributes(attribute.String("verification.request_id", requestID))

	cfg, err := s.gateway.ResolveConfig(ctx, source)
	if err != nil {
		return s.failure(userID, requestID, kind, source, start, err)
	}
	if cfg == nil {
		// operator fault: the request stays pending until it expires
		return s.failure(userID, requestID, kind, source, start,
			derrors.Newf(derrors.CodeNotFound, "configuration not found for source %q", source))
	}

	resp, attempts, err := s.gateway.Verify(ctx, *cfg, *req)
	if err != nil {
		if ferr := s.store.FinalizeRequest(ctx, req.ID, models.StatusFailed, map[string]any{
			"error": err.Error(),
		}); ferr != nil {
			s.logFailure(userID, requestID, kind, source, start, ferr)
		}
		return s.failure(userID, requestID, kind, source, start, err)
	}

	if err := s.store.FinalizeRequest(ctx, req.ID, models.StatusVerified, resp.Details); err != nil {
		return s.failure(userID, requestID, kind, source, start, err)
	}

	cred, err := s.store.CreateCredential(ctx, models.VerifiedCredential{
		UserID:     userID,
		Kind:       kind,
		IssuerName: c.issuerName(),
		Title:      c.title(),
		IssueDate:  c.issueDate(),
		Source:     resp.Source,
		Metadata:   resp.Details,
	})
	if err != nil {
		return s.failure(userID, requestID, kind, source, start, err)
	}

	if s.log != nil {
		s.log.Info(serviceName, "verify", "verification succeeded", auditlog.Fields{
			UserID:    userID.String(),
			RequestID: requestID,
			Duration:  s.now().Sub(start),
			Metadata: map[string]any{
				"kind":     string(kind),
				"source":   source,
				"attempts": attempts,
			},
		})
	}
	return Result{Success: true, Credential: cred, VerificationID: requestID}
}

// failure converts an error into the typed result shape and logs it.
func (s *Service) failure(userID id.UserID, requestID string, kind models.Kind, source string, start time.Time, err error) Result {
	s.logFailure(userID, requestID, kind, source, start, err)

	message := err.Error()
	var de *derrors.Error
	if errors.As(err, &de) {
		message = de.Message
	}

	res := Result{
		Success:        false,
		Error:          message,
		Code:           derrors.CodeOf(err),
		VerificationID: requestID,
	}
	var exceeded *rlmodels.LimitExceededError
	if errors.As(err, &exceeded) {
		res.RetryAfter = int(math.Ceil(exceeded.RetryAfter.Seconds()))
	}
	return res
}

func (s *Service) logFailure(userID id.UserID, requestID string, kind models.Kind, source string, start time.Time, err error) {
	if s.log == nil {
		return
	}
	s.log.Error(serviceName, "verify", "verification failed", auditlog.Fields{
		UserID:    userID.String(),
		RequestID: requestID,
		Err:       err,
		Duration:  s.now().Sub(start),
		Metadata: map[string]any{
			"kind":   string(kind),
			"source": source,
			"code":   string(derrors.CodeOf(err)),
		},
	})
}

func (s *Service) record(kind models.Kind, res Result, start time.Time) {
	if s.metrics == nil {
		return
	}
	outcome := "verified"
	if !res.Success {
		outcome = string(res.Code)
	}
	s.metrics.RecordVerification(string(kind), outcome, s.now().Sub(start))
}
