// Package httptransport is the thin HTTP layer over the verification core.
// Handlers delegate to domain services without embedding business logic so
// transport concerns remain isolated.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"verigate/internal/auditlog"
	rlmodels "verigate/internal/ratelimit/models"
	"verigate/internal/verification/models"
	"verigate/internal/verification/service"
	id "verigate/pkg/domain"
)

// VerifierService runs the three verification pipelines.
type VerifierService interface {
	VerifyEducation(ctx context.Context, userID id.UserID, claim service.EducationClaim) service.Result
	VerifyEmployment(ctx context.Context, userID id.UserID, claim service.EmploymentClaim) service.Result
	VerifyCertification(ctx context.Context, userID id.UserID, claim service.CertificationClaim) service.Result
}

// RequestReader serves the read-only verification history endpoints.
type RequestReader interface {
	GetRequest(ctx context.Context, requestID id.RequestID) (*models.VerificationRequest, error)
	ListRequestsByUser(ctx context.Context, userID id.UserID) ([]models.VerificationRequest, error)
	ListCredentialsByUser(ctx context.Context, userID id.UserID) ([]models.VerifiedCredential, error)
}

// LimiterReader reports a source's current admission window.
type LimiterReader interface {
	Status(ctx context.Context, source string) (*rlmodels.Status, error)
}

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

// Handler wires the portal endpoints to the verification core.
type Handler struct {
	verifier VerifierService
	reader   RequestReader
	limiter  LimiterReader
	audit    *auditlog.Logger
	logger   *slog.Logger
	health   map[string]HealthCheck
}

func NewHandler(verifier VerifierService, reader RequestReader, limiter LimiterReader, audit *auditlog.Logger, logger *slog.Logger) *Handler {
	return &Handler{
		verifier: verifier,
		reader:   reader,
		limiter:  limiter,
		audit:    audit,
		logger:   logger,
		health:   make(map[string]HealthCheck),
	}
}

// RegisterHealthCheck adds a named dependency ping to /healthz.
func (h *Handler) RegisterHealthCheck(name string, check HealthCheck) {
	h.health[name] = check
}

// NewRouter mounts all endpoints. Extra middlewares (request metrics) run
// inside the routing context so they can observe the matched pattern.
func NewRouter(h *Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mws...)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/verify/education", h.handleVerifyEducation)
		r.Post("/verify/employment", h.handleVerifyEmployment)
		r.Post("/verify/certification", h.handleVerifyCertification)

		r.Get("/requests/{requestID}", h.handleGetRequest)
		r.Get("/users/{userID}/requests", h.handleListRequests)
		r.Get("/users/{userID}/credentials", h.handleListCredentials)

		r.Get("/logs", h.handleLogs)
		r.Get("/logs/summary", h.handleLogsSummary)
		r.Get("/ratelimit/{source}", h.handleRateLimitStatus)
	})

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}
