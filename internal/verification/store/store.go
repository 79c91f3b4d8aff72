// Package store persists the verification request lifecycle and the
// verified credentials it produces. The Store facade owns ID assignment,
// TTL stamping, enum normalization and the conservative retry budget for
// local persistence; Backends only move bytes.
package store

import (
	"context"
	"errors"
	"time"

	"verigate/internal/auditlog"
	"verigate/internal/retry"
	"verigate/internal/verification/models"
	id "verigate/pkg/domain"
	derrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
)

const serviceName = "verification_store"

// Backend is the raw persistence port. Implementations return sentinel
// errors for factual states (not found, invalid state); the facade
// translates them into domain errors.
type Backend interface {
	InsertRequest(ctx context.Context, req models.VerificationRequest) error
	UpdateRequestStatus(ctx context.Context, requestID id.RequestID, status models.RequestStatus, response map[string]any, verifiedAt *time.Time) error
	GetRequest(ctx context.Context, requestID id.RequestID) (*models.VerificationRequest, error)
	ListRequestsByUser(ctx context.Context, userID id.UserID) ([]models.VerificationRequest, error)
	InsertCredential(ctx context.Context, cred models.VerifiedCredential) error
	ListCredentialsByUser(ctx context.Context, userID id.UserID) ([]models.VerifiedCredential, error)
}

// Store wraps a Backend with retries and domain-error translation. Unlike
// the retry executor's result contract, this layer returns an error on
// final failure: callers committing durable state need normal control flow.
type Store struct {
	backend Backend
	log     *auditlog.Logger
	now     func() time.Time
}

type Option func(*Store)

func WithLogger(log *auditlog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("store backend is required")
	}
	s := &Store{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// persistence retries are conservative: this is a local call, not an
// external one.
var persistRetry = retry.Options{
	MaxRetries: 2,
	BaseDelay:  500 * time.Millisecond,
}

// CreateRequest inserts a new pending request with a fixed TTL and returns
// it with its assigned ID.
func (s *Store) CreateRequest(ctx context.Context, userID id.UserID, sourceName string, kind models.Kind, payload map[string]string) (*models.VerificationRequest, error) {
	if userID.IsNil() {
		return nil, derrors.New(derrors.CodeInvalidInput, "user id is required")
	}
	if sourceName == "" {
		return nil, derrors.New(derrors.CodeInvalidInput, "source name is required")
	}
	if !kind.IsValid() {
		return nil, derrors.Newf(derrors.CodeInvalidInput, "invalid verification kind: %q", kind)
	}

	now := s.now()
	req := models.VerificationRequest{
		ID:         id.NewRequestID(),
		UserID:     userID,
		SourceName: sourceName,
		Kind:       kind,
		Payload:    payload,
		Status:     models.StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(models.RequestTTL),
	}

	result := retry.Do(ctx, "create_verification_request", persistRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.InsertRequest(ctx, req)
	})
	if !result.Success {
		s.logError("create_request", "failed to persist verification request", req, result.Err)
		return nil, derrors.Wrap(result.Err, derrors.CodeInternal, "failed to create verification request")
	}

	if s.log != nil {
		s.log.Info(serviceName, "create_request", "verification request created", auditlog.Fields{
			UserID:    userID.String(),
			RequestID: req.ID.String(),
			Metadata:  map[string]any{"source": sourceName, "kind": string(kind)},
		})
	}
	return &req, nil
}

// FinalizeRequest moves a pending request to its terminal status and
// attaches the gateway's response payload. VerifiedAt is set only on the
// verified transition. Finalizing an already-terminal request fails with
// sentinel.ErrInvalidState from the backend; status is monotonic.
func (s *Store) FinalizeRequest(ctx context.Context, requestID id.RequestID, status models.RequestStatus, response map[string]any) error {
	if !status.IsTerminal() {
		return derrors.Newf(derrors.CodeInvalidInput, "status %q is not terminal", status)
	}

	var verifiedAt *time.Time
	if status == models.StatusVerified {
		at := s.now()
		verifiedAt = &at
	}

	result := retry.Do(ctx, "finalize_verification_request", persistRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.UpdateRequestStatus(ctx, requestID, status, response, verifiedAt)
	})
	if !result.Success {
		if s.log != nil {
			s.log.Error(serviceName, "finalize_request", "failed to finalize verification request", auditlog.Fields{
				RequestID: requestID.String(),
				Err:       result.Err,
				Metadata:  map[string]any{"status": string(status)},
			})
		}
		switch {
		case errors.Is(result.Err, sentinel.ErrNotFound):
			return derrors.Wrap(result.Err, derrors.CodeNotFound, "verification request not found")
		case errors.Is(result.Err, sentinel.ErrInvalidState):
			return derrors.Wrap(result.Err, derrors.CodeInternal, "verification request already finalized")
		default:
			return derrors.Wrap(result.Err, derrors.CodeInternal, "failed to finalize verification request")
		}
	}

	if s.log != nil {
		s.log.Info(serviceName, "finalize_request", "verification request finalized", auditlog.Fields{
			RequestID: requestID.String(),
			Metadata:  map[string]any{"status": string(status)},
		})
	}
	return nil
}

// CreateCredential inserts the durable artifact of a verified request. Kind
// is validated against the closed enum and status is normalized to active
// regardless of input.
func (s *Store) CreateCredential(ctx context.Context, cred models.VerifiedCredential) (*models.VerifiedCredential, error) {
	if cred.UserID.IsNil() {
		return nil, derrors.New(derrors.CodeInvalidInput, "user id is required")
	}
	if !cred.Kind.IsValid() {
		return nil, derrors.Newf(derrors.CodeInvalidInput, "invalid credential kind: %q", cred.Kind)
	}

	cred.ID = id.NewCredentialID()
	cred.Status = models.CredentialActive
	cred.CreatedAt = s.now()

	result := retry.Do(ctx, "create_verified_credential", persistRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.InsertCredential(ctx, cred)
	})
	if !result.Success {
		if s.log != nil {
			s.log.Error(serviceName, "create_credential", "failed to persist verified credential", auditlog.Fields{
				UserID: cred.UserID.String(),
				Err:    result.Err,
			})
		}
		return nil, derrors.Wrap(result.Err, derrors.CodeInternal, "failed to create verified credential")
	}

	if s.log != nil {
		s.log.Info(serviceName, "create_credential", "verified credential created", auditlog.Fields{
			UserID:   cred.UserID.String(),
			Metadata: map[string]any{"credential_id": cred.ID.String(), "kind": string(cred.Kind)},
		})
	}
	return &cred, nil
}

// GetRequest fetches one request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID id.RequestID) (*models.VerificationRequest, error) {
	req, err := s.backend.GetRequest(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, derrors.Wrap(err, derrors.CodeNotFound, "verification request not found")
	}
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to load verification request")
	}
	return req, nil
}

// ListRequestsByUser returns a user's requests, most recent first.
func (s *Store) ListRequestsByUser(ctx context.Context, userID id.UserID) ([]models.VerificationRequest, error) {
	reqs, err := s.backend.ListRequestsByUser(ctx, userID)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list verification requests")
	}
	return reqs, nil
}

// ListCredentialsByUser returns a user's credentials, most recent first.
func (s *Store) ListCredentialsByUser(ctx context.Context, userID id.UserID) ([]models.VerifiedCredential, error) {
	creds, err := s.backend.ListCredentialsByUser(ctx, userID)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list verified credentials")
	}
	return creds, nil
}

func (s *Store) logError(operation, message string, req models.VerificationRequest, err error) {
	if s.log == nil {
		return
	}
	s.log.Error(serviceName, operation, message, auditlog.Fields{
		UserID:    req.UserID.String(),
		RequestID: req.ID.String(),
		Err:       err,
		Metadata:  map[string]any{"source": req.SourceName, "kind": string(req.Kind)},
	})
}
