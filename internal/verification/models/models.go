// Package models holds the verification domain entities shared by the
// store, gateway and verifier services.
package models

import (
	"time"

	id "verigate/pkg/domain"
	derrors "verigate/pkg/domain-errors"
)

// Kind identifies which class of claim a verification covers.
type Kind string

const (
	KindEducation     Kind = "education"
	KindEmployment    Kind = "employment"
	KindCertification Kind = "certification"
)

// IsValid checks if the kind is one of the supported enum values.
func (k Kind) IsValid() bool {
	switch k {
	case KindEducation, KindEmployment, KindCertification:
		return true
	}
	return false
}

// ParseKind creates a Kind from a string, validating it.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", derrors.Newf(derrors.CodeInvalidInput, "unknown verification kind: %q", s)
	}
	return k, nil
}

// RequestStatus is the lifecycle state of a verification request.
// Transitions are monotonic: pending is the only non-terminal state.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusVerified RequestStatus = "verified"
	StatusFailed   RequestStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusVerified || s == StatusFailed
}

// IsValid checks if the status is one of the supported enum values.
func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusFailed:
		return true
	}
	return false
}

// CredentialStatus is the lifecycle state of a verified credential. The
// verification core only ever writes CredentialActive; expiry and revocation
// belong to the surrounding wallet application.
type CredentialStatus string

const (
	CredentialActive  CredentialStatus = "active"
	CredentialExpired CredentialStatus = "expired"
	CredentialRevoked CredentialStatus = "revoked"
)

// IsValid checks if the status is one of the supported enum values.
func (s CredentialStatus) IsValid() bool {
	switch s {
	case CredentialActive, CredentialExpired, CredentialRevoked:
		return true
	}
	return false
}

// RequestTTL is the fixed window after which an unfinished request may be
// reaped. Expiry enforcement is a collaborator concern; ExpiresAt is
// informational for this core.
const RequestTTL = 24 * time.Hour

// VerificationRequest records one attempt to verify a claim against an
// external authoritative source.
type VerificationRequest struct {
	ID         id.RequestID      `json:"id"`
	UserID     id.UserID         `json:"user_id"`
	SourceName string            `json:"source_name"`
	Kind       Kind              `json:"kind"`
	Payload    map[string]string `json:"payload,omitempty"`
	Status     RequestStatus     `json:"status"`
	Response   map[string]any    `json:"response,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	VerifiedAt *time.Time        `json:"verified_at,omitempty"`
}

// VerifiedCredential is the durable artifact created exactly once per
// verification request that reaches StatusVerified. Never mutated by this
// core after creation.
type VerifiedCredential struct {
	ID         id.CredentialID  `json:"id"`
	UserID     id.UserID        `json:"user_id"`
	Kind       Kind             `json:"kind"`
	IssuerName string           `json:"issuer_name"` // institution, employer or certifying body
	Title      string           `json:"title"`
	IssueDate  string           `json:"issue_date"` // claim-supplied date, YYYY-MM-DD
	Source     string           `json:"source"`
	Status     CredentialStatus `json:"status"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// SourceConfig is the static, per-source configuration this core fetches but
// does not own. Read-only from the core's perspective.
type SourceConfig struct {
	SourceName         string
	RateLimitPerMinute int
	Timeout            time.Duration
	AuthenticationType string
	Active             bool
}

// VerifyResponse is the gateway's answer for a claim that checked out.
type VerifyResponse struct {
	Verified         bool
	VerificationDate time.Time
	Source           string
	Details          map[string]any
}
