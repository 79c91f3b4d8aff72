package domain

import (
	"github.com/google/uuid"

	derrors "verigate/pkg/domain-errors"
)

// Typed identifiers for the verification domain. These are domain primitives:
// parsing enforces validity at the boundary so the rest of the code never
// handles raw strings. IDs must be valid, non-nil UUIDs.

// UserID identifies a portal user.
type UserID uuid.UUID

// NewUserID generates a new random UserID.
func NewUserID() UserID {
	return UserID(uuid.New())
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func (u UserID) String() string {
	return uuid.UUID(u).String()
}

// IsNil returns true if the ID is the zero value.
func (u UserID) IsNil() bool {
	return uuid.UUID(u) == uuid.Nil
}

// MarshalText encodes the ID as its canonical UUID string.
func (u UserID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText decodes and validates a canonical UUID string.
func (u *UserID) UnmarshalText(text []byte) error {
	parsed, err := ParseUserID(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// RequestID identifies a single verification request.
type RequestID uuid.UUID

// NewRequestID generates a new random RequestID.
func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

// ParseRequestID validates and returns a RequestID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request id")
	return RequestID(u), err
}

func (r RequestID) String() string {
	return uuid.UUID(r).String()
}

// IsNil returns true if the ID is the zero value.
func (r RequestID) IsNil() bool {
	return uuid.UUID(r) == uuid.Nil
}

// MarshalText encodes the ID as its canonical UUID string.
func (r RequestID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes and validates a canonical UUID string.
func (r *RequestID) UnmarshalText(text []byte) error {
	parsed, err := ParseRequestID(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// CredentialID identifies a verified credential.
type CredentialID uuid.UUID

// NewCredentialID generates a new random CredentialID.
func NewCredentialID() CredentialID {
	return CredentialID(uuid.New())
}

// ParseCredentialID validates and returns a CredentialID.
func ParseCredentialID(s string) (CredentialID, error) {
	u, err := parseUUID(s, "credential id")
	return CredentialID(u), err
}

func (c CredentialID) String() string {
	return uuid.UUID(c).String()
}

// IsNil returns true if the ID is the zero value.
func (c CredentialID) IsNil() bool {
	return uuid.UUID(c) == uuid.Nil
}

// MarshalText encodes the ID as its canonical UUID string.
func (c CredentialID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes and validates a canonical UUID string.
func (c *CredentialID) UnmarshalText(text []byte) error {
	parsed, err := ParseCredentialID(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func parseUUID(s, what string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, derrors.Newf(derrors.CodeInvalidInput, "invalid %s", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, derrors.Newf(derrors.CodeInvalidInput, "%s must not be the nil uuid", what)
	}
	return u, nil
}
