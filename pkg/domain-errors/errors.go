// Package derrors provides the domain error taxonomy surfaced to callers.
//
// Two failure classes are deliberately kept distinct throughout the codebase:
// transient faults (network, timeout, overload) which the retry executor may
// retry, and semantic failures (bad input, rejected claims, missing
// configuration) which never retry. The Code carried here is the semantic
// classification; transient classification lives in internal/retry.
package derrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the closed set of domain error classifications.
type Code string

const (
	// CodeInvalidInput: the caller's claim payload failed validation. No
	// side effects occurred.
	CodeInvalidInput Code = "invalid_input"

	// CodeRateLimited: the per-source admission limit was hit. Retry later.
	CodeRateLimited Code = "rate_limited"

	// CodeNotFound: a required entity (source configuration, request) does
	// not exist or is inactive. Operator's fault, fatal for the attempt.
	CodeNotFound Code = "not_found"

	// CodeRejected: the external source examined the claim and declined to
	// verify it. A business outcome, not a system fault.
	CodeRejected Code = "rejected"

	// CodeUnavailable: transport to the external source failed after the
	// retry budget was exhausted. System fault, should alert.
	CodeUnavailable Code = "unavailable"

	// CodeInternal: unexpected programming or infrastructure error.
	CodeInternal Code = "internal"
)

// Error couples a domain code with a human-readable message and an optional
// underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a domain code and message to an underlying error.
// Returns nil if err is nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the domain code from an error chain. Unclassified errors
// report CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps a domain code to the HTTP status the transport layer
// should respond with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRejected:
		// A rejected claim is a successful verification attempt with a
		// negative outcome; the response body carries the failure.
		return http.StatusOK
	case CodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
