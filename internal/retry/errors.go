package retry

import (
	"errors"
	"fmt"
)

// Error attaches a transient-fault tag to an underlying cause so the
// executor can classify it without string matching.
type Error struct {
	Tag string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Tag, e.Err)
	}
	return e.Tag
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Tagged wraps err with a transient-fault tag.
func Tagged(tag string, err error) *Error {
	return &Error{Tag: tag, Err: err}
}

// Taggedf wraps a formatted error with a transient-fault tag.
func Taggedf(tag, format string, args ...any) *Error {
	return &Error{Tag: tag, Err: fmt.Errorf(format, args...)}
}

// TagOf extracts the transient-fault tag from an error chain, or "" if the
// error carries none.
func TagOf(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Tag
	}
	return ""
}
