package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is a snapshot of one source's fixed window, used to render
// "try again in N seconds" hints without consuming an admission slot.
type Status struct {
	Source    string    `json:"source"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// LimitExceededError is returned when a source's fixed-window admission
// limit is hit. The message embeds the RATE_LIMIT_EXCEEDED tag so the retry
// executor classifies it as transient when a caller chooses to retry at a
// higher level.
type LimitExceededError struct {
	Source     string
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("RATE_LIMIT_EXCEEDED: source %s reached %d requests per minute, retry in %ds",
		e.Source, e.Limit, int(e.RetryAfter.Round(time.Second).Seconds()))
}

// SanitizeKeySegment escapes delimiter characters in window key segments so
// a source name containing ':' cannot collide with an adjacent window key.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// WindowKey builds the composite key for one source's fixed window.
func WindowKey(source string, windowStart time.Time) string {
	return fmt.Sprintf("%s:%d", SanitizeKeySegment(source), windowStart.Unix())
}
