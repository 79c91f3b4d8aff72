package auditlog

import (
	"encoding/json"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warn"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// IsValid checks if the level is one of the supported enum values.
func (l Level) IsValid() bool {
	switch l {
	case LevelError, LevelWarning, LevelInfo, LevelDebug:
		return true
	}
	return false
}

// Entry is one structured, queryable log event. Entries are append-only;
// ID and Timestamp are assigned at write time.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Service   string         `json:"service"`
	Operation string         `json:"operation"`
	UserID    string         `json:"user_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Message   string         `json:"message"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// entryAlias drops Entry's methods so the custom marshalling below does not
// recurse.
type entryAlias Entry

// MarshalJSON writes the duration as integer milliseconds under duration_ms,
// the unit both the HTTP log queries and the Kafka mirror expose.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		entryAlias
		DurationMS int64 `json:"duration_ms,omitempty"`
	}{entryAlias(e), e.Duration.Milliseconds()})
}

// UnmarshalJSON reads duration_ms back into the in-process Duration field.
func (e *Entry) UnmarshalJSON(data []byte) error {
	aux := struct {
		*entryAlias
		DurationMS int64 `json:"duration_ms,omitempty"`
	}{entryAlias: (*entryAlias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Duration = time.Duration(aux.DurationMS) * time.Millisecond
	return nil
}

// Fields carries the optional context attached to an entry.
type Fields struct {
	UserID    string
	RequestID string
	Err       error
	Duration  time.Duration
	Metadata  map[string]any
}

// Summary is a lightweight in-process health view over the buffered
// entries: counts by level and service plus the most recent errors.
type Summary struct {
	Total        int            `json:"total"`
	ByLevel      map[Level]int  `json:"by_level"`
	ByService    map[string]int `json:"by_service"`
	RecentErrors []Entry        `json:"recent_errors"`
}
