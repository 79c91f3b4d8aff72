// Package auditlog is the append-only, bounded, queryable event log every
// component of the verification core writes to. It is an explicitly
// constructed, injectable component: build one at process start and hand it
// to each service, so tests never need global reset hooks.
package auditlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity bounds the in-memory ring buffer.
const DefaultCapacity = 1000

// Mirror receives every entry synchronously, one structured event per call,
// so operational tooling outside the core can tail the stream.
type Mirror interface {
	Publish(entry Entry)
}

// Logger buffers the most recent entries in a ring and mirrors every write
// to slog (keyed by level) plus an optional secondary Mirror. Appends are
// serialized by the internal mutex; queries take a read lock.
type Logger struct {
	mu       sync.RWMutex
	entries  []Entry
	next     int
	size     int
	capacity int

	slog   *slog.Logger
	mirror Mirror
	now    func() time.Time
}

type Option func(*Logger)

// WithCapacity overrides the ring buffer size.
func WithCapacity(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithSlog sets the process logger entries are mirrored to.
func WithSlog(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.slog = logger
	}
}

// WithMirror attaches a secondary sink, e.g. a Kafka publisher.
func WithMirror(m Mirror) Option {
	return func(l *Logger) {
		l.mirror = m
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// New constructs a Logger. Create one per process and inject it.
func New(opts ...Option) *Logger {
	l := &Logger{
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.entries = make([]Entry, l.capacity)
	return l
}

// Error records an error-level entry.
func (l *Logger) Error(service, operation, message string, fields Fields) {
	l.append(LevelError, service, operation, message, fields)
}

// Warning records a warn-level entry.
func (l *Logger) Warning(service, operation, message string, fields Fields) {
	l.append(LevelWarning, service, operation, message, fields)
}

// Info records an info-level entry.
func (l *Logger) Info(service, operation, message string, fields Fields) {
	l.append(LevelInfo, service, operation, message, fields)
}

// Debug records a debug-level entry.
func (l *Logger) Debug(service, operation, message string, fields Fields) {
	l.append(LevelDebug, service, operation, message, fields)
}

func (l *Logger) append(level Level, service, operation, message string, fields Fields) {
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		Level:     level,
		Service:   service,
		Operation: operation,
		UserID:    fields.UserID,
		RequestID: fields.RequestID,
		Message:   message,
		Duration:  fields.Duration,
		Metadata:  fields.Metadata,
	}
	if fields.Err != nil {
		entry.Error = fields.Err.Error()
	}

	l.mu.Lock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}
	l.mu.Unlock()

	// Mirrors run outside the lock; they must not block queries.
	if l.slog != nil {
		l.slog.LogAttrs(context.Background(), slogLevel(level), message, slogAttrs(entry)...)
	}
	if l.mirror != nil {
		l.mirror.Publish(entry)
	}
}

// Recent returns up to limit entries, most recent first. A non-positive
// limit returns everything buffered.
func (l *Logger) Recent(limit int) []Entry {
	return l.query(limit, func(Entry) bool { return true })
}

// ByService returns up to limit entries for one service, most recent first.
func (l *Logger) ByService(service string, limit int) []Entry {
	return l.query(limit, func(e Entry) bool { return e.Service == service })
}

// ByLevel returns up to limit entries at one level, most recent first.
func (l *Logger) ByLevel(level Level, limit int) []Entry {
	return l.query(limit, func(e Entry) bool { return e.Level == level })
}

// ByUser returns up to limit entries for one user, most recent first.
func (l *Logger) ByUser(userID string, limit int) []Entry {
	return l.query(limit, func(e Entry) bool { return e.UserID == userID })
}

func (l *Logger) query(limit int, match func(Entry) bool) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > l.size {
		limit = l.size
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= l.size && len(out) < limit; i++ {
		entry := l.entries[(l.next-i+l.capacity)%l.capacity]
		if match(entry) {
			out = append(out, entry)
		}
	}
	return out
}

// Summary aggregates the buffered entries: counts by level and by service
// plus the ten most recent errors.
func (l *Logger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := Summary{
		Total:     l.size,
		ByLevel:   make(map[Level]int),
		ByService: make(map[string]int),
	}
	for i := 1; i <= l.size; i++ {
		entry := l.entries[(l.next-i+l.capacity)%l.capacity]
		summary.ByLevel[entry.Level]++
		summary.ByService[entry.Service]++
		if entry.Level == LevelError && len(summary.RecentErrors) < 10 {
			summary.RecentErrors = append(summary.RecentErrors, entry)
		}
	}
	return summary
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelError:
		return slog.LevelError
	case LevelWarning:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func slogAttrs(e Entry) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("log_id", e.ID),
		slog.String("service", e.Service),
		slog.String("operation", e.Operation),
	}
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id", e.UserID))
	}
	if e.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", e.RequestID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Int64("duration_ms", e.Duration.Milliseconds()))
	}
	if len(e.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", e.Metadata))
	}
	return attrs
}
