package window

import (
	"context"
	"sync"
	"time"

	"verigate/internal/ratelimit/models"
)

// MemoryStore implements Store with an in-process map. Counters are not
// persisted; losing them on restart briefly under-enforces at most one
// window, which is acceptable since the limiter protects a downstream
// quota, not a hard invariant. For exact limits across multiple instances
// use RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
}

type windowEntry struct {
	windowStart time.Time
	count       int64
}

// NewMemoryStore creates an empty in-memory window store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*windowEntry)}
}

// Take increments the window's counter. As a side effect it evicts entries
// whose window has already rolled over, bounding the map's size.
func (s *MemoryStore) Take(_ context.Context, source string, windowStart time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(windowStart, window)

	key := models.WindowKey(source, windowStart)
	entry := s.windows[key]
	if entry == nil {
		entry = &windowEntry{windowStart: windowStart}
		s.windows[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// Count returns the window's counter without incrementing.
func (s *MemoryStore) Count(_ context.Context, source string, windowStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.windows[models.WindowKey(source, windowStart)]
	if entry == nil {
		return 0, nil
	}
	return entry.count, nil
}

// evictLocked drops entries whose window ended at or before the current
// window's start. Must be called while holding s.mu.
func (s *MemoryStore) evictLocked(windowStart time.Time, window time.Duration) {
	for key, entry := range s.windows {
		if !entry.windowStart.Add(window).After(windowStart) {
			delete(s.windows, key)
		}
	}
}

// Len reports how many windows are currently tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
