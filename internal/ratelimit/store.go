package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	until time.Time
}

// MemoryStore keeps fixed windows in an in-process map. State does not
// survive restarts; multi-process deployments should use the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryStore builds an empty in-process window store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window), now: time.Now}
}

// Incr implements WindowStore.
func (s *MemoryStore) Incr(_ context.Context, key string, windowSize time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w, ok := s.windows[key]
	if !ok || now.After(w.until) {
		w = &window{until: now.Add(windowSize)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.until, nil
}

// Reset clears all windows. Intended for tests.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = make(map[string]*window)
}
