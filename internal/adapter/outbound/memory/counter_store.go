package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/ratelimit"
)

// CounterStore implements ratelimit.CounterStore with an in-memory map.
// Expired windows are pruned lazily on access.
type CounterStore struct {
	mu      sync.Mutex
	windows map[string]*counterWindow
	now     func() time.Time
}

type counterWindow struct {
	count     int64
	expiresAt time.Time
}

// NewCounterStore creates an empty in-memory counter store.
func NewCounterStore() *CounterStore {
	return &CounterStore{
		windows: make(map[string]*counterWindow),
		now:     time.Now,
	}
}

// IncrWindow increments the counter under key, creating it with the TTL
// on first use.
func (s *CounterStore) IncrWindow(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)

	w, ok := s.windows[key]
	if !ok {
		w = &counterWindow{expiresAt: now.Add(ttl)}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// GetWindow returns the current counter value, 0 if absent or expired.
func (s *CounterStore) GetWindow(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)

	w, ok := s.windows[key]
	if !ok {
		return 0, nil
	}
	return w.count, nil
}

func (s *CounterStore) prune(now time.Time) {
	for key, w := range s.windows {
		if now.After(w.expiresAt) {
			delete(s.windows, key)
		}
	}
}

// Compile-time interface verification.
var _ ratelimit.CounterStore = (*CounterStore)(nil)
