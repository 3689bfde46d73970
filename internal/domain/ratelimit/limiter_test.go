package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeCounterStore implements CounterStore for testing.
type fakeCounterStore struct {
	mu     sync.Mutex
	counts map[string]int64
	fail   error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counts: make(map[string]int64)}
}

func (f *fakeCounterStore) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounterStore) GetWindow(_ context.Context, key string) (int64, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWindowKey(t *testing.T) {
	start := time.Unix(1700000040, 0)
	got := WindowKey("support-bot", start)
	want := "rate:support-bot:1700000040"
	if got != want {
		t.Errorf("WindowKey = %q, want %q", got, want)
	}
}

func TestFixedWindowLimiter(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Requests: 3, Window: time.Minute}

	store := newFakeCounterStore()
	limiter := NewFixedWindowLimiter(store, testLogger())
	limiter.now = func() time.Time { return time.Unix(1700000030, 0) }

	for i := 1; i <= 3; i++ {
		res, err := limiter.Check(ctx, "agent-1", cfg)
		if err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 3-i {
			t.Errorf("request %d remaining = %d, want %d", i, res.Remaining, 3-i)
		}
	}

	res, err := limiter.Check(ctx, "agent-1", cfg)
	if err != nil {
		t.Fatalf("Check over budget: %v", err)
	}
	if res.Allowed {
		t.Error("fourth request should be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", res.Remaining)
	}

	// A different agent has its own budget.
	res, _ = limiter.Check(ctx, "agent-2", cfg)
	if !res.Allowed {
		t.Error("separate agent should be allowed")
	}
}

func TestFixedWindowLimiterNewWindowResets(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Requests: 1, Window: time.Minute}
	store := newFakeCounterStore()
	limiter := NewFixedWindowLimiter(store, testLogger())

	now := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return now }

	if res, _ := limiter.Check(ctx, "a", cfg); !res.Allowed {
		t.Fatal("first request should be allowed")
	}
	if res, _ := limiter.Check(ctx, "a", cfg); res.Allowed {
		t.Fatal("second request in window should be denied")
	}

	now = now.Add(time.Minute)
	if res, _ := limiter.Check(ctx, "a", cfg); !res.Allowed {
		t.Error("request in next window should be allowed")
	}
}

func TestFixedWindowLimiterFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := newFakeCounterStore()
	store.fail = errors.New("connection refused")
	limiter := NewFixedWindowLimiter(store, testLogger())

	res, err := limiter.Check(ctx, "agent-1", Config{Requests: 1, Window: time.Minute})
	if err != nil {
		t.Fatalf("Check must not error when failing open: %v", err)
	}
	if !res.Allowed {
		t.Error("limiter must fail open on store errors")
	}
	if !res.Degraded {
		t.Error("degradation must be surfaced")
	}
}
