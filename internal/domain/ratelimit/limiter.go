package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// CounterStore atomically increments window counters in a shared store.
//
// Implementations must make IncrWindow atomic across gateway instances;
// the redis adapter uses an INCR+EXPIRE pipeline, the memory adapter a
// mutex-guarded map.
type CounterStore interface {
	// IncrWindow increments the counter under key and arranges for it to
	// expire after ttl. Returns the post-increment value.
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// GetWindow returns the current counter value, 0 if absent.
	GetWindow(ctx context.Context, key string) (int64, error)
}

// Limiter is the rate limiting port consumed by the request pipeline.
type Limiter interface {
	// Check records one request for agentID and reports whether it fits
	// the budget. The check is atomic over the shared counter.
	Check(ctx context.Context, agentID string, cfg Config) (Result, error)

	// Usage reports the current window state without consuming budget.
	Usage(ctx context.Context, agentID string, cfg Config) (Result, error)
}

// FixedWindowLimiter implements Limiter with fixed windows over a shared
// CounterStore. When the store is unreachable it fails open: denying
// legitimate traffic on an infrastructure blip is worse than briefly
// exceeding a soft budget. Degradations are logged and surfaced in the
// Result for metrics.
type FixedWindowLimiter struct {
	store  CounterStore
	logger *slog.Logger
	now    func() time.Time
}

// NewFixedWindowLimiter creates a limiter over the given counter store.
func NewFixedWindowLimiter(store CounterStore, logger *slog.Logger) *FixedWindowLimiter {
	return &FixedWindowLimiter{store: store, logger: logger, now: time.Now}
}

// Check implements Limiter.
func (l *FixedWindowLimiter) Check(ctx context.Context, agentID string, cfg Config) (Result, error) {
	now := l.now().UTC()
	start := WindowStart(now, cfg.Window)
	resetAt := start.Add(cfg.Window)

	// The key carries one extra window of TTL so late reads near the
	// boundary still resolve.
	count, err := l.store.IncrWindow(ctx, WindowKey(agentID, start), 2*cfg.Window)
	if err != nil {
		l.logger.Warn("rate limit store unreachable, failing open",
			"agent_id", agentID, "error", err)
		return Result{Allowed: true, Remaining: cfg.Requests, ResetAt: resetAt, Degraded: true}, nil
	}

	remaining := cfg.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(cfg.Requests),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Usage implements Limiter.
func (l *FixedWindowLimiter) Usage(ctx context.Context, agentID string, cfg Config) (Result, error) {
	now := l.now().UTC()
	start := WindowStart(now, cfg.Window)
	resetAt := start.Add(cfg.Window)

	count, err := l.store.GetWindow(ctx, WindowKey(agentID, start))
	if err != nil {
		return Result{Allowed: true, Remaining: cfg.Requests, ResetAt: resetAt, Degraded: true}, nil
	}
	remaining := cfg.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count < int64(cfg.Requests),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Compile-time interface verification.
var _ Limiter = (*FixedWindowLimiter)(nil)
