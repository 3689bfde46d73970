// Package ratelimit provides per-agent request budgeting over a shared
// counter store.
package ratelimit

import (
	"fmt"
	"time"
)

// Config defines the fixed-window rate limiting parameters.
type Config struct {
	// Requests is the number of allowed requests per window.
	Requests int

	// Window is the length of the fixed window.
	Window time.Duration
}

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request fits the current window.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is when the current window ends and the budget refills.
	ResetAt time.Time

	// Degraded is true when the shared counter store was unreachable
	// and the limiter failed open.
	Degraded bool
}

// WindowKey returns the shared-store counter key for an agent's current
// window. Format: "rate:{agent_id}:{window_start_unix}".
func WindowKey(agentID string, windowStart time.Time) string {
	return fmt.Sprintf("rate:%s:%d", agentID, windowStart.Unix())
}

// WindowStart truncates now to the start of the fixed window containing it.
func WindowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}
