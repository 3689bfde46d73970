// Package approval models the human-in-the-loop approval state machine.
package approval

import (
	"errors"
	"fmt"
	"time"
)

// State is the disposition of an approval record. Transitions are
// one-way out of StatePending; the other three states are terminal.
type State string

const (
	StatePending  State = "PENDING"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
	StateExpired  State = "EXPIRED"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool { return s != StatePending }

// Sentinel errors for approval transitions.
var (
	// ErrNotFound is returned when an approval id cannot be resolved.
	ErrNotFound = errors.New("approval not found")
	// ErrAlreadyDecided is returned when a transition conflicts with an
	// existing terminal state. A repeat of the same terminal decision is
	// not a conflict; it is answered idempotently.
	ErrAlreadyDecided = errors.New("approval already decided")
)

// Record tracks one pending decision awaiting human disposition.
// Mutation goes exclusively through the coordinator; everything else
// reads snapshots.
type Record struct {
	// ID is the unique approval identifier.
	ID string `json:"approval_id"`
	// RequestID links back to the evaluated request.
	RequestID string `json:"request_id"`
	// AgentID is the requesting agent.
	AgentID string `json:"agent_id"`
	// ActionType and TargetResource describe the escalated action.
	ActionType     string `json:"action_type"`
	TargetResource string `json:"target_resource"`
	// RiskScore and MatchedRules carry the evaluation that triggered the
	// escalation.
	RiskScore    float64  `json:"risk_score"`
	MatchedRules []string `json:"matched_rules"`
	// SanitizedParameters is the masked parameter copy shown to humans.
	SanitizedParameters map[string]interface{} `json:"sanitized_parameters"`
	// OriginalParameters is the unmasked copy forwarded to the target on
	// approval. Never included in audit entries or webhook payloads.
	OriginalParameters map[string]interface{} `json:"-"`
	// State is the current disposition.
	State State `json:"state"`
	// DecidedBy identifies who applied the terminal decision, empty
	// while pending or expired.
	DecidedBy string `json:"decided_by,omitempty"`
	// DecidedAt is when the terminal decision was applied.
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	// WebhookURL is where the approval request was posted.
	WebhookURL string `json:"webhook_url,omitempty"`
	// CreatedAt is when the record was created (UTC).
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is when a still-pending record lapses to EXPIRED.
	ExpiresAt time.Time `json:"expires_at"`
}

// Transition validates and applies a state change on the record.
// PENDING moves to any terminal state; a repeat of the current terminal
// state is an idempotent no-op; anything else is ErrAlreadyDecided.
func (r *Record) Transition(to State, decidedBy string, at time.Time) error {
	if to == StatePending {
		return fmt.Errorf("cannot transition to %s", to)
	}
	if r.State == to {
		return nil // idempotent repeat
	}
	if r.State.Terminal() {
		return fmt.Errorf("%w: state is %s", ErrAlreadyDecided, r.State)
	}
	r.State = to
	if to == StateApproved || to == StateRejected {
		r.DecidedBy = decidedBy
		t := at
		r.DecidedAt = &t
	}
	return nil
}

// Expired reports whether a pending record has lapsed at the given time.
func (r *Record) Expired(now time.Time) bool {
	return r.State == StatePending && now.After(r.ExpiresAt)
}
