// Package policy contains the rule model, condition evaluation, and the
// risk evaluator for the governance gateway.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Rule defines a single governance rule. A matching rule contributes its
// RiskModifier to the request's cumulative risk score.
type Rule struct {
	// ID is the unique, immutable identifier for this rule.
	ID string `json:"rule_id"`
	// Name is a human-readable name for this rule.
	Name string `json:"name"`
	// Description provides additional context about the rule.
	Description string `json:"description,omitempty"`
	// ActionTypes restricts the rule to the listed action types.
	// Empty matches any action type.
	ActionTypes []string `json:"action_types"`
	// Conditions is the parsed condition set; all present conditions
	// must hold for the rule to match.
	Conditions ConditionSet `json:"conditions"`
	// RiskModifier is added to the risk score when the rule matches.
	// Must be in [0, 1].
	RiskModifier float64 `json:"risk_score_modifier"`
	// Enabled indicates if this rule is active. Disabled rules never match.
	Enabled bool `json:"enabled"`
	// Priority orders rules for reporting; higher evaluates first.
	Priority int `json:"priority"`
	// CreatedAt is when the rule was created (UTC).
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the rule was last modified (UTC).
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the rule's invariants. Used on the create path so
// malformed rules fail fast instead of surfacing during evaluation.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return errors.New("rule_id is required")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.RiskModifier < 0 || r.RiskModifier > 1 {
		return fmt.Errorf("risk_score_modifier %v outside [0, 1]", r.RiskModifier)
	}
	if len(r.Conditions.unknown) > 0 {
		return fmt.Errorf("unknown condition keys: %v", r.Conditions.unknown)
	}
	return nil
}

// matchesActionType returns true if the rule applies to the action type.
func (r *Rule) matchesActionType(actionType string) bool {
	if len(r.ActionTypes) == 0 {
		return true
	}
	for _, at := range r.ActionTypes {
		if at == actionType {
			return true
		}
	}
	return false
}

// Snapshot is an immutable, read-only view of the active rule set.
// Snapshots are replaced wholesale on refresh; they are never mutated.
type Snapshot struct {
	// Rules holds every rule, sorted by descending priority then rule ID.
	Rules []Rule
	// Version increases monotonically with each refresh.
	Version int64
	// LoadedAt is when this snapshot was built (UTC).
	LoadedAt time.Time
}

// NewSnapshot copies and sorts rules into evaluation order.
func NewSnapshot(rules []Rule, version int64, loadedAt time.Time) *Snapshot {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return &Snapshot{Rules: sorted, Version: version, LoadedAt: loadedAt}
}

// ActiveCount returns the number of enabled rules in the snapshot.
func (s *Snapshot) ActiveCount() int {
	n := 0
	for i := range s.Rules {
		if s.Rules[i].Enabled {
			n++
		}
	}
	return n
}
