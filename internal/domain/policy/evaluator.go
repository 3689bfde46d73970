package policy

import (
	"fmt"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/request"
)

// RuleMatch records one rule that matched a request.
type RuleMatch struct {
	RuleID   string  `json:"rule_id"`
	Name     string  `json:"name"`
	Priority int     `json:"priority"`
	Modifier float64 `json:"risk_score_modifier"`
	Reason   string  `json:"reason"`
}

// Evaluation is the outcome of evaluating a request against a snapshot.
type Evaluation struct {
	// RiskScore is the sum of modifiers over matched rules, >= 0.
	RiskScore float64
	// Matched lists matching rules ordered by descending priority then
	// rule ID.
	Matched []RuleMatch
	// Reason describes the highest-priority match, empty when nothing
	// matched.
	Reason string
	// Warnings records rules skipped for unknown condition keys.
	Warnings []string
}

// MatchedRuleIDs returns the matched rule IDs in reporting order.
func (e *Evaluation) MatchedRuleIDs() []string {
	ids := make([]string, len(e.Matched))
	for i, m := range e.Matched {
		ids[i] = m.RuleID
	}
	return ids
}

// Evaluate applies the snapshot's rules to a request. It is a pure
// function of (request, snapshot, now): identical inputs always produce
// identical evaluations, which makes decisions replayable against the
// audit trail.
func Evaluate(req *request.Request, snap *Snapshot, now time.Time) Evaluation {
	var ev Evaluation
	for i := range snap.Rules {
		rule := &snap.Rules[i]
		if !rule.Enabled {
			continue
		}
		if !rule.matchesActionType(req.ActionType) {
			continue
		}
		if unknown := rule.Conditions.Unknown(); len(unknown) > 0 {
			ev.Warnings = append(ev.Warnings,
				fmt.Sprintf("rule %s skipped: unknown condition keys %v", rule.ID, unknown))
			continue
		}
		matched, reason := rule.Conditions.Match(req, now)
		if !matched {
			continue
		}
		if reason == "" {
			reason = fmt.Sprintf("action type flagged by rule %q", rule.Name)
		}
		ev.Matched = append(ev.Matched, RuleMatch{
			RuleID:   rule.ID,
			Name:     rule.Name,
			Priority: rule.Priority,
			Modifier: rule.RiskModifier,
			Reason:   reason,
		})
		ev.RiskScore += rule.RiskModifier
	}
	if ev.RiskScore < 0 {
		ev.RiskScore = 0
	}
	if len(ev.Matched) > 0 {
		ev.Reason = fmt.Sprintf("%s (%s)", ev.Matched[0].Reason, ev.Matched[0].Name)
	}
	return ev
}
