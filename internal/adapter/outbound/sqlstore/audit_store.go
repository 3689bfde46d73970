package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/audit"
)

// AuditStore implements audit.Store over the relational store.
// The table is append-only; nothing here updates or deletes rows.
type AuditStore struct {
	*Store
}

// NewAuditStore creates an audit store over the shared handle.
func NewAuditStore(s *Store) *AuditStore { return &AuditStore{Store: s} }

// Write appends one entry.
func (s *AuditStore) Write(ctx context.Context, e audit.Entry) error {
	sanitized, err := json.Marshal(e.SanitizedParameters)
	if err != nil {
		return fmt.Errorf("encode sanitized parameters: %w", err)
	}
	matched, err := json.Marshal(e.MatchedRules)
	if err != nil {
		return fmt.Errorf("encode matched rules: %w", err)
	}
	entities, err := json.Marshal(e.PIIEntityTypes)
	if err != nil {
		return fmt.Errorf("encode pii entity types: %w", err)
	}

	forwarded := 0
	if e.Forwarded {
		forwarded = 1
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO audit_log (request_id, agent_id, action_type, target_resource,
		        sanitized_parameters, decision, emitted_decision, risk_score,
		        matched_rules, pii_entity_types, mode_in_effect, approval_id,
		        forwarded, target_digest, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.RequestID, e.AgentID, e.ActionType, e.TargetResource,
		string(sanitized), e.Decision, e.EmittedDecision, e.RiskScore,
		string(matched), string(entities), e.ModeInEffect, e.ApprovalID,
		forwarded, e.TargetResponseDigest, encodeTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching the filter, newest first.
func (s *AuditStore) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.ActionType != "" {
		where = append(where, "action_type = ?")
		args = append(args, f.ActionType)
	}
	if f.Decision != "" {
		where = append(where, "decision = ?")
		args = append(args, f.Decision)
	}

	query := `SELECT request_id, agent_id, action_type, target_resource,
		sanitized_parameters, decision, emitted_decision, risk_score,
		matched_rules, pii_entity_types, mode_in_effect, approval_id,
		forwarded, target_digest, ts FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e                            audit.Entry
			sanitized, matched, entities string
			forwarded                    int
			ts                           string
		)
		if err := rows.Scan(&e.RequestID, &e.AgentID, &e.ActionType, &e.TargetResource,
			&sanitized, &e.Decision, &e.EmittedDecision, &e.RiskScore,
			&matched, &entities, &e.ModeInEffect, &e.ApprovalID,
			&forwarded, &e.TargetResponseDigest, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sanitized), &e.SanitizedParameters); err != nil {
			return nil, fmt.Errorf("decode sanitized parameters: %w", err)
		}
		if err := json.Unmarshal([]byte(matched), &e.MatchedRules); err != nil {
			return nil, fmt.Errorf("decode matched rules: %w", err)
		}
		if err := json.Unmarshal([]byte(entities), &e.PIIEntityTypes); err != nil {
			return nil, fmt.Errorf("decode pii entity types: %w", err)
		}
		e.Forwarded = forwarded != 0
		e.Timestamp = decodeTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats aggregates the trail.
func (s *AuditStore) Stats(ctx context.Context) (audit.Stats, error) {
	stats := audit.Stats{ByDecision: make(map[string]int64)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT decision, COUNT(*) FROM audit_log GROUP BY decision`)
	if err != nil {
		return stats, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			decision string
			count    int64
		)
		if err := rows.Scan(&decision, &count); err != nil {
			return stats, err
		}
		stats.ByDecision[decision] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
