package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
)

// PolicyStore implements policy.Store over the relational store.
type PolicyStore struct {
	*Store
}

// NewPolicyStore creates a rule store over the shared handle.
func NewPolicyStore(s *Store) *PolicyStore { return &PolicyStore{Store: s} }

// List returns all rules.
func (s *PolicyStore) List(ctx context.Context) ([]policy.Rule, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT rule_id, name, description, action_types, conditions,
		        risk_modifier, enabled, priority, created_at, updated_at
		 FROM rules ORDER BY priority DESC, rule_id`))
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []policy.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// Get returns a rule by ID.
func (s *PolicyStore) Get(ctx context.Context, id string) (*policy.Rule, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT rule_id, name, description, action_types, conditions,
		        risk_modifier, enabled, priority, created_at, updated_at
		 FROM rules WHERE rule_id = ?`), id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.ErrRuleNotFound
	}
	return r, err
}

// Create inserts a new rule.
func (s *PolicyStore) Create(ctx context.Context, r *policy.Rule) error {
	actionTypes, err := json.Marshal(r.ActionTypes)
	if err != nil {
		return fmt.Errorf("encode action types: %w", err)
	}
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}

	enabled := 0
	if r.Enabled {
		enabled = 1
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO rules (rule_id, name, description, action_types, conditions,
		                    risk_modifier, enabled, priority, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM rules WHERE rule_id = ?)`),
		r.ID, r.Name, r.Description, string(actionTypes), string(conditions),
		r.RiskModifier, enabled, r.Priority, encodeTime(r.CreatedAt), encodeTime(r.UpdatedAt),
		r.ID)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return policy.ErrRuleExists
	}
	return nil
}

// Delete removes a rule by ID.
func (s *PolicyStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM rules WHERE rule_id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return policy.ErrRuleNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*policy.Rule, error) {
	var (
		r                       policy.Rule
		actionTypes, conditions string
		enabled                 int
		createdAt, updatedAt    string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &actionTypes, &conditions,
		&r.RiskModifier, &enabled, &r.Priority, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actionTypes), &r.ActionTypes); err != nil {
		return nil, fmt.Errorf("decode action types for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(conditions), &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions for %s: %w", r.ID, err)
	}
	r.Enabled = enabled != 0
	r.CreatedAt = decodeTime(createdAt)
	r.UpdatedAt = decodeTime(updatedAt)
	return &r, nil
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)
