package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/approval"
)

// ApprovalStore implements approval.Store over the relational store.
// Terminal transitions are linearized per approval id by a conditional
// UPDATE on state = 'PENDING'; no table-wide lock is taken.
type ApprovalStore struct {
	*Store
}

// NewApprovalStore creates an approval store over the shared handle.
func NewApprovalStore(s *Store) *ApprovalStore { return &ApprovalStore{Store: s} }

// Create inserts a new pending record.
func (s *ApprovalStore) Create(ctx context.Context, r *approval.Record) error {
	matched, err := json.Marshal(r.MatchedRules)
	if err != nil {
		return fmt.Errorf("encode matched rules: %w", err)
	}
	sanitized, err := json.Marshal(r.SanitizedParameters)
	if err != nil {
		return fmt.Errorf("encode sanitized parameters: %w", err)
	}
	original, err := json.Marshal(r.OriginalParameters)
	if err != nil {
		return fmt.Errorf("encode original parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO approvals (approval_id, request_id, agent_id, action_type,
		        target_resource, risk_score, matched_rules, sanitized_parameters,
		        original_parameters, state, decided_by, decided_at, webhook_url,
		        created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', NULL, ?, ?, ?)`),
		r.ID, r.RequestID, r.AgentID, r.ActionType, r.TargetResource,
		r.RiskScore, string(matched), string(sanitized), string(original),
		string(r.State), r.WebhookURL, encodeTime(r.CreatedAt), encodeTime(r.ExpiresAt))
	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// Get returns the current record.
func (s *ApprovalStore) Get(ctx context.Context, id string) (*approval.Record, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectApproval+` WHERE approval_id = ?`), id)
	r, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, approval.ErrNotFound
	}
	return r, err
}

// Transition applies a terminal state change with a conditional update.
func (s *ApprovalStore) Transition(ctx context.Context, id string, to approval.State, decidedBy string, at time.Time) (*approval.Record, bool, error) {
	if to == approval.StatePending {
		return nil, false, fmt.Errorf("cannot transition to %s", to)
	}

	var decidedAt interface{}
	by := ""
	if to == approval.StateApproved || to == approval.StateRejected {
		by = decidedBy
		decidedAt = encodeTime(at)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE approvals SET state = ?, decided_by = ?, decided_at = ?
		 WHERE approval_id = ? AND state = 'PENDING'`),
		string(to), by, decidedAt, id)
	if err != nil {
		return nil, false, fmt.Errorf("transition approval: %w", err)
	}

	rec, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, false, getErr
	}

	if n, _ := res.RowsAffected(); n == 1 {
		return rec, true, nil
	}
	// No row changed: the record was already terminal. A repeat of the
	// same decision is idempotent; anything else conflicts.
	if rec.State == to {
		return rec, false, nil
	}
	return nil, false, fmt.Errorf("%w: state is %s", approval.ErrAlreadyDecided, rec.State)
}

// ExpirePending lapses stale pending records.
func (s *ApprovalStore) ExpirePending(ctx context.Context, now time.Time) ([]*approval.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT approval_id FROM approvals WHERE state = 'PENDING' AND expires_at < ?`),
		encodeTime(now))
	if err != nil {
		return nil, fmt.Errorf("list stale approvals: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []*approval.Record
	for _, id := range ids {
		rec, applied, err := s.Transition(ctx, id, approval.StateExpired, "", now)
		if err != nil || !applied {
			// Raced with a concurrent callback; the terminal state wins.
			continue
		}
		expired = append(expired, rec)
	}
	return expired, nil
}

// CountPending returns the number of records still pending.
func (s *ApprovalStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approvals WHERE state = 'PENDING'`).Scan(&n)
	return n, err
}

const selectApproval = `SELECT approval_id, request_id, agent_id, action_type,
	target_resource, risk_score, matched_rules, sanitized_parameters,
	original_parameters, state, decided_by, decided_at, webhook_url,
	created_at, expires_at FROM approvals`

func scanApproval(row rowScanner) (*approval.Record, error) {
	var (
		r                             approval.Record
		matched, sanitized, original  string
		state, createdAt, expiresAt   string
		decidedAt                     sql.NullString
	)
	if err := row.Scan(&r.ID, &r.RequestID, &r.AgentID, &r.ActionType,
		&r.TargetResource, &r.RiskScore, &matched, &sanitized, &original,
		&state, &r.DecidedBy, &decidedAt, &r.WebhookURL, &createdAt, &expiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(matched), &r.MatchedRules); err != nil {
		return nil, fmt.Errorf("decode matched rules for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(sanitized), &r.SanitizedParameters); err != nil {
		return nil, fmt.Errorf("decode sanitized parameters for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(original), &r.OriginalParameters); err != nil {
		return nil, fmt.Errorf("decode original parameters for %s: %w", r.ID, err)
	}
	r.State = approval.State(state)
	r.CreatedAt = decodeTime(createdAt)
	r.ExpiresAt = decodeTime(expiresAt)
	if decidedAt.Valid {
		t := decodeTime(decidedAt.String)
		r.DecidedAt = &t
	}
	return &r, nil
}

// Compile-time interface verification.
var _ approval.Store = (*ApprovalStore)(nil)
