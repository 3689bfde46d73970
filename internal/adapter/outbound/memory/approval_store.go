package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/approval"
)

// ApprovalStore implements approval.Store with an in-memory map.
// Transitions are serialized per record under a single store mutex,
// which satisfies the per-id critical section at dev/test scale.
type ApprovalStore struct {
	mu      sync.Mutex
	records map[string]*approval.Record
}

// NewApprovalStore creates an empty in-memory approval store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{records: make(map[string]*approval.Record)}
}

// Create inserts a new record.
func (s *ApprovalStore) Create(_ context.Context, r *approval.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneRecord(r)
	s.records[r.ID] = cp
	return nil
}

// Get returns the current record.
func (s *ApprovalStore) Get(_ context.Context, id string) (*approval.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	return cloneRecord(r), nil
}

// Transition applies a terminal state change.
func (s *ApprovalStore) Transition(_ context.Context, id string, to approval.State, decidedBy string, at time.Time) (*approval.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, approval.ErrNotFound
	}
	before := r.State
	if err := r.Transition(to, decidedBy, at); err != nil {
		return nil, false, err
	}
	return cloneRecord(r), before != r.State, nil
}

// ExpirePending lapses stale pending records.
func (s *ApprovalStore) ExpirePending(_ context.Context, now time.Time) ([]*approval.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*approval.Record
	for _, r := range s.records {
		if r.Expired(now) {
			if err := r.Transition(approval.StateExpired, "", now); err == nil {
				expired = append(expired, cloneRecord(r))
			}
		}
	}
	return expired, nil
}

// CountPending returns the number of records still pending.
func (s *ApprovalStore) CountPending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.State == approval.StatePending {
			n++
		}
	}
	return n, nil
}

func cloneRecord(r *approval.Record) *approval.Record {
	cp := *r
	cp.MatchedRules = append([]string(nil), r.MatchedRules...)
	cp.SanitizedParameters = cloneMap(r.SanitizedParameters)
	cp.OriginalParameters = cloneMap(r.OriginalParameters)
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		cp.DecidedAt = &t
	}
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Compile-time interface verification.
var _ approval.Store = (*ApprovalStore)(nil)
