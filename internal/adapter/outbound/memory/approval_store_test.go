package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/approval"
)

func newPending(id string, expiresAt time.Time) *approval.Record {
	return &approval.Record{
		ID:        id,
		RequestID: "req-" + id,
		AgentID:   "agent-1",
		State:     approval.StatePending,
		CreatedAt: expiresAt.Add(-24 * time.Hour),
		ExpiresAt: expiresAt,
	}
}

func TestApprovalStoreTransition(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()
	now := time.Now().UTC()

	if err := store.Create(ctx, newPending("ap-1", now.Add(time.Hour))); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, applied, err := store.Transition(ctx, "ap-1", approval.StateApproved, "alice", now)
	if err != nil || !applied {
		t.Fatalf("Transition = (%v, %v), want applied", applied, err)
	}
	if rec.State != approval.StateApproved {
		t.Errorf("state = %v", rec.State)
	}

	// Repeat: idempotent, not applied.
	rec, applied, err = store.Transition(ctx, "ap-1", approval.StateApproved, "bob", now)
	if err != nil || applied {
		t.Fatalf("repeat = (%v, %v), want not applied, nil error", applied, err)
	}
	if rec.DecidedBy != "alice" {
		t.Errorf("decided_by = %q, want alice", rec.DecidedBy)
	}

	// Conflict.
	_, _, err = store.Transition(ctx, "ap-1", approval.StateRejected, "eve", now)
	if !errors.Is(err, approval.ErrAlreadyDecided) {
		t.Errorf("conflict err = %v, want ErrAlreadyDecided", err)
	}

	// Unknown id.
	_, _, err = store.Transition(ctx, "nope", approval.StateApproved, "x", now)
	if !errors.Is(err, approval.ErrNotFound) {
		t.Errorf("unknown err = %v, want ErrNotFound", err)
	}
}

func TestApprovalStoreExpirePending(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()
	now := time.Now().UTC()

	_ = store.Create(ctx, newPending("stale", now.Add(-time.Minute)))
	_ = store.Create(ctx, newPending("fresh", now.Add(time.Hour)))

	expired, err := store.ExpirePending(ctx, now)
	if err != nil {
		t.Fatalf("ExpirePending: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "stale" {
		t.Fatalf("expired = %v, want [stale]", expired)
	}

	rec, _ := store.Get(ctx, "stale")
	if rec.State != approval.StateExpired {
		t.Errorf("stale state = %v, want EXPIRED", rec.State)
	}
	rec, _ = store.Get(ctx, "fresh")
	if rec.State != approval.StatePending {
		t.Errorf("fresh state = %v, want PENDING", rec.State)
	}

	n, _ := store.CountPending(ctx)
	if n != 1 {
		t.Errorf("pending count = %d, want 1", n)
	}
}

func TestApprovalStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()
	rec := newPending("ap-1", time.Now().Add(time.Hour))
	rec.SanitizedParameters = map[string]interface{}{"k": "v"}
	_ = store.Create(ctx, rec)

	got, _ := store.Get(ctx, "ap-1")
	got.SanitizedParameters["k"] = "mutated"
	again, _ := store.Get(ctx, "ap-1")
	if again.SanitizedParameters["k"] != "v" {
		t.Error("store must hand out copies, not shared maps")
	}
}
