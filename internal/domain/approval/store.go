package approval

import (
	"context"
	"time"
)

// Store persists approval records. Implementations serialize transitions
// per approval id (fine-grained lock or a conditional UPDATE); there is
// no global lock.
type Store interface {
	// Create inserts a new record in StatePending.
	Create(ctx context.Context, r *Record) error

	// Get returns the current record. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Transition applies a terminal state atomically with respect to
	// other transitions on the same id, following Record.Transition
	// semantics. Returns the post-transition record and whether this
	// call applied the change (false on an idempotent repeat);
	// ErrAlreadyDecided on conflict; ErrNotFound if absent.
	Transition(ctx context.Context, id string, to State, decidedBy string, at time.Time) (*Record, bool, error)

	// ExpirePending transitions every PENDING record whose ExpiresAt is
	// before now to EXPIRED and returns the records transitioned.
	ExpirePending(ctx context.Context, now time.Time) ([]*Record, error)

	// CountPending returns the number of records still pending.
	CountPending(ctx context.Context) (int, error)
}
