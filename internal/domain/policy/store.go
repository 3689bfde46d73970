package policy

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for rule store operations.
var (
	// ErrRuleNotFound is returned when a rule id cannot be resolved.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrRuleExists is returned when creating a rule whose id is taken.
	ErrRuleExists = errors.New("rule already exists")
)

// Store persists rules durably. Implementations: in-memory (dev),
// SQL (postgres/sqlite).
type Store interface {
	// List returns all rules, enabled or not.
	List(ctx context.Context) ([]Rule, error)

	// Get returns a rule by ID. Returns ErrRuleNotFound if absent.
	Get(ctx context.Context, id string) (*Rule, error)

	// Create inserts a new rule. Returns ErrRuleExists on duplicate ID.
	Create(ctx context.Context, r *Rule) error

	// Delete removes a rule by ID. Returns ErrRuleNotFound if absent.
	Delete(ctx context.Context, id string) error
}

// ChangeOp identifies the kind of rule mutation in a change event.
type ChangeOp string

const (
	// ChangeCreated signals a rule was created.
	ChangeCreated ChangeOp = "created"
	// ChangeDeleted signals a rule was deleted.
	ChangeDeleted ChangeOp = "deleted"
)

// ChangeEvent notifies peers that the rule set changed and caches must
// be refreshed.
type ChangeEvent struct {
	RuleID string    `json:"rule_id"`
	Op     ChangeOp  `json:"op"`
	At     time.Time `json:"at"`
}

// ChangeNotifier propagates rule changes across gateway instances.
type ChangeNotifier interface {
	// PublishChange broadcasts a change event to all subscribers.
	PublishChange(ctx context.Context, ev ChangeEvent) error

	// SubscribeChanges returns a channel of change events plus a cancel
	// function. The channel closes when ctx is done or cancel is called.
	SubscribeChanges(ctx context.Context) (<-chan ChangeEvent, func(), error)
}

// Cache is the shared read-through rule cache. A miss (ok=false) sends
// the reader to the durable store, which then repopulates the cache.
type Cache interface {
	// GetAll returns the cached rule set. ok is false on a cache miss.
	GetAll(ctx context.Context) (rules []Rule, ok bool, err error)

	// PutAll replaces the cached rule set.
	PutAll(ctx context.Context, rules []Rule) error

	// Invalidate drops the cached rule set.
	Invalidate(ctx context.Context) error
}
