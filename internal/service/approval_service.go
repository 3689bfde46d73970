package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/approval"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/audit"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/request"
	"github.com/vasuans/sentinel-ai-gateway/internal/port/outbound"
)

// webhookDeadline bounds the full retry budget for one approval webhook.
const webhookDeadline = 30 * time.Second

// DefaultApprovalExpiry is how long a record stays pending before the
// sweeper lapses it.
const DefaultApprovalExpiry = 24 * time.Hour

// DefaultSweepInterval is how often the sweeper scans for stale records.
const DefaultSweepInterval = time.Minute

// webhookPayload is the JSON body posted to the approval service.
// Parameters are the sanitized copy; originals never leave the gateway
// through this path.
type webhookPayload struct {
	Event               string                 `json:"event"`
	ApprovalID          string                 `json:"approval_id"`
	RequestID           string                 `json:"request_id"`
	AgentID             string                 `json:"agent_id"`
	ActionType          string                 `json:"action_type"`
	TargetResource      string                 `json:"target_resource"`
	RiskScore           float64                `json:"risk_score"`
	MatchedRules        []string               `json:"matched_rules"`
	SanitizedParameters map[string]interface{} `json:"parameters"`
	CreatedAt           time.Time              `json:"created_at"`
	ExpiresAt           time.Time              `json:"expires_at"`
	CallbackURL         string                 `json:"callback_url"`
}

// ApprovalCoordinator exclusively owns approval record mutation. It
// creates records for pending decisions, notifies the approval service,
// applies terminal callbacks idempotently, lapses stale records, and
// re-enters the forward path on approval.
type ApprovalCoordinator struct {
	store  approval.Store
	poster outbound.WebhookPoster
	sink   outbound.ForwardSink
	auditw *AuditWriter
	logger *slog.Logger

	webhookURL    string
	expiry        time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	wg sync.WaitGroup
}

// ApprovalOption configures an ApprovalCoordinator.
type ApprovalOption func(*ApprovalCoordinator)

// WithApprovalExpiry sets the pending record lifetime.
func WithApprovalExpiry(d time.Duration) ApprovalOption {
	return func(c *ApprovalCoordinator) { c.expiry = d }
}

// WithSweepInterval sets the expiry sweeper cadence.
func WithSweepInterval(d time.Duration) ApprovalOption {
	return func(c *ApprovalCoordinator) { c.sweepInterval = d }
}

// NewApprovalCoordinator creates a coordinator. webhookURL may be empty
// to disable webhook notification.
func NewApprovalCoordinator(store approval.Store, poster outbound.WebhookPoster, sink outbound.ForwardSink, auditw *AuditWriter, webhookURL string, logger *slog.Logger, opts ...ApprovalOption) *ApprovalCoordinator {
	c := &ApprovalCoordinator{
		store:         store,
		poster:        poster,
		sink:          sink,
		auditw:        auditw,
		logger:        logger,
		webhookURL:    webhookURL,
		expiry:        DefaultApprovalExpiry,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the expiry sweeper.
func (c *ApprovalCoordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.sweepLoop(ctx)
}

// Stop waits for the sweeper and any in-flight webhook posts.
func (c *ApprovalCoordinator) Stop() {
	c.wg.Wait()
}

// CreatePending builds and stores a pending approval record for an
// escalated request, then posts the webhook best-effort in the
// background. The webhook outcome never fails the request: a record
// whose webhook was lost still resolves through callback or expiry.
func (c *ApprovalCoordinator) CreatePending(ctx context.Context, req *request.Request, ev policy.Evaluation, sanitized map[string]interface{}) (*approval.Record, error) {
	now := c.now().UTC()
	rec := &approval.Record{
		ID:                  uuid.NewString(),
		RequestID:           req.ID,
		AgentID:             req.AgentID,
		ActionType:          req.ActionType,
		TargetResource:      req.TargetResource,
		RiskScore:           ev.RiskScore,
		MatchedRules:        ev.MatchedRuleIDs(),
		SanitizedParameters: sanitized,
		OriginalParameters:  req.Parameters,
		State:               approval.StatePending,
		WebhookURL:          c.webhookURL,
		CreatedAt:           now,
		ExpiresAt:           now.Add(c.expiry),
	}
	if err := c.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	if c.webhookURL != "" {
		payload := webhookPayload{
			Event:               "approval_requested",
			ApprovalID:          rec.ID,
			RequestID:           rec.RequestID,
			AgentID:             rec.AgentID,
			ActionType:          rec.ActionType,
			TargetResource:      rec.TargetResource,
			RiskScore:           rec.RiskScore,
			MatchedRules:        rec.MatchedRules,
			SanitizedParameters: rec.SanitizedParameters,
			CreatedAt:           rec.CreatedAt,
			ExpiresAt:           rec.ExpiresAt,
			CallbackURL:         "/api/v1/approvals/" + rec.ID + "/callback",
		}
		c.wg.Add(1)
		go c.postWebhook(rec.ID, payload)
	}
	return rec, nil
}

// postWebhook runs detached from the request context: the caller's 202
// response does not wait for, and is not cancelled by, webhook delivery.
func (c *ApprovalCoordinator) postWebhook(approvalID string, payload webhookPayload) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), webhookDeadline)
	defer cancel()

	if err := c.poster.Post(ctx, c.webhookURL, payload); err != nil {
		// The record stays PENDING; only a callback or expiry moves it.
		c.logger.Warn("approval webhook failed",
			"approval_id", approvalID, "url", c.webhookURL, "error", err)
		return
	}
	c.logger.Info("approval webhook delivered", "approval_id", approvalID)
}

// Status returns the current record state.
func (c *ApprovalCoordinator) Status(ctx context.Context, id string) (*approval.Record, error) {
	return c.store.Get(ctx, id)
}

// Resolve applies a terminal callback. Duplicate callbacks carrying the
// decision already applied are answered idempotently; a conflicting
// decision returns approval.ErrAlreadyDecided. On a fresh approval the
// original request re-enters the forward path; the terminal audit entry
// is written either way a fresh transition lands.
func (c *ApprovalCoordinator) Resolve(ctx context.Context, id string, approve bool, decidedBy string) (*approval.Record, error) {
	to := approval.StateRejected
	if approve {
		to = approval.StateApproved
	}

	rec, applied, err := c.store.Transition(ctx, id, to, decidedBy, c.now().UTC())
	if err != nil {
		return nil, err
	}
	if !applied {
		return rec, nil
	}

	forwarded := false
	digest := ""
	if to == approval.StateApproved {
		forwarded, digest = c.forwardApproved(ctx, rec)
	}
	c.writeTerminalAudit(ctx, rec, forwarded, digest)

	c.logger.Info("approval resolved",
		"approval_id", rec.ID, "state", string(rec.State), "decided_by", decidedBy)
	return rec, nil
}

// forwardApproved replays the original (unmasked) request into the sink.
func (c *ApprovalCoordinator) forwardApproved(ctx context.Context, rec *approval.Record) (bool, string) {
	req := &request.Request{
		ID:             rec.RequestID,
		AgentID:        rec.AgentID,
		ActionType:     rec.ActionType,
		TargetResource: rec.TargetResource,
		Parameters:     rec.OriginalParameters,
		ReceivedAt:     rec.CreatedAt,
	}
	req.Normalize()

	res, err := c.sink.Forward(ctx, req)
	if err != nil {
		c.logger.Warn("forward after approval failed",
			"approval_id", rec.ID, "request_id", rec.RequestID, "error", err)
		return false, ""
	}
	return true, res.Digest
}

func (c *ApprovalCoordinator) writeTerminalAudit(ctx context.Context, rec *approval.Record, forwarded bool, digest string) {
	c.auditw.Write(ctx, audit.Entry{
		RequestID:            rec.RequestID,
		AgentID:              rec.AgentID,
		ActionType:           rec.ActionType,
		TargetResource:       rec.TargetResource,
		SanitizedParameters:  rec.SanitizedParameters,
		Decision:             strings.ToLower(string(rec.State)),
		RiskScore:            rec.RiskScore,
		MatchedRules:         rec.MatchedRules,
		ApprovalID:           rec.ID,
		Forwarded:            forwarded,
		TargetResponseDigest: digest,
		Timestamp:            c.now().UTC(),
	})
}

// PendingCount reports how many records are pending (for metrics/health).
func (c *ApprovalCoordinator) PendingCount(ctx context.Context) int {
	n, err := c.store.CountPending(ctx)
	if err != nil {
		return 0
	}
	return n
}

func (c *ApprovalCoordinator) sweepLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep lapses stale pending records and writes their terminal entries.
func (c *ApprovalCoordinator) sweep(ctx context.Context) {
	expired, err := c.store.ExpirePending(ctx, c.now().UTC())
	if err != nil {
		c.logger.Warn("approval expiry sweep failed", "error", err)
		return
	}
	for _, rec := range expired {
		c.writeTerminalAudit(ctx, rec, false, "")
		c.logger.Info("approval expired", "approval_id", rec.ID, "request_id", rec.RequestID)
	}
}
