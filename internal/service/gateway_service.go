package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/approval"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/audit"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/decision"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/gatemode"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/pii"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/request"
	"github.com/vasuans/sentinel-ai-gateway/internal/port/outbound"
)

// piiScanTimeout bounds the sanitizer stage; past it the scan degrades
// to the fast detector subset.
const piiScanTimeout = 500 * time.Millisecond

// EvalResult is everything the evaluate pipeline produced for one request.
type EvalResult struct {
	Request    *request.Request
	Evaluation policy.Evaluation
	Outcome    decision.Outcome
	RiskLevel  decision.RiskLevel
	Sanitized  map[string]interface{}
	Findings   []pii.Finding
	// LowConfidence marks a degraded (deadline-bounded) PII scan.
	LowConfidence bool
	// Approval is non-nil when the request was escalated.
	Approval *approval.Record
	// Forwarded and Digest describe the target forward, when it happened.
	Forwarded bool
	Digest    string
	Message   string
}

// GatewayService runs the per-request evaluation pipeline:
// sanitize -> evaluate -> decide -> escalate or forward -> audit.
// Authentication and rate limiting run in HTTP middleware before the
// pipeline; stages here share no mutable state across requests except
// the rule snapshot, the mode switch, and the stores.
type GatewayService struct {
	sanitizer *pii.Sanitizer
	policies  *PolicyService
	engine    *decision.Engine
	mode      *gatemode.Switch
	approvals *ApprovalCoordinator
	auditw    *AuditWriter
	sink      outbound.ForwardSink
	logger    *slog.Logger
	now       func() time.Time
}

// NewGatewayService wires the pipeline stages together.
func NewGatewayService(sanitizer *pii.Sanitizer, policies *PolicyService, engine *decision.Engine, mode *gatemode.Switch, approvals *ApprovalCoordinator, auditw *AuditWriter, sink outbound.ForwardSink, logger *slog.Logger) *GatewayService {
	return &GatewayService{
		sanitizer: sanitizer,
		policies:  policies,
		engine:    engine,
		mode:      mode,
		approvals: approvals,
		auditw:    auditw,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

// Mode exposes the gateway mode switch.
func (s *GatewayService) Mode() *gatemode.Switch { return s.mode }

// Engine exposes the decision engine configuration.
func (s *GatewayService) Engine() *decision.Engine { return s.engine }

// Evaluate runs the pipeline for one request. The audit entry is durable
// or enqueued before Evaluate returns. An error is returned only for
// internal failures that prevent producing a decision.
func (s *GatewayService) Evaluate(ctx context.Context, req *request.Request) (*EvalResult, error) {
	req.Normalize()
	now := s.now().UTC()

	// Stage: sanitize. The masked copy feeds the audit trail, response
	// payloads, and the approval webhook; the original continues down
	// the forward path only on ALLOW.
	sctx, cancel := context.WithTimeout(ctx, piiScanTimeout)
	scan := s.sanitizer.Sanitize(sctx, req.Parameters)
	cancel()
	if scan.LowConfidence {
		s.logger.Warn("pii scan degraded to fast detectors", "request_id", req.ID)
	}

	// Stage: evaluate against the active snapshot. With no snapshot we
	// cannot evaluate, so the gateway fails closed.
	snap, err := s.policies.Snapshot()
	if err != nil {
		s.logger.Error("no rule snapshot, failing closed", "request_id", req.ID)
		return s.finishFailClosed(ctx, req, scan, now), nil
	}

	ev := policy.Evaluate(req, snap, now)
	for _, w := range ev.Warnings {
		s.logger.Warn("rule evaluation warning", "request_id", req.ID, "warning", w)
	}

	// Stage: decide under the active mode.
	outcome := s.engine.Decide(ev.RiskScore, s.mode.Get())

	res := &EvalResult{
		Request:       req,
		Evaluation:    ev,
		Outcome:       outcome,
		RiskLevel:     decision.Level(ev.RiskScore),
		Sanitized:     scan.Parameters,
		Findings:      scan.Findings,
		LowConfidence: scan.LowConfidence,
	}

	// Stage: escalate or forward.
	switch outcome.Decision {
	case decision.Pending:
		rec, err := s.approvals.CreatePending(ctx, req, ev, scan.Parameters)
		if err != nil {
			return nil, fmt.Errorf("create approval: %w", err)
		}
		res.Approval = rec
		res.Message = fmt.Sprintf("request requires human approval (approval_id %s)", rec.ID)

	case decision.Allow:
		res.Forwarded, res.Digest = s.forward(ctx, req)
		res.Message = "request allowed"
		if outcome.Rewritten() {
			res.Message = fmt.Sprintf("request allowed (observe mode - would be %s in enforce mode)", outcome.Observed)
		}

	case decision.Deny:
		res.Message = "request denied"
		if ev.Reason != "" {
			res.Message = "request denied: " + ev.Reason
		}
	}

	// Stage: audit. Durable or enqueued before the response goes out.
	s.writeAudit(ctx, res)
	return res, nil
}

// finishFailClosed produces the deny-with-reason result used when no
// rule snapshot exists. Observe mode still rewrites the response shape.
func (s *GatewayService) finishFailClosed(ctx context.Context, req *request.Request, scan pii.Result, now time.Time) *EvalResult {
	mode := s.mode.Get()
	outcome := decision.Outcome{Decision: decision.Deny, Observed: decision.Deny, Mode: mode}
	if mode == gatemode.ModeObserve {
		outcome.Decision = decision.Allow
	}

	res := &EvalResult{
		Request:       req,
		Outcome:       outcome,
		RiskLevel:     decision.RiskHigh,
		Sanitized:     scan.Parameters,
		Findings:      scan.Findings,
		LowConfidence: scan.LowConfidence,
		Message:       "request denied: policy store unavailable and no rule snapshot loaded",
	}
	if outcome.Decision == decision.Allow {
		res.Forwarded, res.Digest = s.forward(ctx, req)
	}
	s.writeAudit(ctx, res)
	return res
}

// forward sends the original request into the sink.
func (s *GatewayService) forward(ctx context.Context, req *request.Request) (bool, string) {
	if s.sink == nil {
		return false, ""
	}
	fr, err := s.sink.Forward(ctx, req)
	if err != nil {
		s.logger.Warn("target forward failed", "request_id", req.ID, "error", err)
		return false, ""
	}
	return true, fr.Digest
}

func (s *GatewayService) writeAudit(ctx context.Context, res *EvalResult) {
	entry := audit.Entry{
		RequestID:            res.Request.ID,
		AgentID:              res.Request.AgentID,
		ActionType:           res.Request.ActionType,
		TargetResource:       res.Request.TargetResource,
		SanitizedParameters:  res.Sanitized,
		Decision:             string(res.Outcome.Observed),
		RiskScore:            res.Evaluation.RiskScore,
		MatchedRules:         res.Evaluation.MatchedRuleIDs(),
		PIIEntityTypes:       pii.EntityTypes(res.Findings),
		ModeInEffect:         string(res.Outcome.Mode),
		Forwarded:            res.Forwarded,
		TargetResponseDigest: res.Digest,
		Timestamp:            s.now().UTC(),
	}
	if res.Outcome.Rewritten() {
		entry.EmittedDecision = string(res.Outcome.Decision)
	}
	if res.Approval != nil {
		entry.ApprovalID = res.Approval.ID
	}
	s.auditw.Write(ctx, entry)
}
