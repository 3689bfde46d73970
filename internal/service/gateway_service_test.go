package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vasuans/sentinel-ai-gateway/internal/adapter/outbound/memory"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/approval"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/audit"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/decision"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/gatemode"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/pii"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/request"
)

// gatewayFixture wires a full in-memory pipeline.
type gatewayFixture struct {
	gateway    *GatewayService
	policies   *PolicyService
	approvals  *ApprovalCoordinator
	auditw     *AuditWriter
	auditStore *memory.AuditStore
	sink       *fakeSink
	mode       *gatemode.Switch
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	logger := testLogger()
	policies := NewPolicyService(memory.NewPolicyStore(), memory.NewRuleCache(),
		memory.NewChangeNotifier(), logger)
	if err := policies.seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := policies.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	auditStore := memory.NewAuditStore()
	auditw := NewAuditWriter(auditStore, logger)
	sink := &fakeSink{}
	approvals := NewApprovalCoordinator(memory.NewApprovalStore(), newFakePoster(),
		sink, auditw, "", logger)
	mode := gatemode.NewSwitch(gatemode.ModeEnforce, memory.NewModePublisher(gatemode.ModeEnforce), logger)

	gateway := NewGatewayService(pii.NewSanitizer(), policies,
		decision.NewEngine(decision.DefaultThresholds()), mode, approvals, auditw, sink, logger)

	return &gatewayFixture{
		gateway:    gateway,
		policies:   policies,
		approvals:  approvals,
		auditw:     auditw,
		auditStore: auditStore,
		sink:       sink,
		mode:       mode,
	}
}

func evalRequest(id, actionType, target string, params map[string]interface{}) *request.Request {
	return &request.Request{
		ID:             id,
		AgentID:        "support-bot",
		ActionType:     actionType,
		TargetResource: target,
		Parameters:     params,
		ReceivedAt:     time.Now().UTC(),
	}
}

func TestGatewayAllowsLowRiskRefund(t *testing.T) {
	defer goleak.VerifyNone(t)
	fx := newGatewayFixture(t)
	ctx := context.Background()

	res, err := fx.gateway.Evaluate(ctx, evalRequest("req-1", "refund", "payments/refund",
		map[string]interface{}{"amount": 100.0}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Outcome.Decision != decision.Allow {
		t.Errorf("decision = %v, want allow", res.Outcome.Decision)
	}
	if res.RiskLevel != decision.RiskLow {
		t.Errorf("risk level = %v, want low", res.RiskLevel)
	}
	if !res.Forwarded {
		t.Error("allowed request must be forwarded")
	}
	if fx.auditStore.Len() != 1 {
		t.Errorf("audit entries = %d, want 1", fx.auditStore.Len())
	}
	fx.approvals.Stop()
	fx.auditw.Stop()
}

func TestGatewayDeniesOverLimitRefund(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	res, err := fx.gateway.Evaluate(ctx, evalRequest("req-2", "refund", "payments/refund",
		map[string]interface{}{"amount": 750.0}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Outcome.Decision != decision.Deny {
		t.Errorf("decision = %v, want deny", res.Outcome.Decision)
	}
	if res.Evaluation.RiskScore < 1.0 {
		t.Errorf("risk score = %v, want >= 1.0", res.Evaluation.RiskScore)
	}
	if !containsString(res.Evaluation.MatchedRuleIDs(), "refund_limit_500") {
		t.Errorf("matched = %v, want refund_limit_500", res.Evaluation.MatchedRuleIDs())
	}
	if res.Forwarded || fx.sink.count() != 0 {
		t.Error("denied request must not be forwarded")
	}
	if res.Message == "" || !strings.Contains(res.Message, "denied") {
		t.Errorf("message = %q", res.Message)
	}
}

func TestGatewayEscalatesLargePayment(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	res, err := fx.gateway.Evaluate(ctx, evalRequest("req-3", "payment", "payments/charge",
		map[string]interface{}{"amount": 15000.0}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Outcome.Decision != decision.Pending {
		t.Fatalf("decision = %v, want pending", res.Outcome.Decision)
	}
	if res.Approval == nil {
		t.Fatal("pending decision must carry an approval record")
	}
	if res.Forwarded {
		t.Error("pending request must not be forwarded yet")
	}

	// The approval is queryable and still pending.
	rec, err := fx.approvals.Status(ctx, res.Approval.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rec.State != approval.StatePending {
		t.Errorf("approval state = %v, want PENDING", rec.State)
	}

	// The decision-time audit entry links the approval.
	entries, _ := fx.auditStore.Query(ctx, audit.Filter{Decision: "pending"})
	if len(entries) != 1 || entries[0].ApprovalID != res.Approval.ID {
		t.Errorf("pending audit entries = %+v", entries)
	}
	fx.approvals.Stop()
}

func TestGatewayAuditNeverContainsRawPII(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	_, err := fx.gateway.Evaluate(ctx, evalRequest("req-4", "api_call", "support/tickets",
		map[string]interface{}{
			"ssn":   "123-45-6789",
			"email": "a@b.com",
			"note":  "customer called",
		}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	entries, _ := fx.auditStore.Query(ctx, audit.Filter{})
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d", len(entries))
	}
	raw, _ := json.Marshal(entries[0])
	text := string(raw)
	if strings.Contains(text, "123-45-6789") || strings.Contains(text, "a@b.com") {
		t.Errorf("raw PII leaked into audit entry: %s", text)
	}
	// json.Marshal escapes '<' and '>', so check the decoded values.
	if entries[0].SanitizedParameters["ssn"] != "<SSN>" || entries[0].SanitizedParameters["email"] != "<EMAIL>" {
		t.Errorf("masks missing from audit entry: %s", text)
	}
	if !containsString(entries[0].PIIEntityTypes, "SSN") {
		t.Errorf("pii entity types = %v", entries[0].PIIEntityTypes)
	}
}

func TestGatewayObserveModeRewritesButAuditsTruth(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	if err := fx.mode.Set(ctx, gatemode.ModeObserve); err != nil {
		t.Fatalf("Set mode: %v", err)
	}

	res, err := fx.gateway.Evaluate(ctx, evalRequest("req-5", "refund", "payments/refund",
		map[string]interface{}{"amount": 750.0}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Outcome.Decision != decision.Allow {
		t.Errorf("observe decision = %v, want allow", res.Outcome.Decision)
	}
	if res.Outcome.Observed != decision.Deny {
		t.Errorf("observed = %v, want deny", res.Outcome.Observed)
	}
	if !res.Forwarded {
		t.Error("observe-allowed request proceeds down the forward path")
	}

	// The audit trail records the true decision.
	entries, _ := fx.auditStore.Query(ctx, audit.Filter{Decision: "deny"})
	if len(entries) != 1 {
		t.Fatalf("deny audit entries = %d, want 1", len(entries))
	}
	if entries[0].EmittedDecision != "allow" || entries[0].ModeInEffect != "OBSERVE" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestGatewayFailsClosedWithoutSnapshot(t *testing.T) {
	logger := testLogger()
	policies := NewPolicyService(failingPolicyStore{}, memory.NewRuleCache(),
		memory.NewChangeNotifier(), logger, WithoutDefaultRules())

	auditStore := memory.NewAuditStore()
	auditw := NewAuditWriter(auditStore, logger)
	sink := &fakeSink{}
	approvals := NewApprovalCoordinator(memory.NewApprovalStore(), newFakePoster(), sink, auditw, "", logger)
	mode := gatemode.NewSwitch(gatemode.ModeEnforce, nil, logger)
	gateway := NewGatewayService(pii.NewSanitizer(), policies,
		decision.NewEngine(decision.DefaultThresholds()), mode, approvals, auditw, sink, logger)

	res, err := gateway.Evaluate(context.Background(), evalRequest("req-6", "refund", "x",
		map[string]interface{}{"amount": 1.0}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Outcome.Decision != decision.Deny {
		t.Errorf("decision = %v, want deny (fail closed)", res.Outcome.Decision)
	}
	if !strings.Contains(res.Message, "policy store unavailable") {
		t.Errorf("message = %q", res.Message)
	}
	if auditStore.Len() != 1 {
		t.Error("fail-closed denial must still be audited")
	}
	if sink.count() != 0 {
		t.Error("fail-closed denial must not forward")
	}
}

func TestGatewayMissingParametersTreatedAsEmpty(t *testing.T) {
	fx := newGatewayFixture(t)

	// user_data_access requires a justification field; with no
	// parameters at all the rule fires.
	res, err := fx.gateway.Evaluate(context.Background(),
		evalRequest("req-7", "user_data_access", "users/42", nil))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !containsString(res.Evaluation.MatchedRuleIDs(), "user_data_access") {
		t.Errorf("matched = %v, want user_data_access", res.Evaluation.MatchedRuleIDs())
	}
}

func TestGatewayDecisionDeterministic(t *testing.T) {
	fx := newGatewayFixture(t)
	ctx := context.Background()

	mk := func(id string) *request.Request {
		return evalRequest(id, "database_write", "db/main",
			map[string]interface{}{"table": "users", "affected_rows": 2000.0})
	}
	a, err := fx.gateway.Evaluate(ctx, mk("req-8a"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	b, err := fx.gateway.Evaluate(ctx, mk("req-8b"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if a.Outcome.Decision != b.Outcome.Decision || a.Evaluation.RiskScore != b.Evaluation.RiskScore {
		t.Error("identical requests at the same snapshot must decide identically")
	}
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
