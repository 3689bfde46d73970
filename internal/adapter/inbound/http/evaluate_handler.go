package http

import (
	"net/http"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/decision"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/request"
	"github.com/vasuans/sentinel-ai-gateway/internal/service"
)

// evaluateRequest is the JSON body accepted by the evaluate endpoint.
// agent_id, when present, must match the authenticated agent.
type evaluateRequest struct {
	AgentID        string                 `json:"agent_id"`
	ActionType     string                 `json:"action_type"`
	TargetResource string                 `json:"target_resource"`
	Parameters     map[string]interface{} `json:"parameters"`
	Context        map[string]interface{} `json:"context"`
}

// evaluateResponse is the JSON body returned by the evaluate endpoint.
type evaluateResponse struct {
	RequestID        string                 `json:"request_id"`
	Status           string                 `json:"status"`
	Decision         string                 `json:"decision"`
	Message          string                 `json:"message"`
	RiskLevel        string                 `json:"risk_level"`
	RiskScore        float64                `json:"risk_score"`
	MatchedPolicies  []string               `json:"matched_policies"`
	ApprovalID       string                 `json:"approval_id,omitempty"`
	ApprovalURL      string                 `json:"approval_url,omitempty"`
	Forwarded        bool                   `json:"forwarded"`
	TargetResponse   map[string]interface{} `json:"target_response,omitempty"`
	Mode             string                 `json:"mode"`
	ObservedDecision string                 `json:"observed_decision,omitempty"`
}

// statusFor maps a decision to the response status word.
func statusFor(d decision.Decision) string {
	switch d {
	case decision.Allow:
		return "allowed"
	case decision.Deny:
		return "denied"
	default:
		return "pending_approval"
	}
}

// httpStatusFor maps a decision to the HTTP status code.
func httpStatusFor(d decision.Decision) int {
	switch d {
	case decision.Deny:
		return http.StatusForbidden
	case decision.Pending:
		return http.StatusAccepted
	default:
		return http.StatusOK
	}
}

// handleEvaluate runs the evaluation pipeline for one agent action.
// POST /api/v1/gateway/evaluate
func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	agent := agentFrom(r.Context())
	requestID := requestIDFrom(r.Context())

	var body evaluateRequest
	if err := h.readJSON(r, &body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if body.ActionType == "" {
		h.respondError(w, http.StatusBadRequest, "action_type is required")
		return
	}
	if body.TargetResource == "" {
		h.respondError(w, http.StatusBadRequest, "target_resource is required")
		return
	}
	if body.AgentID != "" && body.AgentID != agent.ID {
		h.respondError(w, http.StatusBadRequest, "agent_id does not match the authenticated agent")
		return
	}
	if !agent.HasScope(body.ActionType) {
		h.respondError(w, http.StatusForbidden, "action type not permitted for this agent")
		return
	}

	req := &request.Request{
		ID:             requestID,
		AgentID:        agent.ID,
		ActionType:     body.ActionType,
		TargetResource: body.TargetResource,
		Parameters:     body.Parameters,
		Context:        body.Context,
		ReceivedAt:     time.Now().UTC(),
	}

	res, err := h.gateway.Evaluate(r.Context(), req)
	if err != nil {
		h.logger.Error("evaluation failed", "request_id", requestID, "error", err)
		h.respondError(w, http.StatusInternalServerError,
			"internal error evaluating request "+requestID)
		return
	}

	h.recordEvaluateMetrics(res)
	h.respondJSON(w, httpStatusFor(res.Outcome.Decision), h.toEvaluateResponse(res))
}

func (h *Handler) toEvaluateResponse(res *service.EvalResult) evaluateResponse {
	resp := evaluateResponse{
		RequestID:       res.Request.ID,
		Status:          statusFor(res.Outcome.Decision),
		Decision:        string(res.Outcome.Decision),
		Message:         res.Message,
		RiskLevel:       string(res.RiskLevel),
		RiskScore:       res.Evaluation.RiskScore,
		MatchedPolicies: res.Evaluation.MatchedRuleIDs(),
		Forwarded:       res.Forwarded,
		Mode:            string(res.Outcome.Mode),
	}
	if resp.MatchedPolicies == nil {
		resp.MatchedPolicies = []string{}
	}
	if res.Outcome.Rewritten() {
		resp.ObservedDecision = string(res.Outcome.Observed)
	}
	if res.Approval != nil {
		resp.ApprovalID = res.Approval.ID
		resp.ApprovalURL = "/api/v1/approvals/" + res.Approval.ID
	}
	if res.Forwarded && res.Digest != "" {
		resp.TargetResponse = map[string]interface{}{"digest": res.Digest}
	}
	return resp
}

func (h *Handler) recordEvaluateMetrics(res *service.EvalResult) {
	h.metrics.RequestsTotal.WithLabelValues(
		res.Request.AgentID, res.Request.ActionType, string(res.Outcome.Decision)).Inc()
	h.metrics.RiskScore.Observe(res.Evaluation.RiskScore)
	for _, f := range res.Findings {
		h.metrics.PIIDetections.WithLabelValues(string(f.EntityType)).Inc()
	}
	if res.LowConfidence {
		h.metrics.Degradations.WithLabelValues("pii_sanitizer").Inc()
	}
}
