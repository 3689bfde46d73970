package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
)

// ruleRequest is the JSON body for creating a rule.
type ruleRequest struct {
	RuleID       string                 `json:"rule_id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	ActionTypes  []string               `json:"action_types"`
	Conditions   map[string]interface{} `json:"conditions"`
	RiskModifier float64                `json:"risk_score_modifier"`
	Enabled      *bool                  `json:"enabled"`
	Priority     int                    `json:"priority"`
}

// handleListPolicies returns all rules.
// GET /api/v1/policies
func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	rules, err := h.policies.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list rules", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list policies")
		return
	}
	if rules == nil {
		rules = []policy.Rule{}
	}
	h.respondJSON(w, http.StatusOK, rules)
}

// handleCreatePolicy creates a rule from the request body.
// POST /api/v1/policies
func (h *Handler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	conditions, err := policy.ParseConditions(req.Conditions)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rule := &policy.Rule{
		ID:           req.RuleID,
		Name:         req.Name,
		Description:  req.Description,
		ActionTypes:  req.ActionTypes,
		Conditions:   conditions,
		RiskModifier: req.RiskModifier,
		Enabled:      enabled,
		Priority:     req.Priority,
	}

	created, err := h.policies.Create(r.Context(), rule)
	if err != nil {
		switch {
		case errors.Is(err, policy.ErrRuleExists):
			h.respondError(w, http.StatusConflict, "rule_id already exists")
		case isInvalidRule(err):
			h.respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to create rule", "rule_id", req.RuleID, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to create policy")
		}
		return
	}
	h.respondJSON(w, http.StatusCreated, created)
}

// handleGetPolicy returns one rule.
// GET /api/v1/policies/{rule_id}
func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("rule_id")
	rule, err := h.policies.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, policy.ErrRuleNotFound) {
			h.respondError(w, http.StatusNotFound, "policy not found")
			return
		}
		h.logger.Error("failed to get rule", "rule_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get policy")
		return
	}
	h.respondJSON(w, http.StatusOK, rule)
}

// handleDeletePolicy removes a rule.
// DELETE /api/v1/policies/{rule_id}
func (h *Handler) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("rule_id")
	if err := h.policies.Delete(r.Context(), id); err != nil {
		if errors.Is(err, policy.ErrRuleNotFound) {
			h.respondError(w, http.StatusNotFound, "policy not found")
			return
		}
		h.logger.Error("failed to delete rule", "rule_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to delete policy")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isInvalidRule(err error) bool {
	return err != nil && strings.Contains(err.Error(), "invalid rule:")
}
