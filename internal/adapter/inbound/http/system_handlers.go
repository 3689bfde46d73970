package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/audit"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/gatemode"
)

// handleGetMode reports the active gateway mode.
// GET /api/v1/gateway/mode
func (h *Handler) handleGetMode(w http.ResponseWriter, r *http.Request) {
	mode := h.gateway.Mode().Get()
	desc := "enforce mode: unsafe actions are blocked"
	if mode == gatemode.ModeObserve {
		desc = "observe mode: unsafe actions are logged but not blocked"
	}
	h.respondJSON(w, http.StatusOK, map[string]string{
		"mode":        string(mode),
		"description": desc,
	})
}

// handleSetMode switches the gateway mode at runtime, from the request
// body or the ?mode= query parameter.
// PUT /api/v1/gateway/mode
func (h *Handler) handleSetMode(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := h.readJSON(r, &body); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
			return
		}
		raw = body.Mode
	}

	mode, err := gatemode.Parse(raw)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	old := h.gateway.Mode().Get()
	if err := h.gateway.Mode().Set(r.Context(), mode); err != nil {
		// The local switch already changed; peers keep their mode until a
		// later publish succeeds.
		h.metrics.Degradations.WithLabelValues("mode_publish").Inc()
	}
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":   "updated",
		"old_mode": string(old),
		"new_mode": string(mode),
	})
}

// handleAuditLogs serves the paginated audit query.
// GET /api/v1/audit/logs
func (h *Handler) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	filter := audit.Filter{
		AgentID:    q.Get("agent_id"),
		ActionType: q.Get("action_type"),
		Decision:   q.Get("decision"),
		Limit:      limit,
		Offset:     offset,
	}
	logs, err := h.audits.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit query failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to query audit logs")
		return
	}
	if logs == nil {
		logs = []audit.Entry{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"count":  len(logs),
		"limit":  limit,
		"offset": offset,
	})
}

// handleAuditStats serves aggregate trail statistics.
// GET /api/v1/audit/stats
func (h *Handler) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audits.Stats(r.Context())
	if err != nil {
		h.logger.Error("audit stats failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to compute audit stats")
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

// handleRateLimitInfo reports the caller's current window usage.
// GET /api/v1/rate-limit
func (h *Handler) handleRateLimitInfo(w http.ResponseWriter, r *http.Request) {
	agent := agentFrom(r.Context())
	cfg := h.rateConfigFor(agent)

	result, err := h.limiter.Usage(r.Context(), agent.ID, cfg)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read rate limit state")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":       agent.ID,
		"limit":          cfg.Requests,
		"remaining":      result.Remaining,
		"reset_at":       result.ResetAt.UTC().Format(time.RFC3339),
		"window_seconds": int(cfg.Window.Seconds()),
	})
}

// handleHealth reports liveness plus per-component status. Overall
// status degrades when a backing store is unreachable; the gateway
// itself keeps serving.
// GET /health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	healthy := true

	if h.counterPing != nil {
		status := "up"
		if !h.counterPing(r.Context()) {
			status = "down"
			healthy = false
		}
		components["counter_store"] = status
	}
	if h.storePing != nil {
		status := "up"
		if !h.storePing(r.Context()) {
			status = "down"
			healthy = false
		}
		components["audit_store"] = status
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         status,
		"mode":           string(h.gateway.Mode().Get()),
		"components":     components,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"audit": map[string]interface{}{
			"buffered": h.auditw.Buffered(),
			"dropped":  h.auditw.DropCount(),
			"degraded": h.auditw.DegradedCount(),
		},
	})
}
