package http

import (
	"errors"
	"net/http"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/approval"
)

// callbackRequest is the JSON body for terminal approval callbacks.
type callbackRequest struct {
	Approved  bool   `json:"approved"`
	DecidedBy string `json:"decided_by"`
	Reason    string `json:"reason"`
}

// handleGetApproval returns the current approval state.
// GET /api/v1/approvals/{approval_id}
func (h *Handler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("approval_id")
	rec, err := h.approvals.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "approval not found")
			return
		}
		h.logger.Error("failed to get approval", "approval_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get approval")
		return
	}
	h.respondJSON(w, http.StatusOK, rec)
}

// handleApprovalCallback applies a terminal transition. Duplicate
// callbacks carrying the already-applied decision return the existing
// state; a conflicting decision returns 409.
// POST /api/v1/approvals/{approval_id}/callback
func (h *Handler) handleApprovalCallback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("approval_id")

	var req callbackRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.DecidedBy == "" {
		h.respondError(w, http.StatusBadRequest, "decided_by is required")
		return
	}

	rec, err := h.approvals.Resolve(r.Context(), id, req.Approved, req.DecidedBy)
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrNotFound):
			h.respondError(w, http.StatusNotFound, "approval not found")
		case errors.Is(err, approval.ErrAlreadyDecided):
			h.respondError(w, http.StatusConflict, "approval already decided")
		default:
			h.logger.Error("failed to resolve approval", "approval_id", id, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to resolve approval")
		}
		return
	}
	h.respondJSON(w, http.StatusOK, rec)
}
