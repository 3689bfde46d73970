package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/audit"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/auth"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/ratelimit"
	"github.com/vasuans/sentinel-ai-gateway/internal/service"
)

// ComponentPing reports one backing store's reachability for /health.
type ComponentPing func(ctx context.Context) bool

// Handler exposes the gateway's HTTP surface.
type Handler struct {
	gateway   *service.GatewayService
	policies  *service.PolicyService
	approvals *service.ApprovalCoordinator
	auditw    *service.AuditWriter
	audits    audit.Store
	keys      *auth.APIKeyService
	limiter   ratelimit.Limiter
	rateCfg   ratelimit.Config
	metrics   *Metrics
	registry  *prometheus.Registry
	logger    *slog.Logger
	startTime time.Time

	counterPing ComponentPing
	storePing   ComponentPing
}

// Option configures a Handler dependency.
type Option func(*Handler)

// WithCounterStorePing sets the counter store health probe.
func WithCounterStorePing(p ComponentPing) Option {
	return func(h *Handler) { h.counterPing = p }
}

// WithAuditStorePing sets the relational store health probe.
func WithAuditStorePing(p ComponentPing) Option {
	return func(h *Handler) { h.storePing = p }
}

// NewHandler creates the HTTP handler over the application services.
func NewHandler(gateway *service.GatewayService, policies *service.PolicyService, approvals *service.ApprovalCoordinator, auditw *service.AuditWriter, audits audit.Store, keys *auth.APIKeyService, limiter ratelimit.Limiter, rateCfg ratelimit.Config, registry *prometheus.Registry, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		gateway:   gateway,
		policies:  policies,
		approvals: approvals,
		auditw:    auditw,
		audits:    audits,
		keys:      keys,
		limiter:   limiter,
		rateCfg:   rateCfg,
		metrics:   NewMetrics(registry),
		registry:  registry,
		logger:    logger,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the full route table with middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/gateway/evaluate", h.handleEvaluate)
	mux.HandleFunc("GET /api/v1/gateway/mode", h.handleGetMode)
	mux.HandleFunc("PUT /api/v1/gateway/mode", h.handleSetMode)

	mux.HandleFunc("GET /api/v1/policies", h.handleListPolicies)
	mux.HandleFunc("POST /api/v1/policies", h.handleCreatePolicy)
	mux.HandleFunc("GET /api/v1/policies/{rule_id}", h.handleGetPolicy)
	mux.HandleFunc("DELETE /api/v1/policies/{rule_id}", h.handleDeletePolicy)

	mux.HandleFunc("GET /api/v1/approvals/{approval_id}", h.handleGetApproval)
	mux.HandleFunc("POST /api/v1/approvals/{approval_id}/callback", h.handleApprovalCallback)

	mux.HandleFunc("GET /api/v1/audit/logs", h.handleAuditLogs)
	mux.HandleFunc("GET /api/v1/audit/stats", h.handleAuditStats)
	mux.HandleFunc("GET /api/v1/rate-limit", h.handleRateLimitInfo)

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))

	return h.requestLogMiddleware(h.authMiddleware(h.rateLimitMiddleware(mux)))
}

// respondJSON writes a JSON response with the given status code and data.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code
// and message. Messages must never echo unmasked request fields.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body into the given value.
func (h *Handler) readJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
