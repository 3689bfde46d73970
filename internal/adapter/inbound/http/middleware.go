package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vasuans/sentinel-ai-gateway/internal/ctxkey"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/auth"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/ratelimit"
)

// publicPaths bypass authentication and rate limiting.
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// rateCheckTimeout bounds the shared-store round trip per request.
const rateCheckTimeout = 200 * time.Millisecond

// requestLogMiddleware assigns the request id, logs the round trip, and
// records the duration histogram.
func (h *Handler) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, requestID)
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))
		elapsed := time.Since(start)

		h.metrics.RequestDuration.WithLabelValues(r.URL.Path).Observe(elapsed.Seconds())
		h.logger.Info("request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", elapsed.Milliseconds())
	})
}

// authMiddleware resolves the bearer token to an agent. Public paths
// pass through unauthenticated.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			h.respondError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		rawKey := strings.TrimPrefix(header, "Bearer ")

		agent, err := h.keys.Validate(r.Context(), rawKey)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidKey) {
				h.logger.Error("key validation failed", "error", err)
			}
			h.respondError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		ctx := context.WithValue(r.Context(), ctxkey.AgentKey{}, agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware enforces the per-agent window budget. Runs after
// authentication so the budget is keyed by agent, not by caller address.
func (h *Handler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent := agentFrom(r.Context())
		if agent == nil {
			next.ServeHTTP(w, r)
			return
		}

		cfg := h.rateConfigFor(agent)
		ctx, cancel := context.WithTimeout(r.Context(), rateCheckTimeout)
		result, err := h.limiter.Check(ctx, agent.ID, cfg)
		cancel()
		if err != nil {
			// The limiter itself fails open; an error here is unexpected.
			h.logger.Error("rate limit check failed", "agent_id", agent.ID, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if result.Degraded {
			h.metrics.Degradations.WithLabelValues("counter_store").Inc()
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			h.metrics.RateLimitedTotal.WithLabelValues(agent.ID).Inc()
			retryAfter := int(time.Until(result.ResetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// agentFrom extracts the authenticated agent from the context.
func agentFrom(ctx context.Context) *auth.Agent {
	agent, _ := ctx.Value(ctxkey.AgentKey{}).(*auth.Agent)
	return agent
}

// requestIDFrom extracts the server-assigned request id.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.RequestIDKey{}).(string)
	return id
}

// rateConfigFor returns the effective limiter config for an agent.
func (h *Handler) rateConfigFor(agent *auth.Agent) ratelimit.Config {
	cfg := h.rateCfg
	if agent != nil && agent.RateLimitOverride != nil {
		cfg.Requests = *agent.RateLimitOverride
	}
	return cfg
}

// statusWriter captures the response status for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
