// Package http provides the HTTP transport adapter for the gateway.
package http

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vasuans/sentinel-ai-gateway/internal/service"
)

// Metrics holds all Prometheus metrics for the gateway.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RiskScore        prometheus.Histogram
	PIIDetections    *prometheus.CounterVec
	RateLimitedTotal *prometheus.CounterVec
	Degradations     *prometheus.CounterVec
}

// NewMetrics creates and registers all request-path metrics with the
// given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "requests_total",
				Help:      "Total evaluate requests processed",
			},
			[]string{"agent_id", "action_type", "decision"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sentinel",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		RiskScore: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sentinel",
				Name:      "risk_score",
				Help:      "Risk score distribution across evaluations",
				Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 1.5, 2.0},
			},
		),
		PIIDetections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "pii_detections_total",
				Help:      "PII detections by entity type",
			},
			[]string{"entity_type"},
		),
		RateLimitedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"agent_id"},
		),
		Degradations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinel",
				Name:      "degradation_events_total",
				Help:      "Degradation events by component",
			},
			[]string{"component"},
		),
	}
}

// RegisterStateMetrics registers the gauges derived from service state:
// active policies, pending approvals, and audit loss counters.
func RegisterStateMetrics(reg prometheus.Registerer, policies *service.PolicyService, approvals *service.ApprovalCoordinator, auditw *service.AuditWriter) {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "active_policies",
			Help:      "Enabled rules in the active snapshot",
		},
		func() float64 { return float64(policies.ActiveCount()) },
	)
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "pending_approvals",
			Help:      "Approval records awaiting disposition",
		},
		func() float64 { return float64(approvals.PendingCount(context.Background())) },
	)
	promauto.With(reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "audit_drops_total",
			Help:      "Audit entries dropped on buffer overflow",
		},
		func() float64 { return float64(auditw.DropCount()) },
	)
	promauto.With(reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "audit_degraded_total",
			Help:      "Audit writes that fell back to the retry buffer",
		},
		func() float64 { return float64(auditw.DegradedCount()) },
	)
}
