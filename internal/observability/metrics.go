package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kudos_portal"

// Metrics holds the portal's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	GuardDecisions       *prometheus.CounterVec
	VerificationFailures *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
	ApprovalOperations   *prometheus.CounterVec
	AuditEvents          *prometheus.CounterVec
}

// NewMetrics registers all collectors on registry. Pass a fresh registry per
// test; production uses NewRegistry which adds runtime collectors.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Session guard decisions by guard and outcome",
		}, []string{"guard", "outcome"}),

		VerificationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_verification_failures_total",
			Help:      "Failed identity verifications by reason",
		}, []string{"reason"}),

		VerificationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identity_verification_duration_seconds",
			Help:      "Latency of identity verification calls",
			Buckets:   prometheus.DefBuckets,
		}),

		ApprovalOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_operations_total",
			Help:      "Approval workflow operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		AuditEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_total",
			Help:      "Approval audit events by result (persisted, failed, dropped)",
		}, []string{"result"}),
	}
}

// NewRegistry returns a registry with Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordGuardDecision counts one guard outcome
func (m *Metrics) RecordGuardDecision(guard, outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(guard, outcome).Inc()
}

// RecordVerification observes a verification call. reason is empty on success.
func (m *Metrics) RecordVerification(elapsed time.Duration, reason string) {
	if m == nil {
		return
	}
	m.VerificationDuration.Observe(elapsed.Seconds())
	if reason != "" {
		m.VerificationFailures.WithLabelValues(reason).Inc()
	}
}

// RecordApproval counts one approval workflow operation
func (m *Metrics) RecordApproval(operation, outcome string) {
	if m == nil {
		return
	}
	m.ApprovalOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordAudit counts one audit pipeline event
func (m *Metrics) RecordAudit(result string) {
	if m == nil {
		return
	}
	m.AuditEvents.WithLabelValues(result).Inc()
}
