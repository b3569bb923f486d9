// Package metrics exposes Prometheus instrumentation for the orchestrator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the orchestrator's collectors behind one registry so tests
// can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	JobsSubmitted    *prometheus.CounterVec
	ReconcileResults *prometheus.CounterVec
	AdmissionDenied  *prometheus.CounterVec
	PollAttempts     prometheus.Histogram
	WebhookRejected  prometheus.Counter
}

// New builds a metrics bundle with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		JobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genserver_jobs_submitted_total",
			Help: "Generation jobs accepted by a provider.",
		}, []string{"kind", "provider"}),
		ReconcileResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genserver_reconcile_results_total",
			Help: "Terminal reconciliation outcomes by status.",
		}, []string{"status"}),
		AdmissionDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genserver_admission_denied_total",
			Help: "Requests rejected by the rate admission gate.",
		}, []string{"resource"}),
		PollAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "genserver_poll_attempts",
			Help:    "Poll attempts used before a job reached a terminal state.",
			Buckets: prometheus.LinearBuckets(1, 5, 12),
		}),
		WebhookRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genserver_webhook_rejected_total",
			Help: "Webhook deliveries rejected for a bad secret.",
		}),
	}
	registry.MustRegister(
		m.JobsSubmitted,
		m.ReconcileResults,
		m.AdmissionDenied,
		m.PollAttempts,
		m.WebhookRejected,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
