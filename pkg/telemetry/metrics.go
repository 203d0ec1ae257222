package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openconverge/openconverge/pkg/engine"
)

// Metrics provides Prometheus metrics for the convergence engine. It
// implements engine.MetricsRecorder. A disabled Metrics is a safe no-op.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Resource metrics
	resourcesApplied *prometheus.CounterVec
	resourceDuration *prometheus.HistogramVec

	// Provider metrics
	providerCalls *prometheus.CounterVec

	// Refresh metrics
	refreshesDelivered prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of convergence runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of convergence runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		resourcesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_applied_total",
				Help:      "Total number of resources processed by outcome",
			},
			[]string{"type", "outcome"},
		),
		resourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resource_duration_seconds",
				Help:      "Duration of per-resource convergence in seconds",
				Buckets:   buckets,
			},
			[]string{"type"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of provider calls",
			},
			[]string{"type", "operation"},
		),

		refreshesDelivered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refreshes_delivered_total",
				Help:      "Total number of refresh notifications delivered",
			},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.resourcesApplied,
		m.resourceDuration,
		m.providerCalls,
		m.refreshesDelivered,
	)

	return m, nil
}

// RecordResource records the outcome and duration of one resource.
func (m *Metrics) RecordResource(resourceType string, outcome engine.Outcome, duration time.Duration) {
	if m.resourcesApplied == nil {
		return
	}
	m.resourcesApplied.WithLabelValues(resourceType, string(outcome)).Inc()
	m.resourceDuration.WithLabelValues(resourceType).Observe(duration.Seconds())
}

// RecordProviderCall records a provider call.
func (m *Metrics) RecordProviderCall(resourceType, operation string) {
	if m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(resourceType, operation).Inc()
}

// RecordRun records a completed run with its status and duration.
func (m *Metrics) RecordRun(status engine.RunStatus, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// RecordRefresh records a delivered refresh notification.
func (m *Metrics) RecordRefresh() {
	if m.refreshesDelivered == nil {
		return
	}
	m.refreshesDelivered.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
