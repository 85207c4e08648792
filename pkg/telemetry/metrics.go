package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for deskforge reconciliation runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Domain metrics
	domainDuration *prometheus.HistogramVec

	// Action metrics
	actionsApplied *prometheus.CounterVec
	applyFailures  *prometheus.CounterVec

	// Confirmation metrics
	promptsResolved *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of reconciliation runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of reconciliation runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of reconciliation runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		domainDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "domain_reconcile_duration_seconds",
				Help:      "Duration of per-domain reconciliation in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"domain"},
		),
		actionsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of classified actions by outcome",
			},
			[]string{"domain", "action", "status"},
		),
		applyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "apply_failures_total",
				Help:      "Total number of failed apply operations",
			},
			[]string{"domain", "action"},
		),
		promptsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompts_resolved_total",
				Help:      "Total number of confirmation prompts resolved",
			},
			[]string{"mode", "answer"},
		),
	}

	collectors := []prometheus.Collector{
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.domainDuration,
		m.actionsApplied,
		m.applyFailures,
		m.promptsResolved,
	}

	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// RecordRunStarted increments the started-runs counter.
func (m *Metrics) RecordRunStarted() {
	if m.registry == nil {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordDomainDuration records the duration of a single domain's reconciliation.
func (m *Metrics) RecordDomainDuration(domain string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.domainDuration.WithLabelValues(domain).Observe(duration.Seconds())
}

// RecordAction records the outcome of a classified action.
func (m *Metrics) RecordAction(domain, action, status string) {
	if m.registry == nil {
		return
	}
	m.actionsApplied.WithLabelValues(domain, action, status).Inc()
}

// RecordApplyFailure records a failed apply operation.
func (m *Metrics) RecordApplyFailure(domain, action string) {
	if m.registry == nil {
		return
	}
	m.applyFailures.WithLabelValues(domain, action).Inc()
}

// RecordPromptResolved records a confirmation prompt resolution.
func (m *Metrics) RecordPromptResolved(mode string, answer bool) {
	if m.registry == nil {
		return
	}
	answerStr := "no"
	if answer {
		answerStr = "yes"
	}
	m.promptsResolved.WithLabelValues(mode, answerStr).Inc()
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing the metrics endpoint.
// It blocks until the server fails or the listener is closed.
func (m *Metrics) Serve() error {
	if m.registry == nil {
		return nil
	}
	mux := http.NewServeMux()
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, m.Handler())
	return http.ListenAndServe(m.config.ListenAddress, mux)
}
