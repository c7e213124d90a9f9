package review

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics provides Prometheus-compatible metrics collection for
// review workflow monitoring in production environments.
//
// Metrics exposed (all namespaced with "reviewflow_"):
//
//  1. active_workflows (gauge): Review workflows currently in flight.
//
//  2. workflows_total (counter): Completed workflows by terminal status.
//     Labels: status (completed/failed/cancelled).
//
//  3. phase_duration_ms (histogram): Phase execution duration in milliseconds.
//     Labels: phase, status (completed/failed).
//
//  4. health_score (histogram): Final health score distribution.
//
//  5. compression_ratio (histogram): Context optimizer output/input size ratio.
//
//  6. evictions_total (counter): Workflow records removed by cleanup sweeps.
//
//  7. phase_errors_total (counter): Collaborator failures by phase and code.
//     Labels: phase, code.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := review.NewPrometheusMetrics(registry)
//	orc, err := review.New(feature, codebase, analyzer, review.WithMetrics(metrics))
//
//	// Expose via HTTP for Prometheus scraping:
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// Thread-safe: Prometheus collectors handle concurrent updates internally.
type PrometheusMetrics struct {
	activeWorkflows  prometheus.Gauge
	workflowsTotal   *prometheus.CounterVec
	phaseDuration    *prometheus.HistogramVec
	healthScore      prometheus.Histogram
	compressionRatio prometheus.Histogram
	evictions        prometheus.Counter
	phaseErrors      *prometheus.CounterVec

	// Registry holds all registered metrics.
	registry prometheus.Registerer

	// gatherer serves metric export; populated when the registerer also
	// gathers (e.g. *prometheus.Registry).
	gatherer prometheus.Gatherer

	// Mutex protects the enabled flag.
	mu sync.RWMutex

	// enabled controls whether metrics are recorded.
	enabled bool
}

// NewPrometheusMetrics creates and registers all review workflow metrics with
// the provided Prometheus registry.
//
// Parameters:
//   - registry: Prometheus registry to register metrics with (nil uses
//     prometheus.DefaultRegisterer).
//
// All metrics are registered with namespace "reviewflow". The phase duration
// histogram uses buckets sized for LLM round trips (1ms to 60s).
//
// Example:
//
//	// Use custom registry (recommended for isolation).
//	registry := prometheus.NewRegistry()
//	metrics := review.NewPrometheusMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		gatherer: prometheus.DefaultGatherer,
		enabled:  true,
	}
	if g, ok := registry.(prometheus.Gatherer); ok {
		pm.gatherer = g
	}

	pm.activeWorkflows = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "reviewflow",
		Name:      "active_workflows",
		Help:      "Review workflows currently in flight",
	})

	pm.workflowsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Name:      "workflows_total",
		Help:      "Completed review workflows by terminal status",
	}, []string{"status"}) // status: completed, failed, cancelled

	pm.phaseDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reviewflow",
		Name:      "phase_duration_ms",
		Help:      "Phase execution duration in milliseconds (from phase start to result)",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000}, // 1ms to 60s
	}, []string{"phase", "status"}) // status: completed, failed

	pm.healthScore = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reviewflow",
		Name:      "health_score",
		Help:      "Final health score distribution across completed workflows",
		Buckets:   prometheus.LinearBuckets(0, 10, 11), // 0 to 100 in steps of 10
	})

	pm.compressionRatio = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reviewflow",
		Name:      "compression_ratio",
		Help:      "Context optimizer output/input size ratio before code analysis",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10), // 0.1 to 1.0
	})

	pm.evictions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Name:      "evictions_total",
		Help:      "Workflow records removed by cleanup sweeps",
	})

	pm.phaseErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reviewflow",
		Name:      "phase_errors_total",
		Help:      "Collaborator failures by phase and error code",
	}, []string{"phase", "code"}) // code: fatal, fallback, optimizer

	return pm
}

// WorkflowStarted increments the active workflow gauge.
func (pm *PrometheusMetrics) WorkflowStarted() {
	if !pm.isEnabled() {
		return
	}
	pm.activeWorkflows.Inc()
}

// WorkflowFinished decrements the active workflow gauge and counts the
// terminal status.
func (pm *PrometheusMetrics) WorkflowFinished(status Status) {
	if !pm.isEnabled() {
		return
	}
	pm.activeWorkflows.Dec()
	pm.workflowsTotal.WithLabelValues(string(status)).Inc()
}

// RecordPhaseDuration records the execution duration of a phase in
// milliseconds. Use this to track P50/P95/P99 latencies per phase.
func (pm *PrometheusMetrics) RecordPhaseDuration(phase string, d time.Duration, status PhaseStatus) {
	if !pm.isEnabled() {
		return
	}
	pm.phaseDuration.WithLabelValues(phase, string(status)).Observe(float64(d.Milliseconds()))
}

// RecordHealthScore records a final workflow health score.
func (pm *PrometheusMetrics) RecordHealthScore(score int) {
	if !pm.isEnabled() {
		return
	}
	pm.healthScore.Observe(float64(score))
}

// RecordCompressionRatio records a context optimization ratio.
func (pm *PrometheusMetrics) RecordCompressionRatio(ratio float64) {
	if !pm.isEnabled() {
		return
	}
	pm.compressionRatio.Observe(ratio)
}

// AddEvictions counts workflow records removed by a cleanup sweep.
func (pm *PrometheusMetrics) AddEvictions(n int) {
	if !pm.isEnabled() || n <= 0 {
		return
	}
	pm.evictions.Add(float64(n))
}

// IncrementPhaseErrors counts a collaborator failure for a phase.
//
// Codes distinguish failure handling: "fatal" aborted the workflow,
// "fallback" was absorbed with a substitute payload, "optimizer" means the
// context optimization step failed and the unoptimized context was used.
func (pm *PrometheusMetrics) IncrementPhaseErrors(phase, code string) {
	if !pm.isEnabled() {
		return
	}
	pm.phaseErrors.WithLabelValues(phase, code).Inc()
}

// Gatherer returns the gatherer serving these metrics, for export endpoints.
func (pm *PrometheusMetrics) Gatherer() prometheus.Gatherer {
	return pm.gatherer
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears gauge values (useful for testing).
// This does not unregister metrics from the registry.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.activeWorkflows.Set(0)
	// Counters and histograms are cumulative and cannot be reset.
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
