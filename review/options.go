package review

import (
	"time"

	"github.com/dshills/reviewflow-go/review/agent"
	"github.com/dshills/reviewflow-go/review/emit"
)

// Option is a functional option for configuring an Orchestrator.
//
// Example:
//
//	orc, err := review.New(
//	    feature, codebase, analyzer,
//	    review.WithStore(store),
//	    review.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	    review.WithMaxWorkflowAge(48*time.Hour),
//	)
type Option func(*config) error

// config collects options before applying them to an Orchestrator.
// This indirection allows validation and composition of options.
type config struct {
	store     WorkflowStore
	archive   WorkflowStore
	emitter   emit.Emitter
	metrics   *PrometheusMetrics
	costs     *CostTracker
	optimizer agent.ContextOptimizer
	clock     Clock

	cleanupInterval time.Duration
	maxWorkflowAge  time.Duration
}

func defaultConfig() config {
	return config{
		store:           NewMemoryStore(),
		emitter:         emit.NewNullEmitter(),
		optimizer:       agent.NewTruncatingOptimizer(),
		clock:           systemClock{},
		cleanupInterval: time.Hour,
		maxWorkflowAge:  24 * time.Hour,
	}
}

// WithStore sets the workflow store.
//
// Default: an in-memory store. Use store.NewSQLiteStore or store.NewMySQLStore
// for durability across restarts.
func WithStore(s WorkflowStore) Option {
	return func(cfg *config) error {
		if s == nil {
			return &WorkflowError{Message: "store must not be nil", Code: "INVALID_OPTION"}
		}
		cfg.store = s
		return nil
	}
}

// WithArchive sets an archive store. When set, CleanupOldWorkflows copies
// terminal workflow records into the archive before evicting them from the
// primary store, preserving review history beyond the retention window.
//
// Default: none (evicted records are dropped).
func WithArchive(s WorkflowStore) Option {
	return func(cfg *config) error {
		if s == nil {
			return &WorkflowError{Message: "archive store must not be nil", Code: "INVALID_OPTION"}
		}
		cfg.archive = s
		return nil
	}
}

// WithEmitter sets the observability emitter receiving workflow and phase
// lifecycle events.
//
// Default: emit.NewNullEmitter() (events discarded).
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *config) error {
		if e == nil {
			return &WorkflowError{Message: "emitter must not be nil", Code: "INVALID_OPTION"}
		}
		cfg.emitter = e
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := review.NewPrometheusMetrics(registry)
//	orc, err := review.New(feature, codebase, analyzer, review.WithMetrics(metrics))
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *config) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithCostTracker enables LLM cost tracking with static pricing. Token usage
// reported by phase payloads is recorded per workflow and phase.
//
// Example:
//
//	tracker := review.NewCostTracker("USD")
//	orc, err := review.New(feature, codebase, analyzer, review.WithCostTracker(tracker))
//
//	// After reviews, get the cost summary
//	totalCost := tracker.GetTotalCost()
func WithCostTracker(tracker *CostTracker) Option {
	return func(cfg *config) error {
		cfg.costs = tracker
		return nil
	}
}

// WithOptimizer sets the context optimizer run before code analysis.
//
// Default: agent.NewTruncatingOptimizer().
func WithOptimizer(o agent.ContextOptimizer) Option {
	return func(cfg *config) error {
		if o == nil {
			return &WorkflowError{Message: "optimizer must not be nil", Code: "INVALID_OPTION"}
		}
		cfg.optimizer = o
		return nil
	}
}

// WithClock injects the clock used for workflow timing. Tests use this to
// drive deterministic durations.
//
// Default: the system clock.
func WithClock(c Clock) Option {
	return func(cfg *config) error {
		if c == nil {
			return &WorkflowError{Message: "clock must not be nil", Code: "INVALID_OPTION"}
		}
		cfg.clock = c
		return nil
	}
}

// WithCleanupInterval sets the cadence of the cleanup scheduler.
//
// Default: 1h.
func WithCleanupInterval(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return &WorkflowError{Message: "cleanup interval must be positive", Code: "INVALID_OPTION"}
		}
		cfg.cleanupInterval = d
		return nil
	}
}

// WithMaxWorkflowAge sets the retention age used by the cleanup scheduler.
// Terminal workflow records older than this are evicted on each sweep.
//
// Default: 24h.
func WithMaxWorkflowAge(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return &WorkflowError{Message: "max workflow age must be positive", Code: "INVALID_OPTION"}
		}
		cfg.maxWorkflowAge = d
		return nil
	}
}
