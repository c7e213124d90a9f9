// Package review implements a multi-phase pull request review workflow
// engine. An Orchestrator drives each review through feature understanding,
// codebase learning, and code analysis phases, tracks per-workflow execution
// state, applies differentiated failure handling per phase, computes a
// weighted health score, and consolidates phase outputs into a final report.
package review

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/reviewflow-go/review/agent"
	"github.com/dshills/reviewflow-go/review/emit"
)

// Orchestrator coordinates review workflows end to end.
//
// The Orchestrator is the sole owner of workflow state: collaborators only
// return payloads that it folds into the store. Status transitions are
// monotonic; once a workflow is completed, failed, or cancelled it never
// transitions again, enforced under a per-workflow lock.
//
// Example:
//
//	feature := anthropic.New(apiKey, "")
//	orc, err := review.New(feature, feature, feature,
//	    review.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := orc.ReviewPR(ctx, pr)
type Orchestrator struct {
	feature  agent.FeatureAnalyzer
	codebase agent.CodebaseLearner
	analyzer agent.CodeAnalyzer

	store     WorkflowStore
	archive   WorkflowStore
	emitter   emit.Emitter
	metrics   *PrometheusMetrics
	costs     *CostTracker
	optimizer agent.ContextOptimizer
	clock     Clock

	cleanupInterval time.Duration
	maxWorkflowAge  time.Duration

	startedAt time.Time

	// locks serializes updates per workflow id, so a cancellation racing a
	// phase executor cannot produce a lost update or break monotonicity.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ReviewResult is the caller-facing outcome of a successful review.
type ReviewResult struct {
	WorkflowID string
	Report     *Report
	Phases     []PhaseResult
}

// WorkflowStatus is a point-in-time view of one workflow.
type WorkflowStatus struct {
	Exists       bool
	Status       Status
	CurrentPhase string
	Duration     time.Duration
	Phases       []PhaseResult
}

// ReviewOption customizes a single ReviewPR call.
type ReviewOption func(*reviewRequest)

type reviewRequest struct {
	focusAreas []string
	metadata   map[string]string
}

// WithFocusAreas narrows the code analysis phase to the named concern areas
// (e.g. "security", "performance").
func WithFocusAreas(areas ...string) ReviewOption {
	return func(r *reviewRequest) {
		r.focusAreas = append(r.focusAreas, areas...)
	}
}

// WithReviewMetadata attaches caller-supplied key/value pairs to the workflow
// record, carried through to analytics.
func WithReviewMetadata(meta map[string]string) ReviewOption {
	return func(r *reviewRequest) {
		if r.metadata == nil {
			r.metadata = make(map[string]string, len(meta))
		}
		for k, v := range meta {
			r.metadata[k] = v
		}
	}
}

// New creates an Orchestrator wired to the three phase collaborators.
//
// All three collaborators are required. Configuration beyond that is
// optional; see the With* options for defaults.
func New(feature agent.FeatureAnalyzer, codebase agent.CodebaseLearner, analyzer agent.CodeAnalyzer, opts ...Option) (*Orchestrator, error) {
	if feature == nil {
		return nil, &WorkflowError{Message: "feature analyzer must not be nil", Code: "INVALID_CONFIG"}
	}
	if codebase == nil {
		return nil, &WorkflowError{Message: "codebase learner must not be nil", Code: "INVALID_CONFIG"}
	}
	if analyzer == nil {
		return nil, &WorkflowError{Message: "code analyzer must not be nil", Code: "INVALID_CONFIG"}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Orchestrator{
		feature:         feature,
		codebase:        codebase,
		analyzer:        analyzer,
		store:           cfg.store,
		archive:         cfg.archive,
		emitter:         cfg.emitter,
		metrics:         cfg.metrics,
		costs:           cfg.costs,
		optimizer:       cfg.optimizer,
		clock:           cfg.clock,
		cleanupInterval: cfg.cleanupInterval,
		maxWorkflowAge:  cfg.maxWorkflowAge,
		startedAt:       cfg.clock.Now(),
		locks:           make(map[string]*sync.Mutex),
	}, nil
}

// ReviewPR runs the full review pipeline for a pull request and returns the
// consolidated report.
//
// A fatal phase failure (feature understanding or code analysis) marks the
// workflow failed and returns a *PhaseError. A codebase learning failure is
// absorbed with a fallback payload and the review continues. A report
// consolidation failure degrades the report to ReportPartial; the workflow
// still completes. If the workflow is cancelled while a phase is in flight,
// ReviewPR stops at the next phase boundary and returns a *WorkflowError
// with code WORKFLOW_CANCELLED.
func (o *Orchestrator) ReviewPR(ctx context.Context, pr agent.PullRequest, opts ...ReviewOption) (*ReviewResult, error) {
	var req reviewRequest
	for _, opt := range opts {
		opt(&req)
	}

	now := o.clock.Now()
	state := WorkflowState{
		ID:           NewWorkflowID(pr.Number, now),
		Repository:   pr.Repository,
		PRNumber:     pr.Number,
		PR:           pr,
		Status:       StatusRunning,
		StartTime:    now,
		CurrentPhase: PhaseInitializing,
		Phases:       []PhaseResult{},
		FocusAreas:   req.focusAreas,
		Metadata:     req.metadata,
	}

	if err := o.store.Initialize(ctx, state); err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.WorkflowStarted()
	}

	exec := &executor{
		orc:        o,
		id:         state.ID,
		pr:         pr,
		focusAreas: req.focusAreas,
	}
	return exec.run(ctx)
}

// GetWorkflowStatus reports the current status of a workflow. An unknown id
// is not an error; it yields a zero WorkflowStatus with Exists false.
func (o *Orchestrator) GetWorkflowStatus(ctx context.Context, id string) (WorkflowStatus, error) {
	state, err := o.store.Get(ctx, id)
	if errors.Is(err, ErrWorkflowNotFound) {
		return WorkflowStatus{}, nil
	}
	if err != nil {
		return WorkflowStatus{}, err
	}

	phases := make([]PhaseResult, len(state.Phases))
	copy(phases, state.Phases)

	return WorkflowStatus{
		Exists:       true,
		Status:       state.Status,
		CurrentPhase: state.CurrentPhase,
		Duration:     state.Elapsed(o.clock.Now()),
		Phases:       phases,
	}, nil
}

// CancelWorkflow transitions a running workflow to cancelled, recording the
// end time and reason. It returns false, mutating nothing, when the id is
// unknown or the workflow is no longer running.
//
// Cancellation is cooperative: an in-flight collaborator call is not
// interrupted. The phase executor observes the cancelled status at its next
// phase boundary, discards its pending write, and returns a
// WORKFLOW_CANCELLED error to the ReviewPR caller.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, id, reason string) bool {
	lock := o.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.store.Get(ctx, id)
	if err != nil || state.Status != StatusRunning {
		return false
	}

	now := o.clock.Now()
	status := StatusCancelled
	if err := o.store.Update(ctx, id, WorkflowPatch{
		Status:       &status,
		EndTime:      &now,
		CancelReason: &reason,
	}); err != nil {
		return false
	}

	o.emitter.Emit(emit.Event{
		WorkflowID: id,
		Phase:      state.CurrentPhase,
		Msg:        "workflow_cancelled",
		Meta:       map[string]interface{}{"reason": reason},
	})
	if o.metrics != nil {
		o.metrics.WorkflowFinished(StatusCancelled)
	}
	return true
}

// CleanupOldWorkflows removes terminal workflow records older than maxAge and
// returns how many were evicted. When an archive store is configured, the
// evicted records are copied there first. This is the manual trigger
// equivalent to one scheduled sweep.
func (o *Orchestrator) CleanupOldWorkflows(ctx context.Context, maxAge time.Duration) (int, error) {
	now := o.clock.Now()

	states, err := o.store.List(ctx, time.Time{})
	if err != nil {
		return 0, err
	}

	var candidates []WorkflowState
	for _, state := range states {
		if state.Status.Terminal() && now.Sub(state.StartTime) > maxAge {
			candidates = append(candidates, state)
		}
	}

	if o.archive != nil {
		for _, state := range candidates {
			if err := o.archive.Initialize(ctx, state); err != nil && !errors.Is(err, ErrWorkflowExists) {
				o.emitter.Emit(emit.Event{
					WorkflowID: state.ID,
					Msg:        "error",
					Meta:       map[string]interface{}{"error": "archive: " + err.Error()},
				})
			}
		}
	}

	evicted, err := o.store.EvictOlderThan(ctx, maxAge, now)
	if err != nil {
		return 0, err
	}

	for _, state := range candidates {
		o.dropLock(state.ID)
	}

	if o.metrics != nil {
		o.metrics.AddEvictions(evicted)
	}
	o.emitter.Emit(emit.Event{
		Msg: "cleanup_sweep",
		Meta: map[string]interface{}{
			"evicted":    evicted,
			"max_age_ms": maxAge.Milliseconds(),
		},
	})
	return evicted, nil
}

// Close releases the underlying stores.
func (o *Orchestrator) Close() error {
	var firstErr error
	if err := o.store.Close(); err != nil {
		firstErr = err
	}
	if o.archive != nil {
		if err := o.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// lockFor returns the mutex serializing updates for one workflow id.
func (o *Orchestrator) lockFor(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[id] = lock
	}
	return lock
}

// dropLock forgets the per-id mutex for an evicted workflow.
func (o *Orchestrator) dropLock(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.locks, id)
}

// cancelledError builds the error returned to ReviewPR callers when another
// goroutine cancelled the workflow mid-flight.
func cancelledError(state WorkflowState) error {
	msg := "workflow " + state.ID + " was cancelled"
	if state.CancelReason != "" {
		msg += ": " + state.CancelReason
	}
	return &WorkflowError{Message: msg, Code: "WORKFLOW_CANCELLED"}
}
