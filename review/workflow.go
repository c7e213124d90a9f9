package review

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dshills/reviewflow-go/review/agent"
)

// Status is the lifecycle state of a review workflow.
//
// Transitions are monotonic: once a workflow reaches a terminal status
// (completed, failed, cancelled), no further transition is permitted. The
// store does not enforce this; the Orchestrator does, under a per-workflow
// lock.
type Status string

const (
	// StatusRunning marks a workflow with phases still executing.
	StatusRunning Status = "running"

	// StatusCompleted marks a workflow that produced a final report,
	// possibly a degraded one.
	StatusCompleted Status = "completed"

	// StatusFailed marks a workflow aborted by a fatal phase error.
	StatusFailed Status = "failed"

	// StatusCancelled marks a workflow stopped by CancelWorkflow.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Phase names in execution order. PhaseInitializing is the CurrentPhase value
// before the first phase starts.
const (
	PhaseInitializing         = "initializing"
	PhaseFeatureUnderstanding = "feature_understanding"
	PhaseCodebaseLearning     = "codebase_learning"
	PhaseCodeAnalysis         = "code_analysis"
	PhaseReportGeneration     = "report_generation"
)

// PhaseStatus is the outcome of one executed phase.
type PhaseStatus string

const (
	// PhaseCompleted marks a phase whose collaborator returned a payload.
	PhaseCompleted PhaseStatus = "completed"

	// PhaseFailed marks a phase whose collaborator returned an error.
	PhaseFailed PhaseStatus = "failed"
)

// PhaseResult records the outcome of one executed phase. Immutable once
// written into a WorkflowState.
//
// Exactly one of Feature, Codebase, or Analysis is set, matching Name. A
// failed codebase learning phase still carries the substituted fallback
// payload in Codebase so downstream consumers always see a well-typed value.
type PhaseResult struct {
	Name     string
	Status   PhaseStatus
	Duration time.Duration

	Feature  *agent.FeatureContext
	Codebase *agent.CodebaseKnowledge
	Analysis *agent.CodeAnalysis

	// Error is set only when Status is PhaseFailed.
	Error string
}

// WorkflowState is the record of one end-to-end review run for a single PR.
//
// A WorkflowState is created exactly once, on request arrival, and destroyed
// only by cleanup once its age exceeds a threshold. All mutation is owned by
// the Orchestrator; collaborators only return payloads that the Orchestrator
// folds in.
type WorkflowState struct {
	// ID uniquely identifies the workflow, derived from the PR number and
	// a creation timestamp.
	ID string

	// Repository and PRNumber are copied from the request and immutable
	// after creation.
	Repository string
	PRNumber   int

	// PR is the full request payload the phases operate on.
	PR agent.PullRequest

	Status    Status
	StartTime time.Time

	// EndTime is set only on the terminal transition.
	EndTime time.Time

	// CurrentPhase names the phase currently executing, or
	// PhaseInitializing when none has started.
	CurrentPhase string

	// Phases holds one PhaseResult per executed phase, in execution order.
	Phases []PhaseResult

	// FinalReport is present only after report generation ran, which
	// includes degraded fallback reports.
	FinalReport *Report

	// Error holds the fatal phase error message for failed workflows.
	Error string

	// CancelReason holds the reason passed to CancelWorkflow.
	CancelReason string

	// FocusAreas and Metadata are optional caller-supplied review hints,
	// carried for analytics and the final report.
	FocusAreas []string
	Metadata   map[string]string
}

// Phase returns the result for the named phase and whether it was recorded.
func (w *WorkflowState) Phase(name string) (PhaseResult, bool) {
	for _, p := range w.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// Elapsed returns the workflow duration: EndTime-StartTime once terminal,
// now-StartTime while running.
func (w *WorkflowState) Elapsed(now time.Time) time.Duration {
	if w.Status.Terminal() && !w.EndTime.IsZero() {
		return w.EndTime.Sub(w.StartTime)
	}
	return now.Sub(w.StartTime)
}

// NewWorkflowID derives a fresh workflow ID from the PR number and a creation
// timestamp. The ULID suffix keeps ids unique across workflows created
// concurrently for the same PR.
func NewWorkflowID(prNumber int, now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	return fmt.Sprintf("pr-%d-%s", prNumber, id.String())
}
