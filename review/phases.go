package review

import (
	"context"

	"github.com/dshills/reviewflow-go/review/agent"
	"github.com/dshills/reviewflow-go/review/emit"
)

// executor drives the phases of one workflow in fixed order:
// feature understanding, codebase learning, code analysis, report
// generation. Phases within a workflow are strictly sequential; no phase
// starts before the previous result is written.
//
// Failure policy is per phase: feature understanding and code analysis are
// fatal, codebase learning degrades to a fallback payload, report generation
// degrades to a partial report.
type executor struct {
	orc        *Orchestrator
	id         string
	pr         agent.PullRequest
	focusAreas []string
	seq        int
}

func (e *executor) emit(phase, msg string, meta map[string]interface{}) {
	e.seq++
	e.orc.emitter.Emit(emit.Event{
		WorkflowID: e.id,
		Seq:        e.seq,
		Phase:      phase,
		Msg:        msg,
		Meta:       meta,
	})
}

func (e *executor) run(ctx context.Context) (*ReviewResult, error) {
	e.emit("", "workflow_start", map[string]interface{}{
		"repository": e.pr.Repository,
		"pr_number":  e.pr.Number,
	})

	feature, err := e.runFeaturePhase(ctx)
	if err != nil {
		return nil, err
	}

	knowledge, err := e.runCodebasePhase(ctx, feature)
	if err != nil {
		return nil, err
	}

	reviewCtx := e.optimizeContext(ctx, feature, knowledge)

	if err := e.runAnalysisPhase(ctx, reviewCtx); err != nil {
		return nil, err
	}

	return e.generateReport(ctx)
}

// runFeaturePhase invokes the feature understanding collaborator. Failure is
// fatal: the workflow transitions to failed and the error is surfaced to the
// ReviewPR caller.
func (e *executor) runFeaturePhase(ctx context.Context) (agent.FeatureContext, error) {
	if err := e.beginPhase(ctx, PhaseFeatureUnderstanding); err != nil {
		return agent.FeatureContext{}, err
	}

	start := e.orc.clock.Now()
	feature, err := e.orc.feature.AnalyzeFeature(ctx, e.pr)
	duration := e.orc.clock.Now().Sub(start)

	if err != nil {
		return agent.FeatureContext{}, e.failFatal(ctx, PhaseResult{
			Name:     PhaseFeatureUnderstanding,
			Status:   PhaseFailed,
			Duration: duration,
			Error:    err.Error(),
		}, err)
	}

	result := PhaseResult{
		Name:     PhaseFeatureUnderstanding,
		Status:   PhaseCompleted,
		Duration: duration,
		Feature:  &feature,
	}
	if err := e.orc.appendPhase(ctx, e.id, result); err != nil {
		return agent.FeatureContext{}, err
	}
	e.finishPhase(result, feature.Usage)
	return feature, nil
}

// runCodebasePhase invokes the codebase learning collaborator. Failure is
// recoverable: a fallback payload is substituted and the review continues,
// at the cost of a degraded health score.
func (e *executor) runCodebasePhase(ctx context.Context, feature agent.FeatureContext) (agent.CodebaseKnowledge, error) {
	if err := e.beginPhase(ctx, PhaseCodebaseLearning); err != nil {
		return agent.CodebaseKnowledge{}, err
	}

	start := e.orc.clock.Now()
	knowledge, err := e.orc.codebase.LearnCodebase(ctx, e.pr, feature)
	duration := e.orc.clock.Now().Sub(start)

	if err != nil {
		fallback := agent.NewFallbackKnowledge()
		result := PhaseResult{
			Name:     PhaseCodebaseLearning,
			Status:   PhaseFailed,
			Duration: duration,
			Codebase: &fallback,
			Error:    err.Error(),
		}
		if aerr := e.orc.appendPhase(ctx, e.id, result); aerr != nil {
			return agent.CodebaseKnowledge{}, aerr
		}

		e.emit(PhaseCodebaseLearning, "phase_fallback", map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
			"error":       err.Error(),
		})
		if e.orc.metrics != nil {
			e.orc.metrics.RecordPhaseDuration(PhaseCodebaseLearning, duration, PhaseFailed)
			e.orc.metrics.IncrementPhaseErrors(PhaseCodebaseLearning, "fallback")
		}
		return fallback, nil
	}

	result := PhaseResult{
		Name:     PhaseCodebaseLearning,
		Status:   PhaseCompleted,
		Duration: duration,
		Codebase: &knowledge,
	}
	if err := e.orc.appendPhase(ctx, e.id, result); err != nil {
		return agent.CodebaseKnowledge{}, err
	}
	e.finishPhase(result, knowledge.Usage)
	return knowledge, nil
}

// optimizeContext runs the context optimizer ahead of code analysis and
// records size telemetry. Optimization failures never affect control flow;
// the unoptimized context is used instead.
func (e *executor) optimizeContext(ctx context.Context, feature agent.FeatureContext, knowledge agent.CodebaseKnowledge) agent.ReviewContext {
	reviewCtx := agent.ReviewContext{
		PR:         e.pr,
		Feature:    feature,
		Codebase:   knowledge,
		FocusAreas: e.focusAreas,
	}

	inputSize := agent.EncodedSize(reviewCtx)
	optimized, err := e.orc.optimizer.Optimize(ctx, reviewCtx, PhaseCodeAnalysis)
	if err != nil {
		e.emit(PhaseCodeAnalysis, "error", map[string]interface{}{
			"error": "context optimization failed: " + err.Error(),
		})
		if e.orc.metrics != nil {
			e.orc.metrics.IncrementPhaseErrors(PhaseCodeAnalysis, "optimizer")
		}
		return reviewCtx
	}

	outputSize := agent.EncodedSize(optimized)
	ratio := 1.0
	if inputSize > 0 {
		ratio = float64(outputSize) / float64(inputSize)
	}

	e.emit(PhaseCodeAnalysis, "context_optimized", map[string]interface{}{
		"input_bytes":       inputSize,
		"output_bytes":      outputSize,
		"compression_ratio": ratio,
	})
	if e.orc.metrics != nil {
		e.orc.metrics.RecordCompressionRatio(ratio)
	}
	return optimized
}

// runAnalysisPhase invokes the code analysis collaborator. Failure is fatal,
// like the feature phase.
func (e *executor) runAnalysisPhase(ctx context.Context, reviewCtx agent.ReviewContext) error {
	if err := e.beginPhase(ctx, PhaseCodeAnalysis); err != nil {
		return err
	}

	start := e.orc.clock.Now()
	analysis, err := e.orc.analyzer.AnalyzeCode(ctx, reviewCtx)
	duration := e.orc.clock.Now().Sub(start)

	if err != nil {
		return e.failFatal(ctx, PhaseResult{
			Name:     PhaseCodeAnalysis,
			Status:   PhaseFailed,
			Duration: duration,
			Error:    err.Error(),
		}, err)
	}

	result := PhaseResult{
		Name:     PhaseCodeAnalysis,
		Status:   PhaseCompleted,
		Duration: duration,
		Analysis: &analysis,
	}
	if err := e.orc.appendPhase(ctx, e.id, result); err != nil {
		return err
	}
	e.finishPhase(result, analysis.Usage)
	return nil
}

// generateReport consolidates phase outputs, writes the final report, and
// transitions the workflow to completed. Consolidation cannot fail the
// workflow; at worst the report degrades to ReportPartial.
func (e *executor) generateReport(ctx context.Context) (*ReviewResult, error) {
	if err := e.beginPhase(ctx, PhaseReportGeneration); err != nil {
		return nil, err
	}

	state, err := e.orc.store.Get(ctx, e.id)
	if err != nil {
		return nil, err
	}

	report := ConsolidateReport(state, e.orc.clock.Now())
	if report.Status == ReportPartial {
		e.emit(PhaseReportGeneration, "report_fallback", map[string]interface{}{
			"health_score": report.HealthScore,
		})
	}

	final, err := e.orc.completeWorkflow(ctx, e.id, &report)
	if err != nil {
		return nil, err
	}

	e.emit(PhaseReportGeneration, "workflow_end", map[string]interface{}{
		"status":       string(StatusCompleted),
		"health_score": report.HealthScore,
		"duration_ms":  final.Elapsed(e.orc.clock.Now()).Milliseconds(),
	})
	if e.orc.metrics != nil {
		e.orc.metrics.WorkflowFinished(StatusCompleted)
		e.orc.metrics.RecordHealthScore(report.HealthScore)
	}

	return &ReviewResult{
		WorkflowID: e.id,
		Report:     &report,
		Phases:     final.Phases,
	}, nil
}

// beginPhase records the phase as current and emits phase_start. It stops
// the executor when the workflow was cancelled since the last boundary.
func (e *executor) beginPhase(ctx context.Context, phase string) error {
	if err := e.orc.markPhase(ctx, e.id, phase); err != nil {
		return err
	}
	e.emit(phase, "phase_start", nil)
	return nil
}

// finishPhase emits phase_end and records metrics and cost for a completed
// phase.
func (e *executor) finishPhase(result PhaseResult, usage *agent.Usage) {
	meta := map[string]interface{}{
		"duration_ms": result.Duration.Milliseconds(),
		"status":      string(result.Status),
	}
	if usage != nil {
		meta["model"] = usage.Model
		meta["tokens_in"] = usage.InputTokens
		meta["tokens_out"] = usage.OutputTokens
	}
	e.emit(result.Name, "phase_end", meta)

	if e.orc.metrics != nil {
		e.orc.metrics.RecordPhaseDuration(result.Name, result.Duration, result.Status)
	}
	if e.orc.costs != nil {
		e.orc.costs.RecordUsage(e.id, result.Name, usage)
	}
}

// failFatal writes the failed phase result, transitions the workflow to
// failed, and returns the error for the ReviewPR caller.
func (e *executor) failFatal(ctx context.Context, result PhaseResult, cause error) error {
	if err := e.orc.failWorkflow(ctx, e.id, result, cause); err != nil {
		return err
	}

	e.emit(result.Name, "phase_end", map[string]interface{}{
		"duration_ms": result.Duration.Milliseconds(),
		"status":      string(PhaseFailed),
		"error":       cause.Error(),
	})
	e.emit(result.Name, "workflow_end", map[string]interface{}{
		"status": string(StatusFailed),
		"error":  cause.Error(),
	})
	if e.orc.metrics != nil {
		e.orc.metrics.RecordPhaseDuration(result.Name, result.Duration, PhaseFailed)
		e.orc.metrics.IncrementPhaseErrors(result.Name, "fatal")
		e.orc.metrics.WorkflowFinished(StatusFailed)
	}

	return &PhaseError{Phase: result.Name, Cause: cause}
}

// markPhase sets CurrentPhase under the per-workflow lock, refusing when the
// workflow has already reached a terminal status.
func (o *Orchestrator) markPhase(ctx context.Context, id, phase string) error {
	lock := o.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if state.Status.Terminal() {
		return terminalStateError(state)
	}

	return o.store.Update(ctx, id, WorkflowPatch{CurrentPhase: &phase})
}

// appendPhase appends a PhaseResult under the per-workflow lock. A workflow
// cancelled while the phase was in flight discards the write; the executor
// surfaces the cancellation instead.
func (o *Orchestrator) appendPhase(ctx context.Context, id string, result PhaseResult) error {
	lock := o.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if state.Status.Terminal() {
		return terminalStateError(state)
	}

	phases := append(state.Phases, result)
	return o.store.Update(ctx, id, WorkflowPatch{Phases: phases})
}

// failWorkflow appends the failed phase result and transitions the workflow
// to failed in one update. Returns a non-nil error only when the transition
// was refused (the workflow was cancelled first).
func (o *Orchestrator) failWorkflow(ctx context.Context, id string, result PhaseResult, cause error) error {
	lock := o.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if state.Status.Terminal() {
		return terminalStateError(state)
	}

	now := o.clock.Now()
	status := StatusFailed
	msg := cause.Error()
	phases := append(state.Phases, result)
	return o.store.Update(ctx, id, WorkflowPatch{
		Status:  &status,
		EndTime: &now,
		Error:   &msg,
		Phases:  phases,
	})
}

// completeWorkflow writes the final report and transitions the workflow to
// completed, returning the final state.
func (o *Orchestrator) completeWorkflow(ctx context.Context, id string, report *Report) (WorkflowState, error) {
	lock := o.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.store.Get(ctx, id)
	if err != nil {
		return WorkflowState{}, err
	}
	if state.Status.Terminal() {
		return WorkflowState{}, terminalStateError(state)
	}

	now := o.clock.Now()
	status := StatusCompleted
	if err := o.store.Update(ctx, id, WorkflowPatch{
		Status:      &status,
		EndTime:     &now,
		FinalReport: report,
	}); err != nil {
		return WorkflowState{}, err
	}

	state.Status = status
	state.EndTime = now
	state.FinalReport = report
	return state, nil
}

// terminalStateError maps a refused transition to the caller-facing error.
func terminalStateError(state WorkflowState) error {
	if state.Status == StatusCancelled {
		return cancelledError(state)
	}
	return &WorkflowError{
		Message: "workflow " + state.ID + " is already " + string(state.Status),
		Code:    "WORKFLOW_TERMINAL",
	}
}
