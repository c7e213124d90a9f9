package emit

// Event represents an observability event emitted during review workflow
// execution.
//
// Events provide detailed insight into workflow behavior:
//   - Phase start/end and fallbacks
//   - Status transitions and cancellations
//   - Context optimization telemetry
//   - LLM usage and cost
//   - Cleanup sweeps
//
// Events are emitted to an Emitter which can:
//   - Log to stdout/stderr
//   - Send to OpenTelemetry
//   - Buffer in memory for inspection
type Event struct {
	// WorkflowID identifies the review workflow that emitted this event.
	WorkflowID string

	// Seq is the sequential event number within the workflow (1-indexed).
	// Zero for events outside any workflow (e.g. cleanup sweeps).
	Seq int

	// Phase identifies which review phase emitted this event.
	// Empty string for workflow-level events.
	Phase string

	// Msg is a short machine-matchable description of the event, e.g.
	// "workflow_start", "phase_end", "phase_fallback", "workflow_cancelled".
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": Phase duration in milliseconds
	//   - "error": Error details
	//   - "tokens_in", "tokens_out": LLM token usage
	//   - "cost_usd": Estimated LLM spend
	//   - "health_score": Final workflow health score
	//   - "compression_ratio": Context optimization ratio
	Meta map[string]interface{}
}
