package review

import "errors"

// ErrWorkflowNotFound is returned when a requested workflow ID does not exist.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrWorkflowExists is returned when initializing a workflow whose ID is
// already stored. Workflow IDs are single-use; callers must supply fresh ids.
var ErrWorkflowExists = errors.New("workflow already exists")

// WorkflowError represents an error from Orchestrator operations.
type WorkflowError struct {
	Message string
	Code    string
}

func (e *WorkflowError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// PhaseError wraps a fatal collaborator failure with the phase it occurred in.
//
// Only the fatal phases (feature understanding and code analysis) surface a
// PhaseError to the caller of ReviewPR; a codebase learning failure is
// absorbed and replaced with a fallback payload instead.
type PhaseError struct {
	Phase   string
	Message string
	Cause   error
}

func (e *PhaseError) Error() string {
	if e.Cause != nil {
		return "phase " + e.Phase + " failed: " + e.Cause.Error()
	}
	return "phase " + e.Phase + " failed: " + e.Message
}

func (e *PhaseError) Unwrap() error { return e.Cause }
