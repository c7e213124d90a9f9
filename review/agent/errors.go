package agent

import "errors"

// Common error sentinels for collaborator calls.
var (
	// ErrRateLimited indicates the provider rate limit was exceeded (retryable).
	ErrRateLimited = &AgentError{Code: "rate_limited", Message: "provider rate limit exceeded", Retryable: true}

	// ErrTimeout indicates the request exceeded the provider timeout (retryable).
	ErrTimeout = &AgentError{Code: "timeout", Message: "provider request timed out", Retryable: true}

	// ErrOverloaded indicates the provider is temporarily overloaded (retryable).
	ErrOverloaded = &AgentError{Code: "overloaded", Message: "provider temporarily overloaded", Retryable: true}

	// ErrInvalidAPIKey indicates the API key is invalid or expired (permanent).
	ErrInvalidAPIKey = &AgentError{Code: "invalid_api_key", Message: "API key is invalid or expired"}

	// ErrQuotaExceeded indicates the provider quota has been exhausted (permanent).
	ErrQuotaExceeded = &AgentError{Code: "quota_exceeded", Message: "provider quota exceeded"}

	// ErrEmptyResponse indicates the provider returned no usable content (permanent).
	ErrEmptyResponse = &AgentError{Code: "empty_response", Message: "provider returned an empty response"}
)

// AgentError represents a failure in a collaborator call. It distinguishes
// retryable transient failures from permanent ones so API-backed agents can
// decide whether to retry with backoff.
type AgentError struct {
	// Code is the machine-readable error code for programmatic handling.
	Code string

	// Message is the human-readable error message for logging and display.
	Message string

	// Retryable indicates whether the call can be retried with backoff.
	// True for transient failures (rate limits, timeouts, overload).
	// False for permanent failures (invalid credentials, quota, bad output).
	Retryable bool

	// Cause is the underlying provider error, when available.
	Cause error
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying provider error to errors.Is and errors.As.
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error indicates a transient failure that
// can be retried with exponential backoff.
func (e *AgentError) IsRetryable() bool {
	return e.Retryable
}

// IsRetryable reports whether err or anything it wraps is a retryable
// AgentError. Used by RetryPolicy.Do to gate retries.
func IsRetryable(err error) bool {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}
