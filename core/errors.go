package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrToolNotFound is returned when a task references a tool absent from the registry.
	// It is fatal for the task and never retried.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParameters is returned when required tool parameters are missing
	// or mistyped. It is fatal for the task and never retried.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrPlanningFailure is returned when the planner produced nothing and no
	// fallback plan applies. It is fatal to the run.
	ErrPlanningFailure = errors.New("planning failure")

	// ErrInvalidTransition is returned for task status changes outside the
	// pending -> running -> {completed, failed} machine.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrStopped is returned by loops that observed the stop signal.
	ErrStopped = errors.New("stopped")
)

// ExecutionError wraps an error raised by a tool while executing. It is the
// only task-level error kind the retrying executor retries.
type ExecutionError struct {
	Tool string
	Err  error
}

// NewExecutionError wraps err as a retryable execution failure of tool.
func NewExecutionError(tool string, err error) *ExecutionError {
	return &ExecutionError{Tool: tool, Err: err}
}

func (e *ExecutionError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("execution error: %v", e.Err)
	}

	return fmt.Sprintf("execution error in %s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ServiceError reports an inference service failure after the service's own
// retry budget was exhausted, or a non-retryable HTTP-level failure.
type ServiceError struct {
	Provider   string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s service error (status %d, %d attempts): %v", e.Provider, e.StatusCode, e.Attempts, e.Err)
	}

	return fmt.Sprintf("%s service error (%d attempts): %v", e.Provider, e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ResponseTimeoutError is returned when no correlated response arrived on the
// message bus within the wait bound.
type ResponseTimeoutError struct {
	ConversationID string
	Timeout        time.Duration
}

func (e *ResponseTimeoutError) Error() string {
	return fmt.Sprintf("no response for conversation %s within %s", e.ConversationID, e.Timeout)
}

// IsRetryable reports whether err should be retried by the task executor.
// Tool lookup and parameter errors are permanent, as is anything that is not
// an ExecutionError.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrInvalidParameters) {
		return false
	}

	var execErr *ExecutionError

	return errors.As(err, &execErr)
}

// IsResponseTimeout reports whether err is a ResponseTimeoutError.
func IsResponseTimeout(err error) bool {
	var rt *ResponseTimeoutError
	return errors.As(err, &rt)
}
