// Package tool implements the capabilities tasks invoke: named operations with
// a minimal JSON schema, validated parameters and a structured result that the
// scheduler turns into a task outcome.
package tool

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/util"
	"github.com/hupe1980/agentkernel/logging"
)

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// Tool defines a capability that tasks can invoke by name.
//
// Implementations must be safe for concurrent use; the reactive and proactive
// loops may execute tools at the same time as the scheduler.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description returns a human-readable description used in planning prompts.
	Description() string

	// Parameters returns a minimal JSON schema describing the expected input.
	Parameters() map[string]any

	// Execute runs the tool. Returned errors should be *ToolError so the retry
	// layer can tell transient failures from permanent ones.
	Execute(ctx context.Context, tc *Context, params map[string]any) (Result, error)
}

// Context is the read-only view of agent state handed to a tool.
type Context struct {
	// WorkingPath is the directory file tools are confined to.
	WorkingPath string
	// Goal is the goal the calling task serves, if any.
	Goal string
	// CompletedTasks lists the descriptions of finished tasks.
	CompletedTasks []string
	// Knowledge is a flattened copy of the knowledge base.
	Knowledge map[string]string
	Logger    logging.Logger
}

// Log returns the context logger or a no-op logger.
func (c *Context) Log() logging.Logger {
	if c == nil {
		return logging.NoOpLogger{}
	}

	return logging.OrNoOp(c.Logger)
}

// Result is what a successful tool call reports back.
type Result struct {
	Success      bool     `json:"success"`
	Output       string   `json:"output,omitempty"`
	SideEffects  []string `json:"side_effects,omitempty"`
	Observations []string `json:"observations,omitempty"`
}

// Outcome converts the result into a task outcome for taskID.
func (r Result) Outcome(taskID string) core.TaskOutcome {
	return core.TaskOutcome{
		TaskID:       taskID,
		Success:      r.Success,
		Result:       r.Output,
		SideEffects:  slices.Clone(r.SideEffects),
		Observations: slices.Clone(r.Observations),
	}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	cause   error
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}

	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap maps the error code onto the kernel's error kinds so errors.Is and
// core.IsRetryable work on tool errors.
func (e *ToolError) Unwrap() error {
	switch e.Code {
	case CodeValidation:
		return core.ErrInvalidParameters
	case CodeNotFound:
		return core.ErrToolNotFound
	default:
		cause := e.cause
		if cause == nil {
			cause = errors.New(e.Message)
		}

		return core.NewExecutionError(e.Tool, cause)
	}
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// ExecutionFailed wraps cause as a retryable execution error.
func ExecutionFailed(tool string, cause error) *ToolError {
	return &ToolError{Tool: tool, Message: cause.Error(), Code: CodeExecution, cause: cause}
}

// InvalidParameters reports a parameter problem that retrying cannot fix.
func InvalidParameters(tool, format string, args ...any) *ToolError {
	return &ToolError{Tool: tool, Message: fmt.Sprintf(format, args...), Code: CodeValidation}
}
