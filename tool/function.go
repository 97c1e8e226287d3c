package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentkernel/internal/util"
)

// Func is the signature wrapped by FunctionTool.
type Func func(ctx context.Context, tc *Context, params map[string]any) (Result, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Parameters are validated against the declared schema before fn runs. Errors
// are normalized so callers always receive *ToolError:
//
//	VALIDATION_ERROR  -> schema / argument mismatch (not retried)
//	EXECUTION_ERROR   -> fn returned an error that is not a *ToolError (retried)
//
// Custom codes are preserved when fn returns a *ToolError directly. A
// FunctionTool has no mutable state after construction.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Func
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	echo := NewFunctionTool(
//	  "echo",
//	  "Echo the given text",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{"text": map[string]any{"type": "string"}},
//	    "required": []string{"text"},
//	  },
//	  func(_ context.Context, _ *Context, p map[string]any) (Result, error) {
//	    return Result{Success: true, Output: p["text"].(string)}, nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn Func) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
func NewFunctionToolFromStruct(name, description string, structType any, fn Func) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the minimal JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Execute validates params then invokes the wrapped function.
func (t *FunctionTool) Execute(ctx context.Context, tc *Context, params map[string]any) (Result, error) {
	logger := tc.Log()
	start := time.Now()

	if err := util.ValidateParameters(params, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return Result{}, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, tc, params)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Error("tool.call.error", "tool", t.name, "code", toolErr.Code, "error", toolErr.Message)
			return Result{}, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return Result{}, ExecutionFailed(t.name, err)
	}

	logger.Debug("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
