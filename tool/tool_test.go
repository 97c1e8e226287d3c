package tool

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Tool = (*FunctionTool)(nil)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.ElementsMatch(t, []string{"a"}, util.RequiredFields(schema))
}

func TestValidateParameters(t *testing.T) {
	for name, required := range map[string]any{"any": []any{"x"}, "string": []string{"x"}} {
		t.Run(name, func(t *testing.T) {
			schema := map[string]any{
				"type": "object",
				"properties": map[string]any{
					"x": map[string]any{"type": "integer"},
				},
				"required": required,
			}

			assert.NoError(t, util.ValidateParameters(map[string]any{"x": 5}, schema))

			err := util.ValidateParameters(map[string]any{}, schema)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, "x", vErr.Field)

			err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.Message, "expected type integer")
		})
	}
}

func TestValidateParameters_Enum(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{"type": "string", "enum": []string{"mutate", "record"}},
		},
	}

	assert.NoError(t, util.ValidateParameters(map[string]any{"action": "record"}, schema))
	assert.Error(t, util.ValidateParameters(map[string]any{"action": "explode"}, schema))
}

// -------------------- FunctionTool Tests --------------------

func sumTool() *FunctionTool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	return NewFunctionTool("sum", "Add numbers", params, func(_ context.Context, _ *Context, args map[string]any) (Result, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)

		return Result{Success: true, Output: strconv.FormatFloat(a+b, 'f', -1, 64)}, nil
	})
}

func TestFunctionTool_Success(t *testing.T) {
	res, err := sumTool().Execute(context.Background(), &Context{}, map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "5", res.Output)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := sumTool().Execute(context.Background(), nil, map[string]any{"a": 1.0})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.ErrorIs(t, err, core.ErrInvalidParameters)
	assert.False(t, core.IsRetryable(err))
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	boom := errors.New("boom")
	execTool := NewFunctionTool("fail", "Fails", map[string]any{"type": "object"}, func(context.Context, *Context, map[string]any) (Result, error) {
		return Result{}, boom
	})

	_, err := execTool.Execute(context.Background(), &Context{}, map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.ErrorIs(t, err, boom)
	assert.True(t, core.IsRetryable(err))
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("quota", "over quota", "QUOTA")
	execTool := NewFunctionTool("quota", "", map[string]any{"type": "object"}, func(context.Context, *Context, map[string]any) (Result, error) {
		return Result{}, custom
	})

	_, err := execTool.Execute(context.Background(), &Context{}, map[string]any{})
	assert.Same(t, custom, err)
}

// -------------------- Registry Tests --------------------

func TestRegistry(t *testing.T) {
	r := NewRegistry(Builtins()...)
	assert.Equal(t, []string{AppendFileName, CreateDirName, CreateFileName, WriteCodeName}, r.Names())
	assert.Error(t, r.Register(NewCreateFileTool()))
	require.NoError(t, r.Register(sumTool()))
	assert.Contains(t, r.Describe(), "- sum: Add numbers")

	_, err := r.Execute(context.Background(), "missing", &Context{}, nil)
	assert.ErrorIs(t, err, core.ErrToolNotFound)
	assert.False(t, core.IsRetryable(err))
}

type plainErrTool struct{ err error }

func (p plainErrTool) Name() string               { return "plain" }
func (p plainErrTool) Description() string        { return "" }
func (p plainErrTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (p plainErrTool) Execute(context.Context, *Context, map[string]any) (Result, error) {
	return Result{}, p.err
}

func TestRegistry_NormalizesToolErrors(t *testing.T) {
	boom := errors.New("disk full")

	_, err := NewRegistry(plainErrTool{err: boom}).Execute(context.Background(), "plain", &Context{}, nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.ErrorIs(t, err, boom)
	assert.True(t, core.IsRetryable(err))

	_, err = NewRegistry(plainErrTool{err: core.ErrInvalidParameters}).Execute(context.Background(), "plain", &Context{}, nil)
	assert.Same(t, core.ErrInvalidParameters, err)
	assert.False(t, core.IsRetryable(err))
}

func TestResultOutcome(t *testing.T) {
	res := Result{Success: true, Output: "done", SideEffects: []string{"wrote a"}}
	o := res.Outcome("task_1")
	assert.Equal(t, "task_1", o.TaskID)
	assert.Equal(t, "done", o.Result)

	res.SideEffects[0] = "changed"
	assert.Equal(t, "wrote a", o.SideEffects[0])
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}
