package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTaskTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{TaskPending, TaskRunning, true},
		{TaskRunning, TaskCompleted, true},
		{TaskRunning, TaskFailed, true},
		{TaskPending, TaskCompleted, false},
		{TaskPending, TaskFailed, false},
		{TaskCompleted, TaskRunning, false},
		{TaskFailed, TaskPending, false},
		{TaskCompleted, TaskFailed, false},
	}

	for _, tt := range tests {
		err := ValidateTaskTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
			continue
		}

		assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tt.from, tt.to)
	}
}

func TestNewTask_ClampsPriority(t *testing.T) {
	assert.Equal(t, 1.0, NewTask("a", "a", 1.7).Priority)
	assert.Equal(t, 0.0, NewTask("b", "b", -0.2).Priority)
	assert.Equal(t, 0.4, NewTask("c", "c", 0.4).Priority)
	assert.Equal(t, TaskPending, NewTask("d", "d", 0.4).Status)
}

func TestTask_CloneIsolation(t *testing.T) {
	task := NewTask("t1", "write", 0.5, "t0").WithTool("write_code", map[string]any{"filePath": "a.go"})
	task.History = append(task.History, TaskOutcome{TaskID: "t1", SideEffects: []string{"a.go"}})

	c := task.Clone()
	c.Dependencies[0] = "changed"
	c.Parameters["filePath"] = "b.go"
	c.History[0].SideEffects[0] = "b.go"

	assert.Equal(t, "t0", task.Dependencies[0])
	assert.Equal(t, "a.go", task.Parameters["filePath"])
	assert.Equal(t, "a.go", task.History[0].SideEffects[0])

	last, ok := task.LastOutcome()
	require.True(t, ok)
	assert.Equal(t, "t1", last.TaskID)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewExecutionError("create_file", errors.New("disk full"))))
	assert.False(t, IsRetryable(ErrToolNotFound))
	assert.False(t, IsRetryable(ErrInvalidParameters))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))

	// A permanent sentinel wrapped inside an execution error stays permanent.
	wrapped := NewExecutionError("x", ErrInvalidParameters)
	assert.False(t, IsRetryable(wrapped))
}

func TestResponseTimeoutError(t *testing.T) {
	err := error(&ResponseTimeoutError{ConversationID: "cv1"})
	assert.True(t, IsResponseTimeout(err))
	assert.Contains(t, err.Error(), "cv1")
}

func TestRunLimiter(t *testing.T) {
	rl := NewRunLimiter(2, 10)
	assert.NoError(t, rl.Check())
	assert.Equal(t, 2, rl.Remaining())

	rl.Tick()
	rl.AddCost(4)
	assert.NoError(t, rl.Check())

	rl.Tick()
	assert.ErrorIs(t, rl.Check(), ErrIterationLimit)

	cost := NewRunLimiter(0, 5)
	cost.AddCost(5)
	assert.ErrorIs(t, cost.Check(), ErrCostLimit)
	assert.Equal(t, -1, cost.Remaining())
}
