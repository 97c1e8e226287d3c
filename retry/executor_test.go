package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(delays *[]time.Duration, optFns ...func(o *Options)) *Executor {
	return New(append([]func(o *Options){func(o *Options) {
		o.Attempts = 3
		o.BackoffBase = 2
		o.Unit = time.Millisecond
		o.OnRetry = func(_ int, d time.Duration, _ error) { *delays = append(*delays, d) }
	}}, optFns...)...)
}

func TestExecutor_FailsTwiceThenSucceeds(t *testing.T) {
	var delays []time.Duration

	exec := newTestExecutor(&delays)
	task := core.NewTask("t1", "flaky", 0.5)
	calls := 0

	out := exec.Execute(context.Background(), task, func(context.Context) (core.TaskOutcome, error) {
		calls++
		if calls < 3 {
			return core.TaskOutcome{}, core.NewExecutionError("flaky", fmt.Errorf("attempt %d", calls))
		}

		return core.TaskOutcome{Success: true, Result: "ok"}, nil
	})

	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "ok", out.Result)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestExecutor_ExhaustsRetries(t *testing.T) {
	var delays []time.Duration

	exec := newTestExecutor(&delays)
	calls := 0

	out := exec.Execute(context.Background(), core.NewTask("t1", "broken", 0.5), func(context.Context) (core.TaskOutcome, error) {
		calls++
		return core.TaskOutcome{}, core.NewExecutionError("broken", errors.New("nope"))
	})

	assert.False(t, out.Success)
	assert.Equal(t, exec.MaxAttempts(), calls)
	assert.Equal(t, 4, out.Attempts)
	assert.Contains(t, out.Error, "nope")
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, delays)
}

func TestExecutor_PermanentErrorsAreNotRetried(t *testing.T) {
	for _, permanent := range []error{core.ErrToolNotFound, core.ErrInvalidParameters} {
		var delays []time.Duration

		exec := newTestExecutor(&delays)
		calls := 0

		out := exec.Execute(context.Background(), core.NewTask("t", "x", 0.5), func(context.Context) (core.TaskOutcome, error) {
			calls++
			return core.TaskOutcome{}, fmt.Errorf("lookup: %w", permanent)
		})

		assert.False(t, out.Success)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, out.Attempts)
		assert.Empty(t, delays)
	}
}

func TestExecutor_UnsuccessfulOutcomeIsRetried(t *testing.T) {
	var delays []time.Duration

	exec := newTestExecutor(&delays)
	calls := 0

	out := exec.Execute(context.Background(), core.NewTask("t", "x", 0.5), func(context.Context) (core.TaskOutcome, error) {
		calls++
		return core.TaskOutcome{Success: calls == 2, Result: "partial"}, nil
	})

	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
}

func TestExecutor_DelayFormula(t *testing.T) {
	exec := New()
	assert.Equal(t, time.Second, exec.Delay(0))
	assert.Equal(t, 2*time.Second, exec.Delay(1))
	assert.Equal(t, 4*time.Second, exec.Delay(2))
}

func TestExecutor_ContextCancelStopsBackoff(t *testing.T) {
	exec := New(func(o *Options) {
		o.Attempts = 5
		o.Unit = time.Hour
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	done := make(chan core.TaskOutcome, 1)

	go func() {
		done <- exec.Execute(ctx, core.NewTask("t", "x", 0.5), func(context.Context) (core.TaskOutcome, error) {
			calls++
			return core.TaskOutcome{}, core.NewExecutionError("x", errors.New("fail"))
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case out := <-done:
		assert.False(t, out.Success)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "executor did not observe cancellation")
	}
}
