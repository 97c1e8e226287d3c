// Package retry wraps a unit of work with bounded retry and exponential backoff.
//
// The delay before retry n (counting from 0) is BackoffBase^n * Unit, so the
// defaults (base 2, unit 1s) wait 1s, 2s, 4s. Only errors classified as
// retryable by core.IsRetryable are retried; tool lookup and parameter errors
// fail immediately.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
)

// Operation performs one attempt of a task and reports its outcome.
type Operation func(ctx context.Context) (core.TaskOutcome, error)

// Options configures an Executor.
type Options struct {
	// Attempts is the number of retries after the first execution.
	Attempts int
	// BackoffBase is the exponential growth factor of the delay.
	BackoffBase float64
	// Unit is the delay before the first retry.
	Unit time.Duration
	// Classify decides whether an error may be retried. Defaults to core.IsRetryable.
	Classify func(error) bool
	// OnRetry is called before each backoff wait.
	OnRetry func(attempt int, delay time.Duration, err error)
	Logger  logging.Logger
}

// Executor runs operations with retry and exponential backoff.
type Executor struct {
	opts Options
}

// New creates an Executor. Defaults: 3 retries, base 2, unit 1s.
func New(optFns ...func(o *Options)) *Executor {
	opts := Options{
		Attempts:    3,
		BackoffBase: 2,
		Unit:        time.Second,
		Classify:    core.IsRetryable,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Attempts < 0 {
		opts.Attempts = 0
	}

	if opts.BackoffBase < 1 {
		opts.BackoffBase = 1
	}

	if opts.Classify == nil {
		opts.Classify = core.IsRetryable
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Executor{opts: opts}
}

// Delay returns the wait before retry number attempt (0 based).
func (e *Executor) Delay(attempt int) time.Duration {
	return time.Duration(math.Pow(e.opts.BackoffBase, float64(attempt)) * float64(e.opts.Unit))
}

// MaxAttempts returns the total number of executions the executor may issue.
func (e *Executor) MaxAttempts() int { return e.opts.Attempts + 1 }

func (e *Executor) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.Unit
	b.Multiplier = e.opts.BackoffBase
	b.RandomizationFactor = 0
	b.MaxInterval = e.Delay(e.opts.Attempts)
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.opts.Attempts)), ctx)
}

// Do runs fn until it succeeds, returns a non-retryable error, the retry
// budget is spent or ctx is done. It returns the number of attempts issued.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := 0

	op := func() error {
		attempts++

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !e.opts.Classify(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, delay time.Duration) {
		e.opts.Logger.Warn("retry.backoff", "attempt", attempts, "delay", delay, "error", err.Error())

		if e.opts.OnRetry != nil {
			e.opts.OnRetry(attempts, delay, err)
		}
	}

	err := backoff.RetryNotify(op, e.policy(ctx), notify)

	return attempts, err
}

// Execute runs op for task and returns its final outcome. The outcome is
// successful on the first successful attempt; otherwise it carries the last
// error and Success=false. Attempts is always set.
func (e *Executor) Execute(ctx context.Context, task *core.Task, op Operation) core.TaskOutcome {
	var last core.TaskOutcome

	attempts, err := e.Do(ctx, func(ctx context.Context) error {
		out, err := op(ctx)
		last = out

		if err == nil && !out.Success {
			err = core.NewExecutionError(task.Tool, errors.New(out.Result))
		}

		return err
	})

	last.TaskID = task.ID
	last.Attempts = attempts
	last.FinishedAt = time.Now().UTC()

	if err != nil {
		last.Success = false
		last.Error = err.Error()

		e.opts.Logger.Error("retry.exhausted", "task_id", task.ID, "attempts", attempts, "error", err.Error())

		return last
	}

	last.Success = true
	last.Error = ""

	return last
}
