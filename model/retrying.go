package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
)

// StatusError is returned by provider adapters for HTTP-level failures.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsTransient reports whether a provider error is worth retrying: rate
// limits, server errors and transport failures are; other HTTP statuses and
// context cancellation are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= http.StatusInternalServerError
	}

	return true
}

// RetryingOptions configures the Retrying wrapper.
type RetryingOptions struct {
	// Attempts is the total number of calls per Generate (default 3).
	Attempts int
	// Unit is the first backoff delay; later delays double.
	Unit time.Duration
	// Fallback, when set, answers requests the inner model could not serve.
	// Configure it only for explicit offline operation.
	Fallback Model
	Logger   logging.Logger
}

// Retrying gives an inner model its own retry budget, separate from the task
// retry budget, and converts exhausted or non-retryable failures into
// *core.ServiceError.
type Retrying struct {
	inner Model
	opts  RetryingOptions
}

// NewRetrying wraps inner.
func NewRetrying(inner Model, optFns ...func(o *RetryingOptions)) *Retrying {
	opts := RetryingOptions{
		Attempts: 3,
		Unit:     time.Second,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Retrying{inner: inner, opts: opts}
}

// Generate implements Model.
func (r *Retrying) Generate(ctx context.Context, req Request) (Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.Unit
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	var (
		resp     Response
		attempts int
		start    = time.Now()
	)

	op := func() error {
		attempts++

		var err error

		resp, err = r.inner.Generate(ctx, req)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, d time.Duration) {
		r.opts.Logger.Warn("inference.retry", "provider", r.inner.Info().Provider, "attempt", attempts, "delay", d, "error", err.Error())
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.Attempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, notify)

	name := r.inner.Info().Name
	if err == nil {
		tokens := 0
		if resp.Usage != nil {
			tokens = resp.Usage.TotalTokens
		}

		logging.InferenceCall(r.opts.Logger, name, tokens, time.Since(start), true, nil)

		return resp, nil
	}

	logging.InferenceCall(r.opts.Logger, name, 0, time.Since(start), false, err)

	svcErr := &core.ServiceError{Provider: r.inner.Info().Provider, Attempts: attempts, Err: err}

	var se *StatusError
	if errors.As(err, &se) {
		svcErr.StatusCode = se.StatusCode
	}

	if r.opts.Fallback != nil && ctx.Err() == nil {
		r.opts.Logger.Warn("inference.fallback", "provider", svcErr.Provider, "error", svcErr.Error())
		return r.opts.Fallback.Generate(ctx, req)
	}

	return Response{}, svcErr
}

// Info implements Model, reporting the wrapped model.
func (r *Retrying) Info() Info { return r.inner.Info() }
