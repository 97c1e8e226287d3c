package model

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Model = (*MockModel)(nil)
	_ Model = (*Offline)(nil)
	_ Model = (*Retrying)(nil)
)

func fastRetry(o *RetryingOptions) {
	o.Attempts = 3
	o.Unit = time.Millisecond
}

func TestMockModel_Matching(t *testing.T) {
	m := NewMockModel("mock")
	m.AddResponse("exact", "A")
	m.AddContains("[plan]", "B")
	m.Enqueue("C")

	ctx := context.Background()

	r, err := m.Generate(ctx, Request{Prompt: "exact"})
	require.NoError(t, err)
	assert.Equal(t, "A", r.Text)

	r, _ = m.Generate(ctx, Request{Prompt: "please [plan] this"})
	assert.Equal(t, "B", r.Text)

	r, _ = m.Generate(ctx, Request{Prompt: "other"})
	assert.Equal(t, "C", r.Text)

	r, _ = m.Generate(ctx, Request{Prompt: "other"})
	assert.Equal(t, "Mock response to: other", r.Text)

	assert.Len(t, m.Calls(), 4)
}

func TestRetrying_RecoversFromRateLimit(t *testing.T) {
	m := NewMockModel("mock")
	m.EnqueueError(&StatusError{Provider: "mock", StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")})
	m.Enqueue("ok")

	r := NewRetrying(m, fastRetry)
	resp, err := r.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Len(t, m.Calls(), 2)
}

func TestRetrying_NonRetryableStatusIsServiceError(t *testing.T) {
	m := NewMockModel("mock")
	m.EnqueueError(&StatusError{Provider: "mock", StatusCode: http.StatusUnauthorized, Err: errors.New("bad key")})

	r := NewRetrying(m, fastRetry)
	_, err := r.Generate(context.Background(), Request{Prompt: "x"})

	var svc *core.ServiceError
	require.ErrorAs(t, err, &svc)
	assert.Equal(t, http.StatusUnauthorized, svc.StatusCode)
	assert.Equal(t, 1, svc.Attempts)
	assert.Len(t, m.Calls(), 1)
}

func TestRetrying_ExhaustedBudget(t *testing.T) {
	m := NewMockModel("mock")
	for i := 0; i < 3; i++ {
		m.EnqueueError(&StatusError{Provider: "mock", StatusCode: http.StatusBadGateway, Err: errors.New("down")})
	}

	r := NewRetrying(m, fastRetry)
	_, err := r.Generate(context.Background(), Request{Prompt: "x"})

	var svc *core.ServiceError
	require.ErrorAs(t, err, &svc)
	assert.Equal(t, 3, svc.Attempts)
}

func TestRetrying_OfflineFallback(t *testing.T) {
	m := NewMockModel("mock")
	m.EnqueueError(&StatusError{Provider: "mock", StatusCode: http.StatusForbidden, Err: errors.New("denied")})

	r := NewRetrying(m, fastRetry, func(o *RetryingOptions) { o.Fallback = NewOffline() })
	resp, err := r.Generate(context.Background(), Request{Prompt: MarkerPriority + " rate this"})
	require.NoError(t, err)
	assert.Equal(t, "0.7", resp.Text)
}

func TestRetrying_LogsInferenceCalls(t *testing.T) {
	var buf bytes.Buffer

	cfg := logging.DefaultLoggerConfig()
	cfg.Output = &buf

	m := NewMockModel("mock")
	m.Enqueue("ok")
	m.EnqueueError(&StatusError{Provider: "mock", StatusCode: http.StatusUnauthorized, Err: errors.New("bad key")})

	r := NewRetrying(m, fastRetry, func(o *RetryingOptions) { o.Logger = logging.NewLogger(cfg) })

	_, err := r.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)

	_, err = r.Generate(context.Background(), Request{Prompt: "y"})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"inference.call.completed"`)
	assert.Contains(t, out, `"msg":"inference.call.failed"`)
	assert.Contains(t, out, `"model":"mock"`)
}

func TestOffline_Rules(t *testing.T) {
	o := NewOffline()
	resp, err := o.Generate(context.Background(), Request{Prompt: "x " + MarkerPlan})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "|0.9|")

	resp, _ = o.Generate(context.Background(), Request{Prompt: "unmatched"})
	assert.Equal(t, "0.7", resp.Text)

	custom := NewOffline(OfflineRule{Marker: "hi", Response: "hello"})
	resp, _ = custom.Generate(context.Background(), Request{Prompt: "hi there"})
	assert.Equal(t, "hello", resp.Text)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("connection reset")))
	assert.True(t, IsTransient(&StatusError{StatusCode: 503}))
	assert.False(t, IsTransient(&StatusError{StatusCode: 400}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}
