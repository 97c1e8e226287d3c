package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New("test")
	m.Observe(Progress{Iteration: 4, Pending: 2, Completed: 3, Failed: 1, QueueDepth: 5, Cost: 1.5, Status: core.StatusRunning})

	assert.Equal(t, 4.0, testutil.ToFloat64(m.iteration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasks.WithLabelValues("pending")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tasks.WithLabelValues("completed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.cost))
}

func TestCounters(t *testing.T) {
	m := New("test")
	m.TaskFinished(true, 3)
	m.TaskFinished(false, 4)
	m.TaskFinished(true, 1)
	m.ToolCall("write_code", time.Millisecond, nil)
	m.ToolCall("write_code", time.Millisecond, errors.New("x"))
	m.EventHandled("changed", "record")
	m.MessageSent("analyze_request")
	m.OpportunitiesSeized(2)
	m.PredictionRecorded()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("changed", "record")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("analyze_request")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.seized))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictions))
	assert.Equal(t, 2, testutil.CollectAndCount(m.toolDuration))
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Observe(Progress{})
		m.TaskFinished(true, 1)
		m.ToolCall("x", 0, nil)
		m.EventHandled("a", "b")
		m.MessageSent("x")
		m.QueueDepth(1)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New("test")
	m.MessageSent("ping")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_messages_total{type="ping"} 1`)
}

func TestProgressFields(t *testing.T) {
	f := Progress{Iteration: 2, Status: core.StatusCompleted}.Fields()
	assert.Equal(t, 2, f["iteration"])
	assert.Equal(t, "completed", f["status"])
}
