// Package metrics exposes kernel progress as Prometheus collectors and as a
// structured Progress record for logs. All methods are safe on a nil
// *Metrics, so components can take metrics as an optional dependency.
package metrics

import (
	"net/http"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Progress is the per-tick summary logged by the scheduler.
type Progress struct {
	Iteration    int            `json:"iteration"`
	ActiveTask   string         `json:"active_task,omitempty"`
	QueueDepth   int            `json:"queue_depth"`
	MessagesSent int            `json:"messages_sent"`
	Pending      int            `json:"pending"`
	Completed    int            `json:"completed"`
	Failed       int            `json:"failed"`
	Cost         float64        `json:"cost"`
	Status       core.RunStatus `json:"status"`
}

// Fields flattens p for structured logging.
func (p Progress) Fields() map[string]any {
	return map[string]any{
		"iteration":     p.Iteration,
		"active_task":   p.ActiveTask,
		"queue_depth":   p.QueueDepth,
		"messages_sent": p.MessagesSent,
		"pending":       p.Pending,
		"completed":     p.Completed,
		"failed":        p.Failed,
		"cost":          p.Cost,
		"status":        string(p.Status),
	}
}

// Metrics owns a private registry so several kernels can coexist in one
// process (and in tests).
type Metrics struct {
	registry *prometheus.Registry

	iteration    prometheus.Gauge
	tasks        *prometheus.GaugeVec
	outcomes     *prometheus.CounterVec
	attempts     prometheus.Histogram
	queueDepth   prometheus.Gauge
	cost         prometheus.Gauge
	toolDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec
	messages     *prometheus.CounterVec
	seized       prometheus.Counter
	predictions  prometheus.Counter
}

// New creates and registers all collectors under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "agentkernel"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		iteration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "iteration",
			Help: "Current scheduler iteration.",
		}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "tasks",
			Help: "Number of tasks by state.",
		}, []string{"state"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "task_outcomes_total",
			Help: "Finished tasks by result.",
		}, []string{"result"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_attempts",
			Help:    "Executions issued per finished task.",
			Buckets: []float64{1, 2, 3, 4, 6, 8},
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "event_queue_depth",
			Help: "Events waiting in the reactive queue.",
		}),
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cost",
			Help: "Accumulated run cost.",
		}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tool_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "Reactive events handled by type and action.",
		}, []string{"type", "action"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_total",
			Help: "Bus messages sent by type.",
		}, []string{"type"}),
		seized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "opportunities_seized_total",
			Help: "Opportunities turned into tasks.",
		}),
		predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "predictions_recorded_total",
			Help: "Predictions above the confidence threshold.",
		}),
	}

	m.registry.MustRegister(
		m.iteration, m.tasks, m.outcomes, m.attempts, m.queueDepth, m.cost,
		m.toolDuration, m.events, m.messages, m.seized, m.predictions,
	)

	return m
}

// Registry returns the registry holding the kernel collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe publishes a progress snapshot.
func (m *Metrics) Observe(p Progress) {
	if m == nil {
		return
	}

	m.iteration.Set(float64(p.Iteration))
	m.tasks.WithLabelValues("pending").Set(float64(p.Pending))
	m.tasks.WithLabelValues("completed").Set(float64(p.Completed))
	m.tasks.WithLabelValues("failed").Set(float64(p.Failed))
	m.queueDepth.Set(float64(p.QueueDepth))
	m.cost.Set(p.Cost)
}

// TaskFinished counts a finished task.
func (m *Metrics) TaskFinished(success bool, attempts int) {
	if m == nil {
		return
	}

	m.outcomes.WithLabelValues(result(success)).Inc()
	m.attempts.Observe(float64(attempts))
}

// ToolCall records one tool execution.
func (m *Metrics) ToolCall(tool string, d time.Duration, err error) {
	if m == nil {
		return
	}

	m.toolDuration.WithLabelValues(tool, result(err == nil)).Observe(d.Seconds())
}

// QueueDepth records the reactive queue length.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}

	m.queueDepth.Set(float64(n))
}

// EventHandled counts a reaction.
func (m *Metrics) EventHandled(eventType, action string) {
	if m == nil {
		return
	}

	m.events.WithLabelValues(eventType, action).Inc()
}

// MessageSent counts a bus message.
func (m *Metrics) MessageSent(typ string) {
	if m == nil {
		return
	}

	m.messages.WithLabelValues(typ).Inc()
}

// OpportunitiesSeized counts opportunities turned into tasks.
func (m *Metrics) OpportunitiesSeized(n int) {
	if m == nil || n <= 0 {
		return
	}

	m.seized.Add(float64(n))
}

// PredictionRecorded counts a recorded prediction.
func (m *Metrics) PredictionRecorded() {
	if m == nil {
		return
	}

	m.predictions.Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}

	return "failure"
}
