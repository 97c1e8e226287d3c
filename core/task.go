package core

import (
	"fmt"
	"slices"
	"time"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	// TaskPending marks a task waiting for its dependencies or a scheduling slot.
	TaskPending TaskStatus = "pending"
	// TaskRunning marks the single task currently in flight.
	TaskRunning TaskStatus = "running"
	// TaskCompleted is terminal: the task succeeded.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed is terminal: the task exhausted its retries or hit a fatal error.
	TaskFailed TaskStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

var validTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending: {TaskRunning},
	TaskRunning: {TaskCompleted, TaskFailed},
}

// ValidateTaskTransition returns ErrInvalidTransition unless from -> to is
// one of pending->running, running->completed or running->failed.
func ValidateTaskTransition(from, to TaskStatus) error {
	if slices.Contains(validTaskTransitions[from], to) {
		return nil
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Task is a unit of schedulable work. Tasks are created in batches by a
// planner and retired into completed or failed lists; they are never
// deleted while another pending task depends on them.
type Task struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	Priority     float64        `json:"priority"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Status       TaskStatus     `json:"status"`
	Tool         string         `json:"tool,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	History      []TaskOutcome  `json:"history,omitempty"`
}

// NewTask creates a pending task. Priority is clamped to [0,1].
func NewTask(id, description string, priority float64, deps ...string) *Task {
	return &Task{
		ID:           id,
		Description:  description,
		Priority:     ClampPriority(priority),
		Dependencies: deps,
		Status:       TaskPending,
		Parameters:   map[string]any{},
		CreatedAt:    time.Now().UTC(),
	}
}

// WithTool sets the tool reference and its parameters (chainable).
func (t *Task) WithTool(name string, params map[string]any) *Task {
	t.Tool = name
	if params != nil {
		t.Parameters = params
	}

	return t
}

// Clone returns a deep copy safe to hand out to readers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	c := *t
	c.Dependencies = slices.Clone(t.Dependencies)

	c.Parameters = make(map[string]any, len(t.Parameters))
	for k, v := range t.Parameters {
		c.Parameters[k] = v
	}

	c.History = make([]TaskOutcome, len(t.History))
	for i, o := range t.History {
		c.History[i] = o.Clone()
	}

	return &c
}

// LastOutcome returns the most recent outcome recorded for the task.
func (t *Task) LastOutcome() (TaskOutcome, bool) {
	if len(t.History) == 0 {
		return TaskOutcome{}, false
	}

	return t.History[len(t.History)-1], true
}

// ClampPriority bounds p to [0,1].
func ClampPriority(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// TaskOutcome is the result of executing a task, owned by the scheduler and
// appended to the task's history.
type TaskOutcome struct {
	TaskID       string    `json:"task_id"`
	Success      bool      `json:"success"`
	Result       string    `json:"result"`
	Error        string    `json:"error,omitempty"`
	SideEffects  []string  `json:"side_effects,omitempty"`
	Observations []string  `json:"observations,omitempty"`
	Attempts     int       `json:"attempts"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Clone returns a copy with independent slices.
func (o TaskOutcome) Clone() TaskOutcome {
	o.SideEffects = slices.Clone(o.SideEffects)
	o.Observations = slices.Clone(o.Observations)

	return o
}
