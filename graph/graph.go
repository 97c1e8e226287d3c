// Package graph holds tasks and their dependency edges and answers the
// scheduling queries (eligibility, next task) over them. It performs no I/O.
//
// Active tasks (pending or running) live in insertion order; terminal tasks
// are retired into completed and failed lists but stay addressable so that
// dependency checks and history lookups keep working.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentkernel/core"
)

var (
	// ErrDuplicateTask is returned when a batch reuses an existing id.
	ErrDuplicateTask = errors.New("duplicate task id")
	// ErrUnknownDependency is returned when a dependency id does not exist.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrSelfDependency is returned when a task depends on itself.
	ErrSelfDependency = errors.New("task depends on itself")
	// ErrTaskNotFound is returned by transitions on unknown ids.
	ErrTaskNotFound = errors.New("task not found")
)

// Graph is the task graph owned by one scheduler. Methods are safe for
// concurrent readers; mutations are expected from the owning loop only.
type Graph struct {
	mu        sync.RWMutex
	tasks     map[string]*core.Task
	active    []string
	completed []string
	failed    []string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		tasks: make(map[string]*core.Task),
	}
}

// Add inserts a batch atomically. Every dependency must name a task already
// in the graph or in the same batch, and the batch must be acyclic. Tasks are
// stored in insertion order, which is also the tie-break order for
// selection. New tasks are forced to pending.
func (g *Graph) Add(tasks ...*core.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(tasks))
	deps := make(map[string][]string, len(tasks))
	batch := make(map[string]bool, len(tasks))

	for _, t := range tasks {
		if t == nil || t.ID == "" {
			return errors.New("task id must not be empty")
		}

		if _, exists := g.tasks[t.ID]; exists || batch[t.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}

		batch[t.ID] = true
		ids = append(ids, t.ID)
		deps[t.ID] = t.Dependencies
	}

	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return fmt.Errorf("%w: %s", ErrSelfDependency, t.ID)
			}

			if _, exists := g.tasks[dep]; !exists && !batch[dep] {
				return fmt.Errorf("%w: %s -> %s", ErrUnknownDependency, t.ID, dep)
			}
		}
	}

	if _, err := topoSort(ids, deps); err != nil {
		return err
	}

	for _, t := range tasks {
		c := t.Clone()
		c.Status = core.TaskPending
		g.tasks[c.ID] = c
		g.active = append(g.active, t.ID)
	}

	return nil
}

// Get returns a copy of the task with id.
func (g *Graph) Get(id string) (*core.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.tasks[id]
	if !ok {
		return nil, false
	}

	return t.Clone(), true
}

// Len returns the number of active (pending or running) tasks.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.active)
}

// IsEmpty reports whether no task is pending or running.
func (g *Graph) IsEmpty() bool { return g.Len() == 0 }

// Total returns the number of tasks ever added.
func (g *Graph) Total() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.tasks)
}

// IsEligible reports whether t is pending and every dependency completed.
// A task whose dependency failed stays pending and is never eligible.
func (g *Graph) IsEligible(t *core.Task) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.isEligible(t)
}

func (g *Graph) isEligible(t *core.Task) bool {
	if t == nil || t.Status != core.TaskPending {
		return false
	}

	for _, dep := range t.Dependencies {
		d, ok := g.tasks[dep]
		if !ok || d.Status != core.TaskCompleted {
			return false
		}
	}

	return true
}

// Eligible returns copies of all eligible tasks in insertion order.
func (g *Graph) Eligible() []*core.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*core.Task

	for _, id := range g.active {
		if t := g.tasks[id]; g.isEligible(t) {
			out = append(out, t.Clone())
		}
	}

	return out
}

// Next selects the next task to run, if any.
func (g *Graph) Next() (*core.Task, bool) {
	t := SelectNext(g.Eligible())
	return t, t != nil
}

// SelectNext returns the task with maximum priority. Ties go to the task that
// appears first, so callers must pass tasks in insertion order.
func SelectNext(eligible []*core.Task) *core.Task {
	var best *core.Task

	for _, t := range eligible {
		if best == nil || t.Priority > best.Priority {
			best = t
		}
	}

	return best
}

// Blocked returns pending tasks that can never run because a dependency failed.
func (g *Graph) Blocked() []*core.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*core.Task

	for _, id := range g.active {
		t := g.tasks[id]
		if t.Status != core.TaskPending {
			continue
		}

		for _, dep := range t.Dependencies {
			if d := g.tasks[dep]; d != nil && d.Status == core.TaskFailed {
				out = append(out, t.Clone())
				break
			}
		}
	}

	return out
}

// Start moves a pending task to running.
func (g *Graph) Start(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	if err := core.ValidateTaskTransition(t.Status, core.TaskRunning); err != nil {
		return fmt.Errorf("start %s: %w", id, err)
	}

	t.Status = core.TaskRunning

	return nil
}

// Complete moves a running task to completed and retires it.
func (g *Graph) Complete(id string, outcome core.TaskOutcome) error {
	return g.finish(id, core.TaskCompleted, outcome)
}

// Fail moves a running task to failed and retires it.
func (g *Graph) Fail(id string, outcome core.TaskOutcome) error {
	return g.finish(id, core.TaskFailed, outcome)
}

func (g *Graph) finish(id string, to core.TaskStatus, outcome core.TaskOutcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	if err := core.ValidateTaskTransition(t.Status, to); err != nil {
		return fmt.Errorf("finish %s: %w", id, err)
	}

	t.Status = to
	t.History = append(t.History, outcome.Clone())

	for i, aid := range g.active {
		if aid == id {
			g.active = append(g.active[:i], g.active[i+1:]...)
			break
		}
	}

	if to == core.TaskCompleted {
		g.completed = append(g.completed, id)
	} else {
		g.failed = append(g.failed, id)
	}

	return nil
}

// Pending returns copies of pending tasks in insertion order.
func (g *Graph) Pending() []*core.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*core.Task

	for _, id := range g.active {
		if t := g.tasks[id]; t.Status == core.TaskPending {
			out = append(out, t.Clone())
		}
	}

	return out
}

// Completed returns copies of completed tasks in completion order.
func (g *Graph) Completed() []*core.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.cloneIDs(g.completed)
}

// Failed returns copies of failed tasks in failure order.
func (g *Graph) Failed() []*core.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.cloneIDs(g.failed)
}

// CompletedCount returns the number of completed tasks.
func (g *Graph) CompletedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.completed)
}

// FailedCount returns the number of failed tasks.
func (g *Graph) FailedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.failed)
}

// LastCompleted returns the most recently completed task.
func (g *Graph) LastCompleted() (*core.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.completed) == 0 {
		return nil, false
	}

	return g.tasks[g.completed[len(g.completed)-1]].Clone(), true
}

func (g *Graph) cloneIDs(ids []string) []*core.Task {
	out := make([]*core.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.tasks[id].Clone())
	}

	return out
}

// Snapshot is a serializable view of the graph.
type Snapshot struct {
	Active    []*core.Task `json:"active"`
	Completed []*core.Task `json:"completed"`
	Failed    []*core.Task `json:"failed"`
}

// Snapshot copies the current graph contents.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return Snapshot{
		Active:    g.cloneIDs(g.active),
		Completed: g.cloneIDs(g.completed),
		Failed:    g.cloneIDs(g.failed),
	}
}

// Restore rebuilds a graph from a snapshot. Running tasks in the snapshot
// are kept as running; callers decide whether to resume them.
func Restore(s Snapshot) *Graph {
	g := New()

	add := func(t *core.Task) {
		g.tasks[t.ID] = t.Clone()
	}

	for _, t := range s.Completed {
		add(t)
		g.completed = append(g.completed, t.ID)
	}

	for _, t := range s.Failed {
		add(t)
		g.failed = append(g.failed, t.ID)
	}

	for _, t := range s.Active {
		add(t)
		g.active = append(g.active, t.ID)
	}

	return g
}
