package testutil

import (
	"github.com/hupe1980/agentkernel/core"
)

// TaskBuilder provides a fluent helper for constructing tasks in tests.
// Example:
//
//	task := NewTaskBuilder("B").Priority(0.5).DependsOn("A").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type TaskBuilder struct {
	id          string
	description string
	priority    float64
	deps        []string
	tool        string
	params      map[string]any
}

// NewTaskBuilder creates a builder with priority 0.5 and description equal to id.
func NewTaskBuilder(id string) *TaskBuilder {
	return &TaskBuilder{id: id, description: id, priority: 0.5, params: map[string]any{}}
}

// Description sets the human readable description (chainable).
func (b *TaskBuilder) Description(d string) *TaskBuilder { b.description = d; return b }

// Priority sets the priority (chainable).
func (b *TaskBuilder) Priority(p float64) *TaskBuilder { b.priority = p; return b }

// DependsOn appends dependency ids (chainable).
func (b *TaskBuilder) DependsOn(ids ...string) *TaskBuilder {
	b.deps = append(b.deps, ids...)
	return b
}

// Tool sets the tool reference (chainable).
func (b *TaskBuilder) Tool(name string) *TaskBuilder { b.tool = name; return b }

// Param sets a single tool parameter (chainable).
func (b *TaskBuilder) Param(key string, val any) *TaskBuilder {
	b.params[key] = val
	return b
}

// Build finalizes and returns the task.
func (b *TaskBuilder) Build() *core.Task {
	t := core.NewTask(b.id, b.description, b.priority, b.deps...)
	return t.WithTool(b.tool, b.params)
}

// Tasks builds several tasks at once.
func Tasks(builders ...*TaskBuilder) []*core.Task {
	out := make([]*core.Task, 0, len(builders))
	for _, b := range builders {
		out = append(out, b.Build())
	}

	return out
}
