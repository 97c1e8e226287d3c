package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/util"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/model"
	"github.com/hupe1980/agentkernel/tool"
)

// PlanContext is what the planner knows about the run so far.
type PlanContext struct {
	// Offset is the number of tasks already created; new ids start after it.
	Offset int
	// Completed lists descriptions of finished tasks, oldest first.
	Completed []string
	// KnownIDs are ids of tasks already in the graph that new tasks may depend on.
	KnownIDs []string
	// LastCompletedID is the most recently completed task, if any.
	LastCompletedID string
	// LastResult is the result text of LastCompletedID.
	LastResult string
	// Tools describes the available tools, one per line.
	Tools string
}

// Planner produces a batch of tasks for a goal.
type Planner interface {
	GenerateTasks(ctx context.Context, goal string, pc PlanContext) ([]*core.Task, error)
}

// Func adapts a function to the Planner interface.
type Func func(ctx context.Context, goal string, pc PlanContext) ([]*core.Task, error)

// GenerateTasks implements Planner.
func (f Func) GenerateTasks(ctx context.Context, goal string, pc PlanContext) ([]*core.Task, error) {
	return f(ctx, goal, pc)
}

// DefaultPlan is the fallback used when planning yields nothing: analyze the
// goal, then draw up a plan that depends on the analysis.
func DefaultPlan(goal string, offset int) []*core.Task {
	first := TaskID(offset + 1)

	analyze := core.NewTask(first, "Analyze goal: "+goal, 0.9).
		WithTool(tool.CreateFileName, map[string]any{
			"filePath": "docs/analysis.md",
			"content":  fmt.Sprintf("# Analysis\n\nGoal: %s\n", goal),
		})

	plan := core.NewTask(TaskID(offset+2), "Draft execution plan", 0.8, first).
		WithTool(tool.CreateFileName, map[string]any{
			"filePath": "docs/plan.md",
			"content":  fmt.Sprintf("# Plan\n\nSteps towards: %s\n", goal),
		})

	return []*core.Task{analyze, plan}
}

// GenerateContinuation asks p for follow-up work and chains every new task to
// the last completed one, so continuation batches run strictly after the work
// that prompted them.
func GenerateContinuation(ctx context.Context, p Planner, goal string, pc PlanContext) ([]*core.Task, error) {
	if pc.LastCompletedID == "" {
		return nil, nil
	}

	tasks, err := p.GenerateTasks(ctx, goal, pc)
	if err != nil {
		return nil, err
	}

	for _, t := range tasks {
		if !contains(t.Dependencies, pc.LastCompletedID) {
			t.Dependencies = append(t.Dependencies, pc.LastCompletedID)
		}
	}

	return tasks, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}

	return false
}

const planPrompt = `{{.Marker}} You are a project planning agent. Break the goal into concrete tasks.

Goal: {{.Goal}}
{{if .Completed}}
Completed tasks:
{{range .Completed}}- {{.}}
{{end}}
Last result: {{truncate 500 .LastResult}}
{{end}}
Available tools:
{{.Tools}}
Return 3-8 tasks, one per line, formatted as
description|priority (0-1)|dependency ids (comma separated, may be empty)|tool name|relative path

Example lines:
Example: Create project directory|0.9||create_dir|src
Example: Write main module|0.8|task_1|write_code|src/main.go
`

// LLMOptions configure an LLMPlanner.
type LLMOptions struct {
	Temperature float64
	MaxTokens   int64
	Logger      logging.Logger
}

// LLMPlanner asks an inference service for the task list.
type LLMPlanner struct {
	model model.Model
	opts  LLMOptions
}

// NewLLMPlanner creates a planner backed by m.
func NewLLMPlanner(m model.Model, optFns ...func(o *LLMOptions)) *LLMPlanner {
	opts := LLMOptions{Temperature: 0.5, MaxTokens: 1024}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &LLMPlanner{model: m, opts: opts}
}

// GenerateTasks implements Planner. An empty result is not an error; the
// scheduler falls back to DefaultPlan.
func (p *LLMPlanner) GenerateTasks(ctx context.Context, goal string, pc PlanContext) ([]*core.Task, error) {
	prompt, err := util.RenderTemplate(planPrompt, map[string]any{
		"Marker":     model.MarkerPlan,
		"Goal":       goal,
		"Completed":  pc.Completed,
		"LastResult": pc.LastResult,
		"Tools":      pc.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("render plan prompt: %w", err)
	}

	text, err := model.Text(ctx, p.model, prompt, p.opts.Temperature, p.opts.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPlanningFailure, err)
	}

	tasks := ParseTasks(text, pc.Offset, pc.KnownIDs...)
	p.opts.Logger.Debug("planner.generated", "goal", goal, "tasks", len(tasks), "lines", strings.Count(text, "\n")+1)

	return tasks, nil
}
