package planner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/util"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/model"
)

const priorityPrompt = `{{.Marker}} Rate how important this task is for the goal.

Goal: {{.Goal}}
Task: {{.Task}}

Answer with a single number between 0 and 1 (0.9-1.0 critical, 0.5-0.8 important, 0-0.4 optional). Return only the number.`

// Prioritizer re-scores planned tasks against the goal.
type Prioritizer struct {
	model  model.Model
	logger logging.Logger
}

// NewPrioritizer creates a Prioritizer backed by m.
func NewPrioritizer(m model.Model, logger logging.Logger) *Prioritizer {
	return &Prioritizer{model: m, logger: logging.OrNoOp(logger)}
}

// Evaluate returns the model's priority for t, clamped to [0,1]. The task's
// current priority is kept when the call fails or the answer is not a number.
func (p *Prioritizer) Evaluate(ctx context.Context, t *core.Task, goal string) float64 {
	prompt, err := util.RenderTemplate(priorityPrompt, map[string]any{
		"Marker": model.MarkerPriority,
		"Goal":   goal,
		"Task":   t.Description,
	})
	if err != nil {
		return t.Priority
	}

	text, err := model.Text(ctx, p.model, prompt, 0.2, 10)
	if err != nil {
		p.logger.Warn("planner.priority.failed", "task", t.ID, "error", err.Error())
		return t.Priority
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return t.Priority
	}

	v, err := strconv.ParseFloat(strings.TrimRight(fields[0], ".,;"), 64)
	if err != nil {
		return t.Priority
	}

	return core.ClampPriority(v)
}

// Apply re-scores every task in place.
func (p *Prioritizer) Apply(ctx context.Context, tasks []*core.Task, goal string) {
	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}

		t.Priority = p.Evaluate(ctx, t, goal)
	}
}

const analysisPrompt = `{{.Marker}} Analyze the result of this task.

Task: {{.Task}}
Success: {{.Success}}
Result: {{truncate 1000 .Result}}
{{if .Error}}Error: {{.Error}}
{{end}}
Briefly judge whether the task achieved its purpose and what should happen next (at most 100 words).`

// Analyzer produces a short assessment of a finished task.
type Analyzer struct {
	model model.Model
}

// NewAnalyzer creates an Analyzer backed by m.
func NewAnalyzer(m model.Model) *Analyzer {
	return &Analyzer{model: m}
}

// Analyze returns the model's assessment of outcome.
func (a *Analyzer) Analyze(ctx context.Context, t *core.Task, outcome core.TaskOutcome) (string, error) {
	prompt, err := util.RenderTemplate(analysisPrompt, map[string]any{
		"Marker":  model.MarkerAnalysis,
		"Task":    t.Description,
		"Success": outcome.Success,
		"Result":  outcome.Result,
		"Error":   outcome.Error,
	})
	if err != nil {
		return "", fmt.Errorf("render analysis prompt: %w", err)
	}

	return model.Text(ctx, a.model, prompt, 0.3, 200)
}
