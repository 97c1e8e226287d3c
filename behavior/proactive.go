package behavior

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/util"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/metrics"
	"github.com/hupe1980/agentkernel/model"
	"github.com/hupe1980/agentkernel/state"
	"github.com/hupe1980/agentkernel/tool"
)

// Files written by the proactive loops, relative to the working path.
const (
	ReportFile      = "IMPROVEMENT_REPORT.md"
	TodoFile        = "TODO.md"
	PredictionsFile = "PREDICTIONS.md"
)

// Proactive actions derived from opportunity kinds.
const (
	ActionWriteReport = "write_report"
	ActionCreateTodo  = "create_todo"
)

// GoalStep is the progress credited to a goal per pursuit.
const GoalStep = 0.1

// Submitter accepts tasks for execution, typically a reactive scheduler.
type Submitter interface {
	Submit(tasks ...*core.Task)
}

// ProactiveOptions configure the proactive loop bodies.
type ProactiveOptions struct {
	GoalInterval       time.Duration
	ScanInterval       time.Duration
	PredictionInterval time.Duration
	// Threshold is the minimum opportunity score worth seizing.
	Threshold          float64
	MaxActionsPerCycle int
	// PredictionConfidence is the exclusive lower bound for recorded predictions.
	PredictionConfidence float64
	// Tools writes the predictions file. Defaults to the builtin file tools.
	Tools   *tool.Registry
	Metrics *metrics.Metrics
	Logger  logging.Logger
}

// Prediction is a forecast parsed from the model.
type Prediction struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Proactive holds the opportunity backlog and implements the goal,
// opportunity and prediction loop bodies.
type Proactive struct {
	owner  *state.Owner
	model  model.Model
	submit Submitter
	opts   ProactiveOptions

	mu      sync.Mutex
	backlog []Opportunity
}

// NewProactive creates the proactive bodies. Seized opportunities are passed
// to submit.
func NewProactive(owner *state.Owner, m model.Model, submit Submitter, optFns ...func(o *ProactiveOptions)) *Proactive {
	opts := ProactiveOptions{
		GoalInterval:         5 * time.Second,
		ScanInterval:         30 * time.Second,
		PredictionInterval:   60 * time.Second,
		Threshold:            DefaultThreshold,
		MaxActionsPerCycle:   DefaultMaxActionsPerCycle,
		PredictionConfidence: 0.6,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry(tool.Builtins()...)
	}

	return &Proactive{owner: owner, model: m, submit: submit, opts: opts}
}

// Loops returns the goal pursuit, opportunity scan and prediction loops.
func (p *Proactive) Loops() []Loop {
	return []Loop{
		{Name: "goal_pursuit", Interval: p.opts.GoalInterval, Body: p.PursueGoal},
		{Name: "opportunity_scan", Interval: p.opts.ScanInterval, Body: p.ScanOpportunities},
		{Name: "prediction", Interval: p.opts.PredictionInterval, Body: p.Predict},
	}
}

// Backlog returns a copy of the opportunities awaiting triage.
func (p *Proactive) Backlog() []Opportunity {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Opportunity(nil), p.backlog...)
}

const goalPrompt = `{{.Marker}} You are a proactive engineering agent pursuing a long-running goal.

Goal: {{.Goal}} (priority {{.Priority}}, progress {{.Progress}})
Newly found opportunities: {{.Found}}

Describe the single most useful next step in one sentence.`

// PursueGoal advances the highest priority unfinished goal. The quality goal
// looks for TODO markers, the documentation goal for undocumented files;
// findings join the backlog for the next scan.
func (p *Proactive) PursueGoal(ctx context.Context) error {
	var (
		goal  state.Goal
		found bool
		root  string
	)

	p.owner.View(func(s *state.AgentState) {
		root = s.WorkingPath

		for _, g := range s.TopGoals() {
			if g.Progress < 1 {
				goal, found = g, true
				return
			}
		}
	})

	if !found {
		return nil
	}

	files, err := ScanSources(root)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}

	var opps []Opportunity

	switch goal.ID {
	case state.GoalQuality:
		opps = Todos(files)
	case state.GoalDocs:
		opps = DocGaps(files)
	default:
		opps = append(DocGaps(files), Todos(files)...)
	}

	step := p.generate(ctx, goalPrompt, map[string]any{
		"Marker":   model.MarkerGoal,
		"Goal":     goal.Description,
		"Priority": goal.Priority,
		"Progress": goal.Progress,
		"Found":    len(opps),
	}, 0.5, 200)

	added := p.enqueue(opps)

	p.opts.Logger.Info("behavior.goal.pursued", "goal", goal.ID, "found", len(opps), "added", added)

	return p.owner.Update(func(s *state.AgentState) error {
		for i := range s.Goals {
			if s.Goals[i].ID == goal.ID {
				s.Goals[i].Progress = min(1, s.Goals[i].Progress+GoalStep)
			}
		}

		if step != "" {
			s.Knowledge.Set("goal_"+goal.ID, core.TextValue{Text: step})
		}

		return nil
	})
}

const suggestionPrompt = `{{.Marker}} Suggest one concrete improvement.

Opportunity: {{.Description}}
Kind: {{.Kind}}
File: {{.Path}}

Answer in one sentence.`

// ScanOpportunities discovers opportunities in the working path, seizes the
// best of the backlog and clears it.
func (p *Proactive) ScanOpportunities(ctx context.Context) error {
	var root string

	p.owner.View(func(s *state.AgentState) { root = s.WorkingPath })

	files, err := ScanSources(root)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}

	p.enqueue(append(DocGaps(files), Todos(files)...))

	p.mu.Lock()
	seized := Triage(p.backlog, p.opts.Threshold, p.opts.MaxActionsPerCycle)
	p.backlog = nil
	p.mu.Unlock()

	if len(seized) == 0 {
		return nil
	}

	tasks := make([]*core.Task, 0, len(seized))
	for _, o := range seized {
		suggestion := p.generate(ctx, suggestionPrompt, map[string]any{
			"Marker":      model.MarkerSuggestion,
			"Description": o.Description,
			"Kind":        o.Kind,
			"Path":        o.Path,
		}, 0.4, 300)

		tasks = append(tasks, OpportunityTask(o, suggestion))
	}

	if err := p.owner.Update(func(s *state.AgentState) error {
		for i, o := range seized {
			s.Knowledge.Set("opportunity_"+o.ID, core.RecordValue{Fields: map[string]any{
				"kind":        o.Kind,
				"description": o.Description,
				"path":        o.Path,
				"score":       o.Score(),
				"task":        tasks[i].ID,
			}})
		}

		return nil
	}); err != nil {
		return err
	}

	p.submit.Submit(tasks...)
	p.opts.Metrics.OpportunitiesSeized(len(tasks))
	p.opts.Logger.Info("behavior.opportunities.seized", "count", len(tasks))

	return nil
}

// OpportunityTask turns a seized opportunity into an append_file task:
// documentation gaps extend the improvement report, TODO markers the TODO
// list.
func OpportunityTask(o Opportunity, suggestion string) *core.Task {
	var (
		action  = ActionWriteReport
		file    = ReportFile
		content string
	)

	switch o.Kind {
	case KindTodo:
		action, file = ActionCreateTodo, TodoFile
		content = "- [ ] " + o.Description + "\n"
	default:
		if suggestion == "" {
			suggestion = "n/a"
		}

		content = fmt.Sprintf("## %s\n\n**Opportunity**: %s\n\n**Suggestion**: %s\n\n---\n\n",
			o.DiscoveredAt.UTC().Format(time.RFC3339), o.Description, suggestion)
	}

	return core.NewTask("opp_"+o.ID, action+": "+o.Description, o.Value).
		WithTool(tool.AppendFileName, map[string]any{"filePath": file, "content": content})
}

const predictionPrompt = `{{.Marker}} You are a proactive agent forecasting future needs of a project.

Project: {{.Root}}
Code files: {{.Files}}
Total lines: {{.Lines}}
Tasks pending: {{.Pending}}, completed: {{.Completed}}

List likely needs, one per line, as: prediction|confidence
confidence is a number between 0 and 1.`

// Predict asks the model for forecasts. Predictions above the confidence
// bound are appended to PREDICTIONS.md and stored as knowledge.
func (p *Proactive) Predict(ctx context.Context) error {
	var (
		root               string
		pending, completed int
		tc                 *tool.Context
	)

	p.owner.View(func(s *state.AgentState) {
		root = s.WorkingPath
		pending = len(s.Graph.Pending())
		completed = s.Graph.CompletedCount()
		tc = s.ToolContext(p.opts.Logger)
	})

	files, err := ScanSources(root)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}

	lines := 0
	for _, f := range files {
		lines += f.Lines
	}

	text := p.generate(ctx, predictionPrompt, map[string]any{
		"Marker":    model.MarkerPrediction,
		"Root":      root,
		"Files":     len(files),
		"Lines":     lines,
		"Pending":   pending,
		"Completed": completed,
	}, 0.6, 500)

	var confident []Prediction
	for _, pr := range ParsePredictions(text) {
		if pr.Confidence > p.opts.PredictionConfidence {
			confident = append(confident, pr)
		}
	}

	if len(confident) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, pr := range confident {
		fmt.Fprintf(&sb, "## %s\n\n**Prediction**: %s\n**Confidence**: %.2f\n\n---\n\n",
			time.Now().UTC().Format(time.RFC3339), pr.Description, pr.Confidence)
	}

	if _, err := p.opts.Tools.Execute(ctx, tool.AppendFileName, tc, map[string]any{
		"filePath": PredictionsFile,
		"content":  sb.String(),
	}); err != nil {
		return fmt.Errorf("record predictions: %w", err)
	}

	if err := p.owner.Update(func(s *state.AgentState) error {
		for _, pr := range confident {
			s.Knowledge.Set("prediction_"+core.NewID(), core.RecordValue{Fields: map[string]any{
				"description": pr.Description,
				"confidence":  pr.Confidence,
			}})
		}

		return nil
	}); err != nil {
		return err
	}

	for range confident {
		p.opts.Metrics.PredictionRecorded()
	}

	p.opts.Logger.Info("behavior.predictions.recorded", "count", len(confident))

	return nil
}

// ParsePredictions reads "prediction|confidence" lines. Lines without a
// numeric confidence are skipped; confidences are clamped to [0,1].
func ParsePredictions(text string) []Prediction {
	var out []Prediction

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))

		i := strings.LastIndex(line, "|")
		if i <= 0 {
			continue
		}

		desc := strings.TrimSpace(line[:i])

		conf, err := strconv.ParseFloat(strings.TrimSpace(line[i+1:]), 64)
		if err != nil || desc == "" {
			continue
		}

		out = append(out, Prediction{Description: desc, Confidence: core.ClampPriority(conf)})
	}

	return out
}

// enqueue adds opportunities not yet in the backlog (same kind and path)
// and returns how many were added.
func (p *Proactive) enqueue(opps []Opportunity) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0

	for _, o := range opps {
		dup := false

		for _, b := range p.backlog {
			if b.Kind == o.Kind && b.Path == o.Path {
				dup = true
				break
			}
		}

		if dup {
			continue
		}

		if o.ID == "" {
			o.ID = core.NewID()[:8]
		}

		p.backlog = append(p.backlog, o)
		added++
	}

	return added
}

// generate renders and sends a prompt. Inference failures are logged and
// yield an empty answer so one bad call does not stop the loop.
func (p *Proactive) generate(ctx context.Context, tmpl string, data map[string]any, temperature float64, maxTokens int64) string {
	prompt, err := util.RenderTemplate(tmpl, data)
	if err != nil {
		p.opts.Logger.Error("behavior.prompt.failed", "error", err.Error())
		return ""
	}

	text, err := model.Text(ctx, p.model, prompt, temperature, maxTokens)
	if err != nil {
		p.opts.Logger.Warn("behavior.inference.failed", "error", err.Error())
		return ""
	}

	return text
}
