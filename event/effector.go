package event

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/util"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/retry"
	"github.com/hupe1980/agentkernel/state"
	"github.com/hupe1980/agentkernel/tool"
)

// ToolEffectorOptions configure a ToolEffector.
type ToolEffectorOptions struct {
	Tools      *tool.Registry
	Retry      *retry.Executor
	Suppressor *Suppressor
	// Owner receives recorded events as knowledge. Optional.
	Owner *state.Owner
	// WorkingPath is the root mutations are written under, matching the
	// sensor root. When empty the owner's working path is used.
	WorkingPath string
	Logger      logging.Logger
}

// ToolEffector applies reactions through the tool registry.
type ToolEffector struct {
	opts ToolEffectorOptions
}

// NewToolEffector creates an effector. Missing tools and retry settings get
// the kernel defaults.
func NewToolEffector(optFns ...func(o *ToolEffectorOptions)) *ToolEffector {
	opts := ToolEffectorOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry(tool.Builtins()...)
	}

	if opts.Retry == nil {
		opts.Retry = retry.New()
	}

	return &ToolEffector{opts: opts}
}

// Apply implements Effector.
func (e *ToolEffector) Apply(ctx context.Context, ev core.ReactiveEvent, a Action) error {
	switch a.Kind {
	case ActionIgnore:
		return nil
	case ActionRecord:
		e.record(ev, a)
		return nil
	case ActionMutate:
		return e.mutate(ctx, ev, a)
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
}

func (e *ToolEffector) record(ev core.ReactiveEvent, a Action) {
	if e.opts.Owner == nil {
		return
	}

	fields := map[string]any{
		"type":      string(ev.Type),
		"source":    ev.Source,
		"path":      ev.PayloadString("path"),
		"reasoning": a.Reasoning,
	}

	if msg := util.StringParam(a.Params, "message"); msg != "" {
		fields["message"] = msg
	}

	_ = e.opts.Owner.Update(func(s *state.AgentState) error {
		s.Knowledge.Set("event_"+ev.ID, core.RecordValue{Fields: fields})
		return nil
	})
}

func (e *ToolEffector) mutate(ctx context.Context, ev core.ReactiveEvent, a Action) error {
	path := util.StringParam(a.Params, "path")
	content := util.StringParam(a.Params, "content")

	if path == "" || content == "" {
		return fmt.Errorf("%w: mutate needs path and content", core.ErrInvalidParameters)
	}

	tc := e.toolContext()

	// mark first: the sensor may see the write before the tool returns
	e.opts.Suppressor.markIfSet(path)

	task := core.NewTask("react_"+ev.ID, "React to "+string(ev.Type)+" "+ev.PayloadString("path"), ev.Priority).
		WithTool(tool.CreateFileName, map[string]any{"filePath": path, "content": content})

	outcome := e.opts.Retry.Execute(ctx, task, func(ctx context.Context) (core.TaskOutcome, error) {
		res, err := e.opts.Tools.Execute(ctx, task.Tool, tc, task.Parameters)
		if err != nil {
			return core.TaskOutcome{}, err
		}

		return res.Outcome(task.ID), nil
	})

	if !outcome.Success {
		return fmt.Errorf("mutate %s: %s", path, outcome.Error)
	}

	e.opts.Logger.Info("event.mutated", "path", path, "attempts", outcome.Attempts)

	return nil
}

func (e *ToolEffector) toolContext() *tool.Context {
	var tc *tool.Context

	if e.opts.Owner != nil {
		e.opts.Owner.View(func(s *state.AgentState) { tc = s.ToolContext(e.opts.Logger) })
	} else {
		tc = &tool.Context{Logger: e.opts.Logger}
	}

	if e.opts.WorkingPath != "" {
		tc.WorkingPath = e.opts.WorkingPath
	}

	return tc
}
