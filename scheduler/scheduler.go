// Package scheduler drives a task graph to completion: plan, select the next
// eligible task, execute it with retries, record the outcome, repeat.
//
// The Autonomous mode plans for itself and asks the planner for follow-up
// work when nothing is eligible. The Reactive mode only executes tasks handed
// to Submit and waits for more when idle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/metrics"
	"github.com/hupe1980/agentkernel/planner"
	"github.com/hupe1980/agentkernel/retry"
	"github.com/hupe1980/agentkernel/state"
	"github.com/hupe1980/agentkernel/tool"
)

// Mode selects how the scheduler finds work.
type Mode int

const (
	// Autonomous plans its own work.
	Autonomous Mode = iota
	// Reactive executes submitted tasks only.
	Reactive
)

func (m Mode) String() string {
	if m == Reactive {
		return "reactive"
	}

	return "autonomous"
}

// Phase is the scheduler's position in its state machine.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePlanning  Phase = "planning"
	PhaseSelecting Phase = "selecting"
	PhaseExecuting Phase = "executing"
	PhaseUpdating  Phase = "updating"
	PhaseWaiting   Phase = "waiting"
	PhaseCompleted Phase = "completed"
	PhaseStopped   Phase = "stopped"
)

// Options configure a Scheduler.
type Options struct {
	Mode Mode
	// Planner is required in Autonomous mode.
	Planner planner.Planner
	// Prioritizer, when set, re-scores every planned batch.
	Prioritizer *planner.Prioritizer
	// Analyzer, when set, assesses every successful task; the assessment is
	// stored as analysis_<id> knowledge.
	Analyzer *planner.Analyzer
	Tools    *tool.Registry
	Retry    *retry.Executor

	MaxIterations int     // 0 means unlimited
	MaxCost       float64 // 0 means unlimited
	TaskCost      float64 // cost charged per executed task
	PlanningCost  float64 // cost charged per planning call

	// TickInterval is slept between ticks.
	TickInterval time.Duration

	// QueueDepth and MessagesSent feed the progress record when set.
	QueueDepth   func() int
	MessagesSent func() int

	Metrics *metrics.Metrics
	Logger  logging.Logger
}

// Scheduler runs one task graph owned by a state.Owner.
type Scheduler struct {
	owner   *state.Owner
	opts    Options
	limiter *core.RunLimiter

	phase  atomic.Value // Phase
	active atomic.Value // string

	mu     sync.Mutex
	inbox  []*core.Task
	notify chan struct{}
}

// New creates a scheduler for owner's state.
func New(owner *state.Owner, optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Mode:          Autonomous,
		MaxIterations: 50,
		TaskCost:      1,
		PlanningCost:  1,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry(tool.Builtins()...)
	}

	if opts.Retry == nil {
		opts.Retry = retry.New(func(o *retry.Options) { o.Logger = opts.Logger })
	}

	s := &Scheduler{
		owner:   owner,
		opts:    opts,
		limiter: core.NewRunLimiter(opts.MaxIterations, opts.MaxCost),
		notify:  make(chan struct{}, 1),
	}
	s.phase.Store(PhaseIdle)
	s.active.Store("")

	return s
}

// Phase returns the current state machine phase.
func (s *Scheduler) Phase() Phase { return s.phase.Load().(Phase) }

// Limiter exposes the run ceilings.
func (s *Scheduler) Limiter() *core.RunLimiter { return s.limiter }

// Submit queues tasks for insertion at the start of the next tick. Tasks are
// copied; later changes by the caller have no effect.
func (s *Scheduler) Submit(tasks ...*core.Task) {
	if len(tasks) == 0 {
		return
	}

	s.mu.Lock()
	for _, t := range tasks {
		s.inbox = append(s.inbox, t.Clone())
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Stop raises the stop signal on the owned state.
func (s *Scheduler) Stop() { s.owner.Stop() }

// Run ticks until the graph completes, a ceiling is hit, the stop signal is
// raised or ctx ends. Errors escaping a tick stop the run: the status becomes
// stopped, the error is logged once and returned; completed work is kept.
func (s *Scheduler) Run(ctx context.Context) error {
	s.owner.Start()
	s.opts.Logger.Info("scheduler.started", "mode", s.opts.Mode.String())

	for {
		done, err := s.Step(ctx)
		if err != nil {
			s.setPhase(PhaseStopped)
			s.owner.Finish(core.StatusStopped)
			s.opts.Logger.Error("scheduler.failed", "error", err.Error())

			return err
		}

		if done {
			return nil
		}

		if s.opts.TickInterval > 0 {
			select {
			case <-ctx.Done():
			case <-s.owner.Done():
			case <-time.After(s.opts.TickInterval):
			}
		}
	}
}

// Step performs one tick. It reports done when the run reached a terminal
// status.
func (s *Scheduler) Step(ctx context.Context) (bool, error) {
	if !s.owner.WaitWhilePaused(ctx) || !s.live(ctx) {
		return s.stop("stop signal"), nil
	}

	if err := s.limiter.Check(); err != nil {
		return s.stop(err.Error()), nil
	}

	iteration := s.limiter.Tick()
	_ = s.owner.Update(func(st *state.AgentState) error {
		st.Tick()
		return nil
	})

	defer s.report(ctx, iteration)

	if err := s.drainInbox(); err != nil {
		s.opts.Logger.Warn("scheduler.submit.rejected", "error", err.Error())
	}

	var (
		active, completed, failed, total int
		next                             *core.Task
	)

	s.owner.View(func(st *state.AgentState) {
		active = st.Graph.Len()
		completed = st.Graph.CompletedCount()
		failed = st.Graph.FailedCount()
		total = st.Graph.Total()

		s.setPhase(PhaseSelecting)

		if t, ok := st.Graph.Next(); ok {
			next = t
		}
	})

	if s.opts.Mode == Autonomous && active == 0 && completed > 0 && failed == 0 {
		s.setPhase(PhaseCompleted)
		s.owner.Finish(core.StatusCompleted)
		s.opts.Logger.Info("scheduler.completed", "completed", completed, "iterations", iteration)

		return true, nil
	}

	if next != nil {
		return false, s.execute(ctx, next)
	}

	if s.opts.Mode == Reactive {
		s.wait(ctx)
		return false, nil
	}

	if total == 0 {
		return false, s.plan(ctx, false)
	}

	return s.continueOrStop(ctx)
}

func (s *Scheduler) continueOrStop(ctx context.Context) (bool, error) {
	var hasCompleted bool

	s.owner.View(func(st *state.AgentState) {
		_, hasCompleted = st.Graph.LastCompleted()
	})

	if !hasCompleted {
		var blocked int

		s.owner.View(func(st *state.AgentState) { blocked = len(st.Graph.Blocked()) })
		s.opts.Logger.Warn("scheduler.blocked", "blocked", blocked)

		return s.stop("no eligible task and nothing completed"), nil
	}

	err := s.plan(ctx, true)
	if errors.Is(err, errNoContinuation) {
		return s.stop("planner has no further work"), nil
	}

	return false, err
}

func (s *Scheduler) live(ctx context.Context) bool {
	return ctx.Err() == nil && s.owner.Running()
}

func (s *Scheduler) stop(reason string) bool {
	s.setPhase(PhaseStopped)
	s.owner.Finish(core.StatusStopped)
	s.opts.Logger.Info("scheduler.stopped", "reason", reason)

	return true
}

func (s *Scheduler) setPhase(p Phase) {
	if prev := s.phase.Swap(p); prev != p {
		s.opts.Logger.Debug("scheduler.phase", "from", prev, "to", p)
	}
}

func (s *Scheduler) drainInbox() error {
	s.mu.Lock()
	batch := s.inbox
	s.inbox = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	return s.owner.Update(func(st *state.AgentState) error {
		if err := st.Graph.Add(batch...); err != nil {
			return fmt.Errorf("submitted batch of %d: %w", len(batch), err)
		}

		return nil
	})
}

func (s *Scheduler) wait(ctx context.Context) {
	s.setPhase(PhaseWaiting)

	select {
	case <-s.notify:
	case <-s.owner.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) planContext() (string, planner.PlanContext) {
	var (
		goal string
		pc   planner.PlanContext
	)

	s.owner.View(func(st *state.AgentState) {
		goal = st.Goal
		pc.Offset = st.Graph.Total()
		pc.Tools = s.opts.Tools.Describe()

		for _, t := range st.Graph.Completed() {
			pc.Completed = append(pc.Completed, t.Description)
			pc.KnownIDs = append(pc.KnownIDs, t.ID)
		}

		for _, t := range st.Graph.Pending() {
			pc.KnownIDs = append(pc.KnownIDs, t.ID)
		}

		if last, ok := st.Graph.LastCompleted(); ok {
			pc.LastCompletedID = last.ID

			if o, ok := last.LastOutcome(); ok {
				pc.LastResult = o.Result
			}
		}
	})

	return goal, pc
}

var errNoContinuation = errors.New("empty continuation")

func (s *Scheduler) plan(ctx context.Context, continuation bool) error {
	s.setPhase(PhasePlanning)

	if s.opts.Planner == nil {
		return fmt.Errorf("%w: no planner configured", core.ErrPlanningFailure)
	}

	goal, pc := s.planContext()

	var (
		tasks []*core.Task
		err   error
	)

	if continuation {
		tasks, err = planner.GenerateContinuation(ctx, s.opts.Planner, goal, pc)
	} else {
		tasks, err = s.opts.Planner.GenerateTasks(ctx, goal, pc)
	}

	s.charge(s.opts.PlanningCost)

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		if !errors.Is(err, core.ErrPlanningFailure) {
			err = fmt.Errorf("%w: %w", core.ErrPlanningFailure, err)
		}

		return err
	}

	if len(tasks) == 0 {
		if continuation {
			s.opts.Logger.Info("scheduler.plan.empty", "continuation", true)
			return errNoContinuation
		}

		tasks = planner.DefaultPlan(goal, pc.Offset)
		s.opts.Logger.Info("scheduler.plan.fallback", "tasks", len(tasks))
	}

	if s.opts.Prioritizer != nil {
		s.opts.Prioritizer.Apply(ctx, tasks, goal)
	}

	err = s.owner.Update(func(st *state.AgentState) error {
		return st.Graph.Add(tasks...)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrPlanningFailure, err)
	}

	s.opts.Logger.Info("scheduler.planned", "tasks", len(tasks), "continuation", continuation)

	return nil
}

func (s *Scheduler) execute(ctx context.Context, task *core.Task) error {
	var tc *tool.Context

	err := s.owner.Update(func(st *state.AgentState) error {
		if err := st.Graph.Start(task.ID); err != nil {
			return err
		}

		tc = st.ToolContext(s.opts.Logger)

		return nil
	})
	if err != nil {
		return err
	}

	s.setPhase(PhaseExecuting)
	s.active.Store(task.ID)
	defer s.active.Store("")

	logging.TaskTransition(s.opts.Logger, task.ID, string(core.TaskPending), string(core.TaskRunning), 0)

	outcome := s.opts.Retry.Execute(ctx, task, func(ctx context.Context) (core.TaskOutcome, error) {
		start := time.Now()
		res, err := s.opts.Tools.Execute(ctx, task.Tool, tc, task.Parameters)
		dur := time.Since(start)

		s.opts.Metrics.ToolCall(task.Tool, dur, err)
		logging.ToolCall(s.opts.Logger, task.Tool, dur, err == nil && res.Success, err)

		if err != nil {
			return core.TaskOutcome{TaskID: task.ID}, err
		}

		return res.Outcome(task.ID), nil
	})

	s.setPhase(PhaseUpdating)
	s.charge(s.opts.TaskCost)

	err = s.owner.Update(func(st *state.AgentState) error {
		if outcome.Success {
			st.Knowledge.Set("task_"+task.ID, core.OutcomeValue{Outcome: outcome})
			return st.Graph.Complete(task.ID, outcome)
		}

		return st.Graph.Fail(task.ID, outcome)
	})
	if err != nil {
		return err
	}

	to := core.TaskCompleted
	if !outcome.Success {
		to = core.TaskFailed
	}

	logging.TaskTransition(s.opts.Logger, task.ID, string(core.TaskRunning), string(to), outcome.Attempts)
	s.opts.Metrics.TaskFinished(outcome.Success, outcome.Attempts)

	if outcome.Success && s.opts.Analyzer != nil {
		s.analyze(ctx, task, outcome)
	}

	return nil
}

func (s *Scheduler) analyze(ctx context.Context, task *core.Task, outcome core.TaskOutcome) {
	text, err := s.opts.Analyzer.Analyze(ctx, task, outcome)
	if err != nil {
		s.opts.Logger.Warn("task.analysis.failed", "task_id", task.ID, "error", err.Error())
		return
	}

	_ = s.owner.Update(func(st *state.AgentState) error {
		st.Knowledge.Set("analysis_"+task.ID, core.TextValue{Text: text})
		return nil
	})
}

func (s *Scheduler) charge(c float64) {
	if c <= 0 {
		return
	}

	total := s.limiter.AddCost(c)

	_ = s.owner.Update(func(st *state.AgentState) error {
		st.Meta.Cost = total
		return nil
	})
}

// Progress summarizes the run for logs and metrics.
func (s *Scheduler) Progress() metrics.Progress {
	var p metrics.Progress

	s.owner.View(func(st *state.AgentState) {
		p = metrics.Progress{
			Iteration:  st.Meta.Iteration,
			ActiveTask: s.active.Load().(string),
			Pending:    len(st.Graph.Pending()),
			Completed:  st.Graph.CompletedCount(),
			Failed:     st.Graph.FailedCount(),
			Cost:       st.Meta.Cost,
			Status:     st.Status,
		}
	})

	if s.opts.QueueDepth != nil {
		p.QueueDepth = s.opts.QueueDepth()
	}

	if s.opts.MessagesSent != nil {
		p.MessagesSent = s.opts.MessagesSent()
	}

	return p
}

func (s *Scheduler) report(ctx context.Context, iteration int) {
	p := s.Progress()

	fields := p.Fields()
	fields["mode"] = s.opts.Mode.String()
	fields["tick"] = iteration

	logging.Progress(s.opts.Logger, fields)
	s.opts.Metrics.Observe(p)

	_ = s.owner.Persist(ctx)
}
