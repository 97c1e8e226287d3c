// Package agentkernel provides a high-level façade over the kernel
// components (task scheduler, event reactor, behavior loops and message
// bus) enabling rapid construction of autonomous, reactive, proactive and
// team agents. Most applications interact with this package by:
//  1. Creating a Kernel via New() or NewFromConfig()
//  2. Calling one of Run, React, Proactive or Team
//  3. Inspecting the returned snapshot or reports
//
// All defaults are safe for local development and testing: the offline
// model, in-memory stores and the builtin file tools. Production deployments
// typically supply a provider model, Redis-backed stores and a structured
// logger.
package agentkernel

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/agentkernel/behavior"
	"github.com/hupe1980/agentkernel/bus"
	"github.com/hupe1980/agentkernel/config"
	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/event"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/metrics"
	"github.com/hupe1980/agentkernel/model"
	"github.com/hupe1980/agentkernel/model/anthropic"
	"github.com/hupe1980/agentkernel/model/openai"
	"github.com/hupe1980/agentkernel/planner"
	"github.com/hupe1980/agentkernel/retry"
	"github.com/hupe1980/agentkernel/scheduler"
	"github.com/hupe1980/agentkernel/state"
	"github.com/hupe1980/agentkernel/tool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Options configures the Kernel instance.
type Options struct {
	// Model serves every inference call (defaults to the offline generator).
	Model model.Model
	// Planner overrides the model-backed planner in Run.
	Planner planner.Planner
	// Tools (defaults to the builtin file tools)
	Tools *tool.Registry
	// Store receives state snapshots after each run. Nil disables persistence.
	Store state.SnapshotStore
	// Audit records bus traffic in Team (defaults to an in-memory log).
	Audit bus.AuditLog
	// Metrics (optional) collects Prometheus series for every component.
	Metrics *metrics.Metrics
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	Agent     config.AgentConfig
	Reactive  config.ReactiveConfig
	Proactive config.ProactiveConfig
	Team      config.TeamConfig
}

// Kernel is the high-level façade aggregating the kernel components.
type Kernel struct {
	opts   Options
	closer func() error
}

// New creates a new Kernel with optional overrides. Settings not overridden
// take the values of config.Default().
func New(optFns ...func(o *Options)) *Kernel {
	def := config.Default()

	opts := Options{
		Agent:     def.Agent,
		Reactive:  def.Reactive,
		Proactive: def.Proactive,
		Team:      def.Team,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if opts.Model == nil {
		opts.Model = model.NewOffline()
	}

	if opts.Tools == nil {
		opts.Tools = tool.NewRegistry(tool.Builtins()...)
	}

	return &Kernel{opts: opts}
}

// NewFromConfig builds a Kernel from a validated configuration: the model
// provider, Redis-backed stores when redis.addr is set, and metrics.
// optFns are applied last.
func NewFromConfig(cfg *config.Config, logger logging.Logger, optFns ...func(o *Options)) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger = logging.OrNoOp(logger)

	m, err := NewModel(cfg.Model, logger)
	if err != nil {
		return nil, err
	}

	var (
		store  state.SnapshotStore
		audit  bus.AuditLog
		closer func() error
	)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		rs, err := state.NewRedisStore(rdb, cfg.Redis.Namespace, cfg.Redis.TTL)
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}

		ra, err := bus.NewRedisAuditLog(rdb, cfg.Redis.Namespace, cfg.Redis.TTL)
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}

		store, audit, closer = rs, ra, rdb.Close
	}

	fromConfig := func(o *Options) {
		o.Model = m
		o.Store = store
		o.Audit = audit
		o.Metrics = metrics.New(cfg.Metrics.Namespace)
		o.Logger = logger
		o.Agent = cfg.Agent
		o.Reactive = cfg.Reactive
		o.Proactive = cfg.Proactive
		o.Team = cfg.Team
	}

	k := New(append([]func(o *Options){fromConfig}, optFns...)...)
	k.closer = closer

	return k, nil
}

// NewModel selects the inference service named by cfg.Provider. Provider
// models are wrapped in model.Retrying with their own retry budget.
func NewModel(cfg config.ModelConfig, logger logging.Logger) (model.Model, error) {
	var inner model.Model

	switch cfg.Provider {
	case config.ProviderOffline:
		return model.NewOffline(), nil
	case config.ProviderAnthropic:
		inner = anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}

			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		})
	case config.ProviderOpenAI:
		inner = openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}

			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}

	return model.NewRetrying(inner, func(o *model.RetryingOptions) {
		if cfg.RetryAttempts > 0 {
			o.Attempts = cfg.RetryAttempts
		}

		if cfg.RetryUnit > 0 {
			o.Unit = cfg.RetryUnit
		}

		if cfg.OfflineFallback {
			o.Fallback = model.NewOffline()
		}

		o.Logger = logger
	}), nil
}

// Options returns a copy of the effective options.
func (k *Kernel) Options() Options { return k.opts }

// Metrics returns the configured collectors, possibly nil.
func (k *Kernel) Metrics() *metrics.Metrics { return k.opts.Metrics }

// Close releases connections opened by NewFromConfig.
func (k *Kernel) Close() error {
	if k.closer == nil {
		return nil
	}

	return k.closer()
}

// NewOwner creates the state owner for one run of goal.
func (k *Kernel) NewOwner(goal string) *state.Owner {
	st := state.New(k.opts.Agent.ID, goal)
	st.WorkingPath = k.opts.Agent.WorkingPath
	st.Goals = state.DefaultGoals()

	log := k.opts.Logger
	if kl, ok := log.(*logging.KernelLogger); ok {
		log = kl.WithComponent("state").WithRun(st.ID)
	}

	return state.NewOwner(st, func(o *state.OwnerOptions) {
		o.Store = k.opts.Store
		o.Logger = log
	})
}

func (k *Kernel) retry() *retry.Executor {
	return retry.New(func(o *retry.Options) {
		o.Attempts = k.opts.Agent.RetryAttempts
		o.BackoffBase = k.opts.Agent.BackoffBase

		if k.opts.Agent.BackoffUnit > 0 {
			o.Unit = k.opts.Agent.BackoffUnit
		}

		o.Logger = k.opts.Logger
	})
}

func (k *Kernel) logger(component string) logging.Logger {
	if kl, ok := k.opts.Logger.(*logging.KernelLogger); ok {
		return kl.WithComponent(component)
	}

	return k.opts.Logger
}

// runLogger tags component logs with the state id of the run owner serves.
func (k *Kernel) runLogger(owner *state.Owner, component string) logging.Logger {
	kl, ok := k.opts.Logger.(*logging.KernelLogger)
	if !ok {
		return k.opts.Logger
	}

	var id string

	owner.View(func(st *state.AgentState) { id = st.ID })

	return kl.WithComponent(component).WithRun(id)
}

// Run plans and executes goal autonomously until the graph completes, a
// ceiling is reached or ctx ends. The final snapshot is returned even when
// the run failed.
func (k *Kernel) Run(ctx context.Context, goal string) (state.Snapshot, error) {
	if goal == "" {
		return state.Snapshot{}, errors.New("goal is required")
	}

	owner := k.NewOwner(goal)
	log := k.runLogger(owner, "scheduler")

	p := k.opts.Planner
	if p == nil {
		p = planner.NewLLMPlanner(k.opts.Model, func(o *planner.LLMOptions) { o.Logger = log })
	}

	s := scheduler.New(owner, func(o *scheduler.Options) {
		o.Mode = scheduler.Autonomous
		o.Planner = p
		o.Prioritizer = planner.NewPrioritizer(k.opts.Model, log)
		o.Analyzer = planner.NewAnalyzer(k.opts.Model)
		o.Tools = k.opts.Tools
		o.Retry = k.retry()
		o.MaxIterations = k.opts.Agent.MaxIterations
		o.MaxCost = k.opts.Agent.MaxCost
		o.TickInterval = k.opts.Agent.TickInterval
		o.Metrics = k.opts.Metrics
		o.Logger = log
	})

	runErr := s.Run(ctx)

	return owner.Snapshot(), errors.Join(runErr, k.persist(owner))
}

// React watches the reactive watch path and reacts to file events until ctx
// ends. Reactions are decided by the model and applied through the tools;
// files the kernel writes itself do not trigger new events.
func (k *Kernel) React(ctx context.Context) (state.Snapshot, []event.Reaction, error) {
	watchPath := k.opts.Reactive.WatchPath
	if watchPath == "" {
		watchPath = k.opts.Agent.WorkingPath
	}

	owner := k.NewOwner(k.opts.Agent.Goal)
	_ = owner.Update(func(st *state.AgentState) error {
		st.WorkingPath = watchPath
		return nil
	})

	log := k.runLogger(owner, "reactor")

	suppressor := event.NewSuppressor(k.opts.Reactive.SuppressionWindow)
	queue := event.NewQueue()

	effector := event.NewToolEffector(func(o *event.ToolEffectorOptions) {
		o.Tools = k.opts.Tools
		o.Retry = k.retry()
		o.Suppressor = suppressor
		o.Owner = owner
		o.WorkingPath = watchPath
		o.Logger = log
	})

	reactor := event.NewReactor(queue, event.NewLLMDecider(k.opts.Model, k.opts.Agent.Goal), effector,
		func(o *event.ReactorOptions) {
			o.LogLimit = k.opts.Reactive.LogLimit
			o.Done = owner.Done()
			o.Metrics = k.opts.Metrics
			o.Logger = log
		})

	sensor := event.NewFileSensor("file_sensor", watchPath, func(o *event.FileSensorOptions) {
		if len(k.opts.Reactive.Ignore) > 0 {
			o.Ignore = k.opts.Reactive.Ignore
		}

		if k.opts.Reactive.Debounce > 0 {
			o.Debounce = k.opts.Reactive.Debounce
		}

		if k.opts.Reactive.ContentLimit > 0 {
			o.ContentLimit = k.opts.Reactive.ContentLimit
		}

		o.Suppressor = suppressor
		o.Logger = k.runLogger(owner, "sensor")
	})

	owner.Start()

	if err := sensor.Start(ctx, reactor.Handle); err != nil {
		owner.Finish(core.StatusStopped)
		return owner.Snapshot(), nil, fmt.Errorf("start sensor: %w", err)
	}

	runErr := reactor.Run(ctx)

	owner.Stop()
	owner.Finish(core.StatusStopped)

	return owner.Snapshot(), reactor.Log(), errors.Join(runErr, sensor.Stop(), k.persist(owner))
}

// Proactive runs the goal pursuit, opportunity scan and prediction loops
// against one state until ctx ends or a loop fails. Seized opportunities are
// executed by a reactive scheduler sharing the same state.
func (k *Kernel) Proactive(ctx context.Context) (state.Snapshot, error) {
	owner := k.NewOwner(k.opts.Agent.Goal)

	s := scheduler.New(owner, func(o *scheduler.Options) {
		o.Mode = scheduler.Reactive
		o.Tools = k.opts.Tools
		o.Retry = k.retry()
		o.MaxIterations = 0
		o.MaxCost = k.opts.Agent.MaxCost
		o.Metrics = k.opts.Metrics
		o.Logger = k.runLogger(owner, "scheduler")
	})

	p := behavior.NewProactive(owner, k.opts.Model, s, func(o *behavior.ProactiveOptions) {
		cfg := k.opts.Proactive

		if cfg.GoalInterval > 0 {
			o.GoalInterval = cfg.GoalInterval
		}

		if cfg.ScanInterval > 0 {
			o.ScanInterval = cfg.ScanInterval
		}

		if cfg.PredictionInterval > 0 {
			o.PredictionInterval = cfg.PredictionInterval
		}

		if cfg.MaxActionsPerCycle > 0 {
			o.MaxActionsPerCycle = cfg.MaxActionsPerCycle
		}

		o.Threshold = cfg.Threshold
		o.PredictionConfidence = cfg.PredictionConfidence
		o.Tools = k.opts.Tools
		o.Metrics = k.opts.Metrics
		o.Logger = k.runLogger(owner, "behavior")
	})

	group := behavior.NewGroup(owner, p.Loops(), func(o *behavior.GroupOptions) { o.Logger = k.runLogger(owner, "behavior") })

	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return group.Run(gctx) })
	eg.Go(func() error {
		err := s.Run(gctx)
		if err != nil {
			owner.Stop()
		}

		return err
	})

	runErr := eg.Wait()

	return owner.Snapshot(), errors.Join(runErr, k.persist(owner))
}

// Team runs every task through an analyzer/reviewer exchange on a fresh
// message bus and returns the coordinator's reports in task order.
func (k *Kernel) Team(ctx context.Context, tasks []string) ([]bus.Report, error) {
	if len(tasks) == 0 {
		return nil, errors.New("at least one task is required")
	}

	log := k.logger("bus")

	b := bus.New(func(o *bus.Options) {
		o.Audit = k.opts.Audit
		o.Metrics = k.opts.Metrics
		o.Logger = log
	})

	peerOpts := func(o *bus.PeerOptions) { o.Logger = log }

	analyzer := bus.NewAnalyzer(b, k.opts.Model, peerOpts)
	defer analyzer.Close()

	reviewer := bus.NewReviewer(b, k.opts.Model, peerOpts)
	defer reviewer.Close()

	coordinator := bus.NewCoordinator(b, k.opts.Model, func(o *bus.CoordinatorOptions) {
		if k.opts.Team.ResponseTimeout > 0 {
			o.Timeout = k.opts.Team.ResponseTimeout
		}

		o.Concurrency = k.opts.Team.Concurrency
		o.Logger = log
	})
	defer coordinator.Close()

	return coordinator.ProcessAll(ctx, tasks)
}

func (k *Kernel) persist(owner *state.Owner) error {
	// ctx of the run is usually done by now.
	if err := owner.Persist(context.Background()); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	return nil
}
