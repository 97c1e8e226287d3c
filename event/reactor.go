package event

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/metrics"
)

// ActionKind is what the reactor does about an event.
type ActionKind string

const (
	// ActionMutate writes a file (params: path, content).
	ActionMutate ActionKind = "mutate"
	// ActionRecord stores the event in the knowledge base.
	ActionRecord ActionKind = "record"
	// ActionIgnore does nothing; the decision is still logged.
	ActionIgnore ActionKind = "ignore"
)

// Action is a decided reaction.
type Action struct {
	Kind      ActionKind     `json:"kind"`
	Params    map[string]any `json:"params,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
}

// Decider chooses the reaction to an event.
type Decider interface {
	Decide(ctx context.Context, ev core.ReactiveEvent) (Action, error)
}

// Effector carries out a decided reaction.
type Effector interface {
	Apply(ctx context.Context, ev core.ReactiveEvent, a Action) error
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, ev core.ReactiveEvent) (Action, error)

// Decide implements Decider.
func (f DeciderFunc) Decide(ctx context.Context, ev core.ReactiveEvent) (Action, error) {
	return f(ctx, ev)
}

// Reaction is one entry of the reactor's log.
type Reaction struct {
	Event  core.ReactiveEvent `json:"event"`
	Action Action             `json:"action"`
	Error  string             `json:"error,omitempty"`
	At     time.Time          `json:"at"`
}

// ReactorOptions configure a Reactor.
type ReactorOptions struct {
	// LogLimit caps the reaction log; the oldest entries are dropped first.
	LogLimit int
	// Done, when closed, ends Run after the current reaction.
	Done    <-chan struct{}
	Metrics *metrics.Metrics
	Logger  logging.Logger
}

// Reactor drains a queue one event at a time.
type Reactor struct {
	queue    *Queue
	decider  Decider
	effector Effector
	opts     ReactorOptions

	mu  sync.Mutex
	log []Reaction
}

// NewReactor wires a queue to a decider and an effector.
func NewReactor(q *Queue, d Decider, e Effector, optFns ...func(o *ReactorOptions)) *Reactor {
	opts := ReactorOptions{LogLimit: 1000}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Reactor{queue: q, decider: d, effector: e, opts: opts}
}

// Handle is the sensor handler: it enqueues ev.
func (r *Reactor) Handle(ev core.ReactiveEvent) {
	r.queue.Push(ev)
	r.opts.Metrics.QueueDepth(r.queue.Len())
	r.opts.Logger.Debug("event.received", "id", ev.ID, "type", ev.Type, "priority", ev.Priority, "path", ev.PayloadString("path"))
}

// Run reacts to queued events until ctx ends or Done is closed.
func (r *Reactor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.opts.Done != nil {
		go func() {
			select {
			case <-r.opts.Done:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	for {
		ev, err := r.queue.Wait(ctx)
		if err != nil {
			return nil
		}

		r.opts.Metrics.QueueDepth(r.queue.Len())
		r.React(ctx, ev)
	}
}

// React decides and applies one reaction. Decision failures degrade to
// ignore; effector failures are logged. Neither stops the reactor.
func (r *Reactor) React(ctx context.Context, ev core.ReactiveEvent) Reaction {
	a, err := r.decider.Decide(ctx, ev)
	if err != nil {
		r.opts.Logger.Warn("event.decide.failed", "id", ev.ID, "error", err.Error())
		a = Action{Kind: ActionIgnore, Reasoning: "decision failed: " + err.Error()}
	}

	rec := Reaction{Event: ev, Action: a, At: time.Now()}

	if err := r.effector.Apply(ctx, ev, a); err != nil {
		rec.Error = err.Error()
		r.opts.Logger.Error("event.apply.failed", "id", ev.ID, "action", a.Kind, "error", err.Error())
	} else {
		r.opts.Logger.Info("event.handled", "id", ev.ID, "type", ev.Type, "action", a.Kind, "reasoning", a.Reasoning)
	}

	r.opts.Metrics.EventHandled(string(ev.Type), string(a.Kind))

	r.mu.Lock()
	r.log = append(r.log, rec)
	if over := len(r.log) - r.opts.LogLimit; r.opts.LogLimit > 0 && over > 0 {
		r.log = append([]Reaction(nil), r.log[over:]...)
	}
	r.mu.Unlock()

	return rec
}

// Log returns a copy of the reaction log, oldest first.
func (r *Reactor) Log() []Reaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Reaction(nil), r.log...)
}
