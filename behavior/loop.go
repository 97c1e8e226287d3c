package behavior

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/state"
	"golang.org/x/sync/errgroup"
)

// Body is one iteration of a loop.
type Body func(ctx context.Context) error

// Loop is a named body repeated at a fixed interval.
type Loop struct {
	Name     string
	Interval time.Duration
	Body     Body
}

// GroupOptions configure a Group.
type GroupOptions struct {
	Logger logging.Logger
}

// Group runs loops concurrently against one state owner.
type Group struct {
	owner *state.Owner
	loops []Loop
	opts  GroupOptions

	reportOnce sync.Once
}

// NewGroup creates a group. Loops without a body are rejected by Run.
func NewGroup(owner *state.Owner, loops []Loop, optFns ...func(o *GroupOptions)) *Group {
	opts := GroupOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Group{owner: owner, loops: append([]Loop(nil), loops...), opts: opts}
}

// Run blocks until every loop has exited. It returns nil when the loops were
// stopped through the owner or ctx, and the first body error otherwise. A
// body error stops the remaining loops and marks the run stopped.
func (g *Group) Run(ctx context.Context) error {
	for _, l := range g.loops {
		if l.Body == nil {
			return fmt.Errorf("loop %q has no body", l.Name)
		}
	}

	g.owner.Start()

	eg, gctx := errgroup.WithContext(ctx)

	for _, l := range g.loops {
		l := l
		eg.Go(func() error {
			return g.runLoop(gctx, l)
		})
	}

	err := eg.Wait()

	g.owner.Stop()
	g.owner.Finish(core.StatusStopped)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (g *Group) runLoop(ctx context.Context, l Loop) error {
	g.opts.Logger.Debug("behavior.loop.started", "loop", l.Name, "interval", l.Interval)

	for g.owner.Running() && ctx.Err() == nil {
		if !g.owner.WaitWhilePaused(ctx) {
			break
		}

		if err := l.Body(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}

			g.fail(l.Name, err)

			return fmt.Errorf("loop %s: %w", l.Name, err)
		}

		if !g.sleep(ctx, l.Interval) {
			break
		}
	}

	g.opts.Logger.Debug("behavior.loop.stopped", "loop", l.Name)

	return nil
}

// fail reports the first loop failure; later failures caused by the
// shutdown are not reported again.
func (g *Group) fail(name string, err error) {
	g.reportOnce.Do(func() {
		g.opts.Logger.Error("behavior.loop.failed", "loop", name, "error", err.Error())
		g.owner.Finish(core.StatusStopped)
		g.owner.Stop()
	})
}

func (g *Group) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-g.owner.Done():
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-g.owner.Done():
		return false
	}
}
