package state

import (
	"context"
	"sync"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
)

// OwnerOptions configure an Owner.
type OwnerOptions struct {
	// Store receives snapshots on Persist. Nil disables persistence.
	Store  SnapshotStore
	Logger logging.Logger
}

// Owner serializes access to one AgentState. Update sections run one at a
// time; View sections may overlap each other but never an Update. Callers must
// not hold a section open across model calls, tool calls or timers: read what
// is needed in one section, do the slow work, write the result in another.
type Owner struct {
	mu    sync.RWMutex
	state *AgentState
	opts  OwnerOptions

	stopOnce sync.Once
	stopCh   chan struct{}
	resumeCh chan struct{} // non-nil while paused
}

// NewOwner takes ownership of st.
func NewOwner(st *AgentState, optFns ...func(o *OwnerOptions)) *Owner {
	opts := OwnerOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Owner{state: st, opts: opts, stopCh: make(chan struct{})}
}

// View runs fn with shared access. fn must not mutate the state.
func (o *Owner) View(fn func(s *AgentState)) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	fn(o.state)
}

// Update runs fn with exclusive access and refreshes LastUpdate.
func (o *Owner) Update(fn func(s *AgentState) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	err := fn(o.state)
	o.state.Touch()

	return err
}

// Status returns the current run status.
func (o *Owner) Status() core.RunStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.state.Status
}

// Start marks the run as running unless it already ended.
func (o *Owner) Start() {
	_ = o.Update(func(s *AgentState) error {
		if !s.Status.IsFinal() && s.Status != core.StatusStopping {
			s.Status = core.StatusRunning
		}

		return nil
	})
}

// Running reports whether loops should keep going.
func (o *Owner) Running() bool {
	select {
	case <-o.stopCh:
		return false
	default:
	}

	st := o.Status()

	return st == core.StatusRunning || st == core.StatusIdle || st == core.StatusPaused
}

// Stop raises the stop signal. Loops finish their current unit of work and
// then exit. Calling Stop more than once is safe.
func (o *Owner) Stop() {
	o.stopOnce.Do(func() {
		_ = o.Update(func(s *AgentState) error {
			if !s.Status.IsFinal() {
				s.Status = core.StatusStopping
			}

			return nil
		})
		close(o.stopCh)
	})
}

// Pause suspends a running run until Resume. Loops block at their next
// boundary in WaitWhilePaused.
func (o *Owner) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Status != core.StatusRunning || o.resumeCh != nil {
		return
	}

	o.state.Status = core.StatusPaused
	o.resumeCh = make(chan struct{})
}

// Resume continues a paused run.
func (o *Owner) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.resumeCh == nil {
		return
	}

	if o.state.Status == core.StatusPaused {
		o.state.Status = core.StatusRunning
	}

	close(o.resumeCh)
	o.resumeCh = nil
}

// WaitWhilePaused blocks while the run is paused. It returns false when the
// run was stopped or ctx ended in the meantime.
func (o *Owner) WaitWhilePaused(ctx context.Context) bool {
	o.mu.RLock()
	ch := o.resumeCh
	o.mu.RUnlock()

	if ch == nil {
		return true
	}

	select {
	case <-ch:
		return true
	case <-o.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// Done is closed once Stop has been called.
func (o *Owner) Done() <-chan struct{} { return o.stopCh }

// Finish records a final status. A run that already ended keeps its status,
// so the first reported outcome wins.
func (o *Owner) Finish(status core.RunStatus) {
	_ = o.Update(func(s *AgentState) error {
		if !s.Status.IsFinal() {
			s.Status = status
		}

		return nil
	})
}

// Snapshot copies the state under a read lock.
func (o *Owner) Snapshot() Snapshot {
	var sn Snapshot

	o.View(func(s *AgentState) { sn = s.Snapshot() })

	return sn
}

// Persist writes a snapshot to the configured store.
func (o *Owner) Persist(ctx context.Context) error {
	if o.opts.Store == nil {
		return nil
	}

	sn := o.Snapshot()
	if err := o.opts.Store.Save(ctx, sn); err != nil {
		o.opts.Logger.Warn("state.persist.failed", "agent", sn.ID, "error", err.Error())
		return err
	}

	return nil
}
