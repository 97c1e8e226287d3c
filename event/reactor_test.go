package event

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/testutil"
	"github.com/hupe1980/agentkernel/metrics"
	"github.com/hupe1980/agentkernel/model"
	"github.com/hupe1980/agentkernel/retry"
	"github.com/hupe1980/agentkernel/state"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Decider  = (*LLMDecider)(nil)
	_ Decider  = DeciderFunc(nil)
	_ Effector = (*ToolEffector)(nil)
)

type effectorFunc func(ctx context.Context, ev core.ReactiveEvent, a Action) error

func (f effectorFunc) Apply(ctx context.Context, ev core.ReactiveEvent, a Action) error {
	return f(ctx, ev, a)
}

func fixed(kind ActionKind) DeciderFunc {
	return func(context.Context, core.ReactiveEvent) (Action, error) {
		return Action{Kind: kind}, nil
	}
}

func noEffect(context.Context, core.ReactiveEvent, Action) error { return nil }

func TestReactor_RunHandlesByPriority(t *testing.T) {
	q := NewQueue()

	var order []string

	done := make(chan struct{})
	r := NewReactor(q, fixed(ActionRecord), effectorFunc(func(_ context.Context, ev core.ReactiveEvent, _ Action) error {
		order = append(order, ev.PayloadString("path"))
		if len(order) == 3 {
			close(done)
		}

		return nil
	}))

	r.Handle(testutil.Event(core.EventDeleted, 0.6, "b"))
	r.Handle(testutil.Event(core.EventChanged, 0.8, "a"))
	r.Handle(testutil.Event(core.EventChanged, 0.2, "c"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() { errCh <- r.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reactor did not drain the queue")
	}

	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Len(t, r.Log(), 3)
}

func TestReactor_DoneStopsRun(t *testing.T) {
	stop := make(chan struct{})
	r := NewReactor(NewQueue(), fixed(ActionIgnore), effectorFunc(noEffect), func(o *ReactorOptions) { o.Done = stop })

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background()) }()

	close(stop)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reactor ignored the done channel")
	}
}

func TestReactor_DecisionFailureIgnores(t *testing.T) {
	applied := ActionKind("")

	r := NewReactor(NewQueue(), DeciderFunc(func(context.Context, core.ReactiveEvent) (Action, error) {
		return Action{}, errors.New("model down")
	}), effectorFunc(func(_ context.Context, _ core.ReactiveEvent, a Action) error {
		applied = a.Kind
		return nil
	}))

	rec := r.React(context.Background(), testutil.Event(core.EventChanged, 0.8, "x"))
	assert.Equal(t, ActionIgnore, rec.Action.Kind)
	assert.Equal(t, ActionIgnore, applied)
	assert.Contains(t, rec.Action.Reasoning, "model down")
}

func TestReactor_EffectorErrorIsLogged(t *testing.T) {
	m := metrics.New("test")
	r := NewReactor(NewQueue(), fixed(ActionMutate), effectorFunc(func(context.Context, core.ReactiveEvent, Action) error {
		return errors.New("disk full")
	}), func(o *ReactorOptions) { o.Metrics = m })

	rec := r.React(context.Background(), testutil.Event(core.EventChanged, 0.8, "x"))
	assert.Equal(t, "disk full", rec.Error)

	n, err := promtest.GatherAndCount(m.Registry(), "test_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReactor_LogIsCapped(t *testing.T) {
	r := NewReactor(NewQueue(), fixed(ActionIgnore), effectorFunc(noEffect), func(o *ReactorOptions) { o.LogLimit = 2 })

	for _, p := range []string{"a", "b", "c"} {
		r.React(context.Background(), testutil.Event(core.EventChanged, 0.5, p))
	}

	log := r.Log()
	require.Len(t, log, 2)
	assert.Equal(t, "b", log[0].Event.PayloadString("path"))
	assert.Equal(t, "c", log[1].Event.PayloadString("path"))
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind ActionKind
	}{
		{"mutate", `{"action":"mutate","parameters":{"path":"a","content":"b"}}`, ActionMutate},
		{"legacy write", `Sure! {"action":"write_file","parameters":{"filePath":"a","content":"b"}} done`, ActionMutate},
		{"legacy log via type", `{"type":"log"}`, ActionRecord},
		{"ignore", `{"action":"IGNORE","reasoning":"generated"}`, ActionIgnore},
		{"unknown action", `{"action":"explode"}`, ActionRecord},
		{"no json", `I would write a file`, ActionRecord},
		{"broken json", `{"action": }`, ActionRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, ParseAction(tt.text).Kind)
		})
	}

	a := ParseAction(`{"action":"write_file","parameters":{"filePath":"docs/a.md","content":"x"}}`)
	assert.Equal(t, "docs/a.md", a.Params["path"])
}

func TestLLMDecider(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddContains(model.MarkerDecision, `{"action":"ignore","reasoning":"log file"}`)

	d := NewLLMDecider(m, "project context")
	a, err := d.Decide(context.Background(), testutil.Event(core.EventChanged, 0.8, "build/out.txt"))
	require.NoError(t, err)
	assert.Equal(t, ActionIgnore, a.Kind)
	assert.Equal(t, "log file", a.Reasoning)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "build/out.txt")
	assert.Contains(t, calls[0].Prompt, "project context")
}

func TestLLMDecider_ServiceError(t *testing.T) {
	m := model.NewMockModel("mock")
	m.EnqueueError(errors.New("unavailable"))

	_, err := NewLLMDecider(m, "").Decide(context.Background(), testutil.Event(core.EventChanged, 0.8, "a"))
	assert.Error(t, err)
}

func TestLLMDecider_Offline(t *testing.T) {
	a, err := NewLLMDecider(model.NewOffline(), "").Decide(context.Background(), testutil.Event(core.EventCreated, 0.8, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, ActionRecord, a.Kind)
}

func TestToolEffector_MutateMarksSuppression(t *testing.T) {
	dir := t.TempDir()
	sup := NewSuppressor(time.Minute)

	e := NewToolEffector(func(o *ToolEffectorOptions) {
		o.WorkingPath = dir
		o.Suppressor = sup
		o.Retry = retry.New(func(o *retry.Options) { o.Unit = time.Millisecond })
	})

	err := e.Apply(context.Background(), testutil.Event(core.EventChanged, 0.8, "main.go"), Action{
		Kind:   ActionMutate,
		Params: map[string]any{"path": "docs/notes.md", "content": "# notes\n"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "docs", "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "# notes\n", string(data))
	assert.True(t, sup.Suppressed("docs/notes.md"))
}

func TestToolEffector_WritesUnderWatchRoot(t *testing.T) {
	work, watch := t.TempDir(), t.TempDir()
	sup := NewSuppressor(time.Minute)

	st := state.New("agent", "watch")
	st.WorkingPath = work

	e := NewToolEffector(func(o *ToolEffectorOptions) {
		o.Owner = state.NewOwner(st)
		o.WorkingPath = watch
		o.Suppressor = sup
		o.Retry = retry.New(func(o *retry.Options) { o.Unit = time.Millisecond })
	})

	err := e.Apply(context.Background(), testutil.Event(core.EventChanged, 0.8, "notes.md"), Action{
		Kind:   ActionMutate,
		Params: map[string]any{"path": "notes.md", "content": "seen\n"},
	})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(watch, "notes.md"))
	assert.NoFileExists(t, filepath.Join(work, "notes.md"))
	assert.True(t, sup.Suppressed("notes.md"))
}

func TestToolEffector_MutateRequiresParams(t *testing.T) {
	e := NewToolEffector(func(o *ToolEffectorOptions) { o.WorkingPath = t.TempDir() })

	err := e.Apply(context.Background(), testutil.Event(core.EventChanged, 0.8, "a"), Action{Kind: ActionMutate})
	assert.ErrorIs(t, err, core.ErrInvalidParameters)
}

func TestToolEffector_MutateOutsideRootFails(t *testing.T) {
	e := NewToolEffector(func(o *ToolEffectorOptions) { o.WorkingPath = t.TempDir() })

	err := e.Apply(context.Background(), testutil.Event(core.EventChanged, 0.8, "a"), Action{
		Kind:   ActionMutate,
		Params: map[string]any{"path": "../escape.md", "content": "x"},
	})
	assert.Error(t, err)
}

func TestToolEffector_RecordStoresKnowledge(t *testing.T) {
	owner := state.NewOwner(state.New("agent", "watch"))
	e := NewToolEffector(func(o *ToolEffectorOptions) { o.Owner = owner })

	ev := testutil.Event(core.EventDeleted, 0.6, "old.go")
	require.NoError(t, e.Apply(context.Background(), ev, Action{Kind: ActionRecord, Reasoning: "noted"}))
	require.NoError(t, e.Apply(context.Background(), ev, Action{Kind: ActionIgnore}))

	owner.View(func(s *state.AgentState) {
		v, ok := s.Knowledge.Get("event_" + ev.ID)
		require.True(t, ok)

		rec, ok := v.(core.RecordValue)
		require.True(t, ok)
		assert.Equal(t, "old.go", rec.Fields["path"])
		assert.Equal(t, "noted", rec.Fields["reasoning"])
	})
}
