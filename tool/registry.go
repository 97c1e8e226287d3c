package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/agentkernel/core"
)

// Registry holds the tools available to tasks, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}

	return r
}

// Register adds t. Registering a name twice is an error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}

	r.tools[t.Name()] = t

	return nil
}

// Get returns the tool called name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]

	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Describe renders one "name: description" line per tool for prompts.
func (r *Registry) Describe() string {
	var sb strings.Builder

	for _, n := range r.Names() {
		t, _ := r.Get(n)
		fmt.Fprintf(&sb, "- %s: %s\n", n, t.Description())
	}

	return sb.String()
}

// Execute looks up name and runs it. An unknown name yields a NOT_FOUND
// ToolError, which unwraps to core.ErrToolNotFound. Any other error the tool
// returns is normalized so it is retryable unless it already carries a
// permanent kind.
func (r *Registry) Execute(ctx context.Context, name string, tc *Context, params map[string]any) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{}, NewToolError(name, "no such tool", CodeNotFound)
	}

	if params == nil {
		params = map[string]any{}
	}

	res, err := t.Execute(ctx, tc, params)
	if err != nil {
		return Result{}, normalize(name, err)
	}

	return res, nil
}

func normalize(name string, err error) error {
	var (
		toolErr *ToolError
		execErr *core.ExecutionError
	)

	switch {
	case errors.As(err, &toolErr), errors.As(err, &execErr):
		return err
	case errors.Is(err, core.ErrToolNotFound), errors.Is(err, core.ErrInvalidParameters):
		return err
	default:
		return ExecutionFailed(name, err)
	}
}
