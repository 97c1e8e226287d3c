package event

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Sensor = (*FileSensor)(nil)

type collector struct {
	mu     sync.Mutex
	events []core.ReactiveEvent
}

func (c *collector) handle(ev core.ReactiveEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) find(typ core.EventType, path string) (core.ReactiveEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.events {
		if e.Type == typ && e.PayloadString("path") == path {
			return e, true
		}
	}

	return core.ReactiveEvent{}, false
}

func (c *collector) paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, e := range c.events {
		out = append(out, e.PayloadString("path"))
	}

	return out
}

func startSensor(t *testing.T, optFns ...func(o *FileSensorOptions)) (string, *collector) {
	t.Helper()

	dir := t.TempDir()
	c := &collector{}

	fns := append([]func(o *FileSensorOptions){func(o *FileSensorOptions) { o.Debounce = 10 * time.Millisecond }}, optFns...)
	s := NewFileSensor("files", dir, fns...)
	require.NoError(t, s.Start(context.Background(), c.handle))
	t.Cleanup(func() { _ = s.Stop() })

	return dir, c
}

func TestFileSensor_CreateChangeDelete(t *testing.T) {
	dir, c := startSensor(t)
	file := filepath.Join(dir, "main.go")

	require.NoError(t, os.WriteFile(file, []byte("package main"), 0o644))
	require.Eventually(t, func() bool {
		e, ok := c.find(core.EventCreated, "main.go")
		return ok && e.PayloadString("content") == "package main" && e.Priority == FileChangePriority
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(file, []byte("package main\n// edit"), 0o644))
	require.Eventually(t, func() bool {
		_, ok := c.find(core.EventChanged, "main.go")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(file))
	require.Eventually(t, func() bool {
		e, ok := c.find(core.EventDeleted, "main.go")
		return ok && e.Priority == FileDeletePriority && e.PayloadString("content") == ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileSensor_TruncatesContent(t *testing.T) {
	dir, c := startSensor(t, func(o *FileSensorOptions) { o.ContentLimit = 5 })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "long.txt"), []byte(strings.Repeat("x", 50)), 0o644))
	require.Eventually(t, func() bool {
		e, ok := c.find(core.EventCreated, "long.txt")
		return ok && e.PayloadString("content") == "xxxxx..."
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileSensor_IgnoresAndSuppresses(t *testing.T) {
	sup := NewSuppressor(time.Minute)
	dir, c := startSensor(t, func(o *FileSensorOptions) { o.Suppressor = sup })

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "x.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "debug.log"), []byte("x"), 0o644))

	sup.Mark("self.md")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "self.md"), []byte("mine"), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentinel.txt"), []byte("s"), 0o644))
	require.Eventually(t, func() bool {
		_, ok := c.find(core.EventCreated, "sentinel.txt")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"sentinel.txt"}, c.paths())
}

func TestFileSensor_WatchesNewDirectories(t *testing.T) {
	dir, c := startSensor(t)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "a.go"), []byte("package pkg"), 0o644))

	require.Eventually(t, func() bool {
		_, ok := c.find(core.EventCreated, "pkg/a.go")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileSensor_StartTwice(t *testing.T) {
	s := NewFileSensor("files", t.TempDir())
	require.NoError(t, s.Start(context.Background(), func(core.ReactiveEvent) {}))
	defer func() { _ = s.Stop() }()

	assert.Error(t, s.Start(context.Background(), func(core.ReactiveEvent) {}))
}
