package event

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
)

// Handler receives events produced by a sensor.
type Handler func(ev core.ReactiveEvent)

// Sensor observes the outside world and reports events to a handler.
type Sensor interface {
	ID() string
	Start(ctx context.Context, h Handler) error
	Stop() error
}

// Event priorities assigned by FileSensor.
const (
	FileChangePriority = 0.8
	FileDeletePriority = 0.6
)

// DefaultIgnore lists paths FileSensor skips unless configured otherwise.
var DefaultIgnore = []string{"node_modules", ".git", "dist", "*.log"}

// FileSensorOptions configure a FileSensor.
type FileSensorOptions struct {
	// Ignore entries match a path component exactly, or the file name when
	// they contain glob characters.
	Ignore []string
	// Debounce coalesces bursts of writes to one path.
	Debounce time.Duration
	// ContentLimit truncates the payload content, in bytes.
	ContentLimit int
	// Suppressor mutes self-authored paths. Optional.
	Suppressor *Suppressor
	Logger     logging.Logger
}

// FileSensor watches a directory tree with fsnotify. Payloads carry the path
// relative to the root and, for creates and changes, the head of the file.
type FileSensor struct {
	id   string
	root string
	opts FileSensorOptions

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	timers  map[string]*time.Timer
	pending map[string]fsnotify.Op
}

// NewFileSensor creates a sensor for root.
func NewFileSensor(id, root string, optFns ...func(o *FileSensorOptions)) *FileSensor {
	opts := FileSensorOptions{
		Ignore:       DefaultIgnore,
		Debounce:     100 * time.Millisecond,
		ContentLimit: 500,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &FileSensor{id: id, root: root, opts: opts}
}

// ID implements Sensor.
func (s *FileSensor) ID() string { return s.id }

// Root returns the watched directory.
func (s *FileSensor) Root() string { return s.root }

// Start implements Sensor. It returns once the watches are in place; events
// are delivered from a background goroutine until Stop or ctx ends.
func (s *FileSensor) Start(ctx context.Context, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return errors.New("sensor already started")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := s.addTree(w, s.root); err != nil {
		_ = w.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	s.watcher = w
	s.cancel = cancel
	s.done = make(chan struct{})
	s.timers = make(map[string]*time.Timer)
	s.pending = make(map[string]fsnotify.Op)

	go s.loop(ctx, w, h)

	s.opts.Logger.Info("sensor.started", "sensor", s.id, "path", s.root)

	return nil
}

// Stop implements Sensor.
func (s *FileSensor) Stop() error {
	s.mu.Lock()

	if s.watcher == nil {
		s.mu.Unlock()
		return nil
	}

	s.cancel()
	err := s.watcher.Close()
	done := s.done
	s.watcher = nil

	for _, t := range s.timers {
		t.Stop()
	}

	s.mu.Unlock()

	<-done
	s.opts.Logger.Info("sensor.stopped", "sensor", s.id)

	return err
}

func (s *FileSensor) addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && s.ignored(path) {
			return filepath.SkipDir
		}

		if err := w.Add(path); err != nil {
			s.opts.Logger.Warn("sensor.watch.failed", "path", path, "error", err.Error())
		}

		return nil
	})
}

func (s *FileSensor) loop(ctx context.Context, w *fsnotify.Watcher, h Handler) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}

			if ev.Op == fsnotify.Chmod {
				continue
			}

			if s.ignored(ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := s.addTree(w, ev.Name); err != nil {
						s.opts.Logger.Warn("sensor.watch.failed", "path", ev.Name, "error", err.Error())
					}

					continue
				}
			}

			s.schedule(ctx, ev, h)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}

			s.opts.Logger.Error("sensor.error", "sensor", s.id, "error", err.Error())
		}
	}
}

// schedule debounces per path: the first op in a burst decides created vs
// changed, a later remove wins.
func (s *FileSensor) schedule(ctx context.Context, ev fsnotify.Event, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return
	}

	prev, seen := s.pending[ev.Name]
	switch {
	case !seen:
		s.pending[ev.Name] = ev.Op
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		s.pending[ev.Name] = ev.Op
	case prev&(fsnotify.Remove|fsnotify.Rename) != 0:
		s.pending[ev.Name] = ev.Op
	}

	if t, ok := s.timers[ev.Name]; ok {
		t.Stop()
	}

	name := ev.Name
	s.timers[name] = time.AfterFunc(s.opts.Debounce, func() {
		s.mu.Lock()
		op := s.pending[name]
		delete(s.pending, name)
		delete(s.timers, name)
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		if out, ok := s.toEvent(name, op); ok {
			h(out)
		}
	})
}

func (s *FileSensor) toEvent(path string, op fsnotify.Op) (core.ReactiveEvent, bool) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = path
	}

	rel = filepath.ToSlash(rel)

	if s.opts.Suppressor.Suppressed(rel) {
		s.opts.Logger.Debug("sensor.suppressed", "path", rel)
		return core.ReactiveEvent{}, false
	}

	var (
		typ      core.EventType
		priority = FileChangePriority
		payload  = map[string]any{"path": rel}
	)

	switch {
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		typ = core.EventDeleted
		priority = FileDeletePriority
	case op&fsnotify.Create != 0:
		typ = core.EventCreated
	case op&fsnotify.Write != 0:
		typ = core.EventChanged
	default:
		return core.ReactiveEvent{}, false
	}

	if typ != core.EventDeleted {
		data, err := os.ReadFile(path)
		if err != nil {
			return core.ReactiveEvent{}, false
		}

		payload["content"] = truncate(string(data), s.opts.ContentLimit)
	}

	return core.NewReactiveEvent(typ, s.id, priority, payload), true
}

func (s *FileSensor) ignored(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = path
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	base := parts[len(parts)-1]

	for _, pat := range s.opts.Ignore {
		if strings.ContainsAny(pat, "*?[") {
			if ok, _ := filepath.Match(pat, base); ok {
				return true
			}

			continue
		}

		for _, p := range parts {
			if p == pat {
				return true
			}
		}
	}

	return false
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
