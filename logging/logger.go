// Package logging provides a tiny abstraction over slog so the kernel depends
// on a minimal interface (Logger) while allowing users to plug any structured
// logger. It also offers a richer KernelLogger with contextual helpers
// (component, run id) and domain specific helpers for tool calls, inference
// calls, task transitions and progress snapshots.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a LogLevel.
// Unknown strings yield LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface used throughout the kernel.
// Args are slog style alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// KernelLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. With* methods return copies.
type KernelLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	runID     string
}

// LoggerConfig configures construction of a KernelLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	RunID       string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, CustomAttrs: map[string]any{}}
}

// NewLogger builds a KernelLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *KernelLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	ctx := make(map[string]any, len(cfg.CustomAttrs))
	for k, v := range cfg.CustomAttrs {
		ctx[k] = v
	}

	return &KernelLogger{logger: slog.New(handler), level: cfg.Level, context: ctx, component: cfg.Component, runID: cfg.RunID}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *KernelLogger) clone() *KernelLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context))

	for k, v := range l.context {
		nl.context[k] = v
	}

	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *KernelLogger) WithContext(key string, value any) *KernelLogger {
	nl := l.clone()
	nl.context[key] = value

	return nl
}

// WithComponent sets the logical component (scheduler, reactor, bus, etc.).
func (l *KernelLogger) WithComponent(c string) *KernelLogger {
	nl := l.clone()
	nl.component = c

	return nl
}

// WithRun attaches the run identifier.
func (l *KernelLogger) WithRun(runID string) *KernelLogger {
	nl := l.clone()
	nl.runID = runID

	return nl
}

func (l *KernelLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+2)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}

	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}

	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}

	return attrs
}

func (l *KernelLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}

	attrs := l.buildAttrs()
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	r.Add(args...)

	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *KernelLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *KernelLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *KernelLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *KernelLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// ErrorWithStack logs an error plus a runtime stack snapshot.
func (l *KernelLogger) ErrorWithStack(err error, msg string, args ...any) {
	if l.level > LogLevelError {
		return
	}

	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)

	args = append(args,
		"error", err.Error(),
		"error_type", fmt.Sprintf("%T", err),
		"stack_trace", string(stack[:n]),
	)
	l.log(slog.LevelError, true, msg, args...)
}

// LogToolCall records execution details for a tool invocation.
func (l *KernelLogger) LogToolCall(tool string, dur time.Duration, success bool, err error) {
	args := []any{"tool_name", tool, "duration", dur, "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}

	if !success {
		l.log(slog.LevelError, l.level <= LogLevelError, "tool.call.failed", args...)
		return
	}

	l.log(slog.LevelInfo, l.level <= LogLevelInfo, "tool.call.completed", args...)
}

// LogInferenceCall records model call latency, token usage and success.
func (l *KernelLogger) LogInferenceCall(model string, tokens int, dur time.Duration, success bool, err error) {
	args := []any{"model", model, "token_count", tokens, "duration", dur, "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}

	if !success {
		l.log(slog.LevelError, l.level <= LogLevelError, "inference.call.failed", args...)
		return
	}

	l.log(slog.LevelInfo, l.level <= LogLevelInfo, "inference.call.completed", args...)
}

// LogTaskTransition records a task status change.
func (l *KernelLogger) LogTaskTransition(taskID, from, to string, attempts int) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, "task.transition",
		"task_id", taskID, "from", from, "to", to, "attempts", attempts)
}

// LogProgress logs a progress snapshot given as key/value pairs.
func (l *KernelLogger) LogProgress(fields map[string]any) {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	l.log(slog.LevelInfo, l.level <= LogLevelInfo, "progress", args...)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *KernelLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() { l.Info("operation.completed", "operation", op, "duration", time.Since(start)) }
}

// Recorder is implemented by loggers with domain helpers. KernelLogger is
// one; the package functions below fall back to plain entries otherwise.
type Recorder interface {
	LogToolCall(tool string, dur time.Duration, success bool, err error)
	LogInferenceCall(model string, tokens int, dur time.Duration, success bool, err error)
	LogTaskTransition(taskID, from, to string, attempts int)
	LogProgress(fields map[string]any)
}

var _ Recorder = (*KernelLogger)(nil)

// ToolCall logs a tool invocation through l.
func ToolCall(l Logger, tool string, dur time.Duration, success bool, err error) {
	if r, ok := l.(Recorder); ok {
		r.LogToolCall(tool, dur, success, err)
		return
	}

	args := []any{"tool_name", tool, "duration", dur, "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}

	if !success {
		OrNoOp(l).Error("tool.call.failed", args...)
		return
	}

	OrNoOp(l).Info("tool.call.completed", args...)
}

// InferenceCall logs a model call through l.
func InferenceCall(l Logger, model string, tokens int, dur time.Duration, success bool, err error) {
	if r, ok := l.(Recorder); ok {
		r.LogInferenceCall(model, tokens, dur, success, err)
		return
	}

	args := []any{"model", model, "token_count", tokens, "duration", dur, "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}

	if !success {
		OrNoOp(l).Error("inference.call.failed", args...)
		return
	}

	OrNoOp(l).Info("inference.call.completed", args...)
}

// TaskTransition logs a task status change through l.
func TaskTransition(l Logger, taskID, from, to string, attempts int) {
	if r, ok := l.(Recorder); ok {
		r.LogTaskTransition(taskID, from, to, attempts)
		return
	}

	OrNoOp(l).Info("task.transition", "task_id", taskID, "from", from, "to", to, "attempts", attempts)
}

// Progress logs a progress snapshot through l.
func Progress(l Logger, fields map[string]any) {
	if r, ok := l.(Recorder); ok {
		r.LogProgress(fields)
		return
	}

	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	OrNoOp(l).Info("progress", args...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}

	return l
}

// NewSlogLogger creates a new KernelLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *KernelLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level

	if format != "" {
		cfg.Format = format
	}

	cfg.AddSource = addSource

	return NewLogger(cfg)
}
