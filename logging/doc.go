// Package logging provides a minimal logging interface and adapters for the kernel.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the scheduler, reactor, behavior loops and bus use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - KernelLogger, a slog based structured logger with domain helpers
//   - SlogAdapter wrapping an existing *slog.Logger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	sched := scheduler.New(g, p, reg, func(o *scheduler.Options) { o.Logger = logger })
package logging
