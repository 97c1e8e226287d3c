package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hupe1980/agentkernel"
	"github.com/hupe1980/agentkernel/config"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/spf13/cobra"
)

// session bundles what every command needs: the kernel, its logger and a
// context cancelled on SIGINT/SIGTERM.
type session struct {
	cfg    *config.Config
	kernel *agentkernel.Kernel
	logger *logging.KernelLogger
	ctx    context.Context

	cleanup []func()
}

func newSession(cmd *cobra.Command, override func(cfg *config.Config)) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	if override != nil {
		override(cfg)
	}

	logger := cfg.Logger(cmd.ErrOrStderr())

	k, err := agentkernel.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)

	s := &session{cfg: cfg, kernel: k, logger: logger, ctx: ctx}
	s.cleanup = append(s.cleanup, stop, func() {
		if err := k.Close(); err != nil {
			logger.Warn("kernel.close.failed", "error", err.Error())
		}
	})

	if cfg.Metrics.Listen != "" {
		if err := s.serveMetrics(cfg.Metrics.Listen); err != nil {
			s.close()
			return nil, err
		}
	}

	return s, nil
}

func (s *session) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.kernel.Metrics().Handler())

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics.serve.failed", "error", err.Error())
		}
	}()

	s.logger.Info("metrics.listening", "addr", ln.Addr().String())

	s.cleanup = append(s.cleanup, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = srv.Shutdown(ctx)
	})

	return nil
}

func (s *session) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

// withTimeout bounds ctx by d unless d is zero.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
