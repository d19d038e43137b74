package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/pulsekit/pulse/internal/config"
	"github.com/pulsekit/pulse/internal/runtime"
	httpserver "github.com/pulsekit/pulse/internal/server/http"
	logpkg "github.com/pulsekit/pulse/pkg/log"
)

// Options for running the server process.
type Options struct {
	Config cfgpkg.Config
}

// Run starts the runtime, the retention purger, and the HTTP server, and
// blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers without
	// signal handling still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}

	logger, err := logpkg.ApplyConfig(&cfg.Log)
	if err != nil {
		logger = logpkg.NewLogger(logpkg.WithFormatter(&logpkg.TextFormatter{}))
		logger.Warn("invalid log config, using defaults", logpkg.Err(err))
	}
	// Redirect stdlib logs (e.g. Pebble's) to our logger
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting pulse server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("fsync", cfg.Fsync),
		logpkg.Int("total_limit", cfg.Retention.TotalLimit),
		logpkg.Int("priority_retention_hours", cfg.Retention.PriorityRetentionHours),
		logpkg.Int("regular_retention_hours", cfg.Retention.RegularRetentionHours),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.Purger().Run(sctx)
	}()

	hsrv := httpserver.New(rt, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server error", logpkg.Err(err))
			stop()
		}
	}()

	<-sctx.Done()
	// Shut the server down before closing the runtime/DB to avoid races.
	hsrv.Close()
	wg.Wait()
	return nil
}
