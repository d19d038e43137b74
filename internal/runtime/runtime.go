package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulsekit/pulse/internal/broadcast"
	cfgpkg "github.com/pulsekit/pulse/internal/config"
	"github.com/pulsekit/pulse/internal/event"
	"github.com/pulsekit/pulse/internal/retention"
	pebblestore "github.com/pulsekit/pulse/internal/storage/pebble"
	"github.com/pulsekit/pulse/internal/store"
	logpkg "github.com/pulsekit/pulse/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
}

// Runtime wires storage, classification, retention, and fan-out for a
// single-node instance.
type Runtime struct {
	config      cfgpkg.Config
	logger      logpkg.Logger
	db          *pebblestore.DB
	store       *store.Store
	selector    *retention.Selector
	broadcaster *broadcast.Broadcaster
	purger      *store.Purger
}

// Open initializes the underlying storage and wires the components.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}

	fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return nil, err
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: cfg.DataDir,
		Fsync:   fsync,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: open storage: %w", err)
	}
	st, err := store.Open(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	selector := retention.NewSelector(cfg.Retention, st)
	classifier := event.NewClassifier(cfg.Classifier)
	bc := broadcast.New(st, classifier, selector, logger, broadcast.Options{
		SendTimeout:       time.Duration(cfg.Subscriber.SendTimeoutMs) * time.Millisecond,
		BufferSize:        cfg.Subscriber.BufferSize,
		PriorityInfoEvery: cfg.Subscriber.PriorityInfoEvery,
	})
	purger := store.NewPurger(st, store.RetentionWindows{
		PriorityRetention: cfg.Retention.PriorityWindow(),
		RegularRetention:  cfg.Retention.RegularWindow(),
	}, time.Duration(cfg.Purge.IntervalSeconds)*time.Second, cfg.Purge.BatchLimit, logger)

	return &Runtime{
		config:      cfg,
		logger:      logger,
		db:          db,
		store:       st,
		selector:    selector,
		broadcaster: bc,
		purger:      purger,
	}, nil
}

// Close detaches subscribers and closes underlying resources.
func (r *Runtime) Close() error {
	if r.broadcaster != nil {
		r.broadcaster.Close()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple storage health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the process logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// Store returns the event store.
func (r *Runtime) Store() *store.Store { return r.store }

// Selector returns the retention selector.
func (r *Runtime) Selector() *retention.Selector { return r.selector }

// Broadcaster returns the fan-out hub.
func (r *Runtime) Broadcaster() *broadcast.Broadcaster { return r.broadcaster }

// Purger returns the background retention sweeper; callers own its lifecycle.
func (r *Runtime) Purger() *store.Purger { return r.purger }
