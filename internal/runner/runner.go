// Package runner wraps one scheduler pass with the process concerns around
// it: the run lock, the run deadline, run history, metrics, and
// notifications. The CLI and the daemon both run through it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"herald/internal/config"
	"herald/internal/dispatch"
	"herald/internal/docstore"
	"herald/internal/history"
	"herald/internal/logging"
	"herald/internal/metrics"
	"herald/internal/notifications"
	"herald/internal/publisher"
	"herald/internal/queue"
	"herald/internal/runlock"
	"herald/internal/services"
	"herald/internal/services/bluesky"
)

const sideEffectTimeout = 15 * time.Second

// Deps are the collaborators a Runner drives. History and Metrics are optional.
type Deps struct {
	Repo     *queue.Repository
	Platform dispatch.Platform
	History  *history.Store
	Notifier notifications.Service
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

// Options tunes a Runner.
type Options struct {
	DryRun bool
}

// Last is the most recent run as seen by this process.
type Last struct {
	Summary  publisher.Summary
	Err      string
	Finished time.Time
}

// Runner executes locked, bounded scheduler runs.
type Runner struct {
	driver     *publisher.Driver
	lockPath   string
	runTimeout time.Duration
	history    *history.Store
	notifier   notifications.Service
	metrics    *metrics.Recorder
	logger     *slog.Logger

	mu   sync.Mutex
	last *Last
}

// New assembles a Runner from cfg and deps.
func New(cfg *config.Config, deps Deps, opts Options) *Runner {
	logger := logging.NewComponentLogger(deps.Logger, "runner")
	dispatcher := dispatch.New(deps.Platform, dispatch.Options{
		Pause:       cfg.ThreadPause(),
		CallTimeout: cfg.PlatformTimeout(),
		Logger:      deps.Logger,
	})
	driver := publisher.New(deps.Repo, dispatcher, publisher.Options{
		ConflictRetry: cfg.Scheduler.ConflictRetry,
		DryRun:        opts.DryRun,
		Logger:        deps.Logger,
	})
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	return &Runner{
		driver:     driver,
		lockPath:   cfg.LockPath(),
		runTimeout: cfg.RunTimeout(),
		history:    deps.History,
		notifier:   notifier,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Run performs one pass at now. A run already in progress elsewhere yields
// an error wrapping runlock.ErrBusy and nothing else happens.
func (r *Runner) Run(ctx context.Context, now time.Time) (publisher.Summary, error) {
	lock, err := runlock.TryAcquire(r.lockPath)
	if err != nil {
		if errors.Is(err, runlock.ErrBusy) {
			r.logger.Info("another run holds the lock; skipping",
				logging.String("lock", r.lockPath),
				logging.String(logging.FieldEventType, "run_skipped"),
			)
		}
		return publisher.Summary{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			r.logger.Warn("release run lock failed", logging.Error(err))
		}
	}()

	runCtx := ctx
	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}
	summary, runErr := r.driver.RunOnce(runCtx, now)

	after, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	r.afterRun(after, summary, runErr)
	return summary, runErr
}

func (r *Runner) afterRun(ctx context.Context, summary publisher.Summary, runErr error) {
	logger := logging.WithContext(services.WithRunID(ctx, summary.RunID), r.logger)
	if r.metrics != nil {
		r.metrics.Observe(summary, runErr)
	}
	if r.history != nil && summary.RunID != "" {
		if err := r.history.Record(ctx, summary); err != nil {
			logging.WarnWithContext(logger, "run history not recorded", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
				logging.String(logging.FieldImpact, "this run is missing from herald history"),
			)
		}
	}
	if err := r.notifier.NotifyRunSummary(ctx, summary); err != nil {
		logger.Debug("run summary notification failed", logging.Error(err))
	}
	if runErr != nil {
		if err := r.notifier.NotifyError(ctx, runErr, "scheduler run"); err != nil {
			logger.Debug("error notification failed", logging.Error(err))
		}
	}

	last := &Last{Summary: summary, Finished: time.Now().UTC()}
	if runErr != nil {
		last.Err = runErr.Error()
	}
	r.mu.Lock()
	r.last = last
	r.mu.Unlock()
}

// LastRun returns the most recent run, or nil before the first one.
func (r *Runner) LastRun() *Last {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	copied := *r.last
	return &copied
}

// Runtime bundles a Runner with the resources it was built from.
type Runtime struct {
	Runner  *Runner
	Repo    *queue.Repository
	History *history.Store

	closers []io.Closer
}

// Close releases the history database and the queue store.
func (rt *Runtime) Close() error {
	var errs []error
	for _, closer := range rt.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build opens the configured store, platform client, and history database
// and returns a ready Runtime. rec may be nil.
func Build(cfg *config.Config, logger *slog.Logger, rec *metrics.Recorder, opts Options) (*Runtime, error) {
	store, storeCloser, err := docstore.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	hist, err := history.Open(cfg.HistoryPath())
	if err != nil {
		_ = storeCloser.Close()
		return nil, fmt.Errorf("open run history: %w", err)
	}
	repo := queue.NewRepository(store, logger)
	platform := bluesky.New(bluesky.Options{
		PDSURL:      cfg.Platform.PDSURL,
		Identifier:  cfg.Platform.Identifier,
		AppPassword: cfg.Platform.AppPassword,
		Logger:      logger,
	})
	r := New(cfg, Deps{
		Repo:     repo,
		Platform: platform,
		History:  hist,
		Notifier: notifications.NewService(cfg),
		Metrics:  rec,
		Logger:   logger,
	}, opts)
	return &Runtime{Runner: r, Repo: repo, History: hist, closers: []io.Closer{hist, storeCloser}}, nil
}
