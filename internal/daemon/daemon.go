package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"herald/internal/api"
	"herald/internal/config"
	"herald/internal/history"
	"herald/internal/logging"
	"herald/internal/metrics"
	"herald/internal/publisher"
	"herald/internal/runlock"
)

// Runner performs one locked scheduler pass.
type Runner interface {
	Run(ctx context.Context, now time.Time) (publisher.Summary, error)
}

// Deps are the collaborators a Daemon drives. History and Metrics are optional.
type Deps struct {
	Runner  Runner
	Queue   api.QueueLoader
	History *history.Store
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	// Now overrides the clock handed to runs.
	Now func() time.Time
}

// Daemon schedules runs and serves the status API.
type Daemon struct {
	cfg      *config.Config
	runner   Runner
	history  *history.Store
	metrics  *metrics.Recorder
	queueSvc *api.QueueService
	logger   *slog.Logger
	now      func() time.Time

	lockPath string
	lock     *runlock.Lock
	trigger  chan string
	ready    chan struct{}
	api      *apiServer

	running   atomic.Bool
	mu        sync.Mutex
	startedAt time.Time
	nextRun   time.Time
	runs      int
	last      *api.RunStatus
	lastErr   string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Runner == nil {
		return nil, errors.New("daemon requires config and runner")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	d := &Daemon{
		cfg:      cfg,
		runner:   deps.Runner,
		history:  deps.History,
		metrics:  deps.Metrics,
		queueSvc: api.NewQueueService(deps.Queue),
		logger:   logging.NewComponentLogger(deps.Logger, "daemon"),
		now:      now,
		lockPath: filepath.Join(cfg.Paths.StateDir, "heraldd.lock"),
		trigger:  make(chan string, 1),
		ready:    make(chan struct{}),
	}
	d.api = newAPIServer(cfg, d, deps.Logger)
	return d, nil
}

// Run acquires the daemon lock and blocks until ctx is cancelled or a
// component fails.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	lock, err := runlock.TryAcquire(d.lockPath)
	if err != nil {
		if errors.Is(err, runlock.ErrBusy) {
			return fmt.Errorf("another herald daemon instance is already running: %w", err)
		}
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	d.lock = lock
	defer func() {
		if err := lock.Release(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	d.mu.Lock()
	d.startedAt = time.Now().UTC()
	d.mu.Unlock()
	d.maintain(ctx)

	group, groupCtx := errgroup.WithContext(ctx)
	if d.api != nil {
		if err := d.api.start(groupCtx); err != nil {
			return err
		}
		group.Go(func() error { return d.api.wait(groupCtx) })
	}
	if d.cfg.Scheduler.WatchFile && d.cfg.Store.Backend == config.StoreBackendFile {
		watcher, err := newFileWatcher(d.cfg.Store.Path, d.logger)
		if err != nil {
			logging.WarnWithContext(d.logger, "queue file watch unavailable", "watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "queue edits are picked up on the next interval"),
			)
		} else {
			group.Go(func() error { return watcher.run(groupCtx, d.Trigger) })
		}
	}
	group.Go(func() error { return d.schedule(groupCtx) })
	close(d.ready)

	d.logger.Info("herald daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("interval", d.cfg.Interval()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	err = group.Wait()
	d.logger.Info("herald daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Trigger requests a run as soon as possible. Requests arriving while one is
// already pending collapse into it.
func (d *Daemon) Trigger(reason string) bool {
	select {
	case d.trigger <- reason:
		return true
	default:
		return false
	}
}

func (d *Daemon) schedule(ctx context.Context) error {
	interval := d.cfg.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.runOnce(ctx, "startup")
	for {
		d.setNextRun(time.Now().Add(interval))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.runOnce(ctx, "interval")
		case reason := <-d.trigger:
			d.runOnce(ctx, reason)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context, reason string) {
	summary, err := d.runner.Run(ctx, d.now())
	if errors.Is(err, runlock.ErrBusy) {
		d.logger.Info("run skipped; another run is in progress",
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "run_skipped"),
		)
		return
	}
	status := api.FromSummary(summary, err)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs++
	d.last = &status
	d.lastErr = ""
	if err != nil {
		d.lastErr = err.Error()
	}
	d.logger.Debug("run finished",
		logging.String("reason", reason),
		logging.String("outcome", status.Outcome),
	)
}

func (d *Daemon) setNextRun(at time.Time) {
	d.mu.Lock()
	d.nextRun = at.UTC()
	d.mu.Unlock()
}

// maintain prunes old log files and run history.
func (d *Daemon) maintain(ctx context.Context) {
	days := d.cfg.Logging.RetentionDays
	if days <= 0 {
		return
	}
	removed := logging.PruneLogs(d.logger, d.cfg.Paths.LogDir, "herald-*.log", days, currentLogPath(d.cfg))
	if d.history != nil {
		pruned, err := d.history.Prune(ctx, time.Now().AddDate(0, 0, -days))
		if err != nil {
			d.logger.Warn("history prune failed", logging.Error(err))
		}
		removed += int(pruned)
	}
	if removed > 0 {
		d.logger.Info("retention cleanup complete",
			logging.Int("removed", removed),
			logging.Int("retention_days", days),
		)
	}
}

func currentLogPath(cfg *config.Config) string {
	target, err := os.Readlink(filepath.Join(cfg.Paths.LogDir, "heraldd.log"))
	if err != nil {
		return ""
	}
	return target
}

// Status reports daemon runtime information.
func (d *Daemon) Status() api.DaemonStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StoreBackend: d.cfg.Store.Backend,
		StorePath:    d.cfg.Store.Path,
		LockFilePath: d.lockPath,
		IntervalSecs: d.cfg.Scheduler.IntervalSeconds,
		Runs:         d.runs,
		LastError:    d.lastErr,
	}
	if !d.startedAt.IsZero() {
		status.StartedAt = d.startedAt.Format(time.RFC3339)
	}
	if !d.nextRun.IsZero() {
		status.NextRun = d.nextRun.Format(time.RFC3339)
	}
	if d.last != nil {
		last := *d.last
		status.LastRun = &last
	}
	return status
}

// Ready is closed once the API is listening and the scheduler loop is up.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// Addr returns the API listener address once Ready.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}
