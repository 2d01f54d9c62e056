package publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"herald/internal/dispatch"
	"herald/internal/docstore"
	"herald/internal/logging"
	"herald/internal/queue"
	"herald/internal/schedule"
	"herald/internal/services"
)

// defaultSaveTimeout bounds the final write when the run context is already
// done, so posts that went out are still removed from the queue.
const defaultSaveTimeout = 30 * time.Second

// UnitDispatcher publishes one unit.
type UnitDispatcher interface {
	Dispatch(ctx context.Context, unit schedule.Unit) dispatch.Result
}

// Options tunes a Driver.
type Options struct {
	// ConflictRetry re-reads and re-applies the consumed set once when the
	// conditional write loses a race.
	ConflictRetry bool
	// DryRun selects and reports due units without publishing or writing.
	DryRun      bool
	SaveTimeout time.Duration
	Logger      *slog.Logger
}

// Driver executes scheduler runs.
type Driver struct {
	repo          *queue.Repository
	dispatcher    UnitDispatcher
	conflictRetry bool
	dryRun        bool
	saveTimeout   time.Duration
	logger        *slog.Logger
}

// New builds a Driver.
func New(repo *queue.Repository, dispatcher UnitDispatcher, opts Options) *Driver {
	timeout := opts.SaveTimeout
	if timeout <= 0 {
		timeout = defaultSaveTimeout
	}
	return &Driver{
		repo:          repo,
		dispatcher:    dispatcher,
		conflictRetry: opts.ConflictRetry,
		dryRun:        opts.DryRun,
		saveTimeout:   timeout,
		logger:        logging.NewComponentLogger(opts.Logger, "publisher"),
	}
}

// RunOnce performs one scheduler pass at now. The returned error is non-nil
// only for structural failures; per-unit publish failures are reported in the
// Summary.
func (d *Driver) RunOnce(ctx context.Context, now time.Time) (Summary, error) {
	summary := Summary{RunID: uuid.NewString(), StartedAt: time.Now().UTC(), DryRun: d.dryRun}
	ctx = services.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, d.logger)
	finish := func(err error) (Summary, error) {
		summary.Duration = time.Since(summary.StartedAt)
		if err != nil {
			summary.Error = err.Error()
			logging.ErrorWithContext(logger, "scheduler run aborted", "run_aborted",
				logging.String("kind", services.Kind(err)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the next run retries from a fresh read"),
			)
		} else {
			logger.Info("scheduler run complete",
				logging.String("summary", summary.String()),
				logging.Int("published", summary.Published),
				logging.Int("failed_units", summary.FailedUnits),
				logging.Bool("wrote", summary.Wrote),
				logging.String(logging.FieldEventType, "run_complete"),
			)
		}
		return summary, err
	}

	snap, err := d.repo.Load(ctx)
	if err != nil {
		var malformed *queue.MalformedQueueError
		if errors.As(err, &malformed) {
			return finish(err)
		}
		return finish(&TransientStoreError{Op: "load", Err: err})
	}
	summary.QueueSize = len(snap.Posts)

	plan := schedule.Select(snap.Posts, now)
	for _, w := range plan.Warnings {
		summary.Warnings = append(summary.Warnings, w.Error())
		logging.WarnWithContext(logger, "post has an unusable schedule_time; kept in queue", "post_invalid",
			logging.String(logging.FieldPostID, w.PostID),
			logging.Error(w.Err),
			logging.Alert("invalid_schedule_time"),
			logging.String(logging.FieldErrorHint, "fix schedule_time to an ISO-8601 timestamp with an offset"),
			logging.String(logging.FieldImpact, "post will not be published until fixed"),
		)
	}
	summary.DueUnits = len(plan.Units)
	summary.Pending = len(plan.Remaining) - len(plan.Warnings)

	if len(plan.Units) == 0 {
		return finish(nil)
	}
	if d.dryRun {
		for _, unit := range plan.Units {
			summary.Units = append(summary.Units, UnitOutcome{ThreadID: unit.ThreadID, PostIDs: unit.IDs()})
		}
		return finish(nil)
	}

	consumed := make(map[string]struct{})
	var consumedIDs []string
	for _, unit := range plan.Units {
		if ctx.Err() != nil {
			summary.FailedUnits++
			summary.Units = append(summary.Units, UnitOutcome{ThreadID: unit.ThreadID, PostIDs: unit.IDs(), Error: ctx.Err().Error()})
			continue
		}
		result := d.dispatcher.Dispatch(ctx, unit)
		outcome := UnitOutcome{
			ThreadID:  unit.ThreadID,
			PostIDs:   unit.IDs(),
			Consumed:  result.Consumed,
			RemoteIDs: result.RemoteIDs,
		}
		if result.Err != nil {
			outcome.Error = result.Err.Error()
			summary.FailedUnits++
		}
		for _, degraded := range result.Degraded {
			summary.Degraded = append(summary.Degraded, degraded.PostID)
		}
		for _, id := range result.Consumed {
			consumed[id] = struct{}{}
			consumedIDs = append(consumedIDs, id)
		}
		summary.Published += result.Published
		summary.Units = append(summary.Units, outcome)
	}

	if len(consumed) == 0 {
		return finish(nil)
	}

	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), d.saveTimeout)
		defer cancel()
	}

	version, err := d.repo.Save(saveCtx, queue.Without(snap.Posts, consumed), snap.Version)
	if err == nil {
		summary.Wrote = true
		summary.Version = version
		return finish(nil)
	}
	if !errors.Is(err, docstore.ErrVersionConflict) {
		return finish(d.saveFailed(logger, &TransientStoreError{Op: "save", Err: err}, consumedIDs))
	}
	if !d.conflictRetry {
		return finish(d.saveFailed(logger, &VersionConflictError{Version: snap.Version, Consumed: consumedIDs, Err: err}, consumedIDs))
	}

	logging.WarnWithContext(logger, "queue changed during run; re-applying consumed posts to fresh copy", "queue_conflict_retry",
		logging.Int("consumed", len(consumedIDs)),
		logging.String("read_version", snap.Version),
		logging.String(logging.FieldImpact, "none if the retry succeeds"),
	)
	summary.Retried = true
	fresh, err := d.repo.Load(saveCtx)
	if err != nil {
		var malformed *queue.MalformedQueueError
		if !errors.As(err, &malformed) {
			err = &TransientStoreError{Op: "reload", Err: err}
		}
		return finish(d.saveFailed(logger, err, consumedIDs))
	}
	version, err = d.repo.Save(saveCtx, queue.Without(fresh.Posts, consumed), fresh.Version)
	switch {
	case err == nil:
		summary.Wrote = true
		summary.Version = version
		return finish(nil)
	case errors.Is(err, docstore.ErrVersionConflict):
		return finish(d.saveFailed(logger, &VersionConflictError{Version: fresh.Version, Retried: true, Consumed: consumedIDs, Err: err}, consumedIDs))
	default:
		return finish(d.saveFailed(logger, &TransientStoreError{Op: "save", Err: err}, consumedIDs))
	}
}

func (d *Driver) saveFailed(logger *slog.Logger, err error, consumed []string) error {
	logging.ErrorWithContext(logger, "published posts could not be removed from the queue", "queue_save_failed",
		logging.Any("consumed", consumed),
		logging.Error(err),
		logging.String(logging.FieldImpact, "these posts will be published again on the next run"),
		logging.String(logging.FieldErrorHint, "remove the listed post ids with 'herald queue delete'"),
	)
	return err
}
