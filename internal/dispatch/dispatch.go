// Package dispatch publishes due units to the social platform.
//
// A standalone unit is one top-level post. A thread is published strictly in
// order: the first member top-level, each later member as a reply to the
// member published just before it. The dispatcher reports exactly which
// members the platform accepted so the caller removes those and only those
// from the queue.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"herald/internal/logging"
	"herald/internal/media"
	"herald/internal/queue"
	"herald/internal/schedule"
	"herald/internal/services"
)

// DefaultPause separates consecutive thread members.
const DefaultPause = 2 * time.Second

// DefaultCallTimeout bounds each publish or upload call.
const DefaultCallTimeout = 30 * time.Second

// Platform publishes posts and uploads media.
type Platform interface {
	// Publish creates a post, replying to inReplyTo when it is non-empty, and
	// returns the platform's identifier for it.
	Publish(ctx context.Context, text string, media []string, inReplyTo string) (string, error)
	// UploadMedia stores data and returns a handle Publish accepts in media.
	UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error)
}

// PublishError reports the member of a unit the platform did not accept.
type PublishError struct {
	PostID   string
	ThreadID string
	// Index is the member's position within its unit.
	Index int
	Err   error
}

func (e *PublishError) Error() string {
	if e.ThreadID != "" {
		return fmt.Sprintf("publish post %s (thread %s, member %d): %v", e.PostID, e.ThreadID, e.Index+1, e.Err)
	}
	return fmt.Sprintf("publish post %s: %v", e.PostID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ErrorKind implements services.Classifier.
func (e *PublishError) ErrorKind() string { return "publish" }

// Result describes one dispatched unit.
type Result struct {
	Unit schedule.Unit
	// Consumed lists the ids of members the platform accepted, in order.
	Consumed []string
	// RemoteIDs holds the platform identifiers parallel to Consumed.
	RemoteIDs []string
	Published int
	// Degraded lists posts published without their image.
	Degraded []*media.UploadError
	// Err is non-nil when the unit stopped after Published members.
	Err error
}

// Failed reports whether the unit did not complete.
func (r Result) Failed() bool { return r.Err != nil }

// Options tunes a Dispatcher.
type Options struct {
	Pause       time.Duration
	CallTimeout time.Duration
	MaxImage    int
	Logger      *slog.Logger
}

// Dispatcher publishes units through a Platform.
type Dispatcher struct {
	platform    Platform
	resolver    *media.Resolver
	pause       time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
}

// New builds a Dispatcher. A zero pause or timeout selects the default; a
// negative pause is clamped to one millisecond so thread members never go out
// back to back.
func New(platform Platform, opts Options) *Dispatcher {
	pause := opts.Pause
	switch {
	case pause == 0:
		pause = DefaultPause
	case pause < time.Millisecond:
		pause = time.Millisecond
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Dispatcher{
		platform:    platform,
		resolver:    media.NewResolver(platform, opts.MaxImage),
		pause:       pause,
		callTimeout: timeout,
		logger:      logging.NewComponentLogger(opts.Logger, "dispatch"),
	}
}

// Dispatch publishes every member of unit in order and stops at the first
// failure.
func (d *Dispatcher) Dispatch(ctx context.Context, unit schedule.Unit) Result {
	result := Result{Unit: unit}
	if unit.IsThread() {
		ctx = services.WithThreadID(ctx, unit.ThreadID)
	}

	parent := ""
	for i, post := range unit.Posts {
		postCtx := services.WithPostID(ctx, post.ID)
		logger := logging.WithContext(postCtx, d.logger)

		if i > 0 {
			if err := sleep(postCtx, d.pause); err != nil {
				result.Err = &PublishError{PostID: post.ID, ThreadID: unit.ThreadID, Index: i, Err: err}
				return result
			}
		}

		handles, err := d.resolveMedia(postCtx, post)
		if err != nil {
			var degraded *media.UploadError
			if !errors.As(err, &degraded) {
				degraded = &media.UploadError{PostID: post.ID, Err: err}
			}
			result.Degraded = append(result.Degraded, degraded)
			logging.WarnWithContext(logger, "image dropped; publishing text only", "media_degraded",
				logging.Error(err),
				logging.Alert("image_dropped"),
				logging.String(logging.FieldImpact, "post goes out without its image"),
				logging.String(logging.FieldErrorHint, "check image_data encoding and size"),
			)
		}

		remoteID, err := d.publish(postCtx, post.Text, handles, parent)
		if err != nil {
			result.Err = &PublishError{PostID: post.ID, ThreadID: unit.ThreadID, Index: i, Err: err}
			logging.ErrorWithContext(logger, "publish failed", "publish_failed",
				logging.Int("index", i),
				logging.Int("published", result.Published),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "post stays queued for the next run"),
			)
			return result
		}

		result.Consumed = append(result.Consumed, post.ID)
		result.RemoteIDs = append(result.RemoteIDs, remoteID)
		result.Published++
		parent = remoteID
		logger.Info("post published",
			logging.String("remote_id", remoteID),
			logging.Int("index", i),
			logging.Int("media", len(handles)),
			logging.String(logging.FieldEventType, "post_published"),
		)
	}
	return result
}

func (d *Dispatcher) resolveMedia(ctx context.Context, post queue.Post) ([]string, error) {
	if post.ImageData == nil {
		return nil, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	return d.resolver.Resolve(callCtx, post)
}

func (d *Dispatcher) publish(ctx context.Context, text string, handles []string, parent string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	id, err := d.platform.Publish(callCtx, text, handles, parent)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("platform returned an empty post id")
	}
	return id, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
