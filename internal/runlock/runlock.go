// Package runlock keeps scheduler runs and daemon instances from overlapping
// by holding an advisory file lock.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"herald/internal/services"
)

// ErrBusy means another process holds the lock.
var ErrBusy = errors.New("lock held by another process")

// Lock is a held advisory lock.
type Lock struct {
	path string
	lock *flock.Flock
}

// TryAcquire takes the lock at path without waiting.
func TryAcquire(path string) (*Lock, error) {
	lock, err := prepare(path)
	if err != nil {
		return nil, err
	}
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, busy(path)
	}
	return &Lock{path: path, lock: lock}, nil
}

// Acquire waits for the lock until ctx is done, polling every retry.
func Acquire(ctx context.Context, path string, retry time.Duration) (*Lock, error) {
	lock, err := prepare(path)
	if err != nil {
		return nil, err
	}
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	ok, err := lock.TryLockContext(ctx, retry)
	if err != nil {
		if ctx.Err() != nil {
			return nil, busy(path)
		}
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, busy(path)
	}
	return &Lock{path: path, lock: lock}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

func prepare(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock directory: %w", err)
	}
	return flock.New(path), nil
}

func busy(path string) error {
	return services.Wrap(services.ErrConflict, "runlock", "acquire", path, ErrBusy)
}
