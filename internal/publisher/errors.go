package publisher

import (
	"fmt"

	"herald/internal/services"
)

// TransientStoreError wraps a queue store failure. The run made no change and
// the next scheduled run may succeed.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("queue store %s failed: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// ErrorKind implements services.Classifier.
func (e *TransientStoreError) ErrorKind() string {
	if kind := services.Kind(e.Err); kind == services.KindConfiguration {
		return kind
	}
	return "store"
}

// VersionConflictError reports that the queue changed under the run and the
// write was abandoned. The stored document is whatever the other writer left.
type VersionConflictError struct {
	Version string
	Retried bool
	// Consumed lists the published post ids that are still in the stored
	// queue because the write was abandoned.
	Consumed []string
	Err      error
}

func (e *VersionConflictError) Error() string {
	retry := ""
	if e.Retried {
		retry = " after retry"
	}
	return fmt.Sprintf("queue write conflicted%s (read at version %q); %d published posts remain queued: %v",
		retry, e.Version, len(e.Consumed), e.Err)
}

func (e *VersionConflictError) Unwrap() error { return e.Err }

// ErrorKind implements services.Classifier.
func (e *VersionConflictError) ErrorKind() string { return services.KindConflict }
