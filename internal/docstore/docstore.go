package docstore

import (
	"context"
	"fmt"

	"herald/internal/services"
)

var (
	// ErrNotFound reports that the document does not exist yet.
	ErrNotFound = fmt.Errorf("%w: queue document", services.ErrNotFound)
	// ErrVersionConflict reports that the stored document changed since it was read.
	ErrVersionConflict = fmt.Errorf("%w: queue document version mismatch", services.ErrConflict)
)

// Document is one versioned read of the queue document.
type Document struct {
	Data    []byte
	Version string
}

// Store is a versioned single-document store.
type Store interface {
	// Read returns the current document or ErrNotFound.
	Read(ctx context.Context) (Document, error)
	// Write replaces the document when version matches the stored version and
	// returns the new version. An empty version means create; it fails with
	// ErrVersionConflict when the document already exists.
	Write(ctx context.Context, data []byte, version string) (string, error)
}

// Describer is implemented by stores that can name their location for logs.
type Describer interface {
	Describe() string
}

// Describe returns a human-readable location for store.
func Describe(store Store) string {
	if d, ok := store.(Describer); ok {
		return d.Describe()
	}
	return fmt.Sprintf("%T", store)
}
