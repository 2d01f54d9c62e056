package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"herald/internal/docstore"
	"herald/internal/logging"
)

// DefaultMutateAttempts bounds Mutate's conflict retries.
const DefaultMutateAttempts = 3

// Mutation transforms a queue. It receives a private copy.
type Mutation func(posts []Post) ([]Post, error)

// Repository reads and writes the queue document through a versioned store.
type Repository struct {
	store    docstore.Store
	logger   *slog.Logger
	attempts int
}

// NewRepository wraps store.
func NewRepository(store docstore.Store, logger *slog.Logger) *Repository {
	return &Repository{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "queue"),
		attempts: DefaultMutateAttempts,
	}
}

// Store exposes the underlying document store.
func (r *Repository) Store() docstore.Store { return r.store }

// Load reads and decodes the queue. A missing document is an empty queue with
// an empty version, so the next Save creates it.
func (r *Repository) Load(ctx context.Context) (Snapshot, error) {
	doc, err := r.store.Read(ctx)
	if errors.Is(err, docstore.ErrNotFound) {
		return Snapshot{Posts: []Post{}}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	posts, err := Decode(doc.Data)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Posts: posts, Version: doc.Version}, nil
}

// Save encodes posts and writes them conditionally on version.
func (r *Repository) Save(ctx context.Context, posts []Post, version string) (string, error) {
	data, err := Encode(posts)
	if err != nil {
		return "", err
	}
	return r.store.Write(ctx, data, version)
}

// Mutate applies fn to a fresh snapshot and saves the result, re-reading and
// re-applying fn when another writer got there first.
func (r *Repository) Mutate(ctx context.Context, fn Mutation) (Snapshot, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		snap, err := r.Load(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		next, err := fn(slices.Clone(snap.Posts))
		if err != nil {
			return Snapshot{}, err
		}
		version, err := r.Save(ctx, next, snap.Version)
		if err == nil {
			return Snapshot{Posts: next, Version: version}, nil
		}
		if !errors.Is(err, docstore.ErrVersionConflict) {
			return Snapshot{}, err
		}
		lastErr = err
		r.logger.Debug("queue write conflicted; retrying",
			logging.Int("attempt", attempt),
			logging.String(logging.FieldEventType, "queue_mutate_conflict"),
		)
	}
	return Snapshot{}, fmt.Errorf("queue mutate gave up after %d attempts: %w", r.attempts, lastErr)
}
