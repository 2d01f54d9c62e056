package api

import (
	"context"
	"time"

	"herald/internal/queue"
)

// QueueLoader abstracts the queue reads needed for API queries.
type QueueLoader interface {
	Load(ctx context.Context) (queue.Snapshot, error)
}

// QueueService exposes read-only queue operations returning API DTOs.
type QueueService struct {
	repo QueueLoader
	now  func() time.Time
}

// NewQueueService constructs a QueueService around the provided loader.
func NewQueueService(repo QueueLoader) *QueueService {
	if repo == nil {
		return nil
	}
	return &QueueService{repo: repo, now: time.Now}
}

// List returns every queued post ordered by schedule time.
func (s *QueueService) List(ctx context.Context) ([]QueueItem, error) {
	if s == nil || s.repo == nil {
		return nil, nil
	}
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return FromPosts(snap.Posts, s.now()), nil
}

// Stats returns post counts keyed by status.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Counts(items), nil
}

// Describe fetches a single post by id or unique id prefix.
func (s *QueueService) Describe(ctx context.Context, ref string) (*QueueItem, error) {
	if s == nil || s.repo == nil {
		return nil, nil
	}
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	post, err := queue.Resolve(snap.Posts, ref)
	if err != nil {
		return nil, err
	}
	for _, item := range FromPosts(snap.Posts, s.now()) {
		if item.ID == post.ID {
			return &item, nil
		}
	}
	return nil, nil
}
