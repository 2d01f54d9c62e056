package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"herald/internal/feeds"
	"herald/internal/queue"
)

// ThreadStride separates consecutive thread members.
const ThreadStride = time.Minute

// State is a session phase.
type State int

const (
	Idle State = iota
	Drafting
	Scheduling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drafting:
		return "drafting"
	case Scheduling:
		return "scheduling"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TransitionError reports an operation attempted in the wrong phase.
type TransitionError struct {
	Op   string
	From State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("compose: cannot %s while %s", e.Op, e.From)
}

func (e *TransitionError) ErrorKind() string { return "validation" }

// Draft is the payload carried from idle into drafting.
type Draft struct {
	Parts []string
	// Image is an optional data URI attached to the first part.
	Image  string
	Source *feeds.Item
	Note   string
}

// Text joins the parts for display.
func (d Draft) Text() string {
	return strings.Join(d.Parts, "\n---\n")
}

// Session tracks one operator's draft from first text to queued posts.
type Session struct {
	state   State
	draft   Draft
	pending []queue.Post
}

// NewSession returns an idle session.
func NewSession() *Session { return &Session{} }

func (s *Session) State() State { return s.state }

// Draft returns the current draft.
func (s *Session) Draft() Draft { return s.draft }

// Pending returns the posts built by Schedule.
func (s *Session) Pending() []queue.Post { return append([]queue.Post(nil), s.pending...) }

// Begin moves idle → drafting.
func (s *Session) Begin(d Draft) error {
	if s.state != Idle {
		return &TransitionError{Op: "begin", From: s.state}
	}
	if len(d.Parts) == 0 {
		return errors.New("compose: draft has no text")
	}
	s.draft = d
	s.state = Drafting
	return nil
}

// Revise replaces the draft text while drafting.
func (s *Session) Revise(parts ...string) error {
	if s.state != Drafting {
		return &TransitionError{Op: "revise", From: s.state}
	}
	if len(parts) == 0 {
		return errors.New("compose: revision has no text")
	}
	s.draft.Parts = parts
	return nil
}

// Split re-splits the draft text into thread parts.
func (s *Session) Split(opts SplitOptions) error {
	if s.state != Drafting {
		return &TransitionError{Op: "split", From: s.state}
	}
	parts := SplitThread(strings.Join(s.draft.Parts, " "), opts)
	if len(parts) == 0 {
		return errors.New("compose: nothing to split")
	}
	s.draft.Parts = parts
	return nil
}

// Schedule moves drafting → scheduling, building validated posts starting at
// start. Multi-part drafts become a thread.
func (s *Session) Schedule(start time.Time) ([]queue.Post, error) {
	if s.state != Drafting {
		return nil, &TransitionError{Op: "schedule", From: s.state}
	}
	posts, err := Thread(s.draft.Parts, start, s.draft.Image)
	if err != nil {
		return nil, err
	}
	s.pending = posts
	s.state = Scheduling
	return s.Pending(), nil
}

// Commit appends the pending posts to the queue and returns to idle.
func (s *Session) Commit(ctx context.Context, repo *queue.Repository) (queue.Snapshot, error) {
	if s.state != Scheduling {
		return queue.Snapshot{}, &TransitionError{Op: "commit", From: s.state}
	}
	pending := s.pending
	snapshot, err := repo.Mutate(ctx, func(posts []queue.Post) ([]queue.Post, error) {
		return append(posts, pending...), nil
	})
	if err != nil {
		return queue.Snapshot{}, err
	}
	s.reset()
	return snapshot, nil
}

// Back returns from scheduling to drafting, discarding built posts.
func (s *Session) Back() error {
	if s.state != Scheduling {
		return &TransitionError{Op: "go back", From: s.state}
	}
	s.pending = nil
	s.state = Drafting
	return nil
}

// Cancel abandons the session from any state.
func (s *Session) Cancel() { s.reset() }

func (s *Session) reset() {
	s.state = Idle
	s.draft = Draft{}
	s.pending = nil
}

// Thread builds posts for parts starting at start. A single part is a
// standalone post; several parts share a new thread id and are spaced
// ThreadStride apart. image attaches to the first part only.
func Thread(parts []string, start time.Time, image string) ([]queue.Post, error) {
	if len(parts) == 0 {
		return nil, errors.New("compose: no parts to schedule")
	}
	threadID := ""
	if len(parts) > 1 {
		threadID = queue.NewThreadID()
	}
	posts := make([]queue.Post, 0, len(parts))
	for i, part := range parts {
		img := ""
		if i == 0 {
			img = image
		}
		post, err := queue.NewPost(part, start.Add(time.Duration(i)*ThreadStride), img, threadID)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i+1, err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}
