// Package schedule decides which queued posts are due.
//
// Select groups standalone posts into singleton units and threaded posts into
// one unit per thread id, wherever the members sit in the queue. A thread is
// atomic: it is due only when every member's schedule time parses and is at or
// before now.
package schedule

import (
	"fmt"
	"slices"
	"time"

	"herald/internal/queue"
)

// Unit is one standalone post or one full thread, the grain of dispatch.
type Unit struct {
	// ThreadID is empty for standalone posts.
	ThreadID string
	// Posts are ordered by ascending schedule time.
	Posts []queue.Post
	// At is the first member's schedule time.
	At time.Time
}

// IsThread reports whether the unit is a thread.
func (u Unit) IsThread() bool { return u.ThreadID != "" }

// IDs lists the unit's post ids in publish order.
func (u Unit) IDs() []string {
	ids := make([]string, len(u.Posts))
	for i, p := range u.Posts {
		ids[i] = p.ID
	}
	return ids
}

// ValidationWarning reports a post that was kept but cannot be scheduled.
type ValidationWarning struct {
	PostID   string
	ThreadID string
	Err      error
}

func (w *ValidationWarning) Error() string {
	return fmt.Sprintf("post %s kept in queue: %v", w.PostID, w.Err)
}

func (w *ValidationWarning) Unwrap() error { return w.Err }

// ErrorKind implements services.Classifier.
func (w *ValidationWarning) ErrorKind() string { return "validation" }

// Plan is the outcome of Select.
type Plan struct {
	Units     []Unit
	Remaining []queue.Post
	Warnings  []*ValidationWarning
	// Pending counts groups that parsed but are not yet due.
	Pending int
}

// DuePosts counts posts across all units.
func (p Plan) DuePosts() int {
	n := 0
	for _, u := range p.Units {
		n += len(u.Posts)
	}
	return n
}

type entry struct {
	post  queue.Post
	index int
	at    time.Time
	ok    bool
}

type group struct {
	threadID string
	members  []entry
}

// Select partitions posts into due units and the remaining queue.
func Select(posts []queue.Post, now time.Time) Plan {
	plan := Plan{Remaining: []queue.Post{}}
	if len(posts) == 0 {
		return plan
	}

	entries := make([]entry, len(posts))
	for i, p := range posts {
		entries[i] = entry{post: p, index: i}
		at, err := p.ScheduledAt()
		if err != nil {
			plan.Warnings = append(plan.Warnings, &ValidationWarning{PostID: p.ID, ThreadID: p.Thread(), Err: err})
			continue
		}
		entries[i].at = at
		entries[i].ok = true
	}

	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b entry) int {
		switch {
		case a.ok && !b.ok:
			return -1
		case !a.ok && b.ok:
			return 1
		case !a.ok && !b.ok:
			return 0
		}
		return a.at.Compare(b.at)
	})

	var groups []*group
	byThread := map[string]*group{}
	for _, e := range sorted {
		tid := e.post.Thread()
		if tid == "" {
			groups = append(groups, &group{members: []entry{e}})
			continue
		}
		g, ok := byThread[tid]
		if !ok {
			g = &group{threadID: tid}
			byThread[tid] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, e)
	}

	consumed := make(map[int]struct{})
	for _, g := range groups {
		due, parsed := true, true
		for _, m := range g.members {
			if !m.ok {
				due, parsed = false, false
				break
			}
			if m.at.After(now) {
				due = false
			}
		}
		if !due {
			if parsed {
				plan.Pending++
			}
			continue
		}
		unit := Unit{ThreadID: g.threadID, At: g.members[0].at, Posts: make([]queue.Post, len(g.members))}
		for i, m := range g.members {
			unit.Posts[i] = m.post
			consumed[m.index] = struct{}{}
		}
		plan.Units = append(plan.Units, unit)
	}

	for i, p := range posts {
		if _, ok := consumed[i]; !ok {
			plan.Remaining = append(plan.Remaining, p)
		}
	}
	return plan
}
