package queue

import (
	"fmt"
	"slices"
	"strings"

	"herald/internal/services"
)

// Without returns the posts whose ids are not in drop, preserving order.
func Without(posts []Post, drop map[string]struct{}) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if _, ok := drop[p.ID]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

// IDSet builds a lookup set from ids.
func IDSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Resolve finds the post whose id equals ref or, failing that, the single post
// whose id starts with ref.
func Resolve(posts []Post, ref string) (Post, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Post{}, services.Wrap(services.ErrValidation, "queue", "resolve", "empty post id", nil)
	}
	var matches []Post
	for _, p := range posts {
		if p.ID == ref {
			return p, nil
		}
		if strings.HasPrefix(p.ID, ref) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return Post{}, services.Wrap(services.ErrNotFound, "queue", "resolve", fmt.Sprintf("no post with id %q", ref), nil)
	case 1:
		return matches[0], nil
	default:
		return Post{}, services.Wrap(services.ErrValidation, "queue", "resolve",
			fmt.Sprintf("id prefix %q matches %d posts", ref, len(matches)), nil)
	}
}

// ThreadMembers returns the posts sharing threadID in queue order.
func ThreadMembers(posts []Post, threadID string) []Post {
	var out []Post
	for _, p := range posts {
		if threadID != "" && p.Thread() == threadID {
			out = append(out, p)
		}
	}
	return out
}

// SortedBySchedule returns a copy ordered by schedule time. Posts whose time
// does not parse keep their relative order at the end.
func SortedBySchedule(posts []Post) []Post {
	out := slices.Clone(posts)
	slices.SortStableFunc(out, func(a, b Post) int {
		at, aErr := ParseScheduleTime(a.ScheduleTime)
		bt, bErr := ParseScheduleTime(b.ScheduleTime)
		switch {
		case aErr != nil && bErr != nil:
			return 0
		case aErr != nil:
			return 1
		case bErr != nil:
			return -1
		}
		return at.Compare(bt)
	})
	return out
}
