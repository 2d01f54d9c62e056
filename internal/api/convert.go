package api

import (
	"encoding/base64"
	"time"

	"herald/internal/history"
	"herald/internal/metrics"
	"herald/internal/publisher"
	"herald/internal/queue"
	"herald/internal/schedule"
)

// FromPosts converts posts into DTOs ordered by schedule time, deriving each
// post's status at now the same way a publish run would.
func FromPosts(posts []queue.Post, now time.Time) []QueueItem {
	if len(posts) == 0 {
		return nil
	}
	plan := schedule.Select(posts, now)
	due := make(map[string]struct{})
	for _, unit := range plan.Units {
		for _, id := range unit.IDs() {
			due[id] = struct{}{}
		}
	}
	problems := make(map[string]string, len(plan.Warnings))
	for _, w := range plan.Warnings {
		problems[w.PostID] = w.Err.Error()
	}

	sorted := queue.SortedBySchedule(posts)
	out := make([]QueueItem, 0, len(sorted))
	for _, p := range sorted {
		item := FromPost(p, sorted)
		switch {
		case problems[p.ID] != "":
			item.Status = StatusInvalid
			item.Problem = problems[p.ID]
		case hasKey(due, p.ID):
			item.Status = StatusDue
		default:
			item.Status = StatusPending
		}
		out = append(out, item)
	}
	return out
}

// FromPost converts one post. siblings supplies the queue used to number
// thread members; the status is left for the caller to derive.
func FromPost(p queue.Post, siblings []queue.Post) QueueItem {
	item := QueueItem{
		ID:           p.ID,
		Text:         p.Text,
		Length:       queue.TextLength(p.Text),
		ScheduleTime: p.ScheduleTime,
		ThreadID:     p.Thread(),
	}
	if p.IsThreaded() {
		members := queue.SortedBySchedule(queue.ThreadMembers(siblings, p.Thread()))
		item.ThreadSize = len(members)
		for i, m := range members {
			if m.ID == p.ID {
				item.ThreadIndex = i + 1
				break
			}
		}
	}
	if image := p.Image(); image != "" {
		if mediaType, payload, err := queue.SplitDataURI(image); err == nil {
			item.ImageType = mediaType
			item.ImageBytes = base64.StdEncoding.DecodedLen(len(payload))
		} else {
			item.Problem = err.Error()
		}
	}
	return item
}

// FromSummary converts a publish run summary.
func FromSummary(summary publisher.Summary, runErr error) RunStatus {
	status := RunStatus{
		RunID:       summary.RunID,
		DurationMS:  summary.Duration.Milliseconds(),
		DryRun:      summary.DryRun,
		QueueSize:   summary.QueueSize,
		DueUnits:    summary.DueUnits,
		Published:   summary.Published,
		FailedUnits: summary.FailedUnits,
		Pending:     summary.Pending,
		Invalid:     len(summary.Warnings),
		Degraded:    summary.Degraded,
		Wrote:       summary.Wrote,
		Retried:     summary.Retried,
		Error:       summary.Error,
		Outcome:     metrics.Outcome(summary, runErr),
		Summary:     summary.String(),
	}
	if runErr == nil && summary.Error != "" {
		status.Outcome = "error"
	}
	if !summary.StartedAt.IsZero() {
		status.StartedAt = summary.StartedAt.UTC().Format(dateTimeFormat)
	}
	return status
}

// FromHistory converts recorded runs, preserving order.
func FromHistory(entries []history.Entry) []RunStatus {
	out := make([]RunStatus, 0, len(entries))
	for _, e := range entries {
		summary := e.Summary
		if summary.RunID == "" {
			summary = publisher.Summary{
				RunID:       e.RunID,
				StartedAt:   e.StartedAt,
				Duration:    e.Duration,
				DryRun:      e.DryRun,
				QueueSize:   e.QueueSize,
				DueUnits:    e.DueUnits,
				Published:   e.Published,
				FailedUnits: e.FailedUnits,
				Pending:     e.Pending,
				Wrote:       e.Wrote,
				Retried:     e.Retried,
				Error:       e.Error,
			}
		}
		out = append(out, FromSummary(summary, nil))
	}
	return out
}

// Counts tallies items by status.
func Counts(items []QueueItem) map[string]int {
	counts := map[string]int{StatusDue: 0, StatusPending: 0, StatusInvalid: 0}
	for _, item := range items {
		counts[item.Status]++
	}
	return counts
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
