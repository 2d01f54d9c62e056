package publisher

import (
	"fmt"
	"strings"
	"time"
)

// UnitOutcome records one dispatched unit.
type UnitOutcome struct {
	ThreadID  string   `json:"thread_id,omitempty"`
	PostIDs   []string `json:"post_ids"`
	Consumed  []string `json:"consumed"`
	RemoteIDs []string `json:"remote_ids,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Summary describes one run.
type Summary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	DryRun      bool          `json:"dry_run,omitempty"`
	QueueSize   int           `json:"queue_size"`
	DueUnits    int           `json:"due_units"`
	Published   int           `json:"published"`
	FailedUnits int           `json:"failed_units"`
	// Pending counts posts that were not due.
	Pending  int           `json:"pending"`
	Warnings []string      `json:"warnings,omitempty"`
	Degraded []string      `json:"degraded,omitempty"`
	Units    []UnitOutcome `json:"units,omitempty"`
	Wrote    bool          `json:"wrote"`
	Version  string        `json:"version,omitempty"`
	Retried  bool          `json:"retried,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// String renders the one-line run log.
func (s Summary) String() string {
	var b strings.Builder
	if s.DryRun {
		b.WriteString("dry run: ")
		fmt.Fprintf(&b, "%d due units (%d posts) of %d queued", s.DueUnits, s.duePosts(), s.QueueSize)
		return b.String()
	}
	fmt.Fprintf(&b, "published %d", s.Published)
	if s.Published == 1 {
		b.WriteString(" post")
	} else {
		b.WriteString(" posts")
	}
	fmt.Fprintf(&b, ", %d failed, %d skipped", s.FailedUnits, s.Pending)
	if n := len(s.Warnings); n > 0 {
		fmt.Fprintf(&b, ", %d invalid", n)
	}
	if n := len(s.Degraded); n > 0 {
		fmt.Fprintf(&b, ", %d without image", n)
	}
	switch {
	case s.Error != "":
		b.WriteString("; error: ")
		b.WriteString(s.Error)
	case s.Wrote:
		b.WriteString("; queue saved")
		if s.Retried {
			b.WriteString(" after conflict retry")
		}
	default:
		b.WriteString("; queue unchanged")
	}
	fmt.Fprintf(&b, " (%s)", s.Duration.Round(time.Millisecond))
	return b.String()
}

func (s Summary) duePosts() int {
	n := 0
	for _, u := range s.Units {
		n += len(u.PostIDs)
	}
	return n
}
