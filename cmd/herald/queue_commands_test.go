package main

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"herald/internal/api"
)

func TestQueueAddListShowDelete(t *testing.T) {
	env := setupCLI(t, envOptions{})

	out := env.mustRun(t, "queue", "add", "hello", "world", "--date", "2025-06-01", "--time", "09:30 AM")
	requireContains(t, out, "Scheduled post")
	requireContains(t, out, "2025-06-01 09:30 AM UTC")

	posts := env.queueDocument(t)
	if len(posts) != 1 {
		t.Fatalf("expected one stored post, got %d", len(posts))
	}
	if posts[0]["text"] != "hello world" || posts[0]["schedule_time"] != "2025-06-01T09:30:00+00:00" {
		t.Fatalf("unexpected stored post: %v", posts[0])
	}
	id, _ := posts[0]["id"].(string)

	out = env.mustRun(t, "queue", "list")
	requireContains(t, out, id[:8])
	requireContains(t, out, "hello world")

	out = env.mustRun(t, "queue", "show", id[:8])
	requireContains(t, out, "ID:        "+id)
	requireContains(t, out, "Length:    11/280")

	out = env.mustRun(t, "queue", "delete", id[:8])
	requireContains(t, out, "Deleted 1 post(s)")
	if got := env.queueDocument(t); len(got) != 0 {
		t.Fatalf("expected empty queue after delete, got %v", got)
	}

	out = env.mustRun(t, "queue", "list")
	requireContains(t, out, "Queue is empty")
}

func TestQueueThreadFromText(t *testing.T) {
	env := setupCLI(t, envOptions{})
	long := strings.Repeat("Lorem ipsum dolor sit amet. ", 20)

	out := env.mustRun(t, "queue", "thread", "--text", long, "--at", "2025-06-01T12:00:00Z")
	requireContains(t, out, "Scheduled thread")

	out = env.mustRun(t, "queue", "list", "--json")
	var resp api.QueueListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out)
	}
	if len(resp.Items) < 2 {
		t.Fatalf("expected split thread, got %d items", len(resp.Items))
	}
	threadID := resp.Items[0].ThreadID
	for i, item := range resp.Items {
		if item.ThreadID == "" || item.ThreadID != threadID {
			t.Fatalf("item %d not in thread %q: %+v", i, threadID, item)
		}
		if item.Length > 280 {
			t.Fatalf("item %d exceeds limit: %d", i, item.Length)
		}
		if item.ThreadSize != len(resp.Items) {
			t.Fatalf("item %d thread size = %d, want %d", i, item.ThreadSize, len(resp.Items))
		}
	}
	requireContains(t, resp.Items[0].Text, "1/")

	out = env.mustRun(t, "queue", "delete", "--thread", resp.Items[1].ID)
	requireContains(t, out, "Deleted "+strconv.Itoa(len(resp.Items))+" post(s)")
}

func TestQueueThreadRejectsSinglePart(t *testing.T) {
	env := setupCLI(t, envOptions{})
	if _, err := env.run(t, "queue", "thread", "only one", "--at", "2025-06-01T12:00:00Z"); err == nil {
		t.Fatal("expected error for single-part thread")
	}
}

func TestQueueAddRequiresScheduleTime(t *testing.T) {
	env := setupCLI(t, envOptions{})
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing", args: []string{"queue", "add", "text"}},
		{name: "date without time", args: []string{"queue", "add", "text", "--date", "2025-06-01"}},
		{name: "both forms", args: []string{"queue", "add", "text", "--at", "2025-06-01T12:00:00Z", "--date", "2025-06-01", "--time", "1:00 PM"}},
		{name: "bad clock", args: []string{"queue", "add", "text", "--date", "2025-06-01", "--time", "25:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.run(t, tt.args...); err == nil {
				t.Fatalf("expected error for %v", tt.args)
			}
		})
	}
}

func TestQueueDuePreview(t *testing.T) {
	env := setupCLI(t, envOptions{})
	env.mustRun(t, "queue", "add", "early", "--at", "2025-06-01T08:00:00Z")
	env.mustRun(t, "queue", "add", "late", "--at", "2025-06-01T20:00:00Z")

	out := env.mustRun(t, "queue", "due", "--now", "2025-06-01T12:00:00Z")
	requireContains(t, out, "early")
	if strings.Contains(out, "late") {
		t.Fatalf("future post listed as due:\n%s", out)
	}

	out = env.mustRun(t, "queue", "due", "--now", "2025-06-01T07:00:00Z")
	requireContains(t, out, "nothing due")
}
