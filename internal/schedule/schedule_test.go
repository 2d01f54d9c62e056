package schedule_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"herald/internal/queue"
	"herald/internal/schedule"
	"herald/internal/testsupport"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSelectEmptyQueue(t *testing.T) {
	plan := schedule.Select(nil, now)
	if len(plan.Units) != 0 || plan.Remaining == nil || len(plan.Remaining) != 0 {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestSelectStandalone(t *testing.T) {
	posts := []queue.Post{
		testsupport.Post("future", "later", now.Add(time.Hour), ""),
		testsupport.Post("due2", "b", now.Add(-time.Minute), ""),
		testsupport.Post("due1", "a", now.Add(-time.Hour), ""),
		testsupport.Post("exact", "c", now, ""),
	}
	plan := schedule.Select(posts, now)

	var order []string
	for _, u := range plan.Units {
		if u.IsThread() || len(u.Posts) != 1 {
			t.Fatalf("expected singleton units, got %+v", u)
		}
		order = append(order, u.Posts[0].ID)
	}
	if !reflect.DeepEqual(order, []string{"due1", "due2", "exact"}) {
		t.Fatalf("units should follow schedule order, got %v", order)
	}
	if got := testsupport.IDs(plan.Remaining); !reflect.DeepEqual(got, []string{"future"}) {
		t.Fatalf("unexpected remaining %v", got)
	}
	if plan.Pending != 1 || plan.DuePosts() != 3 {
		t.Fatalf("unexpected counts pending=%d due=%d", plan.Pending, plan.DuePosts())
	}
}

func TestSelectGathersScatteredThreadMembers(t *testing.T) {
	posts := []queue.Post{
		testsupport.Post("t1-b", "second", now.Add(-time.Minute), "t1"),
		testsupport.Post("solo", "solo", now.Add(-30*time.Minute), ""),
		testsupport.Post("t1-a", "first", now.Add(-2*time.Minute), "t1"),
	}
	plan := schedule.Select(posts, now)
	if len(plan.Units) != 2 {
		t.Fatalf("expected two units, got %d", len(plan.Units))
	}
	if plan.Units[0].Posts[0].ID != "solo" {
		t.Fatalf("solo is earliest and should dispatch first, got %v", plan.Units[0].IDs())
	}
	thread := plan.Units[1]
	if thread.ThreadID != "t1" || !reflect.DeepEqual(thread.IDs(), []string{"t1-a", "t1-b"}) {
		t.Fatalf("thread members out of order: %+v", thread.IDs())
	}
	if len(plan.Remaining) != 0 {
		t.Fatalf("expected nothing remaining, got %v", testsupport.IDs(plan.Remaining))
	}
}

func TestSelectThreadAtomicity(t *testing.T) {
	posts := []queue.Post{
		testsupport.Post("t-a", "1", now.Add(-2*time.Minute), "t"),
		testsupport.Post("t-b", "2", now.Add(-time.Minute), "t"),
		testsupport.Post("t-c", "3", now.Add(time.Minute), "t"),
	}
	plan := schedule.Select(posts, now)
	if len(plan.Units) != 0 {
		t.Fatalf("partially due thread must not dispatch, got %+v", plan.Units)
	}
	if !reflect.DeepEqual(testsupport.IDs(plan.Remaining), []string{"t-a", "t-b", "t-c"}) {
		t.Fatalf("thread must remain intact, got %v", testsupport.IDs(plan.Remaining))
	}
}

func TestSelectUnparsableTimes(t *testing.T) {
	broken := queue.Post{ID: "broken", Text: "x", ScheduleTime: "2025-06-01T11:00:00"}
	threadBroken := queue.Post{ID: "tb", Text: "y", ScheduleTime: "garbage", ThreadID: strPtr("t2")}
	posts := []queue.Post{
		broken,
		testsupport.Post("ok", "ok", now.Add(-time.Hour), ""),
		testsupport.Post("ta", "t2 first", now.Add(-time.Hour), "t2"),
		threadBroken,
	}
	plan := schedule.Select(posts, now)

	if len(plan.Units) != 1 || plan.Units[0].Posts[0].ID != "ok" {
		t.Fatalf("only the valid standalone post should be due, got %+v", plan.Units)
	}
	if !reflect.DeepEqual(testsupport.IDs(plan.Remaining), []string{"broken", "ta", "tb"}) {
		t.Fatalf("unexpected remaining %v", testsupport.IDs(plan.Remaining))
	}
	if len(plan.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %d", len(plan.Warnings))
	}
	for _, w := range plan.Warnings {
		if !errors.Is(w, queue.ErrInvalidScheduleTime) {
			t.Fatalf("warning should wrap ErrInvalidScheduleTime: %v", w)
		}
	}
	if plan.Warnings[1].ThreadID != "t2" {
		t.Fatalf("warning should carry the thread id, got %+v", plan.Warnings[1])
	}
}

func TestSelectRemainingKeepsOriginalOrder(t *testing.T) {
	posts := []queue.Post{
		testsupport.Post("z", "z", now.Add(3*time.Hour), ""),
		testsupport.Post("due", "d", now.Add(-time.Hour), ""),
		testsupport.Post("a", "a", now.Add(time.Hour), ""),
		testsupport.Post("m", "m", now.Add(2*time.Hour), "tm"),
	}
	plan := schedule.Select(posts, now)
	if !reflect.DeepEqual(testsupport.IDs(plan.Remaining), []string{"z", "a", "m"}) {
		t.Fatalf("remaining must keep queue order, got %v", testsupport.IDs(plan.Remaining))
	}
}

func TestSelectStableForEqualTimes(t *testing.T) {
	posts := []queue.Post{
		testsupport.Post("first", "1", now.Add(-time.Minute), "t"),
		testsupport.Post("second", "2", now.Add(-time.Minute), "t"),
	}
	plan := schedule.Select(posts, now)
	if len(plan.Units) != 1 || !reflect.DeepEqual(plan.Units[0].IDs(), []string{"first", "second"}) {
		t.Fatalf("ties must keep queue order, got %+v", plan.Units)
	}
}

func strPtr(s string) *string { return &s }
