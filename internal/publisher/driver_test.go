package publisher_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"herald/internal/dispatch"
	"herald/internal/docstore"
	"herald/internal/logging"
	"herald/internal/publisher"
	"herald/internal/queue"
	"herald/internal/testsupport"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store    *testsupport.MemoryStore
	platform *testsupport.FakePlatform
	driver   *publisher.Driver
}

func newHarness(t *testing.T, data []byte, opts publisher.Options) *harness {
	t.Helper()
	store := testsupport.NewMemoryStore(data)
	platform := testsupport.NewFakePlatform()
	repo := queue.NewRepository(store, logging.NewNop())
	d := dispatch.New(platform, dispatch.Options{Pause: time.Millisecond, Logger: logging.NewNop()})
	opts.Logger = logging.NewNop()
	return &harness{store: store, platform: platform, driver: publisher.New(repo, d, opts)}
}

func (h *harness) run(t *testing.T) (publisher.Summary, error) {
	t.Helper()
	return h.driver.RunOnce(context.Background(), now)
}

func TestScenarioASinglePostPublished(t *testing.T) {
	h := newHarness(t, testsupport.EncodeQueue(t, testsupport.Post("a", "A", now.Add(-time.Hour), "")), publisher.Options{})

	summary, err := h.run(t)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !reflect.DeepEqual(h.platform.Texts(), []string{"A"}) {
		t.Fatalf("expected A published once, got %v", h.platform.Texts())
	}
	if got := testsupport.DecodeQueue(t, h.store.Data()); len(got) != 0 {
		t.Fatalf("expected empty queue, got %v", testsupport.IDs(got))
	}
	if !summary.Wrote || summary.Published != 1 || h.store.Writes != 1 {
		t.Fatalf("unexpected summary %+v (writes=%d)", summary, h.store.Writes)
	}
}

func TestScenarioBThreadPublishedStandaloneKept(t *testing.T) {
	h := newHarness(t, testsupport.EncodeQueue(t,
		testsupport.Post("solo", "later", now.Add(time.Hour), ""),
		testsupport.Post("t1-b", "second", now.Add(-time.Minute), "t1"),
		testsupport.Post("t1-a", "first", now.Add(-2*time.Minute), "t1"),
	), publisher.Options{})

	if _, err := h.run(t); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	calls := h.platform.Published
	if len(calls) != 2 || calls[0].Text != "first" || calls[1].Text != "second" {
		t.Fatalf("unexpected publishes %+v", calls)
	}
	if calls[0].InReplyTo != "" || calls[1].InReplyTo != calls[0].ID {
		t.Fatalf("second member must reply to the first: %+v", calls)
	}
	remaining := testsupport.DecodeQueue(t, h.store.Data())
	if !reflect.DeepEqual(testsupport.IDs(remaining), []string{"solo"}) {
		t.Fatalf("expected only the standalone post to remain, got %v", testsupport.IDs(remaining))
	}
}

func TestScenarioCMalformedDocumentAborts(t *testing.T) {
	original := []byte(`[{"text": "A", "schedule_time": `)
	h := newHarness(t, original, publisher.Options{ConflictRetry: true})

	summary, err := h.run(t)
	var malformed *queue.MalformedQueueError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedQueueError, got %v", err)
	}
	if h.store.Writes != 0 || string(h.store.Data()) != string(original) {
		t.Fatal("malformed document must be left untouched")
	}
	if len(h.platform.Published) != 0 || summary.Error == "" {
		t.Fatalf("nothing may be published; summary %+v", summary)
	}
}

func TestScenarioDStaleVersionReportsConflict(t *testing.T) {
	data := testsupport.EncodeQueue(t, testsupport.Post("a", "A", now.Add(-time.Hour), ""))
	h := newHarness(t, data, publisher.Options{ConflictRetry: false})
	concurrent := testsupport.EncodeQueue(t,
		testsupport.Post("a", "A", now.Add(-time.Hour), ""),
		testsupport.Post("new", "operator added", now.Add(time.Hour), ""),
	)
	h.store.BeforeWrite = func(s *testsupport.MemoryStore) { s.Replace(concurrent) }

	_, err := h.run(t)
	var conflict *publisher.VersionConflictError
	if !errors.As(err, &conflict) || conflict.Retried {
		t.Fatalf("expected VersionConflictError without retry, got %v", err)
	}
	if !errors.Is(err, docstore.ErrVersionConflict) {
		t.Fatal("conflict should wrap docstore.ErrVersionConflict")
	}
	if string(h.store.Data()) != string(concurrent) || h.store.Writes != 0 {
		t.Fatal("concurrent writer's document must survive untouched")
	}
	if !reflect.DeepEqual(conflict.Consumed, []string{"a"}) {
		t.Fatalf("conflict should list consumed posts, got %v", conflict.Consumed)
	}
}

func TestConflictRetryReappliesConsumedSet(t *testing.T) {
	data := testsupport.EncodeQueue(t,
		testsupport.Post("a", "A", now.Add(-time.Hour), ""),
		testsupport.Post("b", "B", now.Add(time.Hour), ""),
	)
	h := newHarness(t, data, publisher.Options{ConflictRetry: true})
	concurrent := testsupport.EncodeQueue(t,
		testsupport.Post("new", "operator added", now.Add(2*time.Hour), ""),
		testsupport.Post("a", "A", now.Add(-time.Hour), ""),
		testsupport.Post("b", "B", now.Add(time.Hour), ""),
	)
	replaced := false
	h.store.BeforeWrite = func(s *testsupport.MemoryStore) {
		if !replaced {
			replaced = true
			s.Replace(concurrent)
		}
	}

	summary, err := h.run(t)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !summary.Wrote || !summary.Retried {
		t.Fatalf("expected write after retry, got %+v", summary)
	}
	got := testsupport.IDs(testsupport.DecodeQueue(t, h.store.Data()))
	if !reflect.DeepEqual(got, []string{"new", "b"}) {
		t.Fatalf("retry must match by id and keep the concurrent edit, got %v", got)
	}
}

func TestConflictRetryGivesUpOnSecondConflict(t *testing.T) {
	data := testsupport.EncodeQueue(t, testsupport.Post("a", "A", now.Add(-time.Hour), ""))
	h := newHarness(t, data, publisher.Options{ConflictRetry: true})
	h.store.BeforeWrite = func(s *testsupport.MemoryStore) { s.Replace(data) }

	_, err := h.run(t)
	var conflict *publisher.VersionConflictError
	if !errors.As(err, &conflict) || !conflict.Retried {
		t.Fatalf("expected retried VersionConflictError, got %v", err)
	}
}

func TestNoDueItemsPerformsNoWrite(t *testing.T) {
	data := testsupport.EncodeQueue(t,
		testsupport.Post("a", "A", now.Add(time.Hour), ""),
		testsupport.Post("t-a", "1", now.Add(-time.Minute), "t"),
		testsupport.Post("t-b", "2", now.Add(time.Minute), "t"),
	)
	h := newHarness(t, data, publisher.Options{})

	for i := 0; i < 2; i++ {
		summary, err := h.run(t)
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		if summary.Wrote || summary.DueUnits != 0 || summary.Pending != 3 {
			t.Fatalf("unexpected summary %+v", summary)
		}
	}
	if h.store.Writes != 0 || len(h.platform.Published) != 0 {
		t.Fatalf("no-op run must not write or publish (writes=%d)", h.store.Writes)
	}
}

func TestMissingDocumentIsEmptyQueue(t *testing.T) {
	h := newHarness(t, nil, publisher.Options{})
	summary, err := h.run(t)
	if err != nil || summary.Wrote || summary.QueueSize != 0 {
		t.Fatalf("unexpected result %+v %v", summary, err)
	}
}

func TestLoadFailureIsTransient(t *testing.T) {
	h := newHarness(t, []byte("[]"), publisher.Options{})
	h.store.ReadErr = errors.New("connection reset")

	_, err := h.run(t)
	var transient *publisher.TransientStoreError
	if !errors.As(err, &transient) || transient.Op != "load" {
		t.Fatalf("expected TransientStoreError on load, got %v", err)
	}
	if h.store.Writes != 0 {
		t.Fatal("failed load must not write")
	}
}

func TestSaveFailureIsTransient(t *testing.T) {
	h := newHarness(t, testsupport.EncodeQueue(t, testsupport.Post("a", "A", now.Add(-time.Hour), "")), publisher.Options{})
	h.store.WriteErr = errors.New("503")

	_, err := h.run(t)
	var transient *publisher.TransientStoreError
	if !errors.As(err, &transient) || transient.Op != "save" {
		t.Fatalf("expected TransientStoreError on save, got %v", err)
	}
}

func TestPartialThreadFailureKeepsUnreachedMembers(t *testing.T) {
	h := newHarness(t, testsupport.EncodeQueue(t,
		testsupport.Post("m1", "one", now.Add(-4*time.Minute), "t"),
		testsupport.Post("m2", "two", now.Add(-3*time.Minute), "t"),
		testsupport.Post("m3", "three", now.Add(-2*time.Minute), "t"),
		testsupport.Post("m4", "four", now.Add(-1*time.Minute), "t"),
	), publisher.Options{})
	h.platform.FailTexts["three"] = true

	summary, err := h.run(t)
	if err != nil {
		t.Fatalf("per-unit failure must not abort the run: %v", err)
	}
	if summary.FailedUnits != 1 || summary.Published != 2 || !summary.Wrote {
		t.Fatalf("unexpected summary %+v", summary)
	}
	got := testsupport.IDs(testsupport.DecodeQueue(t, h.store.Data()))
	if !reflect.DeepEqual(got, []string{"m3", "m4"}) {
		t.Fatalf("members k..N must remain, got %v", got)
	}
}

func TestAllUnitsFailedMeansNoWrite(t *testing.T) {
	h := newHarness(t, testsupport.EncodeQueue(t,
		testsupport.Post("a", "A", now.Add(-time.Hour), ""),
		testsupport.Post("b", "B", now.Add(-time.Hour), ""),
	), publisher.Options{})
	h.platform.FailTexts["A"] = true
	h.platform.FailTexts["B"] = true

	summary, err := h.run(t)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.FailedUnits != 2 || summary.Wrote || h.store.Writes != 0 {
		t.Fatalf("expected no write when nothing was consumed, got %+v", summary)
	}
}

func TestRemovedPostsEqualConsumedPosts(t *testing.T) {
	posts := []queue.Post{
		testsupport.Post("s1", "s1", now.Add(-time.Hour), ""),
		testsupport.Post("s2", "bad", now.Add(-50*time.Minute), ""),
		{ID: "broken", Text: "broken", ScheduleTime: "yesterday"},
		testsupport.Post("t-a", "ta", now.Add(-40*time.Minute), "t"),
		testsupport.Post("t-b", "tb", now.Add(-30*time.Minute), "t"),
		testsupport.Post("f", "f", now.Add(time.Hour), ""),
	}
	h := newHarness(t, testsupport.EncodeQueue(t, posts...), publisher.Options{})
	h.platform.FailTexts["bad"] = true

	summary, err := h.run(t)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	consumed := map[string]bool{}
	for _, u := range summary.Units {
		for _, id := range u.Consumed {
			consumed[id] = true
		}
	}
	remaining := map[string]bool{}
	for _, p := range testsupport.DecodeQueue(t, h.store.Data()) {
		remaining[p.ID] = true
	}
	for _, p := range posts {
		if consumed[p.ID] == remaining[p.ID] {
			t.Fatalf("post %s: consumed=%v remaining=%v; removal must equal consumption", p.ID, consumed[p.ID], remaining[p.ID])
		}
	}
	if len(summary.Warnings) != 1 || !strings.Contains(summary.Warnings[0], "broken") {
		t.Fatalf("expected one warning for the broken post, got %v", summary.Warnings)
	}
}

func TestLegacyDocumentGetsIDsOnWrite(t *testing.T) {
	legacy := []byte(`[
  {"text": "old", "schedule_time": "2025-06-01T11:00:00+00:00", "image_data": null, "thread_id": null},
  {"text": "keep", "schedule_time": "2025-06-01T13:00:00+00:00", "image_data": null, "thread_id": null}
]`)
	h := newHarness(t, legacy, publisher.Options{})
	if _, err := h.run(t); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := testsupport.DecodeQueue(t, h.store.Data())
	if len(got) != 1 || got[0].Text != "keep" || !strings.HasPrefix(got[0].ID, "legacy-") {
		t.Fatalf("unexpected queue after run: %+v", got)
	}
	if !strings.Contains(string(h.store.Data()), `"id": "legacy-`) {
		t.Fatal("backfilled id should be persisted")
	}
}

func TestDryRunDoesNotPublishOrWrite(t *testing.T) {
	h := newHarness(t, testsupport.EncodeQueue(t, testsupport.Post("a", "A", now.Add(-time.Hour), "")), publisher.Options{DryRun: true})
	summary, err := h.run(t)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(h.platform.Published) != 0 || h.store.Writes != 0 || summary.DueUnits != 1 {
		t.Fatalf("dry run must only report, got %+v", summary)
	}
	if !strings.HasPrefix(summary.String(), "dry run:") {
		t.Fatalf("unexpected summary line %q", summary.String())
	}
}

func TestCancelledRunStillRecordsPublishedPosts(t *testing.T) {
	h := newHarness(t, testsupport.EncodeQueue(t,
		testsupport.Post("a", "A", now.Add(-2*time.Hour), ""),
		testsupport.Post("b", "B", now.Add(-time.Hour), ""),
	), publisher.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	h.platform.PublishHook = func(_ context.Context, text string) error {
		if text == "A" {
			cancel()
		}
		return nil
	}

	summary, err := h.driver.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Published != 1 || summary.FailedUnits != 1 || !summary.Wrote {
		t.Fatalf("unexpected summary %+v", summary)
	}
	got := testsupport.IDs(testsupport.DecodeQueue(t, h.store.Data()))
	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("published post must be removed even after cancellation, got %v", got)
	}
}

func TestSummaryString(t *testing.T) {
	s := publisher.Summary{Published: 3, FailedUnits: 1, Pending: 2, Wrote: true, Retried: true, Warnings: []string{"w"}, Duration: 1500 * time.Millisecond}
	want := "published 3 posts, 1 failed, 2 skipped, 1 invalid; queue saved after conflict retry (1.5s)"
	if got := s.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
