package queue_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"herald/internal/queue"
	"herald/internal/services"
	"herald/internal/testsupport"
)

func TestNewPostValidates(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))
	post, err := queue.NewPost("hello", at, "", "")
	if err != nil {
		t.Fatalf("NewPost: %v", err)
	}
	if post.ID == "" || post.ScheduleTime != "2025-03-01T14:30:00+00:00" {
		t.Fatalf("unexpected post %+v", post)
	}
	if post.IsThreaded() || post.ImageData != nil {
		t.Fatal("expected standalone text-only post")
	}

	cases := []struct {
		name  string
		text  string
		image string
	}{
		{"empty", "   ", ""},
		{"too long", strings.Repeat("x", queue.TextLimit+1), ""},
		{"bad image", "ok", "http://example.com/a.png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := queue.NewPost(tc.text, at, tc.image, "")
			var verr *queue.PostValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected PostValidationError, got %v", err)
			}
			if services.Kind(err) != services.KindValidation {
				t.Fatalf("expected validation kind, got %q", services.Kind(err))
			}
		})
	}
}

func TestTextLimitCountsNormalizedCodePoints(t *testing.T) {
	// "e" + combining acute composes to a single code point under NFC.
	decomposed := strings.Repeat("e\u0301", queue.TextLimit)
	if queue.TextLength(decomposed) != queue.TextLimit {
		t.Fatalf("expected %d code points, got %d", queue.TextLimit, queue.TextLength(decomposed))
	}
	if _, err := queue.NewPost(decomposed, time.Now(), "", ""); err != nil {
		t.Fatalf("normalized text at the limit should be accepted: %v", err)
	}
	if _, err := queue.NewPost(strings.Repeat("🙂", queue.TextLimit), time.Now(), "", ""); err != nil {
		t.Fatalf("emoji count as one code point each: %v", err)
	}
}

func TestValidateRejectsMissingOffset(t *testing.T) {
	post := queue.Post{ID: "p", Text: "x", ScheduleTime: "2025-01-01T12:00:00"}
	err := post.Validate()
	if !errors.Is(err, queue.ErrInvalidScheduleTime) {
		t.Fatalf("expected ErrInvalidScheduleTime, got %v", err)
	}
}

func TestSplitDataURI(t *testing.T) {
	mediaType, payload, err := queue.SplitDataURI("data:image/jpeg;base64,/9j/4AAQ")
	if err != nil || mediaType != "image/jpeg" || payload != "/9j/4AAQ" {
		t.Fatalf("unexpected split: %q %q %v", mediaType, payload, err)
	}
	for _, bad := range []string{"image/png;base64,xx", "data:image/png,xx", "data:image/png;base64", "data:image/png;base64,"} {
		if _, _, err := queue.SplitDataURI(bad); !errors.Is(err, queue.ErrInvalidDataURI) {
			t.Fatalf("SplitDataURI(%q) error = %v", bad, err)
		}
	}
	if got := queue.EncodeDataURI("image/png", []byte{0x89, 'P'}); got != "data:image/png;base64,iVA=" {
		t.Fatalf("unexpected encoding %q", got)
	}
}

func TestResolveAndSort(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	posts := []queue.Post{
		testsupport.Post("abc-1", "late", base.Add(time.Hour), ""),
		{ID: "abd-2", Text: "broken", ScheduleTime: "nope"},
		testsupport.Post("xyz-3", "early", base, ""),
	}

	if p, err := queue.Resolve(posts, "xyz"); err != nil || p.ID != "xyz-3" {
		t.Fatalf("unique prefix should resolve, got %v %v", p.ID, err)
	}
	if _, err := queue.Resolve(posts, "ab"); services.Kind(err) != services.KindValidation {
		t.Fatalf("ambiguous prefix should be a validation error, got %v", err)
	}
	if _, err := queue.Resolve(posts, "zzz"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unknown id should be not found, got %v", err)
	}

	sorted := queue.SortedBySchedule(posts)
	if got := testsupport.IDs(sorted); strings.Join(got, ",") != "xyz-3,abc-1,abd-2" {
		t.Fatalf("unexpected order %v", got)
	}
	if posts[0].ID != "abc-1" {
		t.Fatal("SortedBySchedule must not reorder its input")
	}
	if rest := queue.Without(posts, queue.IDSet("abd-2")); len(rest) != 2 || rest[1].ID != "xyz-3" {
		t.Fatalf("unexpected Without result %v", testsupport.IDs(rest))
	}
}

func TestFitText(t *testing.T) {
	long := strings.Repeat("word ", 70)
	fitted := queue.FitText(long, queue.TextLimit)
	if n := queue.TextLength(fitted); n > queue.TextLimit {
		t.Fatalf("fitted text has %d code points", n)
	}
	if !strings.HasSuffix(fitted, "word…") {
		t.Fatalf("expected cut at word boundary, got %q", fitted[len(fitted)-12:])
	}
	if got := queue.FitText("  short  ", queue.TextLimit); got != "short" {
		t.Fatalf("short text should only be trimmed, got %q", got)
	}
}
