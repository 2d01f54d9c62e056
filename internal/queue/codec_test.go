package queue_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"herald/internal/queue"
)

func strPtr(s string) *string { return &s }

func TestDecodeEmptyDocuments(t *testing.T) {
	for _, raw := range []string{"", "   \n\t", "null", "[]"} {
		posts, err := queue.Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Decode(%q) returned error: %v", raw, err)
		}
		if posts == nil || len(posts) != 0 {
			t.Fatalf("Decode(%q) = %v, want empty non-nil queue", raw, posts)
		}
	}
}

func TestDecodeMalformedDocuments(t *testing.T) {
	for _, raw := range []string{"[{", `{"text":"a"}`, `[1,2]`, `[] []`, `[{"text": 5}]`} {
		_, err := queue.Decode([]byte(raw))
		var malformed *queue.MalformedQueueError
		if !errors.As(err, &malformed) {
			t.Fatalf("Decode(%q) error = %v, want MalformedQueueError", raw, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	cases := map[string][]queue.Post{
		"empty": {},
		"mixed": {
			{ID: "a", Text: "hello <world> & co", ScheduleTime: "2025-01-01T12:00:00+00:00"},
			{ID: "b", Text: "thread 1", ScheduleTime: "2025-01-01T12:01:00+00:00", ThreadID: strPtr("t1")},
			{ID: "c", Text: "pic", ScheduleTime: "2025-01-01T12:02:00Z", ImageData: strPtr("data:image/png;base64,iVBORw0KGgo=")},
		},
	}
	for name, posts := range cases {
		t.Run(name, func(t *testing.T) {
			data, err := queue.Encode(posts)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := queue.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, posts) {
				t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, posts)
			}
		})
	}
}

func TestEncodeIsCanonical(t *testing.T) {
	data, err := queue.Encode([]queue.Post{{ID: "a", Text: "x < y", ScheduleTime: "2025-01-01T12:00:00+00:00"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `[
  {
    "id": "a",
    "text": "x < y",
    "schedule_time": "2025-01-01T12:00:00+00:00",
    "image_data": null,
    "thread_id": null
  }
]
`
	if string(data) != want {
		t.Fatalf("unexpected encoding:\n%s", data)
	}
	empty, _ := queue.Encode(nil)
	if string(empty) != "[]\n" {
		t.Fatalf("nil queue should encode as [], got %q", empty)
	}
}

func TestDecodeBackfillsLegacyIDs(t *testing.T) {
	raw := []byte(`[
  {"text": "same", "schedule_time": "2025-01-01T12:00:00+00:00", "image_data": null, "thread_id": null},
  {"text": "same", "schedule_time": "2025-01-01T12:00:00+00:00", "image_data": "", "thread_id": ""},
  {"id": "keep", "text": "other", "schedule_time": "2025-01-01T12:00:00+00:00"},
  {"id": "keep", "text": "dup", "schedule_time": "2025-01-01T12:00:00+00:00"}
]`)
	first, err := queue.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	second, _ := queue.Decode(raw)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("legacy ids must be deterministic across decodes")
	}
	if !strings.HasPrefix(first[0].ID, "legacy-") || len(first[0].ID) != len("legacy-")+16 {
		t.Fatalf("unexpected legacy id %q", first[0].ID)
	}
	if first[0].ID == first[1].ID {
		t.Fatal("identical legacy posts must receive distinct ids")
	}
	if first[1].ImageData != nil || first[1].ThreadID != nil {
		t.Fatal("empty strings should decode as absent")
	}
	if first[2].ID != "keep" || first[3].ID == "keep" {
		t.Fatalf("duplicate explicit id should be replaced, got %q and %q", first[2].ID, first[3].ID)
	}
}

func TestParseScheduleTime(t *testing.T) {
	want := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	valid := []string{
		"2025-01-01T12:00:00+00:00",
		"2025-01-01T12:00:00Z",
		"2025-01-01 12:00:00+00:00",
		"2025-01-01T07:00:00-05:00",
		"2025-01-01T12:00:00.000000+00:00",
		"2025-01-01T12:00+00:00",
		"2025-01-01T12:00Z",
		"2025-01-01T12:00:00+0000",
		"2025-01-01T17:30:00+0530",
		"2025-01-01T07:00-0500",
		"2025-01-01 12:00+00:00",
		"2025-01-01T12:00:00+00",
	}
	for _, value := range valid {
		got, err := queue.ParseScheduleTime(value)
		if err != nil {
			t.Fatalf("ParseScheduleTime(%q): %v", value, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("ParseScheduleTime(%q) = %v", value, got)
		}
	}
	for _, value := range []string{"", "2025-01-01T12:00:00", "2025-01-01T12:00", "tomorrow", "2025-13-01T00:00:00Z", "2025-01-01T12:00:00+5"} {
		if _, err := queue.ParseScheduleTime(value); !errors.Is(err, queue.ErrInvalidScheduleTime) {
			t.Fatalf("ParseScheduleTime(%q) error = %v, want ErrInvalidScheduleTime", value, err)
		}
	}
}

func TestDisplayScheduleTime(t *testing.T) {
	if got := queue.DisplayScheduleTime("2025-01-01T14:05:00+00:00"); got != "2025-01-01 02:05 PM UTC" {
		t.Fatalf("unexpected display %q", got)
	}
	if got := queue.DisplayScheduleTime("soon"); got != "soon" {
		t.Fatalf("unparsable value should pass through, got %q", got)
	}
}
