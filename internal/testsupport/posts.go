package testsupport

import (
	"testing"
	"time"

	"herald/internal/queue"
)

// Post builds a post with a fixed id scheduled at at. threadID may be empty.
func Post(id, text string, at time.Time, threadID string) queue.Post {
	p := queue.Post{ID: id, Text: text, ScheduleTime: queue.FormatScheduleTime(at)}
	if threadID != "" {
		p.ThreadID = &threadID
	}
	return p
}

// EncodeQueue encodes posts or fails the test.
func EncodeQueue(t testing.TB, posts ...queue.Post) []byte {
	t.Helper()
	data, err := queue.Encode(posts)
	if err != nil {
		t.Fatalf("encode queue: %v", err)
	}
	return data
}

// DecodeQueue decodes data or fails the test.
func DecodeQueue(t testing.TB, data []byte) []queue.Post {
	t.Helper()
	posts, err := queue.Decode(data)
	if err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	return posts
}

// IDs lists post ids in order.
func IDs(posts []queue.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
