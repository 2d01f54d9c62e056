package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const snippetLimit = 80

// MalformedQueueError reports a stored document that is not a JSON array of
// posts. It must abort a run; treating the document as empty would erase the
// queue on the next write.
type MalformedQueueError struct {
	Snippet string
	Err     error
}

func (e *MalformedQueueError) Error() string {
	return fmt.Sprintf("malformed queue document near %q: %v", e.Snippet, e.Err)
}

func (e *MalformedQueueError) Unwrap() error { return e.Err }

// ErrorKind implements services.Classifier.
func (e *MalformedQueueError) ErrorKind() string { return "malformed_queue" }

// Decode parses a queue document. Empty, whitespace-only, and null documents
// decode to an empty queue. Posts without an id, or whose id repeats an
// earlier post's, receive a deterministic content-derived id.
func Decode(raw []byte) ([]Post, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Post{}, nil
	}

	var posts []Post
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&posts); err != nil {
		return nil, &MalformedQueueError{Snippet: snippet(trimmed), Err: err}
	}
	if dec.More() {
		return nil, &MalformedQueueError{Snippet: snippet(trimmed), Err: fmt.Errorf("trailing data after queue array")}
	}
	if posts == nil {
		posts = []Post{}
	}
	for i := range posts {
		posts[i].ImageData = nonEmpty(posts[i].ImageData)
		posts[i].ThreadID = nonEmpty(posts[i].ThreadID)
	}
	assignMissingIDs(posts)
	return posts, nil
}

// Encode renders posts as the canonical document: a JSON array with two-space
// indentation, keys in declaration order, explicit nulls, and a trailing newline.
func Encode(posts []Post) ([]byte, error) {
	if posts == nil {
		posts = []Post{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(posts); err != nil {
		return nil, fmt.Errorf("encode queue: %w", err)
	}
	return buf.Bytes(), nil
}

func assignMissingIDs(posts []Post) {
	seen := make(map[string]struct{}, len(posts))
	occurrences := make(map[string]int)
	for i := range posts {
		id := strings.TrimSpace(posts[i].ID)
		if _, dup := seen[id]; id != "" && !dup {
			posts[i].ID = id
			seen[id] = struct{}{}
			continue
		}
		key := posts[i].Text + "\x00" + posts[i].ScheduleTime + "\x00" + posts[i].Thread()
		for {
			candidate := legacyID(posts[i], occurrences[key])
			occurrences[key]++
			if _, taken := seen[candidate]; !taken {
				posts[i].ID = candidate
				seen[candidate] = struct{}{}
				break
			}
		}
	}
}

func nonEmpty(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	return value
}

func snippet(raw []byte) string {
	s := string(raw)
	if len(s) > snippetLimit {
		s = s[:snippetLimit] + "..."
	}
	return s
}
