package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"herald/internal/services"
)

// TextLimit is the maximum post length in Unicode code points after NFC normalization.
const TextLimit = 280

// WireTimeLayout is the layout producers use for schedule_time.
const WireTimeLayout = "2006-01-02T15:04:05+00:00"

// DisplayTimeLayout renders schedule times for operators.
const DisplayTimeLayout = "2006-01-02 03:04 PM UTC"

// ErrInvalidScheduleTime marks a schedule_time that cannot be interpreted.
var ErrInvalidScheduleTime = errors.New("invalid schedule_time")

// Post is one schedulable item.
type Post struct {
	ID           string  `json:"id"`
	Text         string  `json:"text"`
	ScheduleTime string  `json:"schedule_time"`
	ImageData    *string `json:"image_data"`
	ThreadID     *string `json:"thread_id"`
}

// Snapshot is a decoded queue plus the store version it was read at.
type Snapshot struct {
	Posts   []Post
	Version string
}

// PostValidationError reports a single post that violates the queue invariants.
type PostValidationError struct {
	PostID string
	Field  string
	Reason string
	Err    error
}

func (e *PostValidationError) Error() string {
	subject := "post"
	if e.PostID != "" {
		subject = "post " + e.PostID
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", subject, e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", subject, e.Field, e.Reason)
}

func (e *PostValidationError) Unwrap() error { return e.Err }

// ErrorKind implements services.Classifier.
func (e *PostValidationError) ErrorKind() string { return services.KindValidation }

// NewID returns a fresh post identifier.
func NewID() string { return uuid.NewString() }

// NewThreadID returns a fresh thread identifier.
func NewThreadID() string { return uuid.NewString() }

// NewPost builds a validated post scheduled at at. image is a data URI or
// empty; threadID is empty for standalone posts.
func NewPost(text string, at time.Time, image, threadID string) (Post, error) {
	post := Post{
		ID:           NewID(),
		Text:         NormalizeText(text),
		ScheduleTime: FormatScheduleTime(at),
	}
	if image = strings.TrimSpace(image); image != "" {
		post.ImageData = &image
	}
	if threadID = strings.TrimSpace(threadID); threadID != "" {
		post.ThreadID = &threadID
	}
	if err := post.Validate(); err != nil {
		return Post{}, err
	}
	return post, nil
}

// IsThreaded reports whether the post belongs to a thread.
func (p Post) IsThreaded() bool { return p.ThreadID != nil && *p.ThreadID != "" }

// Thread returns the thread id or "".
func (p Post) Thread() string {
	if p.ThreadID == nil {
		return ""
	}
	return *p.ThreadID
}

// Image returns the image data URI or "".
func (p Post) Image() string {
	if p.ImageData == nil {
		return ""
	}
	return *p.ImageData
}

// ScheduledAt parses the post's schedule_time.
func (p Post) ScheduledAt() (time.Time, error) {
	at, err := ParseScheduleTime(p.ScheduleTime)
	if err != nil {
		return time.Time{}, &PostValidationError{PostID: p.ID, Field: "schedule_time", Reason: "unparsable", Err: err}
	}
	return at, nil
}

// Validate checks the invariants producers must satisfy before persisting.
func (p Post) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return &PostValidationError{PostID: p.ID, Field: "text", Reason: "must not be empty", Err: services.ErrValidation}
	}
	if n := TextLength(p.Text); n > TextLimit {
		return &PostValidationError{PostID: p.ID, Field: "text",
			Reason: fmt.Sprintf("%d code points exceeds limit of %d", n, TextLimit), Err: services.ErrValidation}
	}
	if _, err := p.ScheduledAt(); err != nil {
		return err
	}
	if p.ImageData != nil {
		if _, _, err := SplitDataURI(*p.ImageData); err != nil {
			return &PostValidationError{PostID: p.ID, Field: "image_data", Reason: "not a base64 data URI", Err: err}
		}
	}
	if p.ThreadID != nil && strings.TrimSpace(*p.ThreadID) == "" {
		return &PostValidationError{PostID: p.ID, Field: "thread_id", Reason: "must be null or non-empty", Err: services.ErrValidation}
	}
	return nil
}

// NormalizeText applies NFC normalization.
func NormalizeText(text string) string {
	return norm.NFC.String(text)
}

// TextLength counts code points after NFC normalization.
func TextLength(text string) int {
	return utf8.RuneCountInString(norm.NFC.String(text))
}

// FitText normalizes text and shortens it to at most limit code points,
// cutting at the last word boundary and marking the cut with an ellipsis.
func FitText(text string, limit int) string {
	text = strings.TrimSpace(NormalizeText(text))
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	cut := runes[:limit-1]
	for i := len(cut) - 1; i > len(cut)/2; i-- {
		if cut[i] == ' ' || cut[i] == '\n' {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRight(string(cut), " \n\t.,;:") + "…"
}

// ParseScheduleTime parses an ISO-8601 timestamp with an explicit offset. It
// accepts "Z", numeric offsets, fractional seconds, and a space instead of
// "T" between date and time.
func ParseScheduleTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidScheduleTime)
	}
	if len(trimmed) > 10 && trimmed[10] == ' ' {
		trimmed = trimmed[:10] + "T" + trimmed[11:]
	}
	at, err := time.Parse(time.RFC3339Nano, trimmed)
	if err == nil {
		return at.UTC(), nil
	}
	for _, layout := range isoOffsetLayouts {
		if at, isoErr := time.Parse(layout, trimmed); isoErr == nil {
			return at.UTC(), nil
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04"} {
		if _, naiveErr := time.Parse(layout, trimmed); naiveErr == nil {
			return time.Time{}, fmt.Errorf("%w: %q has no UTC offset", ErrInvalidScheduleTime, value)
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidScheduleTime, value, err)
}

// isoOffsetLayouts are ISO 8601 forms beyond RFC 3339 that still carry an
// explicit offset: minute precision, and offsets without a colon.
var isoOffsetLayouts = []string{
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05.999999999Z07",
}

// FormatScheduleTime renders t in UTC in the wire layout.
func FormatScheduleTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(WireTimeLayout)
}

// DisplayScheduleTime renders a stored schedule_time for operators, falling
// back to the raw value when it does not parse.
func DisplayScheduleTime(value string) string {
	at, err := ParseScheduleTime(value)
	if err != nil {
		return value
	}
	return at.Format(DisplayTimeLayout)
}

// legacyID derives a stable id for a post stored without one. occurrence
// disambiguates byte-identical posts.
func legacyID(p Post, occurrence int) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d", p.Text, p.ScheduleTime, p.Thread(), occurrence)
	return "legacy-" + hex.EncodeToString(h.Sum(nil))[:16]
}
