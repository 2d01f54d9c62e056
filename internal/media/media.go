// Package media turns a post's inline data URI into a platform media handle.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"herald/internal/queue"
)

// DefaultMaxBytes is the largest image accepted for upload.
const DefaultMaxBytes = 1_000_000

// Uploader is the slice of the platform client the resolver needs.
type Uploader interface {
	UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error)
}

// UploadError reports an image that could not be decoded or uploaded. The
// owning post is still publishable as text.
type UploadError struct {
	PostID    string
	MediaType string
	Err       error
}

func (e *UploadError) Error() string {
	if e.MediaType != "" {
		return fmt.Sprintf("media for post %s (%s): %v", e.PostID, e.MediaType, e.Err)
	}
	return fmt.Sprintf("media for post %s: %v", e.PostID, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ErrorKind implements services.Classifier.
func (e *UploadError) ErrorKind() string { return "media" }

// Resolver decodes and uploads post images.
type Resolver struct {
	uploader Uploader
	maxBytes int
}

// NewResolver builds a resolver. maxBytes <= 0 selects DefaultMaxBytes.
func NewResolver(uploader Uploader, maxBytes int) *Resolver {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Resolver{uploader: uploader, maxBytes: maxBytes}
}

// Resolve returns the media handles for post: none when it has no image, one
// otherwise. Any failure is an *UploadError.
func (r *Resolver) Resolve(ctx context.Context, post queue.Post) ([]string, error) {
	if post.ImageData == nil {
		return nil, nil
	}
	data, mediaType, err := Decode(*post.ImageData)
	if err != nil {
		return nil, &UploadError{PostID: post.ID, Err: err}
	}
	if len(data) > r.maxBytes {
		return nil, &UploadError{PostID: post.ID, MediaType: mediaType,
			Err: fmt.Errorf("image is %d bytes, limit is %d", len(data), r.maxBytes)}
	}
	handle, err := r.uploader.UploadMedia(ctx, data, mediaType)
	if err != nil {
		return nil, &UploadError{PostID: post.ID, MediaType: mediaType, Err: err}
	}
	return []string{handle}, nil
}

// Decode unpacks a base64 data URI. When the declared type is generic the
// type is sniffed from the bytes.
func Decode(uri string) ([]byte, string, error) {
	mediaType, payload, err := queue.SplitDataURI(uri)
	if err != nil {
		return nil, "", err
	}
	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("decode base64 payload: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("image payload is empty")
	}
	if mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	return data, mediaType, nil
}
