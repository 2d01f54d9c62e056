package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPlatformRejected is returned by FakePlatform for scripted failures.
var ErrPlatformRejected = errors.New("platform rejected post")

// PublishCall records one Publish invocation.
type PublishCall struct {
	Text      string
	Media     []string
	InReplyTo string
	ID        string
}

// FakePlatform records publishes and uploads and fails on demand.
type FakePlatform struct {
	mu sync.Mutex

	Published []PublishCall
	Uploads   [][]byte

	// FailTexts makes Publish fail for posts with these texts.
	FailTexts map[string]bool
	// FailUploads makes every UploadMedia call fail.
	FailUploads bool
	// PublishHook, when set, runs before each publish and may return an error.
	PublishHook func(ctx context.Context, text string) error
}

// NewFakePlatform returns an empty FakePlatform.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{FailTexts: map[string]bool{}}
}

// Publish implements dispatch.Platform. Returned ids are "remote-N".
func (p *FakePlatform) Publish(ctx context.Context, text string, media []string, inReplyTo string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if hook := p.PublishHook; hook != nil {
		if err := hook(ctx, text); err != nil {
			return "", err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailTexts[text] {
		return "", fmt.Errorf("%w: %q", ErrPlatformRejected, text)
	}
	id := fmt.Sprintf("remote-%d", len(p.Published)+1)
	p.Published = append(p.Published, PublishCall{
		Text:      text,
		Media:     append([]string(nil), media...),
		InReplyTo: inReplyTo,
		ID:        id,
	})
	return id, nil
}

// UploadMedia implements dispatch.Platform. Returned handles are "blob-N".
func (p *FakePlatform) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailUploads {
		return "", fmt.Errorf("%w: upload of %s", ErrPlatformRejected, mimeType)
	}
	p.Uploads = append(p.Uploads, append([]byte(nil), data...))
	return fmt.Sprintf("blob-%d", len(p.Uploads)), nil
}

// Texts returns the published texts in order.
func (p *FakePlatform) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Published))
	for i, call := range p.Published {
		out[i] = call.Text
	}
	return out
}
