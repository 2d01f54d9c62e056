package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"herald/internal/config"
	"herald/internal/publisher"
	"herald/internal/services"
)

const userAgent = "Herald-Go/0.1.0"

// Service is the notification surface used by the scheduler.
type Service interface {
	NotifyRunSummary(ctx context.Context, summary publisher.Summary) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		runSummary: cfg.Notifications.RunSummary,
		errors:     cfg.Notifications.Errors,
		minPosts:   cfg.Notifications.SummaryMinPosts,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	runSummary bool
	errors     bool
	minPosts   int
}

// NotifyRunSummary reports runs that published or failed something. Quiet
// runs and runs below the configured post threshold are skipped.
func (n *ntfyService) NotifyRunSummary(ctx context.Context, summary publisher.Summary) error {
	if !n.runSummary || summary.DryRun {
		return nil
	}
	failed := summary.FailedUnits > 0 || summary.Error != ""
	if !failed && (summary.Published == 0 || summary.Published < n.minPosts) {
		return nil
	}

	data := payload{
		title:   "Herald - Posts Published",
		message: "📣 " + summary.String(),
		tags:    []string{"herald", "run", "completed"},
	}
	if failed {
		data.title = "Herald - Run Finished With Failures"
		data.message = "⚠️ " + summary.String()
		data.tags = []string{"herald", "run", "warning"}
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, context string) error {
	if !n.errors || err == nil {
		return nil
	}
	var builder strings.Builder
	context = strings.TrimSpace(context)
	if context != "" {
		fmt.Fprintf(&builder, "❌ Error with %s: %v", context, err)
	} else {
		fmt.Fprintf(&builder, "❌ Error: %v", err)
	}
	if kind := services.Kind(err); kind != services.KindUnknown {
		fmt.Fprintf(&builder, "\nKind: %s", kind)
	}
	data := payload{
		title:    "Herald - Error",
		message:  builder.String(),
		tags:     []string{"herald", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Herald - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"herald", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "notifications", "send", "ntfy request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunSummary(context.Context, publisher.Summary) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error          { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
