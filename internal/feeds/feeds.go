package feeds

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"herald/internal/logging"
)

// Item is one piece of source material.
type Item struct {
	Source    string
	ID        string
	Title     string
	Link      string
	Summary   string
	Author    string
	Published time.Time
}

// Source produces items on demand.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Item, error)
}

// Collect fetches every source and returns the newest items first, capped at
// limit when limit is positive. A failing source is logged and skipped; an
// error is returned only when every source failed.
func Collect(ctx context.Context, logger *slog.Logger, limit int, sources ...Source) ([]Item, error) {
	logger = logging.NewComponentLogger(logger, "feeds")
	var (
		items []Item
		errs  []error
	)
	for _, source := range sources {
		fetched, err := source.Fetch(ctx)
		if err != nil {
			logging.WarnWithContext(logger, "feed source failed", "feed_fetch_failed",
				logging.String("source", source.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the feed url and network access"),
				logging.String(logging.FieldImpact, "items from this source are not offered for drafting"),
			)
			errs = append(errs, err)
			continue
		}
		items = append(items, fetched...)
	}
	if len(sources) > 0 && len(errs) == len(sources) {
		return nil, errors.Join(errs...)
	}
	slices.SortStableFunc(items, func(a, b Item) int {
		return b.Published.Compare(a.Published)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// plainText drops markup from feed summaries and collapses whitespace.
func plainText(value string) string {
	value = tagPattern.ReplaceAllString(value, " ")
	replacer := strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ")
	value = replacer.Replace(value)
	return strings.TrimSpace(spacePattern.ReplaceAllString(value, " "))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
