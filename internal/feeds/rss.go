package feeds

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

const summaryLimit = 500

// RSS reads RSS, Atom, and JSON feeds.
type RSS struct {
	urls   []string
	parser *gofeed.Parser
}

// NewRSS creates a source for urls. A nil client gets a timeout-bound default.
func NewRSS(urls []string, client *http.Client, timeout time.Duration) *RSS {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "Herald-Go/0.1.0"
	return &RSS{urls: urls, parser: parser}
}

func (r *RSS) Name() string { return "rss" }

// Fetch parses every configured feed. The first failing feed aborts the fetch.
func (r *RSS) Fetch(ctx context.Context) ([]Item, error) {
	var items []Item
	for _, url := range r.urls {
		feed, err := r.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			return nil, fmt.Errorf("parse feed %s: %w", url, err)
		}
		for _, entry := range feed.Items {
			if entry == nil {
				continue
			}
			items = append(items, itemFromEntry(feed, entry))
		}
	}
	return items, nil
}

func itemFromEntry(feed *gofeed.Feed, entry *gofeed.Item) Item {
	item := Item{
		Source: "rss:" + feed.Title,
		ID:     entry.GUID,
		Title:  plainText(entry.Title),
		Link:   entry.Link,
	}
	if item.ID == "" {
		item.ID = entry.Link
	}
	summary := entry.Description
	if summary == "" {
		summary = entry.Content
	}
	item.Summary = truncate(plainText(summary), summaryLimit)
	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		item.Author = entry.Authors[0].Name
	}
	switch {
	case entry.PublishedParsed != nil:
		item.Published = entry.PublishedParsed.UTC()
	case entry.UpdatedParsed != nil:
		item.Published = entry.UpdatedParsed.UTC()
	}
	return item
}
