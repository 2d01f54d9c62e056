package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"herald/internal/logging"
)

const postCollection = "app.bsky.feed.post"

// Jetstream listens to the Bluesky firehose for new top-level posts by the
// watched accounts. Each Fetch opens a connection, collects until it has
// maxItems or the window elapses, and closes it.
type Jetstream struct {
	url      string
	dids     []string
	maxItems int
	window   time.Duration
	dialer   *websocket.Dialer
	logger   *slog.Logger
}

// NewJetstream creates a Jetstream source.
func NewJetstream(endpoint string, dids []string, maxItems int, window time.Duration, logger *slog.Logger) *Jetstream {
	if maxItems <= 0 {
		maxItems = 10
	}
	return &Jetstream{
		url:      endpoint,
		dids:     dids,
		maxItems: maxItems,
		window:   window,
		dialer:   websocket.DefaultDialer,
		logger:   logging.NewComponentLogger(logger, "jetstream"),
	}
}

func (j *Jetstream) Name() string { return "jetstream" }

func (j *Jetstream) buildURL() (string, error) {
	u, err := url.Parse(j.url)
	if err != nil {
		return "", fmt.Errorf("parse jetstream url: %w", err)
	}
	q := u.Query()
	q.Add("wantedCollections", postCollection)
	for _, did := range j.dids {
		q.Add("wantedDids", did)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch collects posts until the window closes. Reaching the end of the
// window is not an error.
func (j *Jetstream) Fetch(ctx context.Context) ([]Item, error) {
	wsURL, err := j.buildURL()
	if err != nil {
		return nil, err
	}
	if j.window > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.window)
		defer cancel()
	}

	conn, _, err := j.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial jetstream: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	j.logger.Debug("connected to jetstream", logging.String("url", wsURL))

	var items []Item
	for len(items) < j.maxItems {
		_, message, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
				break
			}
			if len(items) > 0 {
				j.logger.Debug("jetstream closed early", logging.Error(err))
				break
			}
			return nil, fmt.Errorf("read jetstream: %w", err)
		}
		item, ok, err := parseEvent(message)
		if err != nil {
			j.logger.Debug("skipping unparsable event", logging.Error(err))
			continue
		}
		if ok {
			items = append(items, item)
		}
	}
	return items, nil
}

type jetstreamEvent struct {
	DID    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *jetstreamCommit `json:"commit,omitempty"`
}

type jetstreamCommit struct {
	Rev        string      `json:"rev"`
	Operation  string      `json:"operation"`
	Collection string      `json:"collection"`
	RKey       string      `json:"rkey"`
	Record     *postRecord `json:"record,omitempty"`
	CID        string      `json:"cid"`
}

type postRecord struct {
	Text      string          `json:"text"`
	CreatedAt string          `json:"createdAt"`
	Langs     []string        `json:"langs"`
	Reply     json.RawMessage `json:"reply,omitempty"`
}

// parseEvent turns a created top-level post into an Item. Other events
// report ok=false.
func parseEvent(data []byte) (Item, bool, error) {
	var event jetstreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return Item{}, false, fmt.Errorf("unmarshal event: %w", err)
	}
	commit := event.Commit
	if event.Kind != "commit" || commit == nil || commit.Operation != "create" || commit.Collection != postCollection {
		return Item{}, false, nil
	}
	if commit.Record == nil || commit.Record.Text == "" || len(commit.Record.Reply) > 0 {
		return Item{}, false, nil
	}

	uri := fmt.Sprintf("at://%s/%s/%s", event.DID, commit.Collection, commit.RKey)
	item := Item{
		Source:  "jetstream",
		ID:      uri,
		Summary: commit.Record.Text,
		Author:  event.DID,
		Link:    fmt.Sprintf("https://bsky.app/profile/%s/post/%s", event.DID, commit.RKey),
	}
	if at, err := time.Parse(time.RFC3339, commit.Record.CreatedAt); err == nil {
		item.Published = at.UTC()
	} else if event.TimeUS > 0 {
		item.Published = time.UnixMicro(event.TimeUS).UTC()
	}
	return item, true, nil
}
