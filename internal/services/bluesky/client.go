package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"herald/internal/logging"
	"herald/internal/services"
)

const (
	defaultPDS     = "https://bsky.social"
	postCollection = "app.bsky.feed.post"
	userAgent      = "Herald-Go/0.1.0"

	// maxCachedRefs bounds the reply-ref cache. Evicted parents are fetched
	// again with getRecord.
	maxCachedRefs = 128
)

// Options configures a Client.
type Options struct {
	PDSURL      string
	Identifier  string
	AppPassword string
	Langs       []string
	HTTPClient  *http.Client
	Logger      *slog.Logger
	// Now stamps createdAt; tests override it.
	Now func() time.Time
}

// Client publishes posts on behalf of one account.
type Client struct {
	pds        string
	identifier string
	password   string
	langs      []string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	accessJwt string
	did       string
	refs      map[string]threadRef
	refOrder  []string
	// blobs holds uploaded images until the post that embeds them is created.
	blobs map[string]BlobRef
}

type threadRef struct {
	self strongRef
	root strongRef
}

// New creates a client. Login happens lazily on first use.
func New(opts Options) *Client {
	pds := strings.TrimRight(strings.TrimSpace(opts.PDSURL), "/")
	if pds == "" {
		pds = defaultPDS
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		pds:        pds,
		identifier: strings.TrimSpace(opts.Identifier),
		password:   opts.AppPassword,
		langs:      opts.Langs,
		httpClient: client,
		logger:     logging.NewComponentLogger(opts.Logger, "bluesky"),
		now:        now,
		refs:       map[string]threadRef{},
		blobs:      map[string]BlobRef{},
	}
}

// XRPCError is a non-success XRPC response.
type XRPCError struct {
	Method  string
	Status  int
	Code    string
	Message string
}

func (e *XRPCError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: status %d: %s: %s", e.Method, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Method, e.Status, e.Message)
}

// ErrorKind implements services.Classifier.
func (e *XRPCError) ErrorKind() string {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return services.KindConfiguration
	case e.Status == http.StatusBadRequest && e.Code != "ExpiredToken":
		return services.KindValidation
	default:
		return services.KindTransient
	}
}

func (e *XRPCError) expired() bool {
	return e.Code == "ExpiredToken" || e.Code == "InvalidToken"
}

// Login creates a session with the app password.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	if c.identifier == "" || c.password == "" {
		return services.Wrap(services.ErrConfiguration, "bluesky", "login", "identifier and app password are required", nil)
	}
	var resp createSessionResponse
	body := map[string]string{"identifier": c.identifier, "password": c.password}
	if err := c.call(ctx, http.MethodPost, "com.atproto.server.createSession", nil, body, "", &resp); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	c.accessJwt = resp.AccessJwt
	c.did = resp.DID
	c.logger.Debug("session created", logging.String("did", resp.DID), logging.String("handle", resp.Handle))
	return nil
}

// DID returns the account DID once logged in.
func (c *Client) DID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.did
}

// UploadMedia uploads an image blob and returns a handle for Publish.
func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	var resp uploadBlobResponse
	err := c.authed(ctx, func(token string) error {
		return c.call(ctx, http.MethodPost, "com.atproto.repo.uploadBlob", nil, rawBody{data: data, contentType: mimeType}, token, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("upload blob: %w", err)
	}
	handle := resp.Blob.Ref.Link
	if handle == "" {
		return "", errors.New("upload blob: response carried no blob reference")
	}
	c.mu.Lock()
	c.blobs[handle] = resp.Blob
	c.mu.Unlock()
	return handle, nil
}

// Publish creates an app.bsky.feed.post record and returns its AT-URI.
func (c *Client) Publish(ctx context.Context, text string, media []string, inReplyTo string) (string, error) {
	record := postRecord{
		Type:      postCollection,
		Text:      text,
		CreatedAt: c.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Langs:     c.langs,
		Facets:    detectLinkFacets(text),
	}

	if len(media) > 0 {
		embed := &imagesEmbed{Type: "app.bsky.embed.images"}
		c.mu.Lock()
		for _, handle := range media {
			blob, ok := c.blobs[handle]
			if !ok {
				c.mu.Unlock()
				return "", services.Wrap(services.ErrValidation, "bluesky", "publish", fmt.Sprintf("unknown media handle %q", handle), nil)
			}
			embed.Images = append(embed.Images, embedImage{Alt: "", Image: blob})
		}
		c.mu.Unlock()
		record.Embed = embed
	}

	var root strongRef
	if inReplyTo != "" {
		parent, err := c.resolveRef(ctx, inReplyTo)
		if err != nil {
			return "", fmt.Errorf("resolve reply parent: %w", err)
		}
		root = parent.root
		record.Reply = &replyRef{Root: parent.root, Parent: parent.self}
	}

	var resp createRecordResponse
	err := c.authed(ctx, func(token string) error {
		body := createRecordRequest{Repo: c.DID(), Collection: postCollection, Record: record}
		return c.call(ctx, http.MethodPost, "com.atproto.repo.createRecord", nil, body, token, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}

	self := strongRef{URI: resp.URI, CID: resp.CID}
	if root.URI == "" {
		root = self
	}
	c.mu.Lock()
	c.rememberRefLocked(resp.URI, threadRef{self: self, root: root})
	for _, handle := range media {
		delete(c.blobs, handle)
	}
	c.mu.Unlock()
	return resp.URI, nil
}

func (c *Client) resolveRef(ctx context.Context, uri string) (threadRef, error) {
	c.mu.Lock()
	ref, ok := c.refs[uri]
	c.mu.Unlock()
	if ok {
		return ref, nil
	}

	repo, collection, rkey, err := splitATURI(uri)
	if err != nil {
		return threadRef{}, err
	}
	var resp getRecordResponse
	query := url.Values{"repo": {repo}, "collection": {collection}, "rkey": {rkey}}
	err = c.authed(ctx, func(token string) error {
		return c.call(ctx, http.MethodGet, "com.atproto.repo.getRecord", query, nil, token, &resp)
	})
	if err != nil {
		return threadRef{}, fmt.Errorf("get record: %w", err)
	}
	ref = threadRef{self: strongRef{URI: resp.URI, CID: resp.CID}}
	ref.root = ref.self
	if resp.Value.Reply != nil && resp.Value.Reply.Root.URI != "" {
		ref.root = resp.Value.Reply.Root
	}
	c.mu.Lock()
	c.rememberRefLocked(uri, ref)
	c.mu.Unlock()
	return ref, nil
}

func (c *Client) rememberRefLocked(uri string, ref threadRef) {
	if _, ok := c.refs[uri]; !ok {
		c.refOrder = append(c.refOrder, uri)
	}
	c.refs[uri] = ref
	for len(c.refOrder) > maxCachedRefs {
		delete(c.refs, c.refOrder[0])
		c.refOrder = c.refOrder[1:]
	}
}

// authed runs fn with a session token, logging in first when needed and once
// more when the token has expired.
func (c *Client) authed(ctx context.Context, fn func(token string) error) error {
	c.mu.Lock()
	if c.accessJwt == "" {
		if err := c.loginLocked(ctx); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	token := c.accessJwt
	c.mu.Unlock()

	err := fn(token)
	var xerr *XRPCError
	if !errors.As(err, &xerr) || !xerr.expired() {
		return err
	}
	c.mu.Lock()
	if c.accessJwt == token {
		if err := c.loginLocked(ctx); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	token = c.accessJwt
	c.mu.Unlock()
	return fn(token)
}

type rawBody struct {
	data        []byte
	contentType string
}

func (c *Client) call(ctx context.Context, method, nsid string, query url.Values, body any, token string, out any) error {
	endpoint := c.pds + "/xrpc/" + nsid
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case rawBody:
		reader = bytes.NewReader(b.data)
		contentType = b.contentType
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "bluesky", nsid, "send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "bluesky", nsid, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		xerr := &XRPCError{Method: nsid, Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var payload xrpcErrorBody
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			xerr.Code = payload.Error
			xerr.Message = payload.Message
		}
		return xerr
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func splitATURI(uri string) (string, string, string, error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return "", "", "", services.Wrap(services.ErrValidation, "bluesky", "parse uri", fmt.Sprintf("%q is not an at:// uri", uri), nil)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", services.Wrap(services.ErrValidation, "bluesky", "parse uri", fmt.Sprintf("%q is not a record uri", uri), nil)
	}
	return parts[0], parts[1], parts[2], nil
}
