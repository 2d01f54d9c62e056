package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"

	"herald/internal/logging"
	"herald/internal/services"
)

const githubUserAgent = "Herald-Go/0.1.0"

// GitHubOptions configures the contents API backend.
type GitHubOptions struct {
	BaseURL       string
	Owner         string
	Repo          string
	Branch        string
	Path          string
	Token         string
	CommitMessage string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// GitHubStore keeps the queue document in a repository file and uses the blob
// sha as the version token.
type GitHubStore struct {
	client  *github.Client
	owner   string
	repo    string
	branch  string
	path    string
	message string
	logger  *slog.Logger
}

// NewGitHub constructs a GitHub contents API store.
func NewGitHub(opts GitHubOptions) *GitHubStore {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	client := github.NewClient(httpClient)
	if token := strings.TrimSpace(opts.Token); token != "" {
		client = client.WithAuthToken(token)
	}
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		if parsed, err := url.Parse(base + "/"); err == nil {
			client.BaseURL = parsed
		}
	}
	client.UserAgent = githubUserAgent

	message := strings.TrimSpace(opts.CommitMessage)
	if message == "" {
		message = "Updated posts via Scheduler"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GitHubStore{
		client:  client,
		owner:   strings.TrimSpace(opts.Owner),
		repo:    strings.TrimSpace(opts.Repo),
		branch:  strings.TrimSpace(opts.Branch),
		path:    strings.TrimLeft(strings.TrimSpace(opts.Path), "/"),
		message: message,
		logger:  logger,
	}
}

// Describe implements Describer.
func (s *GitHubStore) Describe() string {
	loc := fmt.Sprintf("github:%s/%s/%s", s.owner, s.repo, s.path)
	if s.branch != "" {
		loc += "@" + s.branch
	}
	return loc
}

// HTTPError is a non-success response from the contents API.
type HTTPError struct {
	Op          string
	Status      int
	Message     string
	RateLimited bool
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("github %s: status %d: %s", e.Op, e.Status, e.Message)
}

// ErrorKind implements services.Classifier.
func (e *HTTPError) ErrorKind() string {
	switch {
	case e.RateLimited:
		return services.KindTransient
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return services.KindConfiguration
	case e.Status == http.StatusUnprocessableEntity:
		return services.KindValidation
	default:
		return services.KindTransient
	}
}

// Read fetches the document and its blob sha.
func (s *GitHubStore) Read(ctx context.Context) (Document, error) {
	opts := s.getOptions()
	file, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, s.path, opts)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, apiError("read", err)
	}
	if file == nil {
		return Document{}, services.Wrap(services.ErrConfiguration, "docstore", "github read",
			fmt.Sprintf("%s is a directory, not a file", s.path), nil)
	}

	var data []byte
	if file.GetEncoding() == "none" {
		// Files above the contents API inline limit are served without content.
		data, err = s.download(ctx, opts)
		if err != nil {
			return Document{}, err
		}
	} else {
		content, err := file.GetContent()
		if err != nil {
			return Document{}, services.Wrap(services.ErrTransient, "docstore", "github read", "decode content", err)
		}
		data = []byte(content)
	}

	s.logger.Debug("queue document read",
		logging.String("location", s.Describe()),
		logging.String("version", file.GetSHA()),
		logging.Int("bytes", len(data)),
	)
	return Document{Data: data, Version: file.GetSHA()}, nil
}

func (s *GitHubStore) download(ctx context.Context, opts *github.RepositoryContentGetOptions) ([]byte, error) {
	body, _, err := s.client.Repositories.DownloadContents(ctx, s.owner, s.repo, s.path, opts)
	if err != nil {
		return nil, apiError("download", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "docstore", "github download", "", err)
	}
	return data, nil
}

// Write commits data when version matches the current blob sha.
func (s *GitHubStore) Write(ctx context.Context, data []byte, version string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(s.message),
		Content: data,
	}
	if s.branch != "" {
		opts.Branch = github.Ptr(s.branch)
	}

	var (
		resp *github.RepositoryContentResponse
		err  error
	)
	if version == "" {
		resp, _, err = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, s.path, opts)
	} else {
		opts.SHA = github.Ptr(version)
		resp, _, err = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, s.path, opts)
	}
	if err != nil {
		switch status := statusOf(err); {
		case status == http.StatusConflict:
			return "", ErrVersionConflict
		case status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(messageOf(err)), "sha"):
			return "", fmt.Errorf("%w: %s", ErrVersionConflict, messageOf(err))
		}
		return "", apiError("write", err)
	}

	sha := resp.GetContent().GetSHA()
	s.logger.Debug("queue document written",
		logging.String("location", s.Describe()),
		logging.String("previous_version", version),
		logging.String("version", sha),
	)
	return sha, nil
}

func (s *GitHubStore) getOptions() *github.RepositoryContentGetOptions {
	if s.branch == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: s.branch}
}

func statusOf(err error) int {
	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return apiErr.Response.StatusCode
	}
	return 0
}

func messageOf(err error) string {
	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// apiError converts a go-github failure into an HTTPError, or a transient
// error when the request never produced a response.
func apiError(op string, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &HTTPError{Op: op, Status: responseStatus(rateErr.Response), Message: rateErr.Message, RateLimited: true}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &HTTPError{Op: op, Status: responseStatus(abuseErr.Response), Message: abuseErr.Message, RateLimited: true}
	}
	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) {
		return &HTTPError{Op: op, Status: responseStatus(apiErr.Response), Message: apiErr.Message}
	}
	return services.Wrap(services.ErrTransient, "docstore", "github "+op, "", err)
}

func responseStatus(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
