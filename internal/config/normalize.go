package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeGitHub()
	c.normalizePlatform()
	c.normalizeScheduler()
	c.normalizeLLM()
	c.normalizeFeeds()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("HERALD_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	c.Store.Path = strings.TrimSpace(c.Store.Path)
	switch c.Store.Backend {
	case StoreBackendGitHub:
		// Repository-relative path; never expanded against the local filesystem.
		c.Store.Path = strings.TrimLeft(c.Store.Path, "/")
		if c.Store.Path == "" {
			c.Store.Path = defaultDocumentName
		}
	case StoreBackendFile, StoreBackendSQLite:
		if c.Store.Path == "" {
			name := defaultDocumentName
			if c.Store.Backend == StoreBackendSQLite {
				name = defaultSQLiteName
			}
			c.Store.Path = filepath.Join(c.Paths.StateDir, name)
		}
		var err error
		if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
			return fmt.Errorf("store.path: %w", err)
		}
	}
	c.Store.CommitMessage = strings.TrimSpace(c.Store.CommitMessage)
	if c.Store.CommitMessage == "" {
		c.Store.CommitMessage = defaultCommitMessage
	}
	return nil
}

func (c *Config) normalizeGitHub() {
	c.GitHub.Owner = strings.TrimSpace(c.GitHub.Owner)
	if c.GitHub.Owner == "" {
		if value, ok := os.LookupEnv("GITHUB_OWNER"); ok {
			c.GitHub.Owner = strings.TrimSpace(value)
		}
	}
	c.GitHub.Repo = strings.TrimSpace(c.GitHub.Repo)
	if c.GitHub.Repo == "" {
		if value, ok := os.LookupEnv("GITHUB_REPO"); ok {
			c.GitHub.Repo = strings.TrimSpace(value)
		}
	}
	c.GitHub.Branch = strings.TrimSpace(c.GitHub.Branch)
	c.GitHub.Token = strings.TrimSpace(c.GitHub.Token)
	if c.GitHub.Token == "" {
		if value, ok := os.LookupEnv("GITHUB_TOKEN"); ok {
			c.GitHub.Token = strings.TrimSpace(value)
		}
	}
	c.GitHub.BaseURL = strings.TrimRight(strings.TrimSpace(c.GitHub.BaseURL), "/")
	if c.GitHub.BaseURL == "" {
		c.GitHub.BaseURL = defaultGitHubBaseURL
	}
	if c.GitHub.TimeoutSeconds <= 0 {
		c.GitHub.TimeoutSeconds = defaultGitHubTimeoutSeconds
	}
}

func (c *Config) normalizePlatform() {
	c.Platform.PDSURL = strings.TrimRight(strings.TrimSpace(c.Platform.PDSURL), "/")
	if c.Platform.PDSURL == "" {
		c.Platform.PDSURL = defaultPDSURL
	}
	c.Platform.Identifier = strings.TrimSpace(c.Platform.Identifier)
	if c.Platform.Identifier == "" {
		if value, ok := os.LookupEnv("BLUESKY_IDENTIFIER"); ok {
			c.Platform.Identifier = strings.TrimSpace(value)
		}
	}
	c.Platform.AppPassword = strings.TrimSpace(c.Platform.AppPassword)
	if c.Platform.AppPassword == "" {
		if value, ok := os.LookupEnv("BLUESKY_APP_PASSWORD"); ok {
			c.Platform.AppPassword = strings.TrimSpace(value)
		}
	}
	// A zero pause lets replies race their parent on the platform side.
	if c.Platform.ThreadPauseMillis <= 0 {
		c.Platform.ThreadPauseMillis = defaultThreadPauseMillis
	}
	if c.Platform.RequestTimeoutSeconds <= 0 {
		c.Platform.RequestTimeoutSeconds = defaultPlatformTimeout
	}
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.IntervalSeconds <= 0 {
		c.Scheduler.IntervalSeconds = defaultSchedulerInterval
	}
	if c.Scheduler.RunTimeoutSeconds <= 0 {
		c.Scheduler.RunTimeoutSeconds = defaultRunTimeoutSeconds
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeFeeds() {
	c.Feeds.RSSURLs = dedupeTrimmed(c.Feeds.RSSURLs, false)
	c.Feeds.JetstreamDIDs = dedupeTrimmed(c.Feeds.JetstreamDIDs, false)
	c.Feeds.JetstreamURL = strings.TrimSpace(c.Feeds.JetstreamURL)
	if c.Feeds.JetstreamURL == "" {
		c.Feeds.JetstreamURL = defaultJetstreamURL
	}
	if c.Feeds.MaxItems <= 0 {
		c.Feeds.MaxItems = defaultFeedMaxItems
	}
	if c.Feeds.TimeoutSeconds <= 0 {
		c.Feeds.TimeoutSeconds = defaultFeedTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.SummaryMinPosts < 0 {
		c.Notifications.SummaryMinPosts = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func dedupeTrimmed(values []string, lower bool) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if lower {
			normalized = strings.ToLower(normalized)
		}
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
