package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateFeeds(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

// ValidatePublishing checks the credentials needed to publish posts. It is
// separate from Validate so operator commands that only edit the queue work
// without platform credentials.
func (c *Config) ValidatePublishing() error {
	if strings.TrimSpace(c.Platform.Identifier) == "" {
		return fmt.Errorf("platform.identifier is required for publishing. Set BLUESKY_IDENTIFIER or edit %s", c.configHint())
	}
	if strings.TrimSpace(c.Platform.AppPassword) == "" {
		return fmt.Errorf("platform.app_password is required for publishing. Set BLUESKY_APP_PASSWORD or edit %s", c.configHint())
	}
	if _, err := url.ParseRequestURI(c.Platform.PDSURL); err != nil {
		return fmt.Errorf("platform.pds_url: %w", err)
	}
	return nil
}

// ValidateDrafting checks the settings needed to draft posts with the LLM.
func (c *Config) ValidateDrafting() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm.api_key must be set to draft posts (or set OPENROUTER_API_KEY)")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreBackendGitHub:
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			return errors.New("github.owner and github.repo must be set when store.backend is \"github\" (or set GITHUB_OWNER/GITHUB_REPO)")
		}
		if c.GitHub.Token == "" {
			return fmt.Errorf("github.token is required when store.backend is \"github\". Set GITHUB_TOKEN or edit %s", c.configHint())
		}
		if _, err := url.ParseRequestURI(c.GitHub.BaseURL); err != nil {
			return fmt.Errorf("github.base_url: %w", err)
		}
	case StoreBackendFile, StoreBackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must be set for the %s backend", c.Store.Backend)
		}
	default:
		return fmt.Errorf("store.backend: unsupported value %q (expected github, file, or sqlite)", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if err := ensurePositiveMap(map[string]int{
		"scheduler.interval_seconds":       c.Scheduler.IntervalSeconds,
		"scheduler.run_timeout_seconds":    c.Scheduler.RunTimeoutSeconds,
		"platform.thread_pause_ms":         c.Platform.ThreadPauseMillis,
		"platform.request_timeout_seconds": c.Platform.RequestTimeoutSeconds,
		"github.timeout_seconds":           c.GitHub.TimeoutSeconds,
		"notifications.request_timeout":    c.Notifications.RequestTimeout,
		"feeds.timeout_seconds":            c.Feeds.TimeoutSeconds,
		"llm.timeout_seconds":              c.LLM.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Scheduler.RunTimeoutSeconds < c.Platform.RequestTimeoutSeconds {
		return errors.New("scheduler.run_timeout_seconds must be at least platform.request_timeout_seconds")
	}
	return nil
}

func (c *Config) validateFeeds() error {
	for _, raw := range c.Feeds.RSSURLs {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("feeds.rss_urls: invalid url %q: %w", raw, err)
		}
	}
	if c.Feeds.JetstreamURL != "" {
		parsed, err := url.Parse(c.Feeds.JetstreamURL)
		if err != nil {
			return fmt.Errorf("feeds.jetstream_url: %w", err)
		}
		if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
			return fmt.Errorf("feeds.jetstream_url must use ws or wss, got %q", parsed.Scheme)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.SummaryMinPosts < 0 {
		return errors.New("notifications.summary_min_posts must be >= 0")
	}
	return nil
}

func (c *Config) configHint() string {
	path, err := DefaultConfigPath()
	if err != nil {
		return "~/.config/herald/config.toml"
	}
	return path + " (create with 'herald config init')"
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
