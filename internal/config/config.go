package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Supported queue store backends.
const (
	StoreBackendGitHub = "github"
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"
)

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on /api routes.
	APIToken string `toml:"api_token"`
}

// Store selects where the queue document lives.
type Store struct {
	Backend       string `toml:"backend"`
	Path          string `toml:"path"`
	CommitMessage string `toml:"commit_message"`
}

// GitHub contains credentials for the GitHub contents API backend.
type GitHub struct {
	Owner          string `toml:"owner"`
	Repo           string `toml:"repo"`
	Branch         string `toml:"branch"`
	Token          string `toml:"token"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Platform contains the social platform account used for publishing.
type Platform struct {
	PDSURL                string `toml:"pds_url"`
	Identifier            string `toml:"identifier"`
	AppPassword           string `toml:"app_password"`
	ThreadPauseMillis     int    `toml:"thread_pause_ms"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Scheduler contains cadence and safety settings for publish runs.
type Scheduler struct {
	IntervalSeconds   int  `toml:"interval_seconds"`
	RunTimeoutSeconds int  `toml:"run_timeout_seconds"`
	ConflictRetry     bool `toml:"conflict_retry"`
	// WatchFile triggers an early run when a file-backed queue changes on disk.
	WatchFile bool `toml:"watch_file"`
}

// LLM contains the drafting model connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Feeds contains the content sources used for drafting.
type Feeds struct {
	RSSURLs        []string `toml:"rss_urls"`
	JetstreamURL   string   `toml:"jetstream_url"`
	JetstreamDIDs  []string `toml:"jetstream_dids"`
	MaxItems       int      `toml:"max_items"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	RunSummary      bool   `toml:"run_summary"`
	Errors          bool   `toml:"errors"`
	SummaryMinPosts int    `toml:"summary_min_posts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Herald.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and the daemon status API bind address
//   - Store: queue document backend (github, file, sqlite)
//   - GitHub: contents API credentials for the github backend
//   - Platform: publishing account and per-call timeouts
//   - Scheduler: run cadence, run deadline, conflict handling
//   - LLM: drafting model connection
//   - Feeds: RSS and Jetstream sources for drafting
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	GitHub        GitHub        `toml:"github"`
	Platform      Platform      `toml:"platform"`
	Scheduler     Scheduler     `toml:"scheduler"`
	LLM           LLM           `toml:"llm"`
	Feeds         Feeds         `toml:"feeds"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/herald/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("herald.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir}
	if c.Store.Backend != StoreBackendGitHub && strings.TrimSpace(c.Store.Path) != "" {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the run lock shared by one-shot runs and the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "herald.lock")
}

// HistoryPath is the sqlite database that records run summaries.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// ThreadPause returns the delay observed between chained thread posts.
func (c *Config) ThreadPause() time.Duration {
	return time.Duration(c.Platform.ThreadPauseMillis) * time.Millisecond
}

// PlatformTimeout bounds each publish or upload call.
func (c *Config) PlatformTimeout() time.Duration {
	return time.Duration(c.Platform.RequestTimeoutSeconds) * time.Second
}

// RunTimeout bounds an entire scheduler run.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Scheduler.RunTimeoutSeconds) * time.Second
}

// GitHubTimeout bounds each GitHub contents API request.
func (c *Config) GitHubTimeout() time.Duration {
	return time.Duration(c.GitHub.TimeoutSeconds) * time.Second
}

// FeedTimeout bounds a single feed fetch or Jetstream collection.
func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feeds.TimeoutSeconds) * time.Second
}

// NotifyTimeout bounds a single ntfy request.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// Interval is the daemon cadence between scheduler runs.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the drafting model settings in the shape the client expects.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the drafting model connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
