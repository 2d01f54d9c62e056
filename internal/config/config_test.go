package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"herald/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "herald")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Store.Backend != config.StoreBackendFile {
		t.Fatalf("expected file backend by default, got %q", cfg.Store.Backend)
	}
	if cfg.Store.Path != filepath.Join(wantState, "scheduled_posts.json") {
		t.Fatalf("unexpected store path: %q", cfg.Store.Path)
	}
	if cfg.ThreadPause() != 2*time.Second {
		t.Fatalf("unexpected thread pause: %s", cfg.ThreadPause())
	}
	if cfg.PlatformTimeout() != 30*time.Second {
		t.Fatalf("unexpected platform timeout: %s", cfg.PlatformTimeout())
	}
	if !cfg.Scheduler.ConflictRetry {
		t.Fatal("expected conflict retry enabled by default")
	}
	if cfg.LockPath() != filepath.Join(wantState, "herald.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "herald.toml")

	type payload struct {
		Store struct {
			Backend string `toml:"backend"`
			Path    string `toml:"path"`
		} `toml:"store"`
		GitHub struct {
			Owner string `toml:"owner"`
			Repo  string `toml:"repo"`
			Token string `toml:"token"`
		} `toml:"github"`
		Platform struct {
			ThreadPauseMillis int `toml:"thread_pause_ms"`
		} `toml:"platform"`
	}
	custom := payload{}
	custom.Store.Backend = "GitHub"
	custom.Store.Path = "/queue/posts.json"
	custom.GitHub.Owner = "octo"
	custom.GitHub.Repo = "schedule"
	custom.GitHub.Token = "file-token"
	custom.Platform.ThreadPauseMillis = 750
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Store.Backend != config.StoreBackendGitHub {
		t.Fatalf("expected backend to be normalized, got %q", cfg.Store.Backend)
	}
	if cfg.Store.Path != "queue/posts.json" {
		t.Fatalf("expected repo-relative path, got %q", cfg.Store.Path)
	}
	if cfg.GitHub.Token != "file-token" {
		t.Fatalf("expected token from file, got %q", cfg.GitHub.Token)
	}
	if cfg.ThreadPause() != 750*time.Millisecond {
		t.Fatalf("expected 750ms thread pause, got %s", cfg.ThreadPause())
	}
}

func TestEnvFallbacksFillMissingCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "env-token")
	t.Setenv("GITHUB_OWNER", "env-owner")
	t.Setenv("GITHUB_REPO", "env-repo")
	t.Setenv("BLUESKY_IDENTIFIER", "me.bsky.social")
	t.Setenv("BLUESKY_APP_PASSWORD", "app-pass")
	t.Setenv("OPENROUTER_API_KEY", "llm-key")

	configPath := filepath.Join(t.TempDir(), "herald.toml")
	if err := os.WriteFile(configPath, []byte("[store]\nbackend = \"github\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GitHub.Token != "env-token" || cfg.GitHub.Owner != "env-owner" || cfg.GitHub.Repo != "env-repo" {
		t.Fatalf("unexpected github settings: %+v", cfg.GitHub)
	}
	if err := cfg.ValidatePublishing(); err != nil {
		t.Fatalf("ValidatePublishing returned error: %v", err)
	}
	if err := cfg.ValidateDrafting(); err != nil {
		t.Fatalf("ValidateDrafting returned error: %v", err)
	}
	if cfg.Store.Path != "scheduled_posts.json" {
		t.Fatalf("expected default document path, got %q", cfg.Store.Path)
	}
}

func TestValidateRejectsGitHubWithoutToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	cfg := config.Default()
	cfg.Store.Backend = config.StoreBackendGitHub
	cfg.Store.Path = "scheduled_posts.json"
	cfg.GitHub.Owner = "octo"
	cfg.GitHub.Repo = "schedule"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "github.token") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "s3"
	cfg.Store.Path = "x"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unsupported backend error")
	}
}

func TestValidatePublishingRequiresCredentials(t *testing.T) {
	cfg := config.Default()
	if err := cfg.ValidatePublishing(); err == nil {
		t.Fatal("expected missing identifier error")
	}
	cfg.Platform.Identifier = "me.bsky.social"
	if err := cfg.ValidatePublishing(); err == nil {
		t.Fatal("expected missing app password error")
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "token")
	t.Setenv("GITHUB_OWNER", "octo")
	t.Setenv("GITHUB_REPO", "schedule")

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Store.Backend != config.StoreBackendGitHub {
		t.Fatalf("unexpected sample backend %q", cfg.Store.Backend)
	}
}

func TestFeedURLsAreDeduplicated(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "herald.toml")
	body := "[feeds]\nrss_urls = [\" https://example.com/a.xml \", \"https://example.com/a.xml\", \"\"]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Feeds.RSSURLs) != 1 || cfg.Feeds.RSSURLs[0] != "https://example.com/a.xml" {
		t.Fatalf("unexpected rss urls: %v", cfg.Feeds.RSSURLs)
	}
}

func TestValidateRejectsNonPositiveTimings(t *testing.T) {
	tests := []struct {
		key    string
		mutate func(*config.Config)
	}{
		{"scheduler.interval_seconds", func(c *config.Config) { c.Scheduler.IntervalSeconds = 0 }},
		{"platform.thread_pause_ms", func(c *config.Config) { c.Platform.ThreadPauseMillis = -1 }},
		{"github.timeout_seconds", func(c *config.Config) { c.GitHub.TimeoutSeconds = 0 }},
		{"llm.timeout_seconds", func(c *config.Config) { c.LLM.TimeoutSeconds = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := config.Default()
			cfg.Store.Path = filepath.Join(t.TempDir(), "scheduled_posts.json")
			if err := cfg.Validate(); err != nil {
				t.Fatalf("default config should validate: %v", err)
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Fatalf("expected %s error, got %v", tt.key, err)
			}
		})
	}
}
