package testsupport

import (
	"path/filepath"
	"testing"

	"herald/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It uses the file backend, a 1ms thread pause, and dummy platform
// credentials, then applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.Backend = config.StoreBackendFile
	cfgVal.Store.Path = filepath.Join(base, "state", "scheduled_posts.json")
	cfgVal.Platform.Identifier = "tester.bsky.social"
	cfgVal.Platform.AppPassword = "app-password"
	cfgVal.Platform.ThreadPauseMillis = 1
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSQLiteStore switches the queue document to the sqlite backend.
func WithSQLiteStore() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = config.StoreBackendSQLite
		b.cfg.Store.Path = filepath.Join(b.baseDir, "state", "queue.db")
	}
}

// WithNtfyTopic points notifications at the given endpoint.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
	}
}

// WithPDS points the platform client at url.
func WithPDS(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Platform.PDSURL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
