package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type cliEnv struct {
	baseDir    string
	configPath string
	queuePath  string
}

type envOptions struct {
	pdsURL string
	llmURL string
}

func setupCLI(t *testing.T, opts envOptions) *cliEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{"GITHUB_TOKEN", "GITHUB_OWNER", "GITHUB_REPO", "BLUESKY_IDENTIFIER", "BLUESKY_APP_PASSWORD", "OPENROUTER_API_KEY", "HERALD_API_TOKEN"} {
		t.Setenv(key, "")
	}
	if opts.pdsURL == "" {
		opts.pdsURL = "http://127.0.0.1:1"
	}
	if opts.llmURL == "" {
		opts.llmURL = "http://127.0.0.1:1/chat/completions"
	}
	env := &cliEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "herald.toml"),
		queuePath:  filepath.Join(base, "state", "scheduled_posts.json"),
	}
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"

[store]
backend = "file"
path = %q

[platform]
pds_url = %q
identifier = "me.bsky.social"
app_password = "app-pass"
thread_pause_ms = 1

[llm]
api_key = "llm-key"
base_url = %q

[notifications]
ntfy_topic = ""
`, filepath.Join(base, "state"), filepath.Join(base, "logs"), env.queuePath, opts.pdsURL, opts.llmURL)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("herald %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func (e *cliEnv) queueDocument(t *testing.T) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(e.queuePath)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	var posts []map[string]any
	if err := json.Unmarshal(data, &posts); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	return posts
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// fakePDS accepts any session and records created posts.
type fakePDS struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakePDS) start(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"accessJwt": "jwt", "did": "did:plc:me", "handle": "me.bsky.social"})
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Record struct {
				Text string `json:"text"`
			} `json:"record"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.texts = append(f.texts, body.Record.Text)
		n := len(f.texts)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{
			"uri": fmt.Sprintf("at://did:plc:me/app.bsky.feed.post/r%d", n),
			"cid": fmt.Sprintf("cid%d", n),
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server.URL
}

func (f *fakePDS) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func startFakeLLM(t *testing.T, text string) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		content, _ := json.Marshal(map[string]string{"text": text, "reason": "punchier"})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"content": string(content)},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server.URL + "/chat/completions"
}
