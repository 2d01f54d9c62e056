package docstore_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"herald/internal/docstore"
	"herald/internal/services"
)

// fakeContents emulates the subset of the GitHub contents API the store uses.
type fakeContents struct {
	mu      sync.Mutex
	data    []byte
	sha     string
	exists  bool
	puts    int
	lastPut map[string]string
	status  int
}

func (f *fakeContents) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("X-GitHub-Api-Version") != "2022-11-28" || r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Bad credentials"}`)
		return
	}
	if r.URL.Path != "/repos/octo/sched/contents/queue/posts.json" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"message":"boom"}`)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("ref") != "main" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"Not Found"}`)
			return
		}
		encoded := base64.StdEncoding.EncodeToString(f.data)
		// GitHub wraps base64 content at 60 columns.
		if len(encoded) > 4 {
			encoded = encoded[:4] + "\n" + encoded[4:]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type": "file", "encoding": "base64", "content": encoded, "sha": f.sha,
		})
	case http.MethodPut:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastPut = body
		switch {
		case f.exists && body["sha"] == "":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"message":"Invalid request.\n\n\"sha\" wasn't supplied."}`)
			return
		case f.exists && body["sha"] != f.sha, !f.exists && body["sha"] != "":
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"message":"does not match"}`)
			return
		}
		decoded, _ := base64.StdEncoding.DecodeString(body["content"])
		f.puts++
		f.data = decoded
		f.exists = true
		f.sha = "sha-" + string(rune('0'+f.puts))
		status := http.StatusOK
		if f.puts == 1 {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"content": map[string]any{"sha": f.sha}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newGitHubStore(t *testing.T, handler http.Handler, token string) *docstore.GitHubStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return docstore.NewGitHub(docstore.GitHubOptions{
		BaseURL:       srv.URL,
		Owner:         "octo",
		Repo:          "sched",
		Branch:        "main",
		Path:          "/queue/posts.json",
		Token:         token,
		CommitMessage: "Update schedule",
		HTTPClient:    srv.Client(),
	})
}

func TestGitHubStoreContract(t *testing.T) {
	fake := &fakeContents{}
	store := newGitHubStore(t, fake, "tok")
	exerciseContract(t, store)
	if fake.lastPut["message"] != "Update schedule" || fake.lastPut["branch"] != "main" {
		t.Fatalf("unexpected put body: %v", fake.lastPut)
	}
}

func TestGitHubStoreUnauthorizedIsConfiguration(t *testing.T) {
	store := newGitHubStore(t, &fakeContents{}, "wrong")
	_, err := store.Read(context.Background())
	var httpErr *docstore.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 HTTPError, got %v", err)
	}
	if services.Kind(err) != services.KindConfiguration {
		t.Fatalf("expected configuration kind, got %q", services.Kind(err))
	}
}

func TestGitHubStoreServerErrorIsTransient(t *testing.T) {
	fake := &fakeContents{status: http.StatusBadGateway}
	store := newGitHubStore(t, fake, "tok")
	_, err := store.Read(context.Background())
	if err == nil || errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if services.Kind(err) != services.KindTransient {
		t.Fatalf("expected transient kind, got %q", services.Kind(err))
	}
}

func TestGitHubStoreDownloadsWhenContentOmitted(t *testing.T) {
	payload := []byte(`[{"text":"big"}]`)
	var srvURL string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/raw/queue/posts.json":
			_, _ = w.Write(payload)
		case "/repos/octo/sched/contents/queue/posts.json":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"type": "file", "name": "posts.json", "encoding": "none", "content": "", "sha": "abc",
			})
		case "/repos/octo/sched/contents/queue":
			_ = json.NewEncoder(w).Encode([]map[string]any{{
				"type": "file", "name": "posts.json", "sha": "abc",
				"download_url": srvURL + "/raw/queue/posts.json",
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	srvURL = srv.URL
	store := docstore.NewGitHub(docstore.GitHubOptions{
		BaseURL: srv.URL, Owner: "octo", Repo: "sched", Branch: "main",
		Path: "queue/posts.json", Token: "tok", HTTPClient: srv.Client(),
	})

	doc, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(doc.Data) != string(payload) || doc.Version != "abc" {
		t.Fatalf("unexpected document %q %q", doc.Data, doc.Version)
	}
}

func TestGitHubStoreClassifiesFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		header      map[string]string
		body        string
		wantKind    string
		rateLimited bool
	}{
		{name: "forbidden", status: http.StatusForbidden, body: `{"message":"Resource not accessible"}`, wantKind: services.KindConfiguration},
		{
			name:        "primary rate limit",
			status:      http.StatusForbidden,
			header:      map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Limit": "5000", "X-RateLimit-Reset": "4102444800"},
			body:        `{"message":"API rate limit exceeded"}`,
			wantKind:    services.KindTransient,
			rateLimited: true,
		},
		{name: "validation", status: http.StatusUnprocessableEntity, body: `{"message":"path is invalid"}`, wantKind: services.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			store := newGitHubStore(t, handler, "tok")
			_, err := store.Read(context.Background())
			var httpErr *docstore.HTTPError
			if !errors.As(err, &httpErr) || httpErr.Status != tt.status || httpErr.RateLimited != tt.rateLimited {
				t.Fatalf("unexpected error %#v", err)
			}
			if got := services.Kind(err); got != tt.wantKind {
				t.Fatalf("kind = %q, want %q", got, tt.wantKind)
			}
		})
	}
}

func TestGitHubStoreStaleShaIsVersionConflict(t *testing.T) {
	fake := &fakeContents{exists: true, data: []byte("[]"), sha: "sha-live"}
	store := newGitHubStore(t, fake, "tok")
	for _, version := range []string{"", "sha-stale"} {
		if _, err := store.Write(context.Background(), []byte("[]"), version); !errors.Is(err, docstore.ErrVersionConflict) {
			t.Fatalf("version %q: expected conflict, got %v", version, err)
		}
	}
}
