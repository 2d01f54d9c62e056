package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"herald/internal/config"
	"herald/internal/services"
)

func newTestConsole(buf *bytes.Buffer) *slog.Logger {
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	return slog.New(newPrettyHandler(buf, lvl, false))
}

func TestConsoleHandlerFormatsComponentAndSubject(t *testing.T) {
	var buf bytes.Buffer
	logger := NewComponentLogger(newTestConsole(&buf), "publisher")
	logger.Info("post published",
		String(FieldRunID, "1a2b3c4d5e6f"),
		String(FieldPostID, "9f8e7d6c5b4a"),
		String("remote_id", "at://did/app.bsky.feed.post/1"),
		Int("index", 2),
	)

	line := buf.String()
	for _, want := range []string{
		"INFO publisher: [run 1a2b3c4d · post 9f8e7d6c] post published",
		"remote_id=at://did/app.bsky.feed.post/1",
		"index=2",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be rendered as prefix, got %q", line)
	}
}

func TestConsoleHandlerKeepsLastDuplicateKey(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsole(&buf).With(String("stage", "select"))
	logger.Info("changed", String("stage", "dispatch"), String("note", "two words"))

	line := buf.String()
	if strings.Count(line, "stage=") != 1 || !strings.Contains(line, "stage=dispatch") {
		t.Fatalf("expected single stage=dispatch, got %q", line)
	}
	if !strings.Contains(line, `note="two words"`) {
		t.Fatalf("expected quoted value, got %q", line)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "WARN shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestJSONHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl, false))
	logger.Warn("conflict", Error(errors.New("sha mismatch")))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if payload["level"] != "warn" || payload["msg"] != "conflict" {
		t.Fatalf("unexpected payload %v", payload)
	}
	ts, ok := payload["ts"].(string)
	if !ok {
		t.Fatalf("expected ts string, got %v", payload["ts"])
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Fatalf("ts not RFC3339: %v", err)
	}
	if payload["error"] != "sha mismatch" {
		t.Fatalf("unexpected error field %v", payload["error"])
	}
}

func TestNewWritesJSONCopyToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "herald.log")
	logger, err := New(Options{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}, FilePath: path})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("tick", String(FieldEventType, "scheduler_tick"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"event_type":"scheduler_tick"`) {
		t.Fatalf("expected json record in file, got %q", data)
	}
}

func TestNewFromConfigLevelOverride(t *testing.T) {
	tests := []struct {
		name      string
		override  string
		wantDebug bool
	}{
		{name: "config level", override: "", wantDebug: false},
		{name: "flag level", override: "debug", wantDebug: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
			cfg.Logging.Level = "info"
			logger, err := NewFromConfig(&cfg, tt.override)
			if err != nil {
				t.Fatalf("NewFromConfig returned error: %v", err)
			}
			logger.Debug("tick", String(FieldEventType, "scheduler_tick"))
			logger.Info("run finished", Alert("run_failed"))

			data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "herald.log"))
			if err != nil {
				t.Fatalf("read log file: %v", err)
			}
			if !strings.Contains(string(data), `"alert":"run_failed"`) {
				t.Fatalf("expected info record in file, got %q", data)
			}
			if got := strings.Contains(string(data), "scheduler_tick"); got != tt.wantDebug {
				t.Fatalf("debug record present=%v, want %v", got, tt.wantDebug)
			}
		})
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	base := slog.New(newJSONHandler(&buf, lvl, false))

	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithPostID(ctx, "post-1")
	ctx = services.WithThreadID(ctx, "thread-1")
	WithContext(ctx, base).Info("dispatching")

	line := buf.String()
	for _, want := range []string{`"run_id":"run-1"`, `"post_id":"post-1"`, `"thread_id":"thread-1"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl, false))
	WarnWithContext(logger, "media degraded", "media_degraded", String(FieldImpact, "post published without image"))

	line := buf.String()
	if !strings.Contains(line, `"event_type":"media_degraded"`) || !strings.Contains(line, `"error_hint":"check logs for details"`) {
		t.Fatalf("missing defaults: %s", line)
	}
	if !strings.Contains(line, `"impact":"post published without image"`) {
		t.Fatalf("caller impact overridden: %s", line)
	}
	WarnWithContext(nil, "ignored", "noop")
}

func TestTeeHandlerHonoursPerSinkLevels(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	debugLvl := new(slog.LevelVar)
	debugLvl.Set(slog.LevelDebug)
	warnLvl := new(slog.LevelVar)
	warnLvl.Set(slog.LevelWarn)

	logger := slog.New(TeeHandler(
		newJSONHandler(&debugBuf, debugLvl, false),
		nil,
		newJSONHandler(&warnBuf, warnLvl, false),
	)).With(String(FieldComponent, "daemon"))

	logger.Debug("detail")
	logger.Warn("trouble")

	if !strings.Contains(debugBuf.String(), "detail") || !strings.Contains(debugBuf.String(), "trouble") {
		t.Fatalf("debug sink missing records: %s", debugBuf.String())
	}
	if strings.Contains(warnBuf.String(), "detail") || !strings.Contains(warnBuf.String(), `"component":"daemon"`) {
		t.Fatalf("warn sink unexpected content: %s", warnBuf.String())
	}
	if _, ok := TeeHandler().(NoopHandler); !ok {
		t.Fatal("empty tee should be a no-op handler")
	}
}

func TestPruneLogsRemovesOldFilesOnly(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "herald-old.log")
	fresh := filepath.Join(dir, "herald-new.log")
	active := filepath.Join(dir, "herald.log")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, active, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	past := time.Now().AddDate(0, 0, -45)
	for _, p := range []string{old, active, other} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := PruneLogs(NewNop(), dir, "*.log", 30, active)
	if removed != 1 {
		t.Fatalf("expected one file removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected old log removed")
	}
	for _, p := range []string{fresh, active, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
	if PruneLogs(nil, dir, "*.log", 0, "") != 0 {
		t.Fatal("zero retention should disable pruning")
	}
}
