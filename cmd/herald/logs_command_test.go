package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogsPrintsFilteredTail(t *testing.T) {
	env := setupCLI(t, envOptions{})
	logDir := filepath.Join(env.baseDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := strings.Join([]string{
		`{"level":"info","msg":"run started","component":"publisher","run_id":"aaaa1111"}`,
		`{"level":"warn","msg":"image dropped","component":"dispatch","run_id":"aaaa1111"}`,
		`{"level":"info","msg":"run finished","component":"publisher","run_id":"bbbb2222"}`,
	}, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(logDir, "herald.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out := env.mustRun(t, "logs", "-n", "1")
	requireContains(t, out, "run finished")
	if strings.Contains(out, "run started") {
		t.Fatalf("expected only the last line:\n%s", out)
	}

	out = env.mustRun(t, "logs", "--level", "warn")
	requireContains(t, out, "image dropped")
	if strings.Contains(out, "run finished") {
		t.Fatalf("info record passed warn filter:\n%s", out)
	}

	out = env.mustRun(t, "logs", "--run", "aaaa", "-n", "5")
	requireContains(t, out, "run started")
	requireContains(t, out, "image dropped")
	if strings.Contains(out, "bbbb2222") {
		t.Fatalf("other run leaked through filter:\n%s", out)
	}
}
