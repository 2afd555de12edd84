package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupWorkspace moves into a fresh directory with both cwd and HOME pointed
// at it, so scope resolution cannot escape the test.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	origWd, _ := os.Getwd()
	origHome := os.Getenv("HOME")
	t.Cleanup(func() {
		_ = os.Chdir(origWd)
		os.Setenv("HOME", origHome)
	})

	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	os.Setenv("HOME", tmpDir)
	return tmpDir
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := NewRootCmd("test")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestEndToEndSessionLifecycle(t *testing.T) {
	tmpDir := setupWorkspace(t)

	if _, err := runCmd(t, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := runCmd(t, "session", "start"); err != nil {
		t.Fatalf("session start: %v", err)
	}

	if _, err := runCmd(t, "append", "user", "Goal alignment: wire the exporter"); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if _, err := runCmd(t, "append", "agent", "@decision: stream rows instead of buffering"); err != nil {
		t.Fatalf("append agent: %v", err)
	}

	out, err := runCmd(t, "consolidate")
	if err != nil {
		t.Fatalf("consolidate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Consolidated session") {
		t.Errorf("consolidate output:\n%s", out)
	}

	recent, err := os.ReadFile(filepath.Join(tmpDir, ".tmem", "RECENT.md"))
	if err != nil {
		t.Fatalf("read RECENT: %v", err)
	}
	if !strings.Contains(string(recent), "stream rows instead of buffering") {
		t.Errorf("RECENT:\n%s", recent)
	}

	if out, err := runCmd(t, "validate"); err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
}

func TestEndToEndConsolidateDryRun(t *testing.T) {
	tmpDir := setupWorkspace(t)

	if _, err := runCmd(t, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := runCmd(t, "append", "agent", "@decision: dry run only"); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := runCmd(t, "consolidate", "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Would consolidate") {
		t.Errorf("output:\n%s", out)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ".tmem", "RECENT.md")); !os.IsNotExist(err) {
		t.Error("dry run wrote RECENT.md")
	}
}

func TestStatusCmdJSON(t *testing.T) {
	setupWorkspace(t)

	if _, err := runCmd(t, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := runCmd(t, "session", "start"); err != nil {
		t.Fatalf("session start: %v", err)
	}

	out, err := runCmd(t, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}

	var status map[string]any
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if status["scope"] != "project" {
		t.Errorf("scope = %v", status["scope"])
	}
	if status["session"] == nil {
		t.Error("no active session reported")
	}
}

func TestAppendRejectsBadKind(t *testing.T) {
	setupWorkspace(t)

	if _, err := runCmd(t, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := runCmd(t, "append", "robot", "beep"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestCommandsFailWithoutInit(t *testing.T) {
	setupWorkspace(t)

	if _, err := runCmd(t, "session", "start"); err == nil {
		t.Fatal("expected not-initialized error")
	}
}

func TestValidateCmdReportsIssues(t *testing.T) {
	tmpDir := setupWorkspace(t)

	if _, err := runCmd(t, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}

	recent := "# Recent Sessions\n\n## Entry\n[Details](MEMORY-2026-01-01.md#session-2026-01-01-09-00-gone)\n"
	if err := os.WriteFile(filepath.Join(tmpDir, ".tmem", "RECENT.md"), []byte(recent), 0644); err != nil {
		t.Fatalf("write RECENT: %v", err)
	}

	out, err := runCmd(t, "validate")
	if err == nil {
		t.Fatal("expected non-nil error for integrity issues")
	}
	if !strings.Contains(out, "dangling link") {
		t.Errorf("output:\n%s", out)
	}
}
