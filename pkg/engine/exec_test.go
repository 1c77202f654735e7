package engine

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestShellRunner_Run(t *testing.T) {
	r := &ShellRunner{}
	dir := t.TempDir()

	res, err := r.Run(context.Background(), Command{Line: "pwd; echo oops >&2", Dir: dir})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, dir) {
		t.Errorf("Expected working directory %s in stdout, got %q", dir, res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Errorf("Expected stderr to be captured, got %q", res.Stderr)
	}
}

func TestShellRunner_ExitCode(t *testing.T) {
	r := &ShellRunner{}

	res, err := r.Run(context.Background(), Command{Line: "exit 3"})
	if err != nil {
		t.Fatalf("Non-zero exit must not be an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", res.ExitCode)
	}
}

func TestShellRunner_EmptyCommand(t *testing.T) {
	r := &ShellRunner{}
	if _, err := r.Run(context.Background(), Command{Line: "  "}); err == nil {
		t.Error("Expected error for empty command")
	}
}

func TestShellRunner_MissingDirectoryIsSpawnError(t *testing.T) {
	r := &ShellRunner{}
	if _, err := r.Run(context.Background(), Command{Line: "true", Dir: "/nonexistent/shardctl"}); err == nil {
		t.Error("Expected spawn error")
	}
}

func TestShellRunner_Timeout(t *testing.T) {
	r := &ShellRunner{WaitDelay: 100 * time.Millisecond}

	start := time.Now()
	res, err := r.Run(context.Background(), Command{Line: "sleep 10", Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.TimedOut {
		t.Error("Expected TimedOut to be set")
	}
	if res.ExitCode == 0 {
		t.Error("Expected non-zero exit code")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Timeout was not enforced")
	}
}

func TestShellRunner_TeesOutput(t *testing.T) {
	r := &ShellRunner{}
	var live bytes.Buffer

	res, err := r.Run(context.Background(), Command{Line: "echo hello", Stdout: &live, Env: []string{"SHARDCTL_TEST=1"}})
	if err != nil {
		t.Fatal(err)
	}
	if live.String() != "hello\n" || res.Stdout != "hello\n" {
		t.Errorf("Expected output in both buffers, got %q and %q", live.String(), res.Stdout)
	}
}
