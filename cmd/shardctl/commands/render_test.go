package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/shardctl/shardctl/pkg/compose"
	"github.com/shardctl/shardctl/pkg/engine"
	"github.com/shardctl/shardctl/pkg/manifest"
	"github.com/shardctl/shardctl/pkg/stores"
)

func TestRenderReport(t *testing.T) {
	report := engine.NewReport(engine.PhaseSync, engine.ModeNone,
		engine.Outcome{Service: "api", Status: engine.StatusCloned, Duration: 1500 * time.Millisecond},
		engine.Outcome{Service: "web", Status: engine.StatusFailed, Kind: engine.KindCloneFailed, Detail: "exit 128\nfatal: not found"},
	)

	var buf bytes.Buffer
	if err := renderReport(&buf, report); err != nil {
		t.Fatalf("renderReport() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"SERVICE", "api", "cloned", "1.5s",
		"[CloneFailed] exit 128 ...",
		"2 services: 1 cloned, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "fatal: not found") {
		t.Errorf("multi-line detail should be truncated:\n%s", out)
	}
}

func TestRenderEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	if err := renderReport(&buf, engine.NewReport(engine.PhaseBuild, engine.ModeNative)); err != nil {
		t.Fatalf("renderReport() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "nothing to do" {
		t.Errorf("output = %q, want %q", got, "nothing to do")
	}
}

func TestBuildList(t *testing.T) {
	m, err := manifest.New(
		manifest.Service{Name: "api", RepositoryURL: "https://example.com/api.git", Build: &manifest.BuildConfig{
			BuildCommand: "make", Environment: "dev",
		}},
		manifest.Service{Name: "web", RepositoryURL: "https://example.com/web.git"},
		manifest.Service{Name: "node", Build: &manifest.BuildConfig{
			DockerBuildCommand: "docker build .", WorkingDirectory: "f1r3/node",
		}},
	)
	if err != nil {
		t.Fatalf("manifest.New() error = %v", err)
	}

	entries := buildList(m)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	want := []buildListEntry{
		{Service: "api", BuildCommand: "make", DockerBuildCommand: "N/A", Environment: "dev", WorkingDirectory: "api"},
		{Service: "node", BuildCommand: "N/A", DockerBuildCommand: "docker build .", Environment: "default", WorkingDirectory: "f1r3/node"},
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}

	var buf bytes.Buffer
	if err := renderBuildList(&buf, entries); err != nil {
		t.Fatalf("renderBuildList() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "api") || !strings.HasPrefix(lines[2], "node") {
		t.Errorf("rows not in manifest order:\n%s", buf.String())
	}
}

func TestRenderBuildListEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := renderBuildList(&buf, nil); err != nil {
		t.Fatalf("renderBuildList() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No build configurations found") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRenderLastOutcomes(t *testing.T) {
	last := []lastOutcome{
		{Phase: engine.PhaseSync, OutcomeRecord: &stores.OutcomeRecord{
			RunID: "0123456789abcdef", Service: "api", Status: engine.StatusCloned, ExitCode: 0, Detail: "cloned"}},
		{Phase: engine.PhaseBuild, OutcomeRecord: &stores.OutcomeRecord{
			RunID: "fedcba9876543210", Service: "api", Status: engine.StatusFailed, Kind: engine.KindBuildFailed,
			ExitCode: 2, Detail: "make: *** [all] Error 2\nmore"}},
	}

	var buf bytes.Buffer
	if err := renderLastOutcomes(&buf, last); err != nil {
		t.Fatalf("renderLastOutcomes() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"PHASE", "sync", "01234567", "build", "fedcba98", "[BuildFailed] make: *** [all] Error 2 ..."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Errorf("run IDs should be shortened:\n%s", out)
	}
}

func TestRenderStatus(t *testing.T) {
	statuses := []compose.ContainerStatus{
		{Name: "proj-api-1", Service: "api", State: "running", Status: "Up 2 minutes",
			Publishers: []compose.Publisher{{TargetPort: 80, PublishedPort: 8080, Protocol: "tcp"}}},
		{Name: "proj-db-1", Service: "db", State: "exited"},
	}

	var buf bytes.Buffer
	if err := renderStatus(&buf, statuses); err != nil {
		t.Fatalf("renderStatus() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"PORTS", "proj-api-1", "8080->80", "exited", "N/A"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := renderStatus(&buf, nil); err != nil {
		t.Fatalf("renderStatus() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No running services found") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestExitCode(t *testing.T) {
	report := engine.NewReport(engine.PhaseBuild, engine.ModeNative,
		engine.Outcome{Service: "api", Status: engine.StatusFailed})

	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Errorf("ExitCode(plain) = %d, want 1", got)
	}

	err := reportFailed(report)
	if got := ExitCode(err); got != 1 {
		t.Errorf("ExitCode(report) = %d, want 1", got)
	}
	if !IsReported(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsReported() = false for a wrapped report failure")
	}
	if IsReported(errors.New("boom")) {
		t.Error("IsReported() = true for a plain error")
	}

	exitErr := exec.Command("sh", "-c", "exit 3").Run()
	if got := ExitCode(fmt.Errorf("compose up: %w", exitErr)); got != 3 {
		t.Errorf("ExitCode(exit 3) = %d, want 3", got)
	}
}
