package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shardctl/shardctl/pkg/manifest"
)

func TestReport_Aggregation(t *testing.T) {
	r := NewReport(PhaseSync, ModeNone,
		Outcome{Service: "a", Status: StatusCloned},
		Outcome{Service: "b", Status: StatusSkipped},
		Outcome{Service: "c", Status: StatusFailed, Kind: KindCloneFailed},
		Outcome{Service: "d", Status: StatusCloned},
	)

	if r.Total() != 4 {
		t.Errorf("Expected total 4, got %d", r.Total())
	}
	if r.Count(StatusCloned) != 2 || r.Count(StatusRemoved) != 0 {
		t.Errorf("Unexpected counts: %v", r.Counts())
	}
	if r.Succeeded() {
		t.Error("Expected report with a failure not to succeed")
	}
	if f := r.Failures(); len(f) != 1 || f[0].Service != "c" {
		t.Errorf("Unexpected failures: %+v", f)
	}
	if got := r.Summary(); got != "4 services: 2 cloned, 1 skipped, 1 failed" {
		t.Errorf("Unexpected summary %q", got)
	}
	if _, ok := r.Counts()[StatusSucceeded]; ok {
		t.Error("Expected absent statuses to be omitted from counts")
	}
}

func TestReport_SucceedsWithoutFailures(t *testing.T) {
	r := NewReport(PhaseBuild, ModeDocker,
		Outcome{Service: "a", Status: StatusSucceeded},
		Outcome{Service: "b", Status: StatusSkipped},
	)
	if !r.Succeeded() {
		t.Error("Expected report to succeed")
	}
}

func TestReport_NilAndEmpty(t *testing.T) {
	var r *Report
	if r.Total() != 0 || !r.Empty() || !r.Succeeded() || r.Failures() != nil {
		t.Error("Expected nil report to behave as empty")
	}
	if got := NewReport(PhaseSync, ModeNone).Summary(); got != "nothing to do" {
		t.Errorf("Unexpected summary %q", got)
	}
}

func TestError_Classification(t *testing.T) {
	err := fmt.Errorf("build api: %w",
		NewProcessError(KindBuildFailed, "build exited with status 2", 2, "boom", nil).WithService("api"))

	if !IsProcessError(err) || IsConfigurationError(err) {
		t.Errorf("Expected process error, got class %q", ClassOf(err))
	}
	if !errors.Is(err, &Error{Kind: KindBuildFailed}) {
		t.Error("Expected errors.Is to match on kind")
	}
	if errors.Is(err, &Error{Kind: KindCloneFailed}) {
		t.Error("Expected errors.Is not to match a different kind")
	}
	if !errors.Is(err, &Error{Class: ErrorClassProcess}) {
		t.Error("Expected errors.Is to match on class")
	}

	var e *Error
	if !errors.As(err, &e) || e.ExitCode != 2 || e.Service != "api" {
		t.Errorf("Unexpected error details: %+v", e)
	}
}

func TestKindOf_ManifestErrors(t *testing.T) {
	_, err := manifest.New(
		manifest.Service{Name: "a", RepositoryURL: "https://x/a.git"},
		manifest.Service{Name: "a", RepositoryURL: "https://x/a.git"},
	)
	if KindOf(err) != KindDuplicateService || !IsConfigurationError(err) {
		t.Errorf("Expected DuplicateService configuration error, got %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("Expected unclassified error to have no kind")
	}
}

func TestStatus_Validate(t *testing.T) {
	for _, s := range AllStatuses {
		if err := s.Validate(); err != nil {
			t.Errorf("Expected %s to be valid: %v", s, err)
		}
	}
	if err := Status("pending").Validate(); err == nil {
		t.Error("Expected unknown status to be invalid")
	}
	if ModeFor(true) != ModeDocker || ModeFor(false) != ModeNative {
		t.Error("Unexpected build mode mapping")
	}
}
