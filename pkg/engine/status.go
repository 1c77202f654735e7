package engine

import "fmt"

// Status is the result of one service within an orchestration pass.
type Status string

const (
	// StatusSkipped indicates the service needed no work (working copy already present).
	StatusSkipped Status = "skipped"

	// StatusCloned indicates a working copy was cloned.
	StatusCloned Status = "cloned"

	// StatusRemoved indicates a working copy was deleted.
	StatusRemoved Status = "removed"

	// StatusFailed indicates the service could not be processed.
	StatusFailed Status = "failed"

	// StatusSucceeded indicates a build command exited with status 0.
	StatusSucceeded Status = "succeeded"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusCloned, StatusSucceeded, StatusRemoved, StatusSkipped, StatusFailed}

// IsFailure returns true for the only status that fails a report.
func (s Status) IsFailure() bool {
	return s == StatusFailed
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusSkipped, StatusCloned, StatusRemoved, StatusFailed, StatusSucceeded:
		return nil
	default:
		return fmt.Errorf("invalid status: %s", s)
	}
}

// Phase identifies which engine produced a report.
type Phase string

const (
	// PhaseSync clones service repositories.
	PhaseSync Phase = "sync"

	// PhaseBuild runs build commands.
	PhaseBuild Phase = "build"

	// PhaseClean removes working copies.
	PhaseClean Phase = "clean"
)

// Validate checks if the phase is valid.
func (p Phase) Validate() error {
	switch p {
	case PhaseSync, PhaseBuild, PhaseClean:
		return nil
	default:
		return fmt.Errorf("invalid phase: %s", p)
	}
}

// BuildMode selects which build command of a service is run.
type BuildMode string

const (
	// ModeNone is used by phases that do not build.
	ModeNone BuildMode = ""

	// ModeNative runs build_command.
	ModeNative BuildMode = "native"

	// ModeDocker runs docker_build_command.
	ModeDocker BuildMode = "docker"
)

// ModeFor maps the docker flag to a build mode.
func ModeFor(docker bool) BuildMode {
	if docker {
		return ModeDocker
	}
	return ModeNative
}
