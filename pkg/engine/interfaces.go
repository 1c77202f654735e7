package engine

import (
	"context"
	"io"
	"time"
)

// CloneResult is what a source-control client reports for one clone.
type CloneResult struct {
	// ExitCode is 0 on success.
	ExitCode int

	// Stderr is the diagnostic output of the clone.
	Stderr string
}

// Cloner clones a repository into a destination directory.
// A returned error means the clone could not be started at all; a
// non-zero ExitCode means it ran and failed.
type Cloner interface {
	Clone(ctx context.Context, url, dest string) (CloneResult, error)
}

// Command is a shell command line to run.
type Command struct {
	// Line is passed to the shell verbatim.
	Line string

	// Dir is the working directory.
	Dir string

	// Env is appended to the current environment as KEY=VALUE pairs.
	Env []string

	// Stdout and Stderr, when set, receive a live copy of the output.
	Stdout io.Writer
	Stderr io.Writer

	// Timeout bounds the run. Zero means no bound.
	Timeout time.Duration
}

// CommandResult is the result of a completed command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	// TimedOut is set when the command was killed by its Timeout.
	TimedOut bool
}

// CommandRunner runs shell commands. An error means the command could not
// be spawned; a non-zero ExitCode means it ran and failed.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}

// Observer receives every outcome as it is produced. Implementations must
// be safe for concurrent use.
type Observer interface {
	ObserveOutcome(phase Phase, mode BuildMode, outcome Outcome)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(phase Phase, mode BuildMode, outcome Outcome)

// ObserveOutcome calls f.
func (f ObserverFunc) ObserveOutcome(phase Phase, mode BuildMode, outcome Outcome) {
	f(phase, mode, outcome)
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(Phase, BuildMode, Outcome) {}
