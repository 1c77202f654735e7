package commands

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/shardctl/shardctl/pkg/engine"
)

// reportedError is a failure the command already presented to the user,
// such as a report with failed outcomes.
type reportedError struct {
	msg  string
	code int
}

func (e *reportedError) Error() string {
	return e.msg
}

// reportFailed returns the error for a report with failures.
func reportFailed(r *engine.Report) error {
	return &reportedError{
		msg:  fmt.Sprintf("%s: %d of %d failed", r.Phase, len(r.Failures()), r.Total()),
		code: 1,
	}
}

// IsReported reports whether err was already shown to the user.
func IsReported(err error) bool {
	var re *reportedError
	return errors.As(err, &re)
}

// ExitCode maps err to a process exit status. Compose pass-throughs keep
// the exit code of the compose process.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var re *reportedError
	if errors.As(err, &re) {
		return re.code
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return 1
}
