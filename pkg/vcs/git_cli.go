package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/shardctl/shardctl/pkg/engine"
)

// GitCLI clones by running "git clone".
type GitCLI struct {
	// Binary defaults to "git".
	Binary string

	// Depth creates a shallow clone when positive.
	Depth int
}

// Clone runs git clone url dest. A non-zero exit is reported through the
// result with the captured stderr; only a failure to start git is an error.
func (g *GitCLI) Clone(ctx context.Context, url, dest string) (engine.CloneResult, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}

	args := []string{"clone"}
	if g.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(g.Depth))
	}
	// "--" keeps url from ever being parsed as an option.
	args = append(args, "--", url, dest)

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := engine.CloneResult{Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return engine.CloneResult{ExitCode: -1}, fmt.Errorf("failed to run %s: %w", bin, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}
