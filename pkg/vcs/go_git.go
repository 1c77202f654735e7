package vcs

import (
	"context"
	"errors"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/shardctl/shardctl/pkg/engine"
)

// goGitFailureCode mirrors the status git itself exits with on fatal errors.
const goGitFailureCode = 128

// GoGit clones in-process without a git binary.
type GoGit struct {
	// Depth creates a shallow clone when positive.
	Depth int

	// Progress receives the remote's progress messages.
	Progress io.Writer
}

// Clone clones url into dest. go-git has no exit status, so clone errors
// are reported as status 128 with the error text as stderr.
func (g *GoGit) Clone(ctx context.Context, url, dest string) (engine.CloneResult, error) {
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:      url,
		Depth:    g.Depth,
		Progress: g.Progress,
	})
	if err == nil {
		return engine.CloneResult{}, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return engine.CloneResult{ExitCode: -1}, err
	}
	return engine.CloneResult{ExitCode: goGitFailureCode, Stderr: describeCloneError(url, err)}, nil
}

func describeCloneError(url string, err error) string {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return "fatal: authentication failed for " + url + ": " + err.Error()
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return "fatal: repository " + url + " not found"
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return "fatal: remote repository " + url + " is empty"
	default:
		return "fatal: " + err.Error()
	}
}
