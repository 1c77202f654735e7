// Package vcs provides the source-control clients used by the sync engine.
package vcs

import (
	"fmt"
	"os/exec"

	"github.com/shardctl/shardctl/pkg/engine"
)

// Backend names a Cloner implementation.
type Backend string

const (
	// BackendGit shells out to the git binary.
	BackendGit Backend = "git"

	// BackendGoGit clones in-process with go-git.
	BackendGoGit Backend = "go-git"
)

// Options configures the cloner returned by New.
type Options struct {
	// Depth creates a shallow clone when positive.
	Depth int

	// GitBinary overrides the git executable for BackendGit.
	GitBinary string
}

// New returns the cloner for backend. An empty backend selects BackendGit.
func New(backend Backend, opts Options) (engine.Cloner, error) {
	switch backend {
	case "", BackendGit:
		return &GitCLI{Binary: opts.GitBinary, Depth: opts.Depth}, nil
	case BackendGoGit:
		return &GoGit{Depth: opts.Depth}, nil
	default:
		return nil, fmt.Errorf("unsupported clone backend: %s", backend)
	}
}

// Tool is the availability of one external executable.
type Tool struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
}

// CheckTools looks up each executable on PATH.
func CheckTools(names ...string) []Tool {
	return checkTools(exec.LookPath, names...)
}

func checkTools(lookPath func(string) (string, error), names ...string) []Tool {
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		path, err := lookPath(name)
		tools = append(tools, Tool{Name: name, Path: path, Found: err == nil})
	}
	return tools
}

// Missing returns the names of tools that were not found.
func Missing(tools []Tool) []string {
	var out []string
	for _, t := range tools {
		if !t.Found {
			out = append(out, t.Name)
		}
	}
	return out
}
