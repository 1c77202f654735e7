package policy

import (
	"time"

	"github.com/shardctl/shardctl/pkg/manifest"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityWarning is reported but never blocks an operation.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the operation before any service is processed.
	SeverityError Severity = "error"
)

// Blocking reports whether violations of this severity abort an operation.
func (s Severity) Blocking() bool {
	return s != SeverityWarning
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single deny result.
type Violation struct {
	Policy   string   `json:"policy"`
	Service  string   `json:"service,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as `input`.
type Input struct {
	// Operation is the command being run (setup, build, clean, validate).
	Operation string `json:"operation"`

	// Source is the manifest file, if any.
	Source string `json:"source,omitempty"`

	// Services are the manifest entries in declaration order.
	Services []ServiceInput `json:"services"`
}

// ServiceInput is one manifest entry as seen by policies.
type ServiceInput struct {
	Name          string      `json:"name"`
	Repository    string      `json:"repository,omitempty"`
	HasRepository bool        `json:"has_repository"`
	Build         *BuildInput `json:"build,omitempty"`
}

// BuildInput mirrors manifest.BuildConfig.
type BuildInput struct {
	BuildCommand       string `json:"build_command,omitempty"`
	DockerBuildCommand string `json:"docker_build_command,omitempty"`
	WorkingDirectory   string `json:"working_directory"`
	Environment        string `json:"environment,omitempty"`
}

// NewInput converts a manifest into policy input.
func NewInput(m *manifest.Manifest, operation string) Input {
	in := Input{Operation: operation, Services: []ServiceInput{}}
	if m == nil {
		return in
	}
	in.Source = m.Source

	for _, svc := range m.Services() {
		si := ServiceInput{
			Name:          svc.Name,
			Repository:    svc.RepositoryURL,
			HasRepository: svc.HasRepository(),
		}
		if svc.Build != nil {
			si.Build = &BuildInput{
				BuildCommand:       svc.Build.BuildCommand,
				DockerBuildCommand: svc.Build.DockerBuildCommand,
				WorkingDirectory:   svc.Build.Dir(svc.Name),
				Environment:        svc.Build.Environment,
			}
		}
		in.Services = append(in.Services, si)
	}
	return in
}
