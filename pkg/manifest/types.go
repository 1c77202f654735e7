package manifest

import (
	"fmt"
	"strings"
)

// BuildConfig describes how a single service is built.
type BuildConfig struct {
	// BuildCommand is the shell command run for a native build.
	BuildCommand string `yaml:"build_command" toml:"build_command" json:"build_command,omitempty"`

	// DockerBuildCommand is the shell command run for a containerized build.
	DockerBuildCommand string `yaml:"docker_build_command" toml:"docker_build_command" json:"docker_build_command,omitempty"`

	// WorkingDirectory is a path below the services root. Defaults to the service name.
	WorkingDirectory string `yaml:"working_directory" toml:"working_directory" json:"working_directory,omitempty" validate:"omitempty,subpath"`

	// Environment is a display label only.
	Environment string `yaml:"environment" toml:"environment" json:"environment,omitempty"`
}

// Command returns the command for the requested build mode, trimmed.
func (b BuildConfig) Command(docker bool) string {
	if docker {
		return strings.TrimSpace(b.DockerBuildCommand)
	}
	return strings.TrimSpace(b.BuildCommand)
}

// Dir returns the working directory segment for the given service name.
func (b BuildConfig) Dir(service string) string {
	if b.WorkingDirectory != "" {
		return b.WorkingDirectory
	}
	return service
}

// Service is one manifest entry.
type Service struct {
	// Name is the unique service key.
	Name string `json:"name" validate:"required,servicename"`

	// RepositoryURL is where the working copy is cloned from. Build-only
	// services leave it empty and are never cloned.
	RepositoryURL string `json:"repository_url,omitempty" validate:"omitempty,repourl"`

	// Build is the optional build configuration.
	Build *BuildConfig `json:"build,omitempty"`
}

// HasRepository reports whether the service can be cloned.
func (s Service) HasRepository() bool {
	return s.RepositoryURL != ""
}

// Manifest is the validated, ordered service registry. It is read-only
// after construction.
type Manifest struct {
	// Source is the file the manifest was loaded from, if any.
	Source string

	services []Service
	index    map[string]int
}

// New builds a manifest from services in the given order. Duplicate names
// are rejected and every entry is validated.
func New(services ...Service) (*Manifest, error) {
	m := &Manifest{
		services: make([]Service, 0, len(services)),
		index:    make(map[string]int, len(services)),
	}

	// Working copies and their locks are keyed case-insensitively, so names
	// that differ only in case would share a directory.
	folded := make(map[string]string, len(services))
	for _, svc := range services {
		if _, exists := m.index[svc.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateService, svc.Name)
		}
		key := strings.ToLower(svc.Name)
		if other, exists := folded[key]; exists {
			return nil, fmt.Errorf("%w: %q and %q differ only in case", ErrDuplicateService, other, svc.Name)
		}
		folded[key] = svc.Name
		if err := validateService(svc); err != nil {
			return nil, err
		}
		if svc.Build != nil {
			b := *svc.Build
			svc.Build = &b
		}
		m.index[svc.Name] = len(m.services)
		m.services = append(m.services, svc)
	}

	return m, nil
}

// Empty returns a manifest with zero entries.
func Empty() *Manifest {
	return &Manifest{index: map[string]int{}}
}

// Len returns the number of services.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.services)
}

// IsEmpty reports whether the manifest has no services.
func (m *Manifest) IsEmpty() bool {
	return m.Len() == 0
}

// Names returns service names in manifest order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, m.Len())
	for _, svc := range m.Services() {
		names = append(names, svc.Name)
	}
	return names
}

// Services returns a copy of all entries in manifest order.
func (m *Manifest) Services() []Service {
	if m == nil {
		return nil
	}
	out := make([]Service, len(m.services))
	copy(out, m.services)
	return out
}

// Service looks up a single entry.
func (m *Manifest) Service(name string) (Service, bool) {
	if m == nil {
		return Service{}, false
	}
	i, ok := m.index[name]
	if !ok {
		return Service{}, false
	}
	return m.services[i], true
}

// Repositories returns the entries that carry a repository URL, in order.
func (m *Manifest) Repositories() []Service {
	var out []Service
	for _, svc := range m.Services() {
		if svc.HasRepository() {
			out = append(out, svc)
		}
	}
	return out
}

// BuildConfig returns the build configuration for name. It reports false
// instead of failing when the service is unknown or has no build section.
func (m *Manifest) BuildConfig(name string) (BuildConfig, bool) {
	svc, ok := m.Service(name)
	if !ok || svc.Build == nil {
		return BuildConfig{}, false
	}
	return *svc.Build, true
}

// BuildServices returns the entries with a build configuration, in order.
func (m *Manifest) BuildServices() []Service {
	var out []Service
	for _, svc := range m.Services() {
		if svc.Build != nil {
			out = append(out, svc)
		}
	}
	return out
}

// BuildConfigs returns a name-keyed view of every build configuration.
// Use BuildServices when ordering matters.
func (m *Manifest) BuildConfigs() map[string]BuildConfig {
	out := make(map[string]BuildConfig)
	for _, svc := range m.BuildServices() {
		out[svc.Name] = *svc.Build
	}
	return out
}
