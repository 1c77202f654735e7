package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/shardctl/shardctl/pkg/telemetry"
)

// Default file names, relative to the root directory.
const (
	DefaultManifest    = "services.yml"
	DefaultServicesDir = "services"
	DefaultComposeFile = "docker-compose.yml"
	DefaultHistoryPath = ".shardctl/history.db"
	SettingsName       = "shardctl"
	DotEnvFile         = ".env"
	EnvPrefix          = "SHARDCTL"
)

// Settings are the tool settings for one invocation.
type Settings struct {
	// RootDir is the project root every relative path is resolved against.
	RootDir string `mapstructure:"root_dir" validate:"required"`

	// ServicesDir holds the working copies.
	ServicesDir string `mapstructure:"services_dir" validate:"required"`

	// Manifest is the service manifest file.
	Manifest string `mapstructure:"manifest" validate:"required"`

	// Policies are Rego files or directories evaluated before every operation.
	Policies []string `mapstructure:"policies"`

	// DisabledPolicies names loaded policies, built-in or not, to skip.
	DisabledPolicies []string `mapstructure:"disabled_policies" validate:"dive,required"`

	Compose ComposeSettings `mapstructure:"compose"`
	Log     LogSettings     `mapstructure:"log"`
	History HistorySettings `mapstructure:"history"`
	Metrics MetricsSettings `mapstructure:"metrics"`
	Tracing TracingSettings `mapstructure:"tracing"`
	Clone   CloneSettings   `mapstructure:"clone"`

	// Timeout bounds each build command; zero means no limit.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`

	// Parallel is the number of concurrent clones during setup.
	Parallel int `mapstructure:"parallel" validate:"gte=1,lte=64"`

	// DotEnv holds the variables read from the root .env file. They are
	// passed to compose commands.
	DotEnv map[string]string `mapstructure:"-"`

	// SettingsFile is the settings file that was read, if any.
	SettingsFile string `mapstructure:"-"`
}

// ComposeSettings configures the compose pass-through commands.
type ComposeSettings struct {
	Files   []string `mapstructure:"files" validate:"min=1,dive,required"`
	Profile string   `mapstructure:"profile"`
	Binary  string   `mapstructure:"binary" validate:"oneof=docker docker-compose podman"`
	Project string   `mapstructure:"project"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// HistorySettings configures the run history database.
type HistorySettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// MetricsSettings configures metrics output.
type MetricsSettings struct {
	// File receives metrics in text exposition format after each command.
	File string `mapstructure:"file"`

	// Listen serves /metrics while long-running commands are active.
	Listen string `mapstructure:"listen" validate:"omitempty,hostname_port"`
}

// TracingSettings configures span export.
type TracingSettings struct {
	Exporter     string  `mapstructure:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint     string  `mapstructure:"endpoint" validate:"required_if=Exporter otlp"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"gte=0,lte=1"`
}

// CloneSettings selects the clone backend.
type CloneSettings struct {
	Backend string `mapstructure:"backend" validate:"oneof=git go-git"`
	Depth   int    `mapstructure:"depth" validate:"gte=0"`
}

// resolve returns p joined onto the root unless it is absolute.
func (s *Settings) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.RootDir, p)
}

// ServicesRoot returns the absolute directory working copies live in.
func (s *Settings) ServicesRoot() string {
	return s.resolve(s.ServicesDir)
}

// ManifestPath returns the absolute manifest path.
func (s *Settings) ManifestPath() string {
	return s.resolve(s.Manifest)
}

// HistoryPath returns the absolute history database path, or "" when
// history is disabled.
func (s *Settings) HistoryPath() string {
	if !s.History.Enabled {
		return ""
	}
	return s.resolve(s.History.Path)
}

// PolicyPaths returns the absolute policy paths.
func (s *Settings) PolicyPaths() []string {
	paths := make([]string, 0, len(s.Policies))
	for _, p := range s.Policies {
		paths = append(paths, s.resolve(p))
	}
	return paths
}

// ComposeFiles returns the absolute compose file paths.
func (s *Settings) ComposeFiles() []string {
	files := make([]string, 0, len(s.Compose.Files))
	for _, f := range s.Compose.Files {
		files = append(files, s.resolve(f))
	}
	return files
}

// Telemetry converts the settings into a telemetry configuration.
func (s *Settings) Telemetry(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Level = s.Log.Level
	cfg.Logging.Format = s.Log.Format

	cfg.Tracing.Enabled = s.Tracing.Exporter != "none"
	cfg.Tracing.Exporter = s.Tracing.Exporter
	cfg.Tracing.Endpoint = s.Tracing.Endpoint
	cfg.Tracing.Insecure = s.Tracing.Insecure
	cfg.Tracing.SamplingRate = s.Tracing.SamplingRate

	if s.Metrics.File != "" {
		cfg.Metrics.TextfilePath = s.resolve(s.Metrics.File)
	}
	cfg.Metrics.ListenAddress = s.Metrics.Listen

	return cfg
}

// String summarizes where settings came from.
func (s *Settings) String() string {
	src := "defaults"
	if s.SettingsFile != "" {
		src = s.SettingsFile
	}
	return fmt.Sprintf("root=%s manifest=%s services=%s (from %s)", s.RootDir, s.Manifest, s.ServicesDir, src)
}
