package config

import (
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustLoad(t *testing.T, opts Options) *Settings {
	t.Helper()
	s, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return s
}

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	s := mustLoad(t, Options{RootDir: root})

	if s.RootDir != root {
		t.Errorf("Expected root %s, got %s", root, s.RootDir)
	}
	if got := s.ServicesRoot(); got != filepath.Join(root, "services") {
		t.Errorf("Unexpected services root %s", got)
	}
	if got := s.ManifestPath(); got != filepath.Join(root, "services.yml") {
		t.Errorf("Unexpected manifest path %s", got)
	}
	if got := s.ComposeFiles(); !slices.Equal(got, []string{filepath.Join(root, "docker-compose.yml")}) {
		t.Errorf("Unexpected compose files %v", got)
	}
	if s.Compose.Binary != "docker" {
		t.Errorf("Expected compose binary 'docker', got '%s'", s.Compose.Binary)
	}
	if s.Log.Level != "info" {
		t.Errorf("Expected log level 'info', got '%s'", s.Log.Level)
	}
	if s.Clone.Backend != "git" {
		t.Errorf("Expected clone backend 'git', got '%s'", s.Clone.Backend)
	}
	if s.Parallel != 1 {
		t.Errorf("Expected parallel 1, got %d", s.Parallel)
	}
	if s.Timeout != 0 {
		t.Errorf("Expected no timeout, got %s", s.Timeout)
	}
	if got := s.HistoryPath(); got != filepath.Join(root, ".shardctl", "history.db") {
		t.Errorf("Unexpected history path %s", got)
	}
	if len(s.DisabledPolicies) != 0 {
		t.Errorf("Expected no disabled policies, got %v", s.DisabledPolicies)
	}
	if s.SettingsFile != "" {
		t.Errorf("Expected no settings file, got %s", s.SettingsFile)
	}
	if len(s.DotEnv) != 0 {
		t.Errorf("Expected empty .env, got %v", s.DotEnv)
	}
}

func TestLoadSettingsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shardctl.yaml"), `
services_dir: repos
manifest: config/services.yml
parallel: 4
timeout: 90s
disabled_policies: [embedded-credentials]
compose:
  files: [base.yml, dev.yml]
  profile: dev
clone:
  backend: go-git
  depth: 1
history:
  enabled: false
`)

	s := mustLoad(t, Options{RootDir: root})

	if s.SettingsFile != filepath.Join(root, "shardctl.yaml") {
		t.Errorf("Unexpected settings file %s", s.SettingsFile)
	}
	if got := s.ServicesRoot(); got != filepath.Join(root, "repos") {
		t.Errorf("Unexpected services root %s", got)
	}
	if got := s.ManifestPath(); got != filepath.Join(root, "config", "services.yml") {
		t.Errorf("Unexpected manifest path %s", got)
	}
	if s.Parallel != 4 {
		t.Errorf("Expected parallel 4, got %d", s.Parallel)
	}
	if s.Timeout != 90*time.Second {
		t.Errorf("Expected timeout 90s, got %s", s.Timeout)
	}
	if !slices.Equal(s.DisabledPolicies, []string{"embedded-credentials"}) {
		t.Errorf("Unexpected disabled policies %v", s.DisabledPolicies)
	}
	if !slices.Equal(s.Compose.Files, []string{"base.yml", "dev.yml"}) {
		t.Errorf("Unexpected compose files %v", s.Compose.Files)
	}
	if s.Compose.Profile != "dev" {
		t.Errorf("Expected profile 'dev', got '%s'", s.Compose.Profile)
	}
	if s.Clone.Backend != "go-git" || s.Clone.Depth != 1 {
		t.Errorf("Unexpected clone settings %+v", s.Clone)
	}
	if got := s.HistoryPath(); got != "" {
		t.Errorf("Disabled history should have no path, got %s", got)
	}
}

func TestLoadTOMLSettingsFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "custom.toml")
	writeFile(t, path, "services_dir = \"/srv/services\"\n\n[log]\nlevel = \"debug\"\n")

	s := mustLoad(t, Options{RootDir: root, SettingsFile: path})

	if got := s.ServicesRoot(); got != "/srv/services" {
		t.Errorf("Expected absolute services dir to be kept, got %s", got)
	}
	if s.Log.Level != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", s.Log.Level)
	}
}

func TestLoadMissingExplicitSettingsFile(t *testing.T) {
	if _, err := Load(Options{RootDir: t.TempDir(), SettingsFile: "/nonexistent/shardctl.yaml"}); err == nil {
		t.Error("Expected an error for a missing explicit settings file")
	}
}

func TestLoadPrecedence(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shardctl.yaml"), "log:\n  level: warn\nparallel: 2\nmanifest: from-file.yml\n")
	writeFile(t, filepath.Join(root, ".env"), `
SHARDCTL_LOG_LEVEL=error
SHARDCTL_PARALLEL=3
SHARDCTL_COMPOSE_FILES=a.yml,b.yml
REGISTRY=registry.internal
`)
	t.Setenv("SHARDCTL_PARALLEL", "5")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("manifest", "", "")
	flags.String("log-level", "", "")
	if err := flags.Parse([]string{"--manifest", "from-flag.yml"}); err != nil {
		t.Fatal(err)
	}

	s := mustLoad(t, Options{
		RootDir: root,
		Flags: map[string]*pflag.Flag{
			"manifest":  flags.Lookup("manifest"),
			"log.level": flags.Lookup("log-level"),
		},
	})

	// flag set by the user wins
	if s.Manifest != "from-flag.yml" {
		t.Errorf("Expected manifest from flag, got '%s'", s.Manifest)
	}
	// unset flag falls through to .env, which beats the settings file
	if s.Log.Level != "error" {
		t.Errorf("Expected log level from .env, got '%s'", s.Log.Level)
	}
	// real environment beats .env
	if s.Parallel != 5 {
		t.Errorf("Expected parallel from environment, got %d", s.Parallel)
	}
	if !slices.Equal(s.Compose.Files, []string{"a.yml", "b.yml"}) {
		t.Errorf("Unexpected compose files %v", s.Compose.Files)
	}
	if s.DotEnv["REGISTRY"] != "registry.internal" {
		t.Errorf("Expected REGISTRY in .env map, got %v", s.DotEnv)
	}
}

func TestLoadRootFromEnvironment(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SHARDCTL_ROOT_DIR", root)

	s := mustLoad(t, Options{})
	if s.RootDir != root {
		t.Errorf("Expected root %s, got %s", root, s.RootDir)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad backend", "clone:\n  backend: svn\n", "Clone.Backend must be one of"},
		{"bad level", "log:\n  level: loud\n", "Log.Level must be one of"},
		{"zero parallel", "parallel: 0\n", "Parallel must be gte 1"},
		{"negative timeout", "timeout: -5s\n", "Timeout must be gte 0"},
		{"otlp without endpoint", "tracing:\n  exporter: otlp\n", "Tracing.Endpoint is required"},
		{"no compose files", "compose:\n  files: []\n", "Compose.Files needs at least 1 entries"},
		{"bad listen", "metrics:\n  listen: nope\n", "Metrics.Listen must be host:port"},
		{"empty disabled policy", "disabled_policies: ['']\n", "DisabledPolicies[0] is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "shardctl.yaml"), tt.content)

			_, err := Load(Options{RootDir: root})
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadMalformedDotEnv(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".env"), "SHARDCTL_PARALLEL='unterminated\n")

	if _, err := Load(Options{RootDir: root}); err == nil {
		t.Error("Expected an error for a malformed .env")
	}
}

func TestTelemetryConversion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shardctl.yaml"), `
log:
  level: debug
  format: json
metrics:
  file: metrics/shardctl.prom
tracing:
  exporter: otlp
  endpoint: localhost:4317
  sampling_rate: 0.5
`)

	s := mustLoad(t, Options{RootDir: root})

	cfg := s.Telemetry("1.2.3")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.ServiceVersion != "1.2.3" {
		t.Errorf("Expected version '1.2.3', got '%s'", cfg.ServiceVersion)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config %+v", cfg.Logging)
	}
	if !cfg.Tracing.Enabled {
		t.Error("otlp exporter should enable tracing")
	}
	if cfg.Tracing.Endpoint != "localhost:4317" {
		t.Errorf("Unexpected endpoint '%s'", cfg.Tracing.Endpoint)
	}
	if math.Abs(cfg.Tracing.SamplingRate-0.5) > 1e-9 {
		t.Errorf("Expected sampling rate 0.5, got %v", cfg.Tracing.SamplingRate)
	}
	if cfg.Metrics.TextfilePath != filepath.Join(root, "metrics", "shardctl.prom") {
		t.Errorf("Unexpected textfile path '%s'", cfg.Metrics.TextfilePath)
	}

	s.Tracing.Exporter = "none"
	if s.Telemetry("dev").Tracing.Enabled {
		t.Error("exporter none should disable tracing")
	}
}
