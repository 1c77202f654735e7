package compose

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const composeFile = `
services:
  api:
    image: example/api:latest
    ports:
      - "8080:80"
  web:
    image: example/web:latest
  debug:
    image: busybox
    profiles: [dev]
`

type recordingExecutor struct {
	calls  []Invocation
	stdout string
	err    error
}

func (r *recordingExecutor) Execute(_ context.Context, inv Invocation) error {
	r.calls = append(r.calls, inv)
	if r.stdout != "" && inv.Stdout != nil {
		_, _ = io.WriteString(inv.Stdout, r.stdout)
	}
	return r.err
}

func (r *recordingExecutor) last(t *testing.T) Invocation {
	t.Helper()
	if len(r.calls) == 0 {
		t.Fatal("no compose invocation recorded")
	}
	return r.calls[len(r.calls)-1]
}

func newTestManager(t *testing.T, mutate func(*Config)) (*Manager, *recordingExecutor) {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "docker-compose.yml")
	if err := os.WriteFile(file, []byte(composeFile), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &recordingExecutor{}
	cfg := Config{
		Files:    []string{file},
		Project:  "shardctl-test",
		Dir:      dir,
		Executor: rec,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	return m, rec
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Error("Expected an error without compose files")
	}
	if _, err := NewManager(Config{Files: []string{"a.yml"}, Binary: "nerdctl"}); err == nil {
		t.Error("Expected an error for an unsupported binary")
	}

	m, err := NewManager(Config{Files: []string{"a.yml"}})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	if got := m.Tools(); !slices.Equal(got, []string{"docker"}) {
		t.Errorf("Tools() = %v, want [docker]", got)
	}

	m, err = NewManager(Config{Files: []string{"a.yml"}, Binary: "podman"})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	if got := m.Tools(); !slices.Equal(got, []string{"podman"}) {
		t.Errorf("Tools() = %v, want [podman]", got)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		args []string
		want []string
	}{
		{
			name: "docker plugin",
			cfg:  Config{Files: []string{"a.yml", "b.yml"}},
			args: []string{"ps"},
			want: []string{"docker", "compose", "-f", "a.yml", "-f", "b.yml", "ps"},
		},
		{
			name: "standalone with profile and project",
			cfg:  Config{Binary: "docker-compose", Files: []string{"a.yml"}, Profile: "dev", Project: "demo"},
			args: []string{"up", "-d"},
			want: []string{"docker-compose", "-f", "a.yml", "-p", "demo", "--profile", "dev", "up", "-d"},
		},
		{
			name: "podman",
			cfg:  Config{Binary: "podman", Files: []string{"a.yml"}},
			args: []string{"down"},
			want: []string{"podman", "compose", "-f", "a.yml", "down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(tt.cfg)
			if err != nil {
				t.Fatalf("NewManager() error: %v", err)
			}
			if got := m.Command(tt.args...); !slices.Equal(got, tt.want) {
				t.Errorf("Command() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProjectServices(t *testing.T) {
	m, _ := newTestManager(t, nil)

	names, err := m.Services(context.Background())
	if err != nil {
		t.Fatalf("Services() error: %v", err)
	}
	if !slices.Equal(names, []string{"api", "web"}) {
		t.Errorf("Services() = %v, want [api web]", names)
	}

	dev, _ := newTestManager(t, func(c *Config) { c.Profile = "dev" })
	names, err = dev.Services(context.Background())
	if err != nil {
		t.Fatalf("Services() error: %v", err)
	}
	if !slices.Equal(names, []string{"api", "debug", "web"}) {
		t.Errorf("Services() = %v, want [api debug web]", names)
	}
}

func TestValidateServices(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	if err := m.ValidateServices(ctx); err != nil {
		t.Errorf("ValidateServices() error: %v", err)
	}
	if err := m.ValidateServices(ctx, "api", "web"); err != nil {
		t.Errorf("ValidateServices(api, web) error: %v", err)
	}

	err := m.ValidateServices(ctx, "api", "nope")
	if !errors.Is(err, ErrUnknownService) || !strings.Contains(err.Error(), "nope") {
		t.Errorf("Expected unknown service nope, got: %v", err)
	}

	err = m.ValidateServices(ctx, "debug")
	if !errors.Is(err, ErrUnknownService) || !strings.Contains(err.Error(), "not enabled by profile") {
		t.Errorf("Expected profile error, got: %v", err)
	}

	if err := m.ValidateServices(ctx, "--rm"); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Expected ErrUnknownService for an option, got: %v", err)
	}
}

func TestSubcommands(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		run  func(*Manager) error
		tail []string
	}{
		{"up detached", func(m *Manager) error { return m.Up(ctx, nil, UpOptions{}) }, []string{"up", "-d"}},
		{"up foreground build", func(m *Manager) error {
			return m.Up(ctx, []string{"api"}, UpOptions{Foreground: true, Build: true})
		}, []string{"up", "--build", "--", "api"}},
		{"down volumes", func(m *Manager) error { return m.Down(ctx, DownOptions{Volumes: true}) }, []string{"down", "-v", "--remove-orphans"}},
		{"down keep orphans", func(m *Manager) error { return m.Down(ctx, DownOptions{KeepOrphans: true}) }, []string{"down"}},
		{"ps", func(m *Manager) error { return m.Ps(ctx, []string{"web"}) }, []string{"ps", "--", "web"}},
		{"logs", func(m *Manager) error {
			return m.Logs(ctx, []string{"api"}, LogsOptions{Follow: true, Tail: 50})
		}, []string{"logs", "-f", "--tail", "50", "--", "api"}},
		{"restart", func(m *Manager) error { return m.Restart(ctx, nil) }, []string{"restart"}},
		{"build", func(m *Manager) error {
			return m.Build(ctx, []string{"api"}, BuildOptions{NoCache: true})
		}, []string{"build", "--no-cache", "--", "api"}},
		{"pull", func(m *Manager) error { return m.Pull(ctx, nil) }, []string{"pull"}},
		{"exec", func(m *Manager) error {
			return m.Exec(ctx, "api", []string{"ls", "-la"})
		}, []string{"exec", "api", "ls", "-la"}},
		{"exec no tty", func(m *Manager) error {
			return m.ExecWith(ctx, "api", []string{"env"}, ExecOptions{NoTTY: true})
		}, []string{"exec", "-T", "api", "env"}},
		{"shell default", func(m *Manager) error { return m.Shell(ctx, "web", "") }, []string{"exec", "web", "sh"}},
		{"shell bash", func(m *Manager) error { return m.Shell(ctx, "web", "bash") }, []string{"exec", "web", "bash"}},
		{"custom", func(m *Manager) error {
			return m.Custom(ctx, []string{"config", "--services"})
		}, []string{"config", "--services"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec := newTestManager(t, nil)
			if err := tt.run(m); err != nil {
				t.Fatalf("run error: %v", err)
			}

			inv := rec.last(t)
			if want := m.Command(tt.tail...); !slices.Equal(inv.Args, want) {
				t.Errorf("Args = %v, want %v", inv.Args, want)
			}
			if inv.Dir != m.cfg.Dir {
				t.Errorf("Dir = %s, want %s", inv.Dir, m.cfg.Dir)
			}
		})
	}
}

func TestUnknownServiceNotForwarded(t *testing.T) {
	m, rec := newTestManager(t, nil)

	if err := m.Up(context.Background(), []string{"ghost"}, UpOptions{}); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Expected ErrUnknownService, got: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("Expected no invocation, got %d", len(rec.calls))
	}
}

func TestArgumentErrors(t *testing.T) {
	m, rec := newTestManager(t, nil)

	if err := m.Exec(context.Background(), "api", nil); err == nil {
		t.Error("Expected an error for exec without a command")
	}
	if err := m.Custom(context.Background(), nil); err == nil {
		t.Error("Expected an error for an empty custom command")
	}
	if len(rec.calls) != 0 {
		t.Errorf("Expected no invocation, got %d", len(rec.calls))
	}
}

func TestEnvironmentForwarded(t *testing.T) {
	m, rec := newTestManager(t, func(c *Config) {
		c.Env = map[string]string{"REGISTRY": "registry.internal"}
	})

	if err := m.Pull(context.Background(), nil); err != nil {
		t.Fatalf("Pull() error: %v", err)
	}
	if env := rec.last(t).Env; !slices.Contains(env, "REGISTRY=registry.internal") {
		t.Errorf("Env = %v, want REGISTRY=registry.internal", env)
	}
}

func TestExecutorErrorWrapped(t *testing.T) {
	m, rec := newTestManager(t, nil)
	boom := errors.New("exit status 1")
	rec.err = boom

	err := m.Restart(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped executor error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "compose restart") {
		t.Errorf("Expected error to name the subcommand, got '%s'", err.Error())
	}
}

func TestStatus(t *testing.T) {
	m, rec := newTestManager(t, nil)
	rec.stdout = `{"Name":"demo-api-1","Service":"api","State":"running","Status":"Up 2 minutes","Publishers":[{"URL":"0.0.0.0","TargetPort":80,"PublishedPort":8080,"Protocol":"tcp"}]}
{"Name":"demo-web-1","Service":"web","State":"exited","Status":"Exited (1) 3 seconds ago","Publishers":[]}
`

	statuses, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(statuses))
	}
	if want := m.Command("ps", "--all", "--format", "json"); !slices.Equal(rec.last(t).Args, want) {
		t.Errorf("Args = %v, want %v", rec.last(t).Args, want)
	}
	if !statuses[0].Running() {
		t.Error("api should be running")
	}
	if got := statuses[0].Row(); !slices.Equal(got, []string{"demo-api-1", "api", "running", "Up 2 minutes", "8080->80"}) {
		t.Errorf("Row() = %v", got)
	}
	if got := statuses[1].Row()[4]; got != "N/A" {
		t.Errorf("Expected N/A ports, got '%s'", got)
	}
}

func TestOSExecutor(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	var out stringWriter
	err := OSExecutor{}.Execute(context.Background(), Invocation{
		Args:   []string{"/bin/sh", "-c", "printf hello"},
		Stdout: &out,
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if out.String() != "hello" {
		t.Errorf("Expected 'hello', got '%s'", out.String())
	}

	if err := (OSExecutor{}).Execute(context.Background(), Invocation{}); err == nil {
		t.Error("Expected an error for an empty invocation")
	}
}

type stringWriter struct{ b []byte }

func (w *stringWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

func (w *stringWriter) String() string { return string(w.b) }
