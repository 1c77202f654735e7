package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/compose-spec/compose-go/v2/cli"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/rs/zerolog"
)

// ErrUnknownService is returned when a requested service is not defined in
// the compose project.
var ErrUnknownService = errors.New("unknown compose service")

// Invocation is one compose process.
type Invocation struct {
	Args   []string
	Dir    string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Executor runs compose processes.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) error
}

// OSExecutor runs compose with os/exec.
type OSExecutor struct{}

// Execute runs the invocation and waits for it.
func (OSExecutor) Execute(ctx context.Context, inv Invocation) error {
	if len(inv.Args) == 0 {
		return fmt.Errorf("empty compose command")
	}
	cmd := exec.CommandContext(ctx, inv.Args[0], inv.Args[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.Stdin = inv.Stdin
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	return cmd.Run()
}

// Config configures a Manager.
type Config struct {
	// Binary is docker, podman or docker-compose.
	Binary string

	// Files are the compose files, passed with -f in order.
	Files []string

	// Profile is passed with --profile when set.
	Profile string

	// Project is passed with -p when set.
	Project string

	// Dir is the working directory compose runs in.
	Dir string

	// Env is added to the process environment of every compose command.
	Env map[string]string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Executor Executor
	Logger   *zerolog.Logger
}

// Manager builds validated compose command lines and runs them.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	project *types.Project
}

// NewManager creates a compose manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	switch cfg.Binary {
	case "docker", "podman", "docker-compose":
	default:
		return nil, fmt.Errorf("unsupported compose binary: %s", cfg.Binary)
	}
	if len(cfg.Files) == 0 {
		return nil, fmt.Errorf("at least one compose file is required")
	}
	if cfg.Executor == nil {
		cfg.Executor = OSExecutor{}
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Manager{
		cfg:    cfg,
		logger: logger.With().Str("component", "compose").Logger(),
	}, nil
}

// Tools returns the executables this manager needs on PATH.
func (m *Manager) Tools() []string {
	return []string{m.cfg.Binary}
}

// Command returns the full argument vector for a compose subcommand.
func (m *Manager) Command(args ...string) []string {
	var argv []string
	if m.cfg.Binary == "docker-compose" {
		argv = []string{"docker-compose"}
	} else {
		argv = []string{m.cfg.Binary, "compose"}
	}
	for _, f := range m.cfg.Files {
		argv = append(argv, "-f", f)
	}
	if m.cfg.Project != "" {
		argv = append(argv, "-p", m.cfg.Project)
	}
	if m.cfg.Profile != "" {
		argv = append(argv, "--profile", m.cfg.Profile)
	}
	return append(argv, args...)
}

// Project loads the compose project with compose-go. The result is cached.
func (m *Manager) Project(ctx context.Context) (*types.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.project != nil {
		return m.project, nil
	}

	opts := []cli.ProjectOptionsFn{
		cli.WithEnv(m.env()),
		cli.WithDotEnv,
		cli.WithOsEnv,
	}
	if m.cfg.Dir != "" {
		opts = append([]cli.ProjectOptionsFn{cli.WithWorkingDirectory(m.cfg.Dir)}, opts...)
	}
	if m.cfg.Project != "" {
		opts = append(opts, cli.WithName(m.cfg.Project))
	}
	if m.cfg.Profile != "" {
		opts = append(opts, cli.WithProfiles([]string{m.cfg.Profile}))
	}

	options, err := cli.NewProjectOptions(m.cfg.Files, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create project options: %w", err)
	}

	project, err := options.LoadProject(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load compose project: %w", err)
	}

	m.project = project
	return project, nil
}

// Services returns the services enabled for the configured profile, sorted.
func (m *Manager) Services(ctx context.Context) ([]string, error) {
	project, err := m.Project(ctx)
	if err != nil {
		return nil, err
	}
	names := project.ServiceNames()
	sort.Strings(names)
	return names, nil
}

// ValidateServices checks every name against the compose project. Services
// disabled by the active profile are reported separately.
func (m *Manager) ValidateServices(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	project, err := m.Project(ctx)
	if err != nil {
		return err
	}

	var unknown, disabled []string
	for _, name := range names {
		if _, ok := project.Services[name]; ok {
			continue
		}
		if _, ok := project.DisabledServices[name]; ok {
			disabled = append(disabled, name)
			continue
		}
		unknown = append(unknown, name)
	}

	switch {
	case len(unknown) > 0:
		return fmt.Errorf("%w: %s", ErrUnknownService, strings.Join(unknown, ", "))
	case len(disabled) > 0:
		return fmt.Errorf("%w: %s not enabled by profile %q", ErrUnknownService, strings.Join(disabled, ", "), m.cfg.Profile)
	}
	return nil
}

func (m *Manager) env() []string {
	env := make([]string, 0, len(m.cfg.Env))
	keys := make([]string, 0, len(m.cfg.Env))
	for k := range m.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+m.cfg.Env[k])
	}
	return env
}

// run validates services and runs the command with the configured streams.
func (m *Manager) run(ctx context.Context, services []string, args ...string) error {
	if err := m.ValidateServices(ctx, services...); err != nil {
		return err
	}
	return m.exec(ctx, m.cfg.Stdout, args...)
}

func (m *Manager) exec(ctx context.Context, stdout io.Writer, args ...string) error {
	argv := m.Command(args...)
	m.logger.Debug().Strs("argv", argv).Msg("Running compose")

	err := m.cfg.Executor.Execute(ctx, Invocation{
		Args:   argv,
		Dir:    m.cfg.Dir,
		Env:    append(os.Environ(), m.env()...),
		Stdin:  m.cfg.Stdin,
		Stdout: stdout,
		Stderr: m.cfg.Stderr,
	})
	if err != nil {
		sub := ""
		if len(args) > 0 {
			sub = args[0]
		}
		return fmt.Errorf("compose %s: %w", sub, err)
	}
	return nil
}

// UpOptions configures Up.
type UpOptions struct {
	Foreground bool
	Build      bool
}

// Up starts services, detached unless Foreground is set.
func (m *Manager) Up(ctx context.Context, services []string, opts UpOptions) error {
	args := []string{"up"}
	if !opts.Foreground {
		args = append(args, "-d")
	}
	if opts.Build {
		args = append(args, "--build")
	}
	return m.run(ctx, services, withServices(args, services)...)
}

// DownOptions configures Down.
type DownOptions struct {
	Volumes bool

	// KeepOrphans leaves containers of services no longer in the files.
	KeepOrphans bool
}

// Down stops and removes the project's containers.
func (m *Manager) Down(ctx context.Context, opts DownOptions) error {
	args := []string{"down"}
	if opts.Volumes {
		args = append(args, "-v")
	}
	if !opts.KeepOrphans {
		args = append(args, "--remove-orphans")
	}
	return m.exec(ctx, m.cfg.Stdout, args...)
}

// Ps lists containers.
func (m *Manager) Ps(ctx context.Context, services []string) error {
	return m.run(ctx, services, withServices([]string{"ps"}, services)...)
}

// LogsOptions configures Logs.
type LogsOptions struct {
	Follow bool
	Tail   int
}

// Logs shows service logs.
func (m *Manager) Logs(ctx context.Context, services []string, opts LogsOptions) error {
	args := []string{"logs"}
	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	return m.run(ctx, services, withServices(args, services)...)
}

// Restart restarts services.
func (m *Manager) Restart(ctx context.Context, services []string) error {
	return m.run(ctx, services, withServices([]string{"restart"}, services)...)
}

// BuildOptions configures Build.
type BuildOptions struct {
	NoCache bool
}

// Build builds service images.
func (m *Manager) Build(ctx context.Context, services []string, opts BuildOptions) error {
	args := []string{"build"}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	return m.run(ctx, services, withServices(args, services)...)
}

// Pull pulls service images.
func (m *Manager) Pull(ctx context.Context, services []string) error {
	return m.run(ctx, services, withServices([]string{"pull"}, services)...)
}

// Exec runs a command in a running service container.
func (m *Manager) Exec(ctx context.Context, service string, command []string) error {
	return m.ExecWith(ctx, service, command, ExecOptions{})
}

// ExecOptions configures ExecWith.
type ExecOptions struct {
	// NoTTY disables pseudo-TTY allocation.
	NoTTY bool
}

// ExecWith runs a command in a running service container.
func (m *Manager) ExecWith(ctx context.Context, service string, command []string, opts ExecOptions) error {
	if len(command) == 0 {
		return fmt.Errorf("exec requires a command")
	}
	args := []string{"exec"}
	if opts.NoTTY {
		args = append(args, "-T")
	}
	args = append(args, service)
	args = append(args, command...)
	return m.run(ctx, []string{service}, args...)
}

// DefaultShell is used by Shell when no shell is given.
const DefaultShell = "sh"

// Shell opens an interactive shell in a service container.
func (m *Manager) Shell(ctx context.Context, service, shell string) error {
	if shell == "" {
		shell = DefaultShell
	}
	return m.run(ctx, []string{service}, "exec", service, shell)
}

// Custom forwards arbitrary arguments after the configured files and profile.
func (m *Manager) Custom(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("compose requires a subcommand")
	}
	return m.exec(ctx, m.cfg.Stdout, args...)
}

// Status runs `ps --format json` and parses the result.
func (m *Manager) Status(ctx context.Context) ([]ContainerStatus, error) {
	var out bytes.Buffer
	if err := m.exec(ctx, &out, "ps", "--all", "--format", "json"); err != nil {
		return nil, err
	}
	return ParseStatus(out.Bytes())
}

// withServices appends "--" before service names so a name can never be
// read as an option.
func withServices(args, services []string) []string {
	if len(services) == 0 {
		return args
	}
	args = append(args, "--")
	return append(args, services...)
}
