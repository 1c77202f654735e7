package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shardctl/shardctl/pkg/manifest"
)

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	// Runner executes build commands. Defaults to a ShellRunner.
	Runner CommandRunner

	Logger   *zerolog.Logger
	Observer Observer
	Tracer   trace.Tracer

	// Timeout bounds every build command. Zero leaves builds unbounded, in
	// which case a hanging build blocks the batch until ctx is canceled.
	Timeout time.Duration

	// Output receives a live copy of build stdout and stderr.
	Output io.Writer
}

// Builder runs per-service build commands.
type Builder struct {
	runner   CommandRunner
	logger   zerolog.Logger
	observer Observer
	tracer   trace.Tracer
	timeout  time.Duration
	output   io.Writer

	stat func(string) (os.FileInfo, error)
}

// NewBuilder creates a new build engine.
func NewBuilder(cfg BuilderConfig) *Builder {
	runner := cfg.Runner
	if runner == nil {
		runner = &ShellRunner{}
	}

	return &Builder{
		runner:   runner,
		logger:   defaultLogger(cfg.Logger, "build"),
		observer: defaultObserver(cfg.Observer),
		tracer:   defaultTracer(cfg.Tracer),
		timeout:  cfg.Timeout,
		output:   cfg.Output,
		stat:     os.Stat,
	}
}

// ResolveWorkingDir returns root/(working_directory or name) as an
// absolute path. Paths escaping root are rejected.
func ResolveWorkingDir(root, name string, cfg manifest.BuildConfig) (string, error) {
	rel := filepath.FromSlash(cfg.Dir(name))
	if !filepath.IsLocal(rel) {
		return "", NewConfigurationError(KindInvalidWorkingDirectory,
			fmt.Sprintf("working directory %q escapes the services root", rel), nil).WithService(name)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", NewConfigurationError(KindInvalidWorkingDirectory, "cannot resolve services root", err).WithService(name)
	}
	dir := filepath.Join(absRoot, rel)

	if err := checkConfined(absRoot, dir); err != nil {
		return "", NewConfigurationError(KindInvalidWorkingDirectory,
			fmt.Sprintf("working directory %q escapes the services root", rel), err).WithService(name).WithPath(dir)
	}
	return dir, nil
}

// checkConfined resolves symlinks in root and dir and fails when dir does
// not end up below root. A dir that does not exist yet passes; the build
// reports it as missing.
func checkConfined(root, dir string) error {
	realDir, err := filepath.EvalSymlinks(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(realRoot, realDir)
	if err != nil {
		return err
	}
	if rel != "." && !filepath.IsLocal(rel) {
		return fmt.Errorf("%s resolves to %s", dir, realDir)
	}
	return nil
}

// BuildService runs the build command for one service in workDir. The
// command is docker_build_command when docker is set and build_command
// otherwise. Nothing is spawned when the command is empty or workDir does
// not exist.
func (b *Builder) BuildService(ctx context.Context, name, workDir string, cfg manifest.BuildConfig, docker bool) Outcome {
	return b.buildService(ctx, b.logger, name, workDir, cfg, ModeFor(docker))
}

func (b *Builder) buildService(ctx context.Context, logger zerolog.Logger, name, workDir string, cfg manifest.BuildConfig, mode BuildMode) Outcome {
	ctx, span := b.tracer.Start(ctx, "build.service", trace.WithAttributes(
		attribute.String("service", name),
		attribute.String("path", workDir),
		attribute.String("mode", string(mode)),
	))
	defer span.End()

	start := time.Now()
	o := b.run(ctx, name, workDir, cfg, mode)
	o.Duration = time.Since(start)

	finishSpan(span, o)
	b.observer.ObserveOutcome(PhaseBuild, mode, o)
	logOutcome(logger, PhaseBuild, o)
	return o
}

func (b *Builder) run(ctx context.Context, name, workDir string, cfg manifest.BuildConfig, mode BuildMode) Outcome {
	o := Outcome{
		Service:     name,
		Path:        workDir,
		Environment: cfg.Environment,
		ExitCode:    -1,
	}

	command := cfg.Command(mode == ModeDocker)
	if command == "" {
		return failed(o, NewConfigurationError(KindNoBuildCommand,
			fmt.Sprintf("no %s build command configured", mode), nil).WithService(name))
	}
	o.Command = command

	info, err := b.stat(workDir)
	if err == nil && !info.IsDir() {
		err = fmt.Errorf("%s is not a directory", workDir)
	}
	if err != nil {
		return failed(o, NewConfigurationError(KindWorkingDirectoryMissing,
			"working directory does not exist", err).WithService(name).WithPath(workDir))
	}

	if ctx.Err() != nil {
		return failed(o, canceledError(name, ctx.Err()))
	}

	res, err := b.runner.Run(ctx, Command{
		Line:    command,
		Dir:     workDir,
		Stdout:  b.output,
		Stderr:  b.output,
		Timeout: b.timeout,
	})
	if err != nil {
		return failed(o, NewProcessError(KindBuildFailed, "build command could not be started", -1, "", err).WithService(name))
	}

	o.ExitCode = res.ExitCode
	if res.ExitCode == 0 && !res.TimedOut {
		o.Status = StatusSucceeded
		o.Detail = "build succeeded"
		return o
	}

	if ctx.Err() != nil {
		return failed(o, canceledError(name, ctx.Err()))
	}

	msg := fmt.Sprintf("build exited with status %d", res.ExitCode)
	if res.TimedOut {
		msg = fmt.Sprintf("build timed out after %s", b.timeout)
	}
	diag := diagnostic(res.Stderr, res.Stdout)
	o.Detail = msg
	if diag != "" {
		o.Detail = msg + ": " + diag
	}
	return failed(o, NewProcessError(KindBuildFailed, msg, res.ExitCode, diag, nil).WithService(name))
}

// Build runs BuildService for the named services, or for every service with
// a build configuration when names is empty. A requested name without a
// build configuration fails the whole call with NoConfigForService before
// anything is spawned. Otherwise every service is attempted and gets one
// outcome, in request order.
func (b *Builder) Build(ctx context.Context, m *manifest.Manifest, root string, names []string, docker bool) (*Report, error) {
	services, err := selectBuilds(m, names)
	if err != nil {
		return nil, err
	}

	mode := ModeFor(docker)
	report := newRun(PhaseBuild, mode)
	if len(services) == 0 {
		finishRun(report, nil)
		return report, nil
	}

	ctx, span := b.tracer.Start(ctx, "build.run", trace.WithAttributes(
		attribute.String("run.id", report.RunID),
		attribute.String("mode", string(mode)),
		attribute.Int("services", len(services)),
	))
	defer span.End()

	logger := b.logger.With().Str("run_id", report.RunID).Logger()
	logger.Info().
		Str("root", root).
		Str("mode", string(mode)).
		Int("services", len(services)).
		Msg("Building services")

	for _, svc := range services {
		cfg := *svc.Build

		workDir, err := ResolveWorkingDir(root, svc.Name, cfg)
		if err != nil {
			var e *Error
			if !errors.As(err, &e) {
				e = NewConfigurationError(KindInvalidWorkingDirectory, err.Error(), nil).WithService(svc.Name)
			}
			o := failed(Outcome{Service: svc.Name, Environment: cfg.Environment}, e)
			b.observer.ObserveOutcome(PhaseBuild, mode, o)
			logOutcome(logger, PhaseBuild, o)
			report.Outcomes = append(report.Outcomes, o)
			continue
		}

		report.Outcomes = append(report.Outcomes, b.buildService(ctx, logger, svc.Name, workDir, cfg, mode))
	}

	finishRun(report, span)
	logger.Info().Str("summary", report.Summary()).Msg("Build finished")
	return report, nil
}

// selectBuilds resolves names to services with a build configuration. An
// empty list selects all of them in manifest order.
func selectBuilds(m *manifest.Manifest, names []string) ([]manifest.Service, error) {
	if len(names) == 0 {
		return m.BuildServices(), nil
	}

	var out []manifest.Service
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		svc, ok := m.Service(name)
		if !ok || svc.Build == nil {
			return nil, NewConfigurationError(KindNoConfigForService,
				fmt.Sprintf("no build configuration found for service %q", name), nil).WithService(name)
		}
		out = append(out, svc)
	}
	return out, nil
}
