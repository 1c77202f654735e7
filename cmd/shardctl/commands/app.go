package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shardctl/shardctl/pkg/compose"
	"github.com/shardctl/shardctl/pkg/config"
	"github.com/shardctl/shardctl/pkg/engine"
	"github.com/shardctl/shardctl/pkg/manifest"
	"github.com/shardctl/shardctl/pkg/policy"
	"github.com/shardctl/shardctl/pkg/stores"
	"github.com/shardctl/shardctl/pkg/telemetry"
	"github.com/shardctl/shardctl/pkg/vcs"
)

// settingFlags maps setting keys to the flags that override them. Commands
// that do not define a flag simply leave the setting alone.
var settingFlags = map[string]string{
	"manifest":        "manifest",
	"log.level":       "log-level",
	"parallel":        "parallel",
	"timeout":         "timeout",
	"compose.profile": "profile",
	"clone.backend":   "clone-backend",
	"clone.depth":     "depth",
}

// boundFlags collects the flags of cmd that map to settings.
func boundFlags(cmd *cobra.Command) map[string]*pflag.Flag {
	flags := make(map[string]*pflag.Flag)
	for key, name := range settingFlags {
		if f := cmd.Flags().Lookup(name); f != nil {
			flags[key] = f
		}
	}
	return flags
}

// app is everything a command needs, built from settings.
type app struct {
	settings *config.Settings
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
	out      io.Writer

	store *stores.SQLiteStore
	span  trace.Span
}

func newApp(cmd *cobra.Command) (*app, error) {
	settings, err := config.Load(config.Options{
		RootDir:      rootDir,
		SettingsFile: settingsFile,
		Flags:        boundFlags(cmd),
	})
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(telemetry.ParseLevel(settings.Log.Level))

	tel, err := telemetry.NewTelemetry(settings.Telemetry(buildVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{
		settings: settings,
		tel:      tel,
		logger:   *tel.Logger.NewComponentLogger("cli").Zerolog(),
		out:      cmd.OutOrStdout(),
	}
	a.logger.Debug().Str("settings", settings.String()).Msg("Settings loaded")

	ctx, span := tel.Tracer.StartSpan(cmd.Context(), "shardctl."+cmd.Name(),
		attribute.String("command", cmd.CommandPath()),
		attribute.String("manifest", settings.ManifestPath()),
	)
	a.span = span
	cmd.SetContext(ctx)
	return a, nil
}

// close ends the command span with the command's result, releases the
// store and flushes telemetry.
func (a *app) close(errp *error) {
	if errp != nil && *errp != nil {
		telemetry.RecordError(a.span, *errp)
	} else {
		telemetry.RecordSuccess(a.span)
	}
	a.span.End()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

func (a *app) engineLogger(component string) *zerolog.Logger {
	return a.tel.Logger.NewComponentLogger(component).Zerolog()
}

// policies loads the built-in policies plus the configured policy files.
func (a *app) policies(ctx context.Context) (*policy.Engine, error) {
	pe, err := policy.NewEngine(ctx, *a.engineLogger("policy"))
	if err != nil {
		return nil, err
	}
	if err := pe.LoadPolicies(ctx, a.settings.PolicyPaths()); err != nil {
		return nil, err
	}
	for _, name := range a.settings.DisabledPolicies {
		if err := pe.DisablePolicy(name); err != nil {
			return nil, fmt.Errorf("disabled_policies: %w", err)
		}
	}
	return pe, nil
}

// loadManifest reads the manifest and runs the policies for operation. Any
// error here is manifest-level: no service has been touched yet.
func (a *app) loadManifest(ctx context.Context, operation string) (*manifest.Manifest, *policy.Result, error) {
	m, err := manifest.Load(a.settings.ManifestPath())
	if err != nil {
		a.tel.Metrics.RecordFailure(err)
		return nil, nil, err
	}

	pe, err := a.policies(ctx)
	if err != nil {
		return nil, nil, err
	}
	result, err := pe.Check(ctx, m, operation)
	if err != nil {
		a.tel.Metrics.RecordFailure(err)
		return nil, result, err
	}
	return m, result, nil
}

func (a *app) cloner() (engine.Cloner, error) {
	return vcs.New(vcs.Backend(a.settings.Clone.Backend), vcs.Options{Depth: a.settings.Clone.Depth})
}

func (a *app) syncer() (*engine.Syncer, error) {
	cloner, err := a.cloner()
	if err != nil {
		return nil, err
	}
	return engine.NewSyncer(engine.SyncerConfig{
		Cloner:      cloner,
		Logger:      a.engineLogger("engine"),
		Observer:    a.tel.Metrics,
		Tracer:      a.tel.Tracer.Tracer(),
		Concurrency: a.settings.Parallel,
	})
}

func (a *app) builder(output io.Writer) *engine.Builder {
	return engine.NewBuilder(engine.BuilderConfig{
		Logger:   a.engineLogger("engine"),
		Observer: a.tel.Metrics,
		Tracer:   a.tel.Tracer.Tracer(),
		Timeout:  a.settings.Timeout,
		Output:   output,
	})
}

// history opens the run history store, or returns nil when history is
// disabled.
func (a *app) history(ctx context.Context) (*stores.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	path := a.settings.HistoryPath()
	if path == "" {
		return nil, nil
	}
	store, err := stores.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	a.store = store
	return store, nil
}

// requireHistory is history for commands that cannot work without it.
func (a *app) requireHistory(ctx context.Context) (*stores.SQLiteStore, error) {
	store, err := a.history(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("run history is disabled (history.enabled=false)")
	}
	return store, nil
}

// record stores and counts a finished report. History failures are logged
// and never change the outcome of the command.
func (a *app) record(ctx context.Context, report *engine.Report) {
	a.tel.Metrics.RecordReport(report)

	store, err := a.history(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Run history unavailable")
		return
	}
	if store == nil || report.Empty() {
		return
	}

	run, err := store.RecordReport(ctx, report, stores.RunContext{
		ManifestPath: a.settings.ManifestPath(),
		Root:         a.settings.ServicesRoot(),
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to record run")
		return
	}
	a.logger.Debug().Str("run_id", run.ID).Str("trace_id", telemetry.TraceID(ctx)).Msg("Run recorded")
}

// finish prints the report, records it and turns failures into the exit
// status.
func (a *app) finish(ctx context.Context, report *engine.Report) error {
	a.record(ctx, report)

	if jsonOutput {
		if err := writeJSON(a.out, report); err != nil {
			return err
		}
	} else if err := renderReport(a.out, report); err != nil {
		return err
	}

	if !report.Succeeded() {
		return reportFailed(report)
	}
	return nil
}

// composeManager builds the compose manager from settings.
func (a *app) composeManager(cmd *cobra.Command) (*compose.Manager, error) {
	return compose.NewManager(compose.Config{
		Binary:  a.settings.Compose.Binary,
		Files:   a.settings.ComposeFiles(),
		Profile: a.settings.Compose.Profile,
		Project: a.settings.Compose.Project,
		Dir:     a.settings.RootDir,
		Env:     a.settings.DotEnv,
		Stdin:   cmd.InOrStdin(),
		Stdout:  cmd.OutOrStdout(),
		Stderr:  cmd.ErrOrStderr(),
		Logger:  a.engineLogger("compose"),
	})
}

// requireTools fails when any executable is missing from PATH.
func requireTools(names ...string) error {
	if missing := vcs.Missing(vcs.CheckTools(names...)); len(missing) > 0 {
		return fmt.Errorf("required tools not found on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
