package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shardctl/shardctl/pkg/manifest"
)

// SyncerConfig configures a Syncer.
type SyncerConfig struct {
	// Cloner performs the clones. Required.
	Cloner Cloner

	Logger   *zerolog.Logger
	Observer Observer
	Tracer   trace.Tracer

	// Concurrency is the number of services processed at once. Values
	// below two keep the sequential behavior.
	Concurrency int
}

// Syncer clones service repositories into a services root.
type Syncer struct {
	cloner      Cloner
	logger      zerolog.Logger
	observer    Observer
	tracer      trace.Tracer
	concurrency int
	locks       *pathLocks

	stat      func(string) (os.FileInfo, error)
	removeAll func(string) error
	mkdirAll  func(string, os.FileMode) error
}

// NewSyncer creates a new sync engine.
func NewSyncer(cfg SyncerConfig) (*Syncer, error) {
	if cfg.Cloner == nil {
		return nil, fmt.Errorf("cloner is required")
	}

	return &Syncer{
		cloner:      cfg.Cloner,
		logger:      defaultLogger(cfg.Logger, "sync"),
		observer:    defaultObserver(cfg.Observer),
		tracer:      defaultTracer(cfg.Tracer),
		concurrency: cfg.Concurrency,
		locks:       newPathLocks(),
		stat:        os.Lstat,
		removeAll:   os.RemoveAll,
		mkdirAll:    os.MkdirAll,
	}, nil
}

// Sync clones every service with a repository URL into root/<name>.
// Existing working copies are skipped, or removed and cloned again when
// force is set. Every service gets exactly one outcome, in manifest order.
// A manifest with no repositories yields an empty report and root is not
// created.
func (s *Syncer) Sync(ctx context.Context, m *manifest.Manifest, root string, force bool) (*Report, error) {
	report := newRun(PhaseSync, ModeNone)
	services := m.Repositories()
	if len(services) == 0 {
		finishRun(report, nil)
		return report, nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, NewFilesystemError(KindPathUnavailable, "cannot resolve services root", root, err)
	}

	ctx, span := s.tracer.Start(ctx, "sync.run", trace.WithAttributes(
		attribute.String("run.id", report.RunID),
		attribute.String("root", absRoot),
		attribute.Int("services", len(services)),
		attribute.Bool("force", force),
	))
	defer span.End()

	logger := s.logger.With().Str("run_id", report.RunID).Logger()
	logger.Info().
		Str("root", absRoot).
		Int("services", len(services)).
		Bool("force", force).
		Msg("Syncing service repositories")

	if err := s.mkdirAll(absRoot, 0o755); err != nil {
		for _, svc := range services {
			o := Outcome{Service: svc.Name, Path: filepath.Join(absRoot, svc.Name)}
			o = failed(o, NewFilesystemError(KindPathUnavailable, "cannot create services root", absRoot, err).WithService(svc.Name))
			s.observer.ObserveOutcome(PhaseSync, ModeNone, o)
			logOutcome(logger, PhaseSync, o)
			report.Outcomes = append(report.Outcomes, o)
		}
		finishRun(report, span)
		return report, nil
	}

	report.Outcomes = runAll(len(services), s.concurrency, func(i int) Outcome {
		return s.syncService(ctx, logger, absRoot, services[i], force)
	})

	finishRun(report, span)
	logger.Info().Str("summary", report.Summary()).Msg("Sync finished")
	return report, nil
}

func (s *Syncer) syncService(ctx context.Context, logger zerolog.Logger, root string, svc manifest.Service, force bool) Outcome {
	path := filepath.Join(root, svc.Name)
	o := Outcome{Service: svc.Name, Path: path, ExitCode: -1}
	if svc.Build != nil {
		o.Environment = svc.Build.Environment
	}

	ctx, span := s.tracer.Start(ctx, "sync.service", trace.WithAttributes(
		attribute.String("service", svc.Name),
		attribute.String("path", path),
	))
	defer span.End()

	start := time.Now()
	unlock := s.locks.lock(path)
	o = s.syncPath(ctx, o, svc.RepositoryURL, force)
	unlock()
	o.Duration = time.Since(start)

	finishSpan(span, o)
	s.observer.ObserveOutcome(PhaseSync, ModeNone, o)
	logOutcome(logger, PhaseSync, o)
	return o
}

func (s *Syncer) syncPath(ctx context.Context, o Outcome, url string, force bool) Outcome {
	replaced := false

	_, err := s.stat(o.Path)
	switch {
	case err == nil && !force:
		o.Status = StatusSkipped
		o.Detail = "already exists"
		return o

	case err == nil:
		if ctx.Err() != nil {
			return failed(o, canceledError(o.Service, ctx.Err()))
		}
		if err := s.removeAll(o.Path); err != nil {
			return failed(o, NewFilesystemError(KindRemoveFailed, "failed to remove existing working copy", o.Path, err).WithService(o.Service))
		}
		replaced = true

	case !errors.Is(err, fs.ErrNotExist):
		return failed(o, NewFilesystemError(KindPathUnavailable, "cannot inspect service path", o.Path, err).WithService(o.Service))
	}

	if ctx.Err() != nil {
		return failed(o, canceledError(o.Service, ctx.Err()))
	}

	res, err := s.cloner.Clone(ctx, url, o.Path)
	if err != nil {
		return failed(o, NewProcessError(KindCloneFailed, "clone could not be started", -1, "", err).WithService(o.Service))
	}
	if res.ExitCode != 0 {
		msg := fmt.Sprintf("clone exited with status %d", res.ExitCode)
		diag := diagnostic(res.Stderr, "")
		o.Detail = msg
		if diag != "" {
			o.Detail = diag
		}
		return failed(o, NewProcessError(KindCloneFailed, msg, res.ExitCode, diag, nil).WithService(o.Service))
	}

	o.Status = StatusCloned
	o.ExitCode = 0
	o.Detail = "cloned"
	if replaced {
		o.Detail = "replaced existing working copy"
	}
	return o
}

// Clean removes the working copies of the named services, or of every
// service with a repository when names is empty. Unknown names are
// rejected before anything is removed. Missing working copies are skipped.
func (s *Syncer) Clean(ctx context.Context, m *manifest.Manifest, root string, names []string) (*Report, error) {
	services, err := selectRepositories(m, names)
	if err != nil {
		return nil, err
	}

	report := newRun(PhaseClean, ModeNone)
	if len(services) == 0 {
		finishRun(report, nil)
		return report, nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, NewFilesystemError(KindPathUnavailable, "cannot resolve services root", root, err)
	}

	ctx, span := s.tracer.Start(ctx, "clean.run", trace.WithAttributes(
		attribute.String("run.id", report.RunID),
		attribute.Int("services", len(services)),
	))
	defer span.End()

	logger := s.logger.With().Str("run_id", report.RunID).Logger()

	for _, svc := range services {
		start := time.Now()
		path := filepath.Join(absRoot, svc.Name)

		unlock := s.locks.lock(path)
		o := s.cleanPath(ctx, Outcome{Service: svc.Name, Path: path, ExitCode: -1})
		unlock()

		o.Duration = time.Since(start)
		s.observer.ObserveOutcome(PhaseClean, ModeNone, o)
		logOutcome(logger, PhaseClean, o)
		report.Outcomes = append(report.Outcomes, o)
	}

	finishRun(report, span)
	return report, nil
}

func (s *Syncer) cleanPath(ctx context.Context, o Outcome) Outcome {
	if _, err := s.stat(o.Path); errors.Is(err, fs.ErrNotExist) {
		o.Status = StatusSkipped
		o.Detail = "not present"
		return o
	} else if err != nil {
		return failed(o, NewFilesystemError(KindPathUnavailable, "cannot inspect service path", o.Path, err).WithService(o.Service))
	}

	if ctx.Err() != nil {
		return failed(o, canceledError(o.Service, ctx.Err()))
	}
	if err := s.removeAll(o.Path); err != nil {
		return failed(o, NewFilesystemError(KindRemoveFailed, "failed to remove working copy", o.Path, err).WithService(o.Service))
	}

	o.Status = StatusRemoved
	o.Detail = "removed"
	return o
}

// selectRepositories resolves names to manifest entries with a repository.
// An empty list selects all of them.
func selectRepositories(m *manifest.Manifest, names []string) ([]manifest.Service, error) {
	if len(names) == 0 {
		return m.Repositories(), nil
	}

	var out []manifest.Service
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		svc, ok := m.Service(name)
		if !ok || !svc.HasRepository() {
			return nil, NewConfigurationError(KindUnknownService,
				fmt.Sprintf("service %q has no repository in the manifest", name), nil).WithService(name)
		}
		out = append(out, svc)
	}
	return out, nil
}
