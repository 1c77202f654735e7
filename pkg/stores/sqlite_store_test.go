package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shardctl/shardctl/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func syncReport(started time.Time) *engine.Report {
	r := engine.NewReport(engine.PhaseSync, engine.ModeNone,
		engine.Outcome{Service: "zeta", Status: engine.StatusCloned, Detail: "cloned", Path: "/srv/zeta", Duration: 1500 * time.Millisecond},
		engine.Outcome{Service: "alpha", Status: engine.StatusSkipped, Detail: "already exists", ExitCode: -1},
		engine.Outcome{Service: "beta", Status: engine.StatusFailed, Kind: engine.KindCloneFailed, Detail: "fatal: repository not found", ExitCode: 128},
	)
	r.StartedAt = started
	r.CompletedAt = started.Add(2 * time.Second)
	return r
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Migrate(ctx); err == nil {
		t.Error("expected migrate to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreMigrationsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	for _, table := range []string{"runs", "outcomes"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestFileStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.db")

	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to open file store: %v", err)
	}
	defer store.Close()

	if _, err := store.RecordReport(context.Background(), syncReport(time.Now()), RunContext{}); err != nil {
		t.Fatalf("failed to record report: %v", err)
	}
}

func TestRecordReportRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := syncReport(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	run, err := store.RecordReport(ctx, report, RunContext{ManifestPath: "services.yml", Root: "/srv"})
	if err != nil {
		t.Fatalf("failed to record report: %v", err)
	}

	if run.ID == "" || report.RunID != run.ID {
		t.Fatalf("expected generated run id written back, got run=%q report=%q", run.ID, report.RunID)
	}
	if run.Result != RunResultFailed {
		t.Errorf("expected failed result, got %s", run.Result)
	}
	if run.Total != 3 || run.Failed != 1 {
		t.Errorf("expected total=3 failed=1, got total=%d failed=%d", run.Total, run.Failed)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Phase != engine.PhaseSync {
		t.Errorf("expected phase sync, got %s", got.Phase)
	}
	if got.Summary != report.Summary() {
		t.Errorf("expected summary %q, got %q", report.Summary(), got.Summary)
	}
	if got.ManifestPath != "services.yml" || got.Root != "/srv" {
		t.Errorf("unexpected run context: %+v", got)
	}
	if !got.StartedAt.Equal(report.StartedAt) {
		t.Errorf("expected started_at %v, got %v", report.StartedAt, got.StartedAt)
	}
	if got.Duration() != 2*time.Second {
		t.Errorf("expected duration 2s, got %v", got.Duration())
	}

	outcomes, err := store.ListOutcomes(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list outcomes: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}

	wantOrder := []string{"zeta", "alpha", "beta"}
	for i, o := range outcomes {
		if o.Service != wantOrder[i] {
			t.Errorf("outcome %d: expected %s, got %s", i, wantOrder[i], o.Service)
		}
		if o.Position != i {
			t.Errorf("outcome %d: expected position %d, got %d", i, i, o.Position)
		}
	}

	failed := outcomes[2].Outcome()
	if failed.Kind != engine.KindCloneFailed || failed.ExitCode != 128 {
		t.Errorf("unexpected failed outcome: %+v", failed)
	}
	if outcomes[0].Duration != 1500*time.Millisecond {
		t.Errorf("expected duration 1.5s, got %v", outcomes[0].Duration)
	}
	if outcomes[1].ExitCode != -1 {
		t.Errorf("expected exit code -1, got %d", outcomes[1].ExitCode)
	}
}

func TestRecordReportKeepsRunID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := engine.NewReport(engine.PhaseBuild, engine.ModeDocker,
		engine.Outcome{Service: "api", Status: engine.StatusSucceeded})
	report.RunID = "run-fixed"

	run, err := store.RecordReport(ctx, report, RunContext{})
	if err != nil {
		t.Fatalf("failed to record report: %v", err)
	}
	if run.ID != "run-fixed" || run.Result != RunResultSucceeded || run.Mode != engine.ModeDocker {
		t.Errorf("unexpected run: %+v", run)
	}

	if _, err := store.RecordReport(ctx, report, RunContext{}); err == nil {
		t.Error("expected duplicate run id to fail")
	}

	// The failed insert must not leave partial outcomes behind.
	outcomes, err := store.ListOutcomes(ctx, "run-fixed")
	if err != nil {
		t.Fatalf("failed to list outcomes: %v", err)
	}
	if len(outcomes) != 1 {
		t.Errorf("expected 1 outcome, got %d", len(outcomes))
	}
}

func TestRecordEmptyReport(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.RecordReport(context.Background(), engine.NewReport(engine.PhaseSync, engine.ModeNone), RunContext{})
	if err != nil {
		t.Fatalf("failed to record empty report: %v", err)
	}
	if run.Total != 0 || run.Result != RunResultSucceeded || run.Summary != "nothing to do" {
		t.Errorf("unexpected run for empty report: %+v", run)
	}

	if _, err := store.RecordReport(context.Background(), nil, RunContext{}); err == nil {
		t.Error("expected error for nil report")
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, _ := store.RecordReport(ctx, syncReport(base), RunContext{})

	build := engine.NewReport(engine.PhaseBuild, engine.ModeNative,
		engine.Outcome{Service: "api", Status: engine.StatusSucceeded})
	build.StartedAt = base.Add(time.Hour)
	build.CompletedAt = build.StartedAt
	second, _ := store.RecordReport(ctx, build, RunContext{})

	tests := []struct {
		name   string
		filter RunFilter
		want   []string
	}{
		{"all newest first", RunFilter{}, []string{second.ID, first.ID}},
		{"by phase", RunFilter{Phase: engine.PhaseBuild}, []string{second.ID}},
		{"failed only", RunFilter{Failed: true}, []string{first.ID}},
		{"by service", RunFilter{Service: "beta"}, []string{first.ID}},
		{"unknown service", RunFilter{Service: "nope"}, []string{}},
		{"limit", RunFilter{Limit: 1}, []string{second.ID}},
		{"offset", RunFilter{Limit: 1, Offset: 1}, []string{first.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(ctx, tt.filter)
			if err != nil {
				t.Fatalf("failed to list runs: %v", err)
			}
			if len(runs) != len(tt.want) {
				t.Fatalf("expected %d runs, got %d", len(tt.want), len(runs))
			}
			for i, r := range runs {
				if r.ID != tt.want[i] {
					t.Errorf("run %d: expected %s, got %s", i, tt.want[i], r.ID)
				}
			}
		})
	}
}

func TestResolveRunID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"abc123", "abd456", "x_1"} {
		r := engine.NewReport(engine.PhaseClean, engine.ModeNone)
		r.RunID = id
		if _, err := store.RecordReport(ctx, r, RunContext{}); err != nil {
			t.Fatalf("failed to record %s: %v", id, err)
		}
	}

	tests := []struct {
		prefix  string
		want    string
		wantErr error
	}{
		{"abc", "abc123", nil},
		{"abd456", "abd456", nil},
		{"ab", "", ErrAmbiguousID},
		{"zz", "", ErrNotFound},
		{"x_", "x_1", nil},
		{"x%", "", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got, err := store.ResolveRunID(ctx, tt.prefix)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	if _, err := store.ResolveRunID(ctx, "  "); err == nil {
		t.Error("expected error for blank prefix")
	}
}

func TestDeleteAndPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	old, _ := store.RecordReport(ctx, syncReport(base), RunContext{})
	recent, _ := store.RecordReport(ctx, syncReport(base.Add(48*time.Hour)), RunContext{})

	n, err := store.PruneRuns(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("failed to prune runs: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned run, got %d", n)
	}
	if _, err := store.GetRun(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected pruned run to be gone, got %v", err)
	}

	outcomes, err := store.ListOutcomes(ctx, old.ID)
	if err != nil {
		t.Fatalf("failed to list outcomes: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("expected outcomes to cascade, got %d", len(outcomes))
	}

	if err := store.DeleteRun(ctx, recent.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if err := store.DeleteRun(ctx, recent.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLastOutcome(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _ = store.RecordReport(ctx, syncReport(base), RunContext{})

	later := engine.NewReport(engine.PhaseSync, engine.ModeNone,
		engine.Outcome{Service: "beta", Status: engine.StatusCloned, Detail: "cloned"})
	later.StartedAt = base.Add(time.Hour)
	later.CompletedAt = later.StartedAt
	_, _ = store.RecordReport(ctx, later, RunContext{})

	o, err := store.LastOutcome(ctx, "beta", engine.PhaseSync)
	if err != nil {
		t.Fatalf("failed to get last outcome: %v", err)
	}
	if o.Status != engine.StatusCloned {
		t.Errorf("expected latest outcome cloned, got %s", o.Status)
	}

	if _, err := store.LastOutcome(ctx, "beta", engine.PhaseBuild); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for build phase, got %v", err)
	}
}
