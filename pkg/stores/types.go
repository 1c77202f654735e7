package stores

import (
	"context"
	"errors"
	"time"

	"github.com/shardctl/shardctl/pkg/engine"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// ErrAmbiguousID is returned when a run ID prefix matches more than one run.
var ErrAmbiguousID = errors.New("ambiguous run id")

// RunResult is the overall flag of a recorded pass.
type RunResult string

const (
	RunResultSucceeded RunResult = "succeeded"
	RunResultFailed    RunResult = "failed"
)

// Run is a recorded orchestration pass.
type Run struct {
	ID           string           `json:"id"`
	Phase        engine.Phase     `json:"phase"`
	Mode         engine.BuildMode `json:"mode,omitempty"`
	ManifestPath string           `json:"manifest_path"`
	Root         string           `json:"root"`
	Result       RunResult        `json:"result"`
	Summary      string           `json:"summary"`
	Total        int              `json:"total"`
	Failed       int              `json:"failed"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Duration returns the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// OutcomeRecord is one stored per-service outcome. Position preserves the
// report order.
type OutcomeRecord struct {
	ID          int64            `json:"id"`
	RunID       string           `json:"run_id"`
	Position    int              `json:"position"`
	Service     string           `json:"service"`
	Status      engine.Status    `json:"status"`
	Kind        engine.ErrorKind `json:"kind,omitempty"`
	Detail      string           `json:"detail,omitempty"`
	ExitCode    int              `json:"exit_code"`
	Path        string           `json:"path,omitempty"`
	Command     string           `json:"command,omitempty"`
	Environment string           `json:"environment,omitempty"`
	Duration    time.Duration    `json:"duration"`
}

// Outcome converts the record back to an engine outcome.
func (o *OutcomeRecord) Outcome() engine.Outcome {
	return engine.Outcome{
		Service:     o.Service,
		Status:      o.Status,
		Detail:      o.Detail,
		Kind:        o.Kind,
		ExitCode:    o.ExitCode,
		Path:        o.Path,
		Command:     o.Command,
		Environment: o.Environment,
		Duration:    o.Duration,
	}
}

// RunContext describes where a report came from.
type RunContext struct {
	ManifestPath string
	Root         string
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Phase   engine.Phase
	Service string
	Failed  bool
	Limit   int
	Offset  int
}

// Store defines the interface for run history persistence.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	RecordReport(ctx context.Context, report *engine.Report, rc RunContext) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ResolveRunID(ctx context.Context, prefix string) (string, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, before time.Time) (int64, error)

	// Outcome operations
	ListOutcomes(ctx context.Context, runID string) ([]*OutcomeRecord, error)
	LastOutcome(ctx context.Context, service string, phase engine.Phase) (*OutcomeRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
