package engine

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the result of processing one service.
type Outcome struct {
	Service string `json:"service"`
	Status  Status `json:"status"`

	// Detail is a short human-readable explanation, such as the clone
	// diagnostic or "already exists".
	Detail string `json:"detail,omitempty"`

	// Kind is set for failed outcomes.
	Kind ErrorKind `json:"kind,omitempty"`

	// ExitCode is the child process exit code, or -1 when no process exited.
	ExitCode int `json:"exit_code"`

	Path        string        `json:"path,omitempty"`
	Command     string        `json:"command,omitempty"`
	Environment string        `json:"environment,omitempty"`
	Duration    time.Duration `json:"duration"`

	// Err is the classified error behind a failed outcome.
	Err error `json:"-"`
}

// Failed reports whether the outcome fails its report.
func (o Outcome) Failed() bool {
	return o.Status.IsFailure()
}

func failed(o Outcome, err *Error) Outcome {
	o.Status = StatusFailed
	o.Kind = err.Kind
	o.ExitCode = err.ExitCode
	o.Err = err
	if o.Detail == "" {
		o.Detail = err.Message
		if err.Err != nil {
			o.Detail = fmt.Sprintf("%s: %v", err.Message, err.Err)
		}
	}
	return o
}

// Report aggregates the ordered outcomes of one orchestration pass. All
// query methods are pure and safe on a nil report.
type Report struct {
	RunID       string    `json:"run_id"`
	Phase       Phase     `json:"phase"`
	Mode        BuildMode `json:"mode,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Outcomes    []Outcome `json:"outcomes"`
}

// NewReport creates a report over the given outcomes.
func NewReport(phase Phase, mode BuildMode, outcomes ...Outcome) *Report {
	now := time.Now()
	return &Report{
		Phase:       phase,
		Mode:        mode,
		StartedAt:   now,
		CompletedAt: now,
		Outcomes:    outcomes,
	}
}

// Total returns the number of outcomes.
func (r *Report) Total() int {
	if r == nil {
		return 0
	}
	return len(r.Outcomes)
}

// Empty reports whether there was nothing to do.
func (r *Report) Empty() bool {
	return r.Total() == 0
}

// Count returns the number of outcomes with the given status.
func (r *Report) Count(status Status) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Counts returns per-status counts. Statuses that did not occur are absent.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	if r == nil {
		return counts
	}
	for _, o := range r.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// Succeeded is true iff no outcome failed. An empty report succeeds.
func (r *Report) Succeeded() bool {
	return r.Count(StatusFailed) == 0
}

// Failures returns the failed outcomes in order.
func (r *Report) Failures() []Outcome {
	if r == nil {
		return nil
	}
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// Outcome returns the first outcome for service.
func (r *Report) Outcome(service string) (Outcome, bool) {
	if r == nil {
		return Outcome{}, false
	}
	for _, o := range r.Outcomes {
		if o.Service == service {
			return o, true
		}
	}
	return Outcome{}, false
}

// Duration returns the wall time of the pass.
func (r *Report) Duration() time.Duration {
	if r == nil || r.CompletedAt.Before(r.StartedAt) {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Summary renders a one-line summary such as "3 services: 2 cloned, 1 failed".
func (r *Report) Summary() string {
	if r.Empty() {
		return "nothing to do"
	}

	counts := r.Counts()
	parts := make([]string, 0, len(counts))
	for _, s := range AllStatuses {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}

	noun := "services"
	if r.Total() == 1 {
		noun = "service"
	}
	return fmt.Sprintf("%d %s: %s", r.Total(), noun, strings.Join(parts, ", "))
}
