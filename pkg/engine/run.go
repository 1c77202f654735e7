package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/shardctl/shardctl/pkg/engine"

func defaultTracer(t trace.Tracer) trace.Tracer {
	if t != nil {
		return t
	}
	return otel.Tracer(tracerName)
}

func defaultLogger(l *zerolog.Logger, component string) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return l.With().Str("component", component).Logger()
}

func defaultObserver(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// newRun starts an empty report with a fresh run ID.
func newRun(phase Phase, mode BuildMode) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		Phase:     phase,
		Mode:      mode,
		StartedAt: time.Now(),
		Outcomes:  []Outcome{},
	}
}

func finishRun(r *Report, span trace.Span) {
	r.CompletedAt = time.Now()
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("outcomes.total", r.Total()),
		attribute.Int("outcomes.failed", r.Count(StatusFailed)),
	)
	if r.Succeeded() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, r.Summary())
	}
}

// runAll calls fn for every index and returns the outcomes in index order.
// With concurrency above one the calls run on a bounded errgroup; fn never
// fails so every index is attempted.
func runAll(n, concurrency int, fn func(i int) Outcome) []Outcome {
	outcomes := make([]Outcome, n)
	if concurrency <= 1 {
		for i := range n {
			outcomes[i] = fn(i)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range n {
		g.Go(func() error {
			outcomes[i] = fn(i)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func finishSpan(span trace.Span, o Outcome) {
	span.SetAttributes(attribute.String("status", string(o.Status)))
	if o.Failed() {
		span.SetAttributes(attribute.String("error.kind", string(o.Kind)))
		if o.Err != nil {
			span.RecordError(o.Err)
		}
		span.SetStatus(codes.Error, o.Detail)
		return
	}
	span.SetStatus(codes.Ok, "")
}

func logOutcome(logger zerolog.Logger, phase Phase, o Outcome) {
	event := logger.Info()
	if o.Failed() {
		event = logger.Warn().
			Str("kind", string(o.Kind)).
			Int("exit_code", o.ExitCode)
	}
	event.
		Str("phase", string(phase)).
		Str("service", o.Service).
		Str("status", string(o.Status)).
		Str("path", o.Path).
		Dur("duration", o.Duration).
		Str("detail", o.Detail).
		Msg("Service processed")
}

func canceledError(service string, err error) *Error {
	return NewProcessError(KindCanceled, "operation canceled", -1, "", err).WithService(service)
}
