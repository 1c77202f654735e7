package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shardctl/shardctl/pkg/engine"
)

// Metrics provides Prometheus metrics for shardctl. It implements
// engine.Observer so it can be handed straight to the engines.
type Metrics struct {
	config MetricsConfig

	// Outcome metrics
	cloneOutcomes *prometheus.CounterVec
	buildOutcomes *prometheus.CounterVec
	cleanOutcomes *prometheus.CounterVec

	// Duration metrics
	serviceDuration *prometheus.HistogramVec
	runDuration     *prometheus.HistogramVec

	// Run metrics
	runsCompleted *prometheus.CounterVec

	// Error metrics
	errors *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ engine.Observer = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		cloneOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clone_outcomes_total",
				Help:      "Total number of repository sync outcomes by status",
			},
			[]string{"status"},
		),
		buildOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_outcomes_total",
				Help:      "Total number of build outcomes by status and mode",
			},
			[]string{"status", "mode"},
		),
		cleanOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clean_outcomes_total",
				Help:      "Total number of working copy removal outcomes by status",
			},
			[]string{"status"},
		),
		serviceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of per-service operations in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of whole orchestration passes in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of orchestration passes by result",
			},
			[]string{"phase", "result"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by class and kind",
			},
			[]string{"class", "kind"},
		),
	}

	registry.MustRegister(
		m.cloneOutcomes,
		m.buildOutcomes,
		m.cleanOutcomes,
		m.serviceDuration,
		m.runDuration,
		m.runsCompleted,
		m.errors,
	)

	return m, nil
}

// ObserveOutcome records one per-service outcome.
func (m *Metrics) ObserveOutcome(phase engine.Phase, mode engine.BuildMode, o engine.Outcome) {
	if m == nil || m.registry == nil {
		return
	}

	switch phase {
	case engine.PhaseSync:
		m.cloneOutcomes.WithLabelValues(string(o.Status)).Inc()
	case engine.PhaseBuild:
		m.buildOutcomes.WithLabelValues(string(o.Status), string(mode)).Inc()
	case engine.PhaseClean:
		m.cleanOutcomes.WithLabelValues(string(o.Status)).Inc()
	}
	m.serviceDuration.WithLabelValues(string(phase)).Observe(o.Duration.Seconds())

	if o.Failed() {
		m.RecordError(string(o.Kind.Class()), string(o.Kind))
	}
}

// RecordReport records a completed pass.
func (m *Metrics) RecordReport(r *engine.Report) {
	if m == nil || m.registry == nil || r == nil {
		return
	}
	result := "succeeded"
	if !r.Succeeded() {
		result = "failed"
	}
	m.runsCompleted.WithLabelValues(string(r.Phase), result).Inc()
	m.runDuration.WithLabelValues(string(r.Phase)).Observe(r.Duration().Seconds())
}

// RecordError records an error by class and kind.
func (m *Metrics) RecordError(class, kind string) {
	if m == nil || m.errors == nil {
		return
	}
	m.errors.WithLabelValues(class, kind).Inc()
}

// RecordFailure records err using its engine classification. Unclassified
// errors are counted as "internal".
func (m *Metrics) RecordFailure(err error) {
	if err == nil {
		return
	}
	class, kind := string(engine.ClassOf(err)), string(engine.KindOf(err))
	if class == "" {
		class = "internal"
	}
	m.RecordError(class, kind)
}

// Registry exposes the private registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m.registry == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is done. It returns
// immediately when no listen address is configured.
func (m *Metrics) Serve(ctx context.Context) error {
	if m.registry == nil || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return nil
}
