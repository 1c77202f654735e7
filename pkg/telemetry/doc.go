// Package telemetry provides observability for shardctl.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus). Metrics implements engine.Observer, so every
// per-service outcome is counted as the engines produce it:
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	syncer, err := engine.NewSyncer(engine.SyncerConfig{
//	    Cloner:   cloner,
//	    Logger:   tel.Logger.NewComponentLogger("engine").Zerolog(),
//	    Observer: tel.Metrics,
//	    Tracer:   tel.Tracer.Tracer(),
//	})
//
// # Metrics
//
//   - shardctl_clone_outcomes_total{status}
//   - shardctl_build_outcomes_total{status,mode}
//   - shardctl_clean_outcomes_total{status}
//   - shardctl_operation_duration_seconds{phase}
//   - shardctl_run_duration_seconds{phase}
//   - shardctl_runs_completed_total{phase,result}
//   - shardctl_errors_total{class,kind}
//
// A CLI run is short-lived, so metrics are usually written to a file for
// node-exporter's textfile collector (MetricsConfig.TextfilePath) rather
// than scraped.
//
// # Tracing
//
// The engines create the spans sync.run, sync.service, build.run,
// build.service and clean.run. Exporters: otlp (gRPC), stdout, none.
package telemetry
