// Package engine implements the shardctl orchestration engines.
//
// # Overview
//
// Two independent phases operate on a validated manifest.Manifest and a
// services root directory:
//
//   - Sync (Syncer.Sync) clones each service repository into root/<name>,
//     skipping existing working copies or replacing them when forced.
//   - Build (Builder.Build) runs each service's build_command, or its
//     docker_build_command in docker mode, inside root/(working_directory or name).
//
// Syncer.Clean removes working copies again.
//
// Every phase returns a *Report holding one Outcome per attempted service,
// in order. A failing service never stops its siblings; the caller reads
// Report.Succeeded to decide its exit status:
//
//	report, err := syncer.Sync(ctx, m, "services", false)
//	if err != nil {
//	    return err // manifest-level problem, nothing was attempted
//	}
//	for _, o := range report.Outcomes {
//	    fmt.Println(o.Service, o.Status, o.Detail)
//	}
//	if !report.Succeeded() {
//	    os.Exit(1)
//	}
//
// # Error Classification
//
// Failures carry an *Error with a class and a kind:
//
//   - configuration: NoBuildCommand, WorkingDirectoryMissing, NoConfigForService, ...
//   - process: CloneFailed, BuildFailed (with exit code and diagnostic output)
//   - filesystem: RemoveFailed, PathUnavailable
//
// Use KindOf and IsKind to inspect them.
//
// # Concurrency
//
// Both engines are sequential by default and block on each child process.
// SyncerConfig.Concurrency enables a bounded parallel sync; operations on the
// same service path are still serialized and outcomes keep manifest order.
// BuilderConfig.Timeout optionally bounds each build command.
package engine
