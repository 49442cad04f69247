// Package runner provides the process-level execution core of wd-orchestrator.
//
// The main components are:
//   - TestRunner: executes one non-parallel suite and discovers test modules
//   - Supervisor: spawns, labels, colors and tracks child processes
//   - WorkerQueue: single control loop draining work units with bounded concurrency
//   - OutputAggregator: buffers or live-streams per-child output
//   - ResultCollector: merges per-unit outcomes into one exit status
//
// Work units run as isolated child processes that re-invoke the orchestrator
// binary in single-run mode, so a hang or crash in one browser session cannot
// corrupt another's state.
package runner
