// Package scaling implements the scaling driver of a stress session.
//
// The driver owns the session state machine. It runs batches with increasing
// instance counts, evaluates each BatchSummary and decides whether to keep
// scaling. The largest instance count whose batch passed is the maximum
// sustainable concurrency of the device.
//
// # State Machine
//
//	Idle -> Running(N) -> Evaluated(N) -> {Running(N+1) | Converged}
//
// Transitions:
//   - The first batch runs with N = 1
//   - Evaluated(N) -> Running(N+1) when the batch passed and N < maxInstances
//   - Evaluated(N) -> Converged when the batch failed or N == maxInstances
//   - Any state -> Converged when the session is cancelled
//
// The scan is monotone. A smaller N is never re-tested after a failure and
// no batch is skipped.
//
// # Recording
//
// Every BatchSummary is forwarded to the ResultSink before the next
// transition, so an interrupted session is recorded up to its last evaluated
// batch. A batch interrupted by cancellation is never recorded. Sink errors
// are logged and do not stop the session.
//
// # Errors
//
// Only two conditions leave Run with an error:
//   - ErrSpawnFailed: not a single instance of the first batch could be started
//   - any other error returned by the batch runner that is not a cancellation
//
// Cancellation is a normal way to finish: Run returns the RunSummary with
// TerminationExternallyCancelled and a nil error.
//
// # Usage
//
//	driver := scaling.NewDriver(runID, runner, sink, thresholds,
//		scaling.WithCooldown(workload.Cooldown))
//	summary, err := driver.Run(ctx)
//	if err != nil {
//		setupLog.Error(err, "stress session failed")
//		os.Exit(1)
//	}
//
// See also:
//   - internal/batch: runs one batch
//   - internal/saturation: batch verdicts
//   - internal/sink: result sinks
package scaling
