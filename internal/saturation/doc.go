// Package saturation implements batch-level saturation analysis for stress sessions.
//
// The Analyzer reduces the raw samples and per-instance results of one batch
// into a BatchSummary and classifies the batch against the session thresholds.
//
// Core Concepts:
//
// A batch is saturated when the device can no longer sustain the workload at
// its concurrency level:
//   - Mean system CPU utilization is above the CPU threshold
//   - Mean system memory utilization is above the memory threshold
//   - Mean per-instance throughput is below the FPS threshold
//
// Throughput is averaged over completed instances only. Crashed and timed-out
// instances are excluded; if no instance completed, the batch fails with
// CauseAggregationImpossible, which points at the workload rather than the
// device.
//
// Resource means ignore unavailable readings. A metric with no reading at all
// is reported as unavailable (nil) and its threshold is listed as unevaluated
// rather than failed.
//
// Example usage:
//
//	analyzer := saturation.NewAnalyzer()
//	summary := analyzer.Summarize(n, thresholds, samples, results)
//	if !summary.Passed() {
//	    log.Info("batch saturated", "cause", summary.Cause, "exceeded", summary.ExceededThresholds)
//	}
//
// Summarize is a pure function of its inputs: calling it twice with the same
// samples and results yields identical summaries.
package saturation
