// Package batch runs one measurement batch: N identical worker instances in
// parallel for a fixed window while the resource sampler records host and
// accelerator utilization. The outcome is handed to the saturation analyzer
// and returned as a BatchSummary.
package batch
