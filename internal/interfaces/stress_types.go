package interfaces

import (
	"time"
)

// ResourceReading is one set of utilization readings. A nil field means the
// metric was unavailable when the reading was taken.
type ResourceReading struct {
	CPUPercent             *float64 `json:"cpuPercent,omitempty"`
	MemoryPercent          *float64 `json:"memoryPercent,omitempty"`
	AcceleratorUtilPercent *float64 `json:"acceleratorUtilPercent,omitempty"`
	AcceleratorTempCelsius *float64 `json:"acceleratorTempCelsius,omitempty"`
}

// SampleMetric is a point-in-time ResourceReading taken by the sampler.
type SampleMetric struct {
	Timestamp time.Time `json:"timestamp"`
	ResourceReading
}

// InstanceStatus is the terminal status of a worker instance within a batch.
type InstanceStatus string

const (
	// InstanceCompleted means the instance ran until it was asked to stop, or
	// finished its duration budget on its own.
	InstanceCompleted InstanceStatus = "completed"
	// InstanceCrashed means the instance exited abnormally before it was asked to stop.
	InstanceCrashed InstanceStatus = "crashed"
	// InstanceTimedOut means the instance did not exit within the grace period
	// after being asked to stop and was killed.
	InstanceTimedOut InstanceStatus = "timed-out"
)

// InstanceResult is the outcome of one worker instance in one batch.
type InstanceResult struct {
	// Index is the zero-based position of the instance in its batch.
	Index int `json:"index"`

	// Frames is the number of frames processed during the measurement window.
	Frames int64 `json:"frames"`

	// FPS is Frames divided by the measured wall-clock time. The grace period
	// after the stop signal is not part of the measured time.
	FPS float64 `json:"fps"`

	// Elapsed is the measured wall-clock time.
	Elapsed time.Duration `json:"elapsed"`

	Status InstanceStatus `json:"status"`

	// ExitError describes an abnormal exit, empty otherwise.
	ExitError string `json:"exitError,omitempty"`

	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

// Verdict is the pass/fail classification of a batch.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// FailureCause distinguishes why a batch failed.
type FailureCause string

const (
	CauseNone FailureCause = ""
	// CauseThresholdExceeded means at least one numeric threshold was violated.
	CauseThresholdExceeded FailureCause = "threshold-exceeded"
	// CauseAggregationImpossible means no instance produced usable throughput
	// data, so the workload itself is suspect rather than the device.
	CauseAggregationImpossible FailureCause = "aggregation-impossible"
	// CauseInstanceFailure means an instance crashed or timed out and the
	// session is configured to fail batches on any instance failure.
	CauseInstanceFailure FailureCause = "instance-failure"
)

// Threshold names reported in BatchSummary.ExceededThresholds and
// BatchSummary.UnevaluatedMetrics.
const (
	MetricCPU    = "cpu"
	MetricMemory = "memory"
	MetricFPS    = "fps"
)

// BatchSummary is the aggregate of one concurrency level.
type BatchSummary struct {
	InstanceCount int `json:"instanceCount"`

	MeanFPS                    *float64 `json:"meanFPS,omitempty"`
	MeanCPUPercent             *float64 `json:"meanCPUPercent,omitempty"`
	MeanMemoryPercent          *float64 `json:"meanMemoryPercent,omitempty"`
	MeanAcceleratorUtilPercent *float64 `json:"meanAcceleratorUtilPercent,omitempty"`
	MeanAcceleratorTempCelsius *float64 `json:"meanAcceleratorTempCelsius,omitempty"`

	Verdict Verdict      `json:"verdict"`
	Cause   FailureCause `json:"cause,omitempty"`

	// ExceededThresholds lists the thresholds the batch violated.
	ExceededThresholds []string `json:"exceededThresholds,omitempty"`

	// UnevaluatedMetrics lists thresholds that could not be checked because
	// every reading of the metric was unavailable.
	UnevaluatedMetrics []string `json:"unevaluatedMetrics,omitempty"`

	Completed int `json:"completed"`
	Crashed   int `json:"crashed"`
	TimedOut  int `json:"timedOut"`

	Instances []InstanceResult `json:"instances,omitempty"`
	Samples   []SampleMetric   `json:"samples,omitempty"`

	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

// Passed reports whether the batch verdict is pass.
func (b BatchSummary) Passed() bool {
	return b.Verdict == VerdictPass
}

// TerminationReason tells why a scaling session stopped.
type TerminationReason string

const (
	TerminationThresholdExceeded   TerminationReason = "threshold-exceeded"
	TerminationReachedMaxInstances TerminationReason = "reached-max-instances"
	TerminationExternallyCancelled TerminationReason = "externally-cancelled"
)

// RunSummary is the result of a whole scaling session.
type RunSummary struct {
	RunID string `json:"runID"`

	// Batches are ordered by increasing instance count.
	Batches []BatchSummary `json:"batches"`

	// MaxSustainableInstances is the largest instance count whose batch
	// passed, 0 when none did.
	MaxSustainableInstances int `json:"maxSustainableInstances"`

	TotalBatchesRun   int               `json:"totalBatchesRun"`
	TerminationReason TerminationReason `json:"terminationReason"`

	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}
