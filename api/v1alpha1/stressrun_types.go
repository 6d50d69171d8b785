package v1alpha1

import (
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// StressRunSpec records how a stress session was configured.
type StressRunSpec struct {
	// RunID uniquely identifies the session.
	// +kubebuilder:validation:Required
	RunID string `json:"runID"`

	// Model is the model artifact locator passed to every worker instance.
	// +kubebuilder:validation:MinLength=1
	Model string `json:"model"`

	// Source is the data-source locator passed to every worker instance.
	// +kubebuilder:validation:MinLength=1
	Source string `json:"source"`

	// Launcher is how instances were started.
	// +kubebuilder:validation:Enum=process;pod
	Launcher string `json:"launcher"`

	// Device is the threshold profile the thresholds were resolved from, if any.
	// +optional
	Device string `json:"device,omitempty"`

	// Thresholds are the effective session thresholds.
	Thresholds ThresholdSpec `json:"thresholds"`

	// Warmup is the time between spawning instances and the start of measurement.
	// +optional
	Warmup metav1.Duration `json:"warmup,omitempty"`

	// GracePeriod bounds how long a stopped instance may take to exit.
	// +optional
	GracePeriod metav1.Duration `json:"gracePeriod,omitempty"`

	// Cooldown is the pause between two batches.
	// +optional
	Cooldown metav1.Duration `json:"cooldown,omitempty"`
}

// ThresholdSpec holds the thresholds a batch is evaluated against.
// Percentages and rates are decimal strings (e.g. "90.00").
type ThresholdSpec struct {
	// CPUThreshold is the maximum mean system CPU utilization in percent.
	// +kubebuilder:validation:Pattern=`^\d+(\.\d+)?$`
	CPUThreshold string `json:"cpuThreshold"`

	// MemThreshold is the maximum mean system memory utilization in percent.
	// +kubebuilder:validation:Pattern=`^\d+(\.\d+)?$`
	MemThreshold string `json:"memThreshold"`

	// FPSThreshold is the minimum mean per-instance throughput in frames per second.
	// +kubebuilder:validation:Pattern=`^\d+(\.\d+)?$`
	FPSThreshold string `json:"fpsThreshold"`

	// MaxInstances is the largest batch the session may run.
	// +kubebuilder:validation:Minimum=1
	MaxInstances int32 `json:"maxInstances"`

	// BatchDuration is the measurement window of one batch.
	BatchDuration metav1.Duration `json:"batchDuration"`

	// SampleInterval is the resource sampling cadence.
	SampleInterval metav1.Duration `json:"sampleInterval"`

	// FailOnInstanceFailure fails a batch in which any instance crashed or timed out.
	// +optional
	FailOnInstanceFailure bool `json:"failOnInstanceFailure,omitempty"`
}

// BatchRecord is the outcome of one batch.
type BatchRecord struct {
	// Instances is the concurrency level N of the batch.
	// +kubebuilder:validation:Minimum=1
	Instances int32 `json:"instances"`

	// Verdict is pass or fail.
	// +kubebuilder:validation:Enum=pass;fail
	Verdict string `json:"verdict"`

	// Cause explains a failing verdict.
	// +kubebuilder:validation:Enum=threshold-exceeded;aggregation-impossible;instance-failure
	// +optional
	Cause string `json:"cause,omitempty"`

	// Mean values of the batch as decimal strings. A missing field means the
	// metric was unavailable for the whole batch.
	// +optional
	MeanFPS *string `json:"meanFPS,omitempty"`
	// +optional
	MeanCPUPercent *string `json:"meanCPUPercent,omitempty"`
	// +optional
	MeanMemoryPercent *string `json:"meanMemoryPercent,omitempty"`
	// +optional
	MeanAcceleratorUtilPercent *string `json:"meanAcceleratorUtilPercent,omitempty"`
	// +optional
	MeanAcceleratorTempCelsius *string `json:"meanAcceleratorTempCelsius,omitempty"`

	// ExceededThresholds lists the metrics that failed their threshold.
	// +optional
	ExceededThresholds []string `json:"exceededThresholds,omitempty"`

	// UnevaluatedMetrics lists the thresholds that could not be checked.
	// +optional
	UnevaluatedMetrics []string `json:"unevaluatedMetrics,omitempty"`

	// Instance outcome counts.
	Completed int32 `json:"completed"`
	Crashed   int32 `json:"crashed"`
	TimedOut  int32 `json:"timedOut"`

	// StartTime and EndTime bound the batch.
	StartTime metav1.Time `json:"startTime"`
	EndTime   metav1.Time `json:"endTime"`
}

// StressRunStatus is the progress and result of a stress session.
type StressRunStatus struct {
	// State is the scaling driver state.
	// +kubebuilder:validation:Enum=Idle;Running;Evaluated;Converged
	// +optional
	State string `json:"state,omitempty"`

	// CurrentInstances is the concurrency level of the latest batch.
	// +optional
	CurrentInstances int32 `json:"currentInstances,omitempty"`

	// MaxSustainableInstances is the largest N whose batch passed so far.
	MaxSustainableInstances int32 `json:"maxSustainableInstances"`

	// TotalBatchesRun is the number of evaluated batches.
	TotalBatchesRun int32 `json:"totalBatchesRun"`

	// TerminationReason is set once the session converged.
	// +kubebuilder:validation:Enum=threshold-exceeded;reached-max-instances;externally-cancelled
	// +optional
	TerminationReason string `json:"terminationReason,omitempty"`

	// StartTime is when the session started.
	// +optional
	StartTime *metav1.Time `json:"startTime,omitempty"`

	// CompletionTime is when the session converged.
	// +optional
	CompletionTime *metav1.Time `json:"completionTime,omitempty"`

	// Batches holds one record per evaluated batch in increasing N.
	// +optional
	Batches []BatchRecord `json:"batches,omitempty"`

	// Conditions represent the latest available observations of the StressRun's state
	// +kubebuilder:validation:Optional
	// +patchMergeKey=type
	// +patchStrategy=merge
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty" patchStrategy:"merge" patchMergeKey:"type"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=sr
// +kubebuilder:printcolumn:name="Model",type=string,JSONPath=".spec.model"
// +kubebuilder:printcolumn:name="MaxInstances",type=integer,JSONPath=".spec.thresholds.maxInstances"
// +kubebuilder:printcolumn:name="Sustainable",type=integer,JSONPath=".status.maxSustainableInstances"
// +kubebuilder:printcolumn:name="Reason",type=string,JSONPath=".status.terminationReason"
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=".metadata.creationTimestamp"

// StressRun is the report of one stress session.
type StressRun struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   StressRunSpec   `json:"spec,omitempty"`
	Status StressRunStatus `json:"status,omitempty"`
}

// StressRunList contains a list of StressRun resources.
// +kubebuilder:object:root=true
type StressRunList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []StressRun `json:"items"`
}

func init() {
	SchemeBuilder.Register(&StressRun{}, &StressRunList{})
}

// Condition Types for StressRun
const (
	// TypeConverged indicates whether the scaling driver reached a terminal state
	TypeConverged = "Converged"
	// TypeBatchAggregationImpossible indicates a batch in which no instance produced throughput data
	TypeBatchAggregationImpossible = "BatchAggregationImpossible"
)

// Condition Reasons for Converged
const (
	// ReasonInProgress indicates batches are still being run
	ReasonInProgress = "InProgress"
	// ReasonThresholdExceeded indicates a batch failed its thresholds
	ReasonThresholdExceeded = "ThresholdExceeded"
	// ReasonReachedMaxInstances indicates every batch up to the maximum passed
	ReasonReachedMaxInstances = "ReachedMaxInstances"
	// ReasonExternallyCancelled indicates the session was interrupted
	ReasonExternallyCancelled = "ExternallyCancelled"
)

// Condition Reasons for BatchAggregationImpossible
const (
	// ReasonAllInstancesFailed indicates every instance of a batch crashed or timed out
	ReasonAllInstancesFailed = "AllInstancesFailed"
	// ReasonThroughputAvailable indicates every batch so far produced throughput data
	ReasonThroughputAvailable = "ThroughputAvailable"
)

// SetCondition adds or updates a status condition.
func (r *StressRun) SetCondition(condType string, status metav1.ConditionStatus, reason, message string) {
	meta.SetStatusCondition(&r.Status.Conditions, metav1.Condition{
		Type:               condType,
		Status:             status,
		ObservedGeneration: r.Generation,
		Reason:             reason,
		Message:            message,
	})
}

// GetCondition returns the condition of the given type, or nil.
func (r *StressRun) GetCondition(condType string) *metav1.Condition {
	return meta.FindStatusCondition(r.Status.Conditions, condType)
}

// IsConverged reports whether the session has finished.
func (r *StressRun) IsConverged() bool {
	return meta.IsStatusConditionTrue(r.Status.Conditions, TypeConverged)
}
