package metrics

// Metric names.
const (
	StressBatchesTotal              = "stress_batches_total"
	StressBatchMeanFPS              = "stress_batch_mean_fps"
	StressBatchMeanResourcePercent  = "stress_batch_mean_resource_percent"
	StressBatchAcceleratorTemp      = "stress_batch_accelerator_temp_celsius"
	StressInstanceOutcomesTotal     = "stress_instance_outcomes_total"
	StressSamplerUnavailableTotal   = "stress_sampler_unavailable_total"
	StressMaxSustainableInstances   = "stress_max_sustainable_instances"
	StressCurrentInstances          = "stress_current_instances"
	StressDriverState               = "stress_driver_state"
	StressRunDurationSeconds        = "stress_run_duration_seconds"
	StressRunTerminationReasonTotal = "stress_run_termination_reason_total"
)

// Label names.
const (
	LabelInstances = "instances"
	LabelVerdict   = "verdict"
	LabelCause     = "cause"
	LabelResource  = "resource"
	LabelStatus    = "status"
	LabelSource    = "source"
	LabelMetric    = "metric"
	LabelState     = "state"
	LabelReason    = "reason"
	LabelRunID     = "run_id"
)

// DefaultJobName is the Pushgateway job name.
const DefaultJobName = "stress-controller"
