package saturation

import (
	"github.com/llm-d/llm-d-stress-controller/internal/collector"
	"github.com/llm-d/llm-d-stress-controller/internal/config"
	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// Analyzer computes batch summaries and verdicts.
type Analyzer struct{}

// NewAnalyzer creates a new batch analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Summarize reduces the samples and instance results of a batch of n
// instances to a BatchSummary with a verdict. It does not modify its inputs
// and does not set StartedAt/EndedAt.
func (a *Analyzer) Summarize(
	n int,
	thresholds config.ThresholdConfig,
	samples []interfaces.SampleMetric,
	results []interfaces.InstanceResult,
) interfaces.BatchSummary {
	summary := interfaces.BatchSummary{
		InstanceCount: n,
		Instances:     append([]interfaces.InstanceResult(nil), results...),
		Samples:       append([]interfaces.SampleMetric(nil), samples...),
	}

	// Step 1: Instance outcomes and throughput over completed instances
	var fpsSum float64
	for _, r := range results {
		switch r.Status {
		case interfaces.InstanceCompleted:
			summary.Completed++
			fpsSum += r.FPS
		case interfaces.InstanceCrashed:
			summary.Crashed++
		case interfaces.InstanceTimedOut:
			summary.TimedOut++
		}
	}
	if summary.Completed > 0 {
		mean := fpsSum / float64(summary.Completed)
		summary.MeanFPS = &mean
	}

	// Step 2: Resource means over available readings
	summary.MeanCPUPercent = collector.SeriesOf(samples, collector.MetricCPUPercent).Mean()
	summary.MeanMemoryPercent = collector.SeriesOf(samples, collector.MetricMemoryPercent).Mean()
	summary.MeanAcceleratorUtilPercent = collector.SeriesOf(samples, collector.MetricAcceleratorUtilPercent).Mean()
	summary.MeanAcceleratorTempCelsius = collector.SeriesOf(samples, collector.MetricAcceleratorTempCelsius).Mean()

	// Step 3: Threshold checks
	if summary.MeanCPUPercent == nil {
		summary.UnevaluatedMetrics = append(summary.UnevaluatedMetrics, interfaces.MetricCPU)
	} else if *summary.MeanCPUPercent > thresholds.CPUThreshold {
		summary.ExceededThresholds = append(summary.ExceededThresholds, interfaces.MetricCPU)
	}
	if summary.MeanMemoryPercent == nil {
		summary.UnevaluatedMetrics = append(summary.UnevaluatedMetrics, interfaces.MetricMemory)
	} else if *summary.MeanMemoryPercent > thresholds.MemThreshold {
		summary.ExceededThresholds = append(summary.ExceededThresholds, interfaces.MetricMemory)
	}
	if summary.MeanFPS != nil && *summary.MeanFPS < thresholds.FPSThreshold {
		summary.ExceededThresholds = append(summary.ExceededThresholds, interfaces.MetricFPS)
	}

	// Step 4: Verdict
	switch {
	case summary.MeanFPS == nil:
		summary.Verdict = interfaces.VerdictFail
		summary.Cause = interfaces.CauseAggregationImpossible
	case len(summary.ExceededThresholds) > 0:
		summary.Verdict = interfaces.VerdictFail
		summary.Cause = interfaces.CauseThresholdExceeded
	case thresholds.FailOnInstanceFailure && summary.Crashed+summary.TimedOut > 0:
		summary.Verdict = interfaces.VerdictFail
		summary.Cause = interfaces.CauseInstanceFailure
	default:
		summary.Verdict = interfaces.VerdictPass
		summary.Cause = interfaces.CauseNone
	}

	return summary
}
