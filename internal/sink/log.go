package sink

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
	"github.com/llm-d/llm-d-stress-controller/internal/logging"
)

// LogSink writes one structured log line per record.
type LogSink struct {
	logger logr.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger logr.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// RecordBatch implements interfaces.ResultSink.
func (s *LogSink) RecordBatch(_ context.Context, b interfaces.BatchSummary) error {
	s.logger.Info("Batch result",
		"instances", b.InstanceCount,
		"verdict", b.Verdict,
		"cause", b.Cause,
		"meanFPS", formatOptional(b.MeanFPS),
		"meanCPUPercent", formatOptional(b.MeanCPUPercent),
		"meanMemoryPercent", formatOptional(b.MeanMemoryPercent),
		"meanAcceleratorUtilPercent", formatOptional(b.MeanAcceleratorUtilPercent),
		"meanAcceleratorTempCelsius", formatOptional(b.MeanAcceleratorTempCelsius),
		"exceeded", b.ExceededThresholds,
		"unevaluated", b.UnevaluatedMetrics,
		"completed", b.Completed,
		"crashed", b.Crashed,
		"timedOut", b.TimedOut)
	for _, r := range b.Instances {
		s.logger.V(logging.DEBUG).Info("Instance result",
			"instances", b.InstanceCount,
			"index", r.Index,
			"status", r.Status,
			"frames", r.Frames,
			"fps", formatFloat(r.FPS),
			"error", r.ExitError)
	}
	return nil
}

// RecordRun implements interfaces.ResultSink.
func (s *LogSink) RecordRun(_ context.Context, r interfaces.RunSummary) error {
	s.logger.Info("Stress session result",
		"runID", r.RunID,
		"maxSustainableInstances", r.MaxSustainableInstances,
		"totalBatchesRun", r.TotalBatchesRun,
		"terminationReason", r.TerminationReason,
		"duration", r.CompletedAt.Sub(r.StartedAt).String())
	return nil
}
