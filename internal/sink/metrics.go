package sink

import (
	"context"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
	"github.com/llm-d/llm-d-stress-controller/internal/metrics"
)

// MetricsSink publishes records as Prometheus metrics.
type MetricsSink struct {
	emitter *metrics.MetricsEmitter
}

// NewMetricsSink creates a metrics sink. Metrics must have been initialized.
func NewMetricsSink(emitter *metrics.MetricsEmitter) *MetricsSink {
	return &MetricsSink{emitter: emitter}
}

// RecordBatch implements interfaces.ResultSink.
func (s *MetricsSink) RecordBatch(_ context.Context, b interfaces.BatchSummary) error {
	return s.emitter.EmitBatchMetrics(b)
}

// RecordRun implements interfaces.ResultSink.
func (s *MetricsSink) RecordRun(_ context.Context, r interfaces.RunSummary) error {
	return s.emitter.EmitRunMetrics(r)
}
