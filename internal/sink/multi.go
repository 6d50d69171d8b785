package sink

import (
	"context"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// MultiSink forwards every record to all of its sinks. A failing sink does
// not keep the others from receiving the record.
type MultiSink []interfaces.ResultSink

// RecordBatch implements interfaces.ResultSink.
func (m MultiSink) RecordBatch(ctx context.Context, summary interfaces.BatchSummary) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordBatch(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

// RecordRun implements interfaces.ResultSink.
func (m MultiSink) RecordRun(ctx context.Context, summary interfaces.RunSummary) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordRun(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}
