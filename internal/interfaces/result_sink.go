package interfaces

import "context"

// ResultSink receives structured records of a scaling session.
// RecordBatch is called once per evaluated batch, in increasing instance
// count order, before the session moves on. RecordRun is called once when the
// session has converged.
type ResultSink interface {
	RecordBatch(ctx context.Context, summary BatchSummary) error
	RecordRun(ctx context.Context, summary RunSummary) error
}
