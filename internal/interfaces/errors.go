package interfaces

import "errors"

var (
	// ErrSamplerUnavailable marks a resource metric that could not be read on a tick.
	ErrSamplerUnavailable = errors.New("resource metric unavailable")
	// ErrWorkerCrashed marks an instance that exited abnormally before being asked to stop.
	ErrWorkerCrashed = errors.New("worker crashed")
	// ErrWorkerTimedOut marks an instance that ignored the stop signal for the whole grace period.
	ErrWorkerTimedOut = errors.New("worker did not exit within grace period")
	// ErrBatchAggregationImpossible marks a batch in which no instance produced throughput data.
	ErrBatchAggregationImpossible = errors.New("no instance produced throughput data")
	// ErrSessionCancelled is returned when the session is interrupted from outside.
	ErrSessionCancelled = errors.New("session cancelled")
	// ErrSpawnFailed is returned when not a single instance of the first batch could be started.
	ErrSpawnFailed = errors.New("failed to spawn worker")
)
