package worker

import (
	"context"
	"time"
)

// WorkloadSpec describes one instance of a batch.
type WorkloadSpec struct {
	// RunID identifies the scaling session.
	RunID string

	// BatchSize is the number of instances in the batch.
	BatchSize int

	// Index is the zero-based position of the instance in its batch.
	Index int

	// Model and Source are opaque locators passed through unmodified.
	Model  string
	Source string

	// Duration is the time the workload should run before exiting on its own.
	Duration time.Duration
}

// Launcher starts instances.
type Launcher interface {
	// Spawn starts one instance. It returns once the instance has been
	// created; it does not wait for the workload to become ready.
	Spawn(ctx context.Context, spec WorkloadSpec) (Instance, error)
}

// ExitStatus describes how an instance ended.
type ExitStatus struct {
	// Err is the exit error, nil for a clean exit.
	Err error

	// At is when the exit was observed.
	At time.Time

	// BeforeStop is true when the instance exited before Stop or Kill was called.
	BeforeStop bool

	// Frames is the frame count when the exit was observed.
	Frames int64
}

// Instance is a running workload.
type Instance interface {
	// Index is the position of the instance in its batch.
	Index() int

	// FrameCount returns the last reported cumulative frame count. It never decreases.
	FrameCount() int64

	// Done is closed once the instance has exited.
	Done() <-chan struct{}

	// Exit returns the exit status. Only valid after Done is closed.
	Exit() ExitStatus

	// Stop asks the instance to finish gracefully.
	Stop() error

	// Kill terminates the instance immediately.
	Kill() error
}
