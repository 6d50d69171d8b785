package scaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-stress-controller/internal/config"
	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
	"github.com/llm-d/llm-d-stress-controller/internal/logging"
)

// State is a scaling driver state.
type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StateEvaluated State = "Evaluated"
	StateConverged State = "Converged"
)

// BatchRunner runs one batch of n instances.
type BatchRunner interface {
	RunBatch(ctx context.Context, n int) (interfaces.BatchSummary, error)
}

// StateObserver is notified on every transition.
type StateObserver func(state State, n int)

// Driver runs a stress session.
type Driver struct {
	runID      string
	runner     BatchRunner
	sink       interfaces.ResultSink
	thresholds config.ThresholdConfig
	cooldown   time.Duration
	clock      clock.Clock
	observers  []StateObserver

	mu      sync.Mutex
	state   State
	current int
}

// Option customizes a Driver.
type Option func(*Driver)

// WithCooldown pauses between two batches.
func WithCooldown(d time.Duration) Option {
	return func(dr *Driver) { dr.cooldown = d }
}

// WithClock sets the clock used for timestamps and the cool-down.
func WithClock(clk clock.Clock) Option {
	return func(dr *Driver) { dr.clock = clk }
}

// WithStateObserver registers a transition observer.
func WithStateObserver(o StateObserver) Option {
	return func(dr *Driver) { dr.observers = append(dr.observers, o) }
}

// NewDriver creates a driver for one session.
func NewDriver(runID string, runner BatchRunner, sink interfaces.ResultSink, thresholds config.ThresholdConfig, opts ...Option) *Driver {
	d := &Driver{
		runID:      runID,
		runner:     runner,
		sink:       sink,
		thresholds: thresholds,
		clock:      clock.RealClock{},
		state:      StateIdle,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State returns the current state and the instance count it refers to.
func (d *Driver) State() (State, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.current
}

func (d *Driver) transition(ctx context.Context, to State, n int) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.current = n
	d.mu.Unlock()

	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Scaling driver transition",
		"from", from, "to", to, "instances", n)
	for _, o := range d.observers {
		o(to, n)
	}
}

// Run executes the session until it converges. It can only be called once.
func (d *Driver) Run(ctx context.Context) (interfaces.RunSummary, error) {
	logger := ctrl.LoggerFrom(ctx).WithValues("runID", d.runID)
	ctx = ctrl.LoggerInto(ctx, logger)

	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return interfaces.RunSummary{}, fmt.Errorf("scaling driver already ran, state %s", d.state)
	}
	d.mu.Unlock()

	run := interfaces.RunSummary{
		RunID:     d.runID,
		StartedAt: d.clock.Now(),
	}
	logger.Info("Starting stress session",
		"maxInstances", d.thresholds.MaxInstances,
		"batchDuration", d.thresholds.BatchDuration.String(),
		"sampleInterval", d.thresholds.SampleInterval.String())

	n := 1
	for {
		d.transition(ctx, StateRunning, n)
		batch, err := d.runner.RunBatch(ctx, n)
		if err != nil {
			if errors.Is(err, interfaces.ErrSessionCancelled) || ctx.Err() != nil {
				logger.Info("Session cancelled, discarding in-flight batch", "instances", n)
				run.TerminationReason = interfaces.TerminationExternallyCancelled
				break
			}
			d.transition(ctx, StateConverged, n)
			return run, fmt.Errorf("batch with %d instances failed: %w", n, err)
		}

		d.transition(ctx, StateEvaluated, n)
		run.Batches = append(run.Batches, batch)
		run.TotalBatchesRun++
		if err := d.sink.RecordBatch(ctx, batch); err != nil {
			logger.Error(err, "Failed to record batch", "instances", n)
		}

		if !batch.Passed() {
			logger.Info("Batch failed, device saturated",
				"instances", n, "cause", batch.Cause, "exceeded", batch.ExceededThresholds)
			run.TerminationReason = interfaces.TerminationThresholdExceeded
			break
		}
		run.MaxSustainableInstances = n
		if n >= d.thresholds.MaxInstances {
			run.TerminationReason = interfaces.TerminationReachedMaxInstances
			break
		}

		if d.cooldown > 0 {
			select {
			case <-ctx.Done():
			case <-d.clock.After(d.cooldown):
			}
			if ctx.Err() != nil {
				logger.Info("Session cancelled during cool-down")
				run.TerminationReason = interfaces.TerminationExternallyCancelled
				break
			}
		}
		n++
	}

	d.transition(ctx, StateConverged, n)
	run.CompletedAt = d.clock.Now()
	logger.Info("Stress session converged",
		"maxSustainableInstances", run.MaxSustainableInstances,
		"totalBatchesRun", run.TotalBatchesRun,
		"terminationReason", run.TerminationReason)

	// The run summary is written even when the session was cancelled.
	if err := d.sink.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Error(err, "Failed to record run summary")
	}
	return run, nil
}
