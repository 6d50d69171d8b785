package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-stress-controller/internal/collector"
	"github.com/llm-d/llm-d-stress-controller/internal/config"
	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
	"github.com/llm-d/llm-d-stress-controller/internal/logging"
	"github.com/llm-d/llm-d-stress-controller/internal/saturation"
	"github.com/llm-d/llm-d-stress-controller/internal/worker"
)

// Runner executes batches. A Runner runs one batch at a time.
type Runner struct {
	launcher   worker.Launcher
	sampler    *collector.Sampler
	analyzer   *saturation.Analyzer
	thresholds config.ThresholdConfig
	workload   config.WorkloadConfig
	runID      string
	clock      clock.Clock
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock sets the clock used for warm-up and the batch deadline.
func WithClock(clk clock.Clock) Option {
	return func(r *Runner) { r.clock = clk }
}

// WithAnalyzer replaces the default analyzer.
func WithAnalyzer(a *saturation.Analyzer) Option {
	return func(r *Runner) { r.analyzer = a }
}

// NewRunner creates a batch runner for one session.
func NewRunner(
	runID string,
	launcher worker.Launcher,
	sampler *collector.Sampler,
	thresholds config.ThresholdConfig,
	workload config.WorkloadConfig,
	opts ...Option,
) *Runner {
	r := &Runner{
		launcher:   launcher,
		sampler:    sampler,
		analyzer:   saturation.NewAnalyzer(),
		thresholds: thresholds,
		workload:   workload,
		runID:      runID,
		clock:      clock.RealClock{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// slot tracks one instance of the batch.
type slot struct {
	inst      worker.Instance
	spawnErr  error
	spawnedAt time.Time
	baseline  int64
	final     int64
	status    interfaces.InstanceStatus
}

// RunBatch runs a batch of n instances and summarizes it.
//
// Only ErrSessionCancelled and, for n == 1, ErrSpawnFailed are returned as
// errors; instance crashes and timeouts are part of the summary.
func (r *Runner) RunBatch(ctx context.Context, n int) (interfaces.BatchSummary, error) {
	logger := ctrl.LoggerFrom(ctx).WithValues("batch", n)
	ctx = ctrl.LoggerInto(ctx, logger)

	if n < 1 {
		return interfaces.BatchSummary{}, fmt.Errorf("batch size must be >= 1, got %d", n)
	}
	if ctx.Err() != nil {
		return interfaces.BatchSummary{}, interfaces.ErrSessionCancelled
	}

	startedAt := r.clock.Now()
	logger.Info("Starting batch", "instances", n, "duration", r.thresholds.BatchDuration.String())

	// Step 1: Spawn all instances concurrently
	slots := r.spawn(ctx, n)
	if ctx.Err() != nil {
		r.abort(ctx, slots, nil)
		return interfaces.BatchSummary{}, interfaces.ErrSessionCancelled
	}
	if n == 1 && slots[0].spawnErr != nil {
		return interfaces.BatchSummary{}, fmt.Errorf("%w: %w", interfaces.ErrSpawnFailed, slots[0].spawnErr)
	}

	// Step 2: Warm-up, then baseline frame counts
	if r.workload.Warmup > 0 {
		logger.V(logging.DEBUG).Info("Warming up instances", "warmup", r.workload.Warmup.String())
		select {
		case <-ctx.Done():
			r.abort(ctx, slots, nil)
			return interfaces.BatchSummary{}, interfaces.ErrSessionCancelled
		case <-r.clock.After(r.workload.Warmup):
		}
	}
	for i := range slots {
		if slots[i].inst != nil {
			slots[i].baseline = slots[i].inst.FrameCount()
		}
	}

	// Step 3: Measurement window
	measureStart := r.clock.Now()
	handle := r.sampler.Start(ctx, r.thresholds.BatchDuration)
	select {
	case <-ctx.Done():
		r.abort(ctx, slots, handle)
		return interfaces.BatchSummary{}, interfaces.ErrSessionCancelled
	case <-r.clock.After(r.thresholds.BatchDuration):
	}
	samples := handle.Wait(ctx)
	if ctx.Err() != nil {
		r.abort(ctx, slots, handle)
		return interfaces.BatchSummary{}, interfaces.ErrSessionCancelled
	}
	measureEnd := r.clock.Now()
	elapsed := measureEnd.Sub(measureStart)

	// Step 4: Stop, snapshot, join
	for i := range slots {
		if slots[i].inst == nil {
			continue
		}
		if err := slots[i].inst.Stop(); err != nil {
			logger.Error(err, "Failed to stop instance", "index", i)
		}
		slots[i].final = slots[i].inst.FrameCount()
	}
	r.join(ctx, slots)
	if ctx.Err() != nil {
		return interfaces.BatchSummary{}, interfaces.ErrSessionCancelled
	}

	// Step 5: Aggregate
	results := make([]interfaces.InstanceResult, len(slots))
	for i := range slots {
		results[i] = r.result(i, slots[i], measureStart, measureEnd, elapsed)
	}
	summary := r.analyzer.Summarize(n, r.thresholds, samples, results)
	summary.StartedAt = startedAt
	summary.EndedAt = r.clock.Now()

	if summary.Cause == interfaces.CauseAggregationImpossible {
		logger.Info("No instance contributed throughput",
			"error", interfaces.ErrBatchAggregationImpossible,
			"crashed", summary.Crashed,
			"timedOut", summary.TimedOut)
	}
	logger.Info("Batch finished",
		"verdict", summary.Verdict,
		"cause", summary.Cause,
		"samples", len(samples),
		"completed", summary.Completed,
		"crashed", summary.Crashed,
		"timedOut", summary.TimedOut)

	return summary, nil
}

func (r *Runner) spawn(ctx context.Context, n int) []slot {
	logger := ctrl.LoggerFrom(ctx)
	slots := make([]slot, n)
	duration := r.workload.Warmup + r.thresholds.BatchDuration

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			spec := worker.WorkloadSpec{
				RunID:     r.runID,
				BatchSize: n,
				Index:     i,
				Model:     r.workload.Model,
				Source:    r.workload.Source,
				Duration:  duration,
			}
			slots[i].spawnedAt = r.clock.Now()
			inst, err := r.launcher.Spawn(ctx, spec)
			if err != nil {
				logger.Error(err, "Failed to spawn instance", "index", i)
				slots[i].spawnErr = err
				return nil
			}
			slots[i].inst = inst
			return nil
		})
	}
	_ = g.Wait()
	return slots
}

func (r *Runner) join(ctx context.Context, slots []slot) {
	var g errgroup.Group
	for i := range slots {
		if slots[i].inst == nil {
			continue
		}
		g.Go(func() error {
			slots[i].status = worker.Join(ctx, slots[i].inst, r.workload.GracePeriod, r.clock)
			return nil
		})
	}
	_ = g.Wait()
}

// abort kills every live instance and stops the sampler.
func (r *Runner) abort(ctx context.Context, slots []slot, handle *collector.SamplerHandle) {
	logger := ctrl.LoggerFrom(ctx)
	logger.Info("Batch cancelled, killing instances")
	if handle != nil {
		handle.Stop()
	}
	for i := range slots {
		if slots[i].inst == nil {
			continue
		}
		if err := slots[i].inst.Kill(); err != nil {
			logger.Error(err, "Failed to kill instance", "index", i)
		}
	}
}

func (r *Runner) result(index int, s slot, measureStart, measureEnd time.Time, elapsed time.Duration) interfaces.InstanceResult {
	res := interfaces.InstanceResult{
		Index:     index,
		StartedAt: s.spawnedAt,
		EndedAt:   measureEnd,
		Elapsed:   elapsed,
	}

	if s.spawnErr != nil {
		res.Status = interfaces.InstanceCrashed
		res.ExitError = fmt.Errorf("%w: %w", interfaces.ErrWorkerCrashed, s.spawnErr).Error()
		res.EndedAt = s.spawnedAt
		res.Elapsed = 0
		return res
	}

	res.Status = s.status
	res.Frames = max(s.final-s.baseline, 0)

	select {
	case <-s.inst.Done():
		exit := s.inst.Exit()
		res.EndedAt = exit.At
		if exit.BeforeStop && exit.At.Before(measureEnd) {
			res.Elapsed = max(exit.At.Sub(measureStart), 0)
		}
		if exit.Err != nil {
			res.ExitError = exit.Err.Error()
		}
	default:
	}
	if res.Elapsed > 0 {
		res.FPS = float64(res.Frames) / res.Elapsed.Seconds()
	}

	switch res.Status {
	case interfaces.InstanceCrashed:
		res.ExitError = fmt.Sprintf("%s: %s", interfaces.ErrWorkerCrashed, res.ExitError)
	case interfaces.InstanceTimedOut:
		res.ExitError = interfaces.ErrWorkerTimedOut.Error()
	}
	return res
}
