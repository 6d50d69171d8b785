package scaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	clocktesting "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/llm-d/llm-d-stress-controller/internal/config"
	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// scriptedRunner returns a prepared outcome per batch size. Missing entries pass.
type scriptedRunner struct {
	mu       sync.Mutex
	calls    []int
	cpu      map[int]float64
	errs     map[int]error
	onBatch  func(n int)
	causeFor map[int]interfaces.FailureCause
}

func (r *scriptedRunner) RunBatch(ctx context.Context, n int) (interfaces.BatchSummary, error) {
	r.mu.Lock()
	r.calls = append(r.calls, n)
	r.mu.Unlock()
	if r.onBatch != nil {
		r.onBatch(n)
	}
	if err, ok := r.errs[n]; ok {
		return interfaces.BatchSummary{}, err
	}
	if ctx.Err() != nil {
		return interfaces.BatchSummary{}, interfaces.ErrSessionCancelled
	}

	cpu := 50.0
	if v, ok := r.cpu[n]; ok {
		cpu = v
	}
	s := interfaces.BatchSummary{
		InstanceCount:  n,
		MeanFPS:        ptr.To(10.0),
		MeanCPUPercent: ptr.To(cpu),
		Verdict:        interfaces.VerdictPass,
		Completed:      n,
	}
	if cpu > 95 {
		s.Verdict = interfaces.VerdictFail
		s.Cause = interfaces.CauseThresholdExceeded
		s.ExceededThresholds = []string{interfaces.MetricCPU}
	}
	if cause, ok := r.causeFor[n]; ok {
		s.Verdict = interfaces.VerdictFail
		s.Cause = cause
		s.MeanFPS = nil
	}
	return s, nil
}

func (r *scriptedRunner) batches() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.calls...)
}

type recordingSink struct {
	mu       sync.Mutex
	batches  []interfaces.BatchSummary
	runs     []interfaces.RunSummary
	batchErr error
}

func (s *recordingSink) RecordBatch(_ context.Context, b interfaces.BatchSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return s.batchErr
}

func (s *recordingSink) RecordRun(ctx context.Context, r interfaces.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.runs = append(s.runs, r)
	return nil
}

func (s *recordingSink) instanceCounts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b.InstanceCount)
	}
	return out
}

var _ = Describe("Driver", func() {
	var (
		runner     *scriptedRunner
		sink       *recordingSink
		thresholds config.ThresholdConfig
	)

	BeforeEach(func() {
		runner = &scriptedRunner{}
		sink = &recordingSink{}
		thresholds = config.ThresholdConfig{
			CPUThreshold:   95,
			MemThreshold:   90,
			FPSThreshold:   5,
			MaxInstances:   4,
			BatchDuration:  20 * time.Second,
			SampleInterval: 5 * time.Second,
		}
	})

	It("should scale to the maximum when every batch passes", func() {
		d := NewDriver("run-a", runner, sink, thresholds)
		summary, err := d.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.RunID).To(Equal("run-a"))
		Expect(summary.MaxSustainableInstances).To(Equal(4))
		Expect(summary.TerminationReason).To(Equal(interfaces.TerminationReachedMaxInstances))
		Expect(summary.TotalBatchesRun).To(Equal(4))
		Expect(summary.Batches).To(HaveLen(4))
		Expect(sink.instanceCounts()).To(Equal([]int{1, 2, 3, 4}))
		Expect(sink.runs).To(HaveLen(1))

		state, n := d.State()
		Expect(state).To(Equal(StateConverged))
		Expect(n).To(Equal(4))
	})

	It("should stop at the first batch over the CPU threshold", func() {
		runner.cpu = map[int]float64{3: 97}
		summary, err := NewDriver("run-b", runner, sink, thresholds).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.MaxSustainableInstances).To(Equal(2))
		Expect(summary.TerminationReason).To(Equal(interfaces.TerminationThresholdExceeded))
		Expect(sink.instanceCounts()).To(Equal([]int{1, 2, 3}))
		Expect(runner.batches()).To(Equal([]int{1, 2, 3}))
		Expect(sink.batches[2].Verdict).To(Equal(interfaces.VerdictFail))
	})

	It("should report zero sustainable instances when the first batch fails", func() {
		runner.cpu = map[int]float64{1: 99}
		summary, err := NewDriver("run", runner, sink, thresholds).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.MaxSustainableInstances).To(Equal(0))
		Expect(summary.TotalBatchesRun).To(Equal(1))
		Expect(summary.TerminationReason).To(Equal(interfaces.TerminationThresholdExceeded))
	})

	It("should treat a batch without throughput data as a failure", func() {
		runner.causeFor = map[int]interfaces.FailureCause{2: interfaces.CauseAggregationImpossible}
		summary, err := NewDriver("run", runner, sink, thresholds).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.MaxSustainableInstances).To(Equal(1))
		Expect(summary.TerminationReason).To(Equal(interfaces.TerminationThresholdExceeded))
		Expect(sink.batches[1].Cause).To(Equal(interfaces.CauseAggregationImpossible))
	})

	It("should converge without recording the in-flight batch on cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		runner.onBatch = func(n int) {
			if n == 2 {
				cancel()
			}
		}

		summary, err := NewDriver("run-c", runner, sink, thresholds).Run(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.MaxSustainableInstances).To(Equal(1))
		Expect(summary.TerminationReason).To(Equal(interfaces.TerminationExternallyCancelled))
		Expect(summary.TotalBatchesRun).To(Equal(1))
		Expect(sink.instanceCounts()).To(Equal([]int{1}))
		Expect(sink.runs).To(HaveLen(1))
		Expect(sink.runs[0].TerminationReason).To(Equal(interfaces.TerminationExternallyCancelled))
	})

	It("should fail the session when the first batch cannot be spawned", func() {
		runner.errs = map[int]error{1: fmt.Errorf("%w: exec: not found", interfaces.ErrSpawnFailed)}
		summary, err := NewDriver("run", runner, sink, thresholds).Run(context.Background())
		Expect(errors.Is(err, interfaces.ErrSpawnFailed)).To(BeTrue())

		Expect(summary.TotalBatchesRun).To(Equal(0))
		Expect(sink.batches).To(BeEmpty())
	})

	It("should keep scaling when the sink fails", func() {
		sink.batchErr = errors.New("disk full")
		summary, err := NewDriver("run", runner, sink, thresholds).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.TotalBatchesRun).To(Equal(4))
		Expect(sink.instanceCounts()).To(Equal([]int{1, 2, 3, 4}))
	})

	It("should refuse to run twice", func() {
		d := NewDriver("run", runner, sink, thresholds)
		_, err := d.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		_, err = d.Run(context.Background())
		Expect(err).To(HaveOccurred())
	})

	It("should notify observers of every transition in order", func() {
		thresholds.MaxInstances = 2
		var seen []string
		observer := func(state State, n int) {
			seen = append(seen, fmt.Sprintf("%s(%d)", state, n))
		}

		_, err := NewDriver("run", runner, sink, thresholds, WithStateObserver(observer)).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal([]string{
			"Running(1)", "Evaluated(1)",
			"Running(2)", "Evaluated(2)",
			"Converged(2)",
		}))
	})

	It("should wait for the cool-down between batches", func() {
		thresholds.MaxInstances = 2
		fc := clocktesting.NewFakeClock(time.Now())
		d := NewDriver("run", runner, sink, thresholds, WithCooldown(30*time.Second), WithClock(fc))

		done := make(chan interfaces.RunSummary)
		go func() {
			defer GinkgoRecover()
			s, err := d.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			done <- s
		}()

		Eventually(fc.HasWaiters).Should(BeTrue())
		Expect(runner.batches()).To(Equal([]int{1}))
		fc.Step(30 * time.Second)

		var summary interfaces.RunSummary
		Eventually(done).Should(Receive(&summary))
		Expect(runner.batches()).To(Equal([]int{1, 2}))
		Expect(summary.CompletedAt.Sub(summary.StartedAt)).To(Equal(30 * time.Second))
	})

	DescribeTable("scans monotonically and never exceeds the maximum",
		func(maxInstances int, failAt int, wantMax int, wantBatches int) {
			thresholds.MaxInstances = maxInstances
			if failAt > 0 {
				runner.cpu = map[int]float64{failAt: 99}
			}
			summary, err := NewDriver("run", runner, sink, thresholds).Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.MaxSustainableInstances).To(Equal(wantMax))
			Expect(summary.MaxSustainableInstances).To(BeNumerically("<=", maxInstances))
			Expect(summary.TotalBatchesRun).To(Equal(wantBatches))
			for i, n := range runner.batches() {
				Expect(n).To(Equal(i + 1))
			}
		},
		Entry("single instance, passing", 1, 0, 1, 1),
		Entry("single instance, failing", 1, 1, 0, 1),
		Entry("failure in the middle", 8, 5, 4, 5),
		Entry("failure at the maximum", 6, 6, 5, 6),
		Entry("failure beyond the maximum is never reached", 3, 7, 3, 3),
	)
})
