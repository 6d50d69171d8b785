package batch

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/llm-d/llm-d-stress-controller/internal/collector"
	"github.com/llm-d/llm-d-stress-controller/internal/config"
	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

var _ = Describe("Runner", func() {
	var (
		launcher   *fakeLauncher
		source     *fixedSource
		thresholds config.ThresholdConfig
		workload   config.WorkloadConfig
	)

	newRunner := func() *Runner {
		sampler := collector.NewSampler(source, thresholds.SampleInterval, nil)
		return NewRunner("run-1", launcher, sampler, thresholds, workload)
	}

	BeforeEach(func() {
		launcher = &fakeLauncher{fallback: behavior{rate: 100}}
		source = &fixedSource{reading: reading(40, 30)}
		thresholds = config.ThresholdConfig{
			CPUThreshold:   90,
			MemThreshold:   90,
			FPSThreshold:   3,
			MaxInstances:   4,
			BatchDuration:  200 * time.Millisecond,
			SampleInterval: 50 * time.Millisecond,
		}
		workload = config.WorkloadConfig{
			Model:       "models/detector.onnx",
			Source:      "videos/traffic.mp4",
			Warmup:      20 * time.Millisecond,
			GracePeriod: 100 * time.Millisecond,
		}
	})

	Context("when every instance keeps up", func() {
		It("should sample once per interval and pass the batch", func() {
			summary, err := newRunner().RunBatch(context.Background(), 3)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.InstanceCount).To(Equal(3))
			Expect(summary.Samples).To(HaveLen(4))
			Expect(summary.Verdict).To(Equal(interfaces.VerdictPass))
			Expect(summary.Completed).To(Equal(3))
			Expect(summary.MeanFPS).NotTo(BeNil())
			Expect(*summary.MeanFPS).To(BeNumerically("~", 100, 40))
			Expect(*summary.MeanCPUPercent).To(BeNumerically("==", 40))
			Expect(summary.EndedAt.After(summary.StartedAt)).To(BeTrue())

			for i := 1; i < len(summary.Samples); i++ {
				Expect(summary.Samples[i].Timestamp.After(summary.Samples[i-1].Timestamp)).To(BeTrue())
			}
			for _, inst := range launcher.spawned() {
				Expect(inst.stopped.Load()).To(BeTrue())
				Expect(inst.killed.Load()).To(BeFalse())
			}
		})

		It("should pass the workload locators and batch identity to every instance", func() {
			_, err := newRunner().RunBatch(context.Background(), 2)
			Expect(err).NotTo(HaveOccurred())

			Expect(launcher.specs).To(HaveLen(2))
			indices := []int{}
			for _, spec := range launcher.specs {
				Expect(spec.RunID).To(Equal("run-1"))
				Expect(spec.BatchSize).To(Equal(2))
				Expect(spec.Model).To(Equal("models/detector.onnx"))
				Expect(spec.Source).To(Equal("videos/traffic.mp4"))
				Expect(spec.Duration).To(Equal(220 * time.Millisecond))
				indices = append(indices, spec.Index)
			}
			Expect(indices).To(ConsistOf(0, 1))
		})

		It("should exclude frames produced during warm-up", func() {
			workload.Warmup = 200 * time.Millisecond
			summary, err := newRunner().RunBatch(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Instances).To(HaveLen(1))
			Expect(summary.Instances[0].Frames).To(BeNumerically("~", 20, 10))
		})
	})

	Context("when resources are saturated", func() {
		It("should fail the batch on the CPU threshold", func() {
			source.reading = reading(97, 30)
			summary, err := newRunner().RunBatch(context.Background(), 2)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Verdict).To(Equal(interfaces.VerdictFail))
			Expect(summary.Cause).To(Equal(interfaces.CauseThresholdExceeded))
			Expect(summary.ExceededThresholds).To(ConsistOf(interfaces.MetricCPU))
		})
	})

	Context("when instances fail", func() {
		It("should isolate a crashed instance from the others", func() {
			launcher.behaviors = map[int]behavior{1: {rate: 100, crashAfter: 60 * time.Millisecond}}
			summary, err := newRunner().RunBatch(context.Background(), 3)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Completed).To(Equal(2))
			Expect(summary.Crashed).To(Equal(1))
			Expect(summary.Verdict).To(Equal(interfaces.VerdictPass))
			for _, r := range summary.Instances {
				if r.Index == 1 {
					Expect(r.Status).To(Equal(interfaces.InstanceCrashed))
					Expect(r.ExitError).To(ContainSubstring(interfaces.ErrWorkerCrashed.Error()))
				} else {
					Expect(r.Status).To(Equal(interfaces.InstanceCompleted))
				}
			}
		})

		It("should report aggregation as impossible when every instance crashes", func() {
			launcher.fallback = behavior{rate: 100, crashAfter: 10 * time.Millisecond}
			summary, err := newRunner().RunBatch(context.Background(), 2)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Crashed).To(Equal(2))
			Expect(summary.MeanFPS).To(BeNil())
			Expect(summary.Verdict).To(Equal(interfaces.VerdictFail))
			Expect(summary.Cause).To(Equal(interfaces.CauseAggregationImpossible))
		})

		It("should kill an instance that ignores the stop signal", func() {
			launcher.behaviors = map[int]behavior{0: {rate: 100, ignoreStop: true}}
			summary, err := newRunner().RunBatch(context.Background(), 2)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.TimedOut).To(Equal(1))
			Expect(summary.Completed).To(Equal(1))
			for _, inst := range launcher.spawned() {
				Expect(inst.killed.Load()).To(Equal(inst.index == 0))
			}
		})

		It("should fail fatally when the only instance of the first batch cannot start", func() {
			launcher.fallback = behavior{spawnErr: errors.New("exec: not found")}
			_, err := newRunner().RunBatch(context.Background(), 1)
			Expect(errors.Is(err, interfaces.ErrSpawnFailed)).To(BeTrue())
		})

		It("should record a spawn failure in a larger batch as a crash", func() {
			launcher.behaviors = map[int]behavior{1: {spawnErr: errors.New("quota exceeded")}}
			summary, err := newRunner().RunBatch(context.Background(), 2)
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Instances).To(HaveLen(2))
			Expect(summary.Instances[1].Status).To(Equal(interfaces.InstanceCrashed))
			Expect(summary.Instances[1].ExitError).To(ContainSubstring("quota exceeded"))
			Expect(summary.Completed).To(Equal(1))
		})
	})

	Context("when the session is cancelled", func() {
		It("should kill all instances and stop sampling", func() {
			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(80*time.Millisecond, cancel)

			_, err := newRunner().RunBatch(ctx, 3)
			Expect(errors.Is(err, interfaces.ErrSessionCancelled)).To(BeTrue())

			Expect(launcher.spawned()).To(HaveLen(3))
			for _, inst := range launcher.spawned() {
				Expect(inst.killed.Load()).To(BeTrue())
			}
			calls := source.calls.Load()
			Consistently(source.calls.Load, 150*time.Millisecond, 25*time.Millisecond).Should(Equal(calls))
		})

		It("should not start anything when already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := newRunner().RunBatch(ctx, 2)
			Expect(err).To(MatchError(interfaces.ErrSessionCancelled))
			Expect(launcher.spawned()).To(BeEmpty())
		})
	})
})
