package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	clocktesting "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// scriptedSource returns readings from a script, one per call, repeating the
// last entry once the script is exhausted.
type scriptedSource struct {
	mu     sync.Mutex
	calls  int
	primed int
	script []scriptedReading
}

type scriptedReading struct {
	reading interfaces.ResourceReading
	err     error
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Prime(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primed++
	return nil
}

func (s *scriptedSource) Collect(context.Context) (interfaces.ResourceReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.script)-1)
	s.calls++
	return s.script[i].reading, s.script[i].err
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordUnavailable(_ string, metric string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[metric]++
}

func full(cpu, mem float64) scriptedReading {
	return scriptedReading{reading: interfaces.ResourceReading{
		CPUPercent:             ptr.To(cpu),
		MemoryPercent:          ptr.To(mem),
		AcceleratorUtilPercent: ptr.To(50.0),
		AcceleratorTempCelsius: ptr.To(60.0),
	}}
}

// stepThrough advances the fake clock one interval at a time, waiting for
// the sampler to block on the clock before each step.
func stepThrough(fc *clocktesting.FakeClock, interval time.Duration, steps int) {
	for i := 0; i < steps; i++ {
		Eventually(fc.HasWaiters).Should(BeTrue())
		fc.Step(interval)
	}
}

var _ = Describe("Sampler", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		fc     *clocktesting.FakeClock
		start  time.Time
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		fc = clocktesting.NewFakeClock(start)
	})

	AfterEach(func() {
		cancel()
	})

	It("should drop a partial interval at the end of the window", func() {
		src := &scriptedSource{script: []scriptedReading{full(10, 20)}}
		sampler := NewSampler(src, 5*time.Second, fc)

		h := sampler.Start(ctx, 22*time.Second)
		stepThrough(fc, 5*time.Second, 4)
		Eventually(h.Done()).Should(BeClosed())

		samples := h.Wait(ctx)
		Expect(samples).To(HaveLen(4))
		Expect(samples[3].Timestamp).To(Equal(start.Add(20 * time.Second)))
	})

	Context("with a 5s interval and a 20s window", func() {
		It("should take exactly 4 samples at 5, 10, 15 and 20 seconds", func() {
			src := &scriptedSource{script: []scriptedReading{full(10, 20)}}
			sampler := NewSampler(src, 5*time.Second, fc)

			h := sampler.Start(ctx, 20*time.Second)
			stepThrough(fc, 5*time.Second, 4)
			samples := h.Wait(ctx)

			Expect(samples).To(HaveLen(4))
			for i, s := range samples {
				Expect(s.Timestamp).To(Equal(start.Add(time.Duration(i+1) * 5 * time.Second)))
			}
			Expect(src.primed).To(Equal(1))
		})

		It("should produce timestamps that are strictly increasing", func() {
			src := &scriptedSource{script: []scriptedReading{full(10, 20)}}
			h := NewSampler(src, 5*time.Second, fc).Start(ctx, 20*time.Second)
			stepThrough(fc, 5*time.Second, 4)
			samples := h.Wait(ctx)

			for i := 1; i < len(samples); i++ {
				Expect(samples[i].Timestamp.After(samples[i-1].Timestamp)).To(BeTrue())
			}
		})
	})

	Context("when a tick is delayed past its slot", func() {
		It("should still record the tick with its actual timestamp", func() {
			src := &scriptedSource{script: []scriptedReading{full(10, 20)}}
			h := NewSampler(src, 5*time.Second, fc).Start(ctx, 15*time.Second)

			Eventually(fc.HasWaiters).Should(BeTrue())
			// One big jump covers the first two slots at once.
			fc.Step(12 * time.Second)
			Eventually(fc.HasWaiters).Should(BeTrue())
			fc.Step(3 * time.Second)
			samples := h.Wait(ctx)

			Expect(samples).To(HaveLen(3))
			Expect(samples[0].Timestamp).To(Equal(start.Add(12 * time.Second)))
			Expect(samples[1].Timestamp.After(samples[0].Timestamp)).To(BeTrue())
			Expect(samples[2].Timestamp).To(Equal(start.Add(15 * time.Second)))
		})
	})

	Context("when the source fails on a tick", func() {
		It("should substitute unavailable readings and keep sampling", func() {
			src := &scriptedSource{script: []scriptedReading{
				full(10, 20),
				{reading: interfaces.ResourceReading{MemoryPercent: ptr.To(30.0)}, err: errors.New("stat failed")},
				full(30, 40),
			}}
			rec := &countingRecorder{}
			h := NewSampler(src, time.Second, fc, WithUnavailableRecorder(rec)).Start(ctx, 3*time.Second)
			stepThrough(fc, time.Second, 3)
			samples := h.Wait(ctx)

			Expect(samples).To(HaveLen(3))
			Expect(samples[1].CPUPercent).To(BeNil())
			Expect(samples[1].MemoryPercent).To(HaveValue(Equal(30.0)))
			Expect(samples[2].CPUPercent).To(HaveValue(Equal(30.0)))
			Expect(rec.counts).To(HaveKeyWithValue(string(MetricCPUPercent), 1))
			Expect(rec.counts).To(HaveKeyWithValue(string(MetricAcceleratorUtilPercent), 1))
		})
	})

	Context("when stopped early", func() {
		It("should return only the samples already taken", func() {
			src := &scriptedSource{script: []scriptedReading{full(10, 20)}}
			h := NewSampler(src, 5*time.Second, fc).Start(ctx, 20*time.Second)
			stepThrough(fc, 5*time.Second, 2)
			Eventually(fc.HasWaiters).Should(BeTrue())

			samples := h.Stop()
			Expect(samples).To(HaveLen(2))
			Eventually(h.Done()).Should(BeClosed())
		})

		It("should stop when the context is cancelled", func() {
			src := &scriptedSource{script: []scriptedReading{full(10, 20)}}
			h := NewSampler(src, 5*time.Second, fc).Start(ctx, 20*time.Second)
			stepThrough(fc, 5*time.Second, 1)
			Eventually(fc.HasWaiters).Should(BeTrue())

			cancel()
			Eventually(h.Done()).Should(BeClosed())
			Expect(h.Samples()).To(HaveLen(1))
		})
	})

	Context("with a window shorter than the interval", func() {
		It("should take no samples", func() {
			src := &scriptedSource{script: []scriptedReading{full(10, 20)}}
			h := NewSampler(src, 5*time.Second, fc).Start(ctx, 4*time.Second)
			Expect(h.Wait(ctx)).To(BeEmpty())
		})
	})
})
