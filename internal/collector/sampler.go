package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
	"github.com/llm-d/llm-d-stress-controller/internal/logging"
)

// UnavailableRecorder is notified for every metric a tick could not read.
type UnavailableRecorder interface {
	RecordUnavailable(source string, metric string)
}

// Sampler takes SampleMetrics from a Source at a fixed cadence.
type Sampler struct {
	source   Source
	interval time.Duration
	clock    clock.Clock
	recorder UnavailableRecorder
}

// SamplerOption customizes a Sampler.
type SamplerOption func(*Sampler)

// WithUnavailableRecorder reports unavailable readings to r.
func WithUnavailableRecorder(r UnavailableRecorder) SamplerOption {
	return func(s *Sampler) { s.recorder = r }
}

// NewSampler returns a sampler polling source every interval. A nil clk uses
// the real clock.
func NewSampler(source Source, interval time.Duration, clk clock.Clock, opts ...SamplerOption) *Sampler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	s := &Sampler{source: source, interval: interval, clock: clk}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Interval returns the sampling cadence.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// SamplerHandle is one running sampling window.
type SamplerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	samples []interfaces.SampleMetric
}

// Start begins sampling for window and returns immediately. It schedules
// floor(window/interval) ticks; the handle completes after the last one.
func (s *Sampler) Start(ctx context.Context, window time.Duration) *SamplerHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &SamplerHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	ticks := 0
	if s.interval > 0 {
		ticks = int(window / s.interval)
	}
	if p, ok := s.source.(Primer); ok {
		if err := p.Prime(ctx); err != nil {
			ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Failed to prime resource source",
				"source", s.source.Name(), "error", err)
		}
	}
	start := s.clock.Now()

	go s.run(ctx, h, start, ticks)
	return h
}

func (s *Sampler) run(ctx context.Context, h *SamplerHandle, start time.Time, ticks int) {
	defer close(h.done)
	defer h.cancel()
	logger := ctrl.LoggerFrom(ctx)

	var last time.Time
	for k := 1; k <= ticks; k++ {
		target := start.Add(time.Duration(k) * s.interval)
		if wait := target.Sub(s.clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(wait):
			}
		} else if ctx.Err() != nil {
			return
		}

		reading, err := s.source.Collect(ctx)
		if ctx.Err() != nil {
			return
		}
		ts := s.clock.Now()
		if !ts.After(last) {
			ts = last.Add(time.Nanosecond)
		}
		last = ts

		if err != nil {
			logger.V(logging.DEBUG).Info("Resource sample incomplete",
				"source", s.source.Name(),
				"tick", k,
				"error", errors.Join(interfaces.ErrSamplerUnavailable, err))
		}
		if s.recorder != nil {
			for _, m := range Unavailable(reading) {
				s.recorder.RecordUnavailable(s.source.Name(), string(m))
			}
		}
		if lag := ts.Sub(target); lag > s.interval {
			logger.V(logging.DEBUG).Info("Resource sample delayed past next slot",
				"tick", k, "lag", lag.String())
		}

		h.mu.Lock()
		h.samples = append(h.samples, interfaces.SampleMetric{Timestamp: ts, ResourceReading: reading})
		h.mu.Unlock()

		logger.V(logging.TRACE).Info("Resource sample", "tick", k, "timestamp", ts)
	}
}

// Done is closed when sampling has finished or was stopped.
func (h *SamplerHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the last scheduled tick has been taken and returns all
// samples. If ctx ends first, sampling is stopped and the samples taken so far
// are returned.
func (h *SamplerHandle) Wait(ctx context.Context) []interfaces.SampleMetric {
	select {
	case <-h.done:
	case <-ctx.Done():
		h.cancel()
		<-h.done
	}
	return h.Samples()
}

// Stop aborts pending ticks and returns the samples taken so far.
func (h *SamplerHandle) Stop() []interfaces.SampleMetric {
	h.cancel()
	<-h.done
	return h.Samples()
}

// Samples returns a copy of the samples collected so far.
func (h *SamplerHandle) Samples() []interfaces.SampleMetric {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]interfaces.SampleMetric, len(h.samples))
	copy(out, h.samples)
	return out
}
