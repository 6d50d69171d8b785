package worker

import (
	"sync"
	"sync/atomic"

	"k8s.io/utils/clock"
)

// tracker holds the lifecycle state shared by all Instance implementations.
type tracker struct {
	index int
	clock clock.Clock

	frames        atomic.Int64
	stopRequested atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
	exit     ExitStatus
}

func newTracker(index int, clk clock.Clock) *tracker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &tracker{index: index, clock: clk, done: make(chan struct{})}
}

func (t *tracker) Index() int {
	return t.index
}

func (t *tracker) FrameCount() int64 {
	return t.frames.Load()
}

func (t *tracker) Done() <-chan struct{} {
	return t.done
}

func (t *tracker) Exit() ExitStatus {
	<-t.done
	return t.exit
}

// observeFrames records a progress report. Reports lower than the current
// count are ignored so the counter stays monotonic.
func (t *tracker) observeFrames(n int64) {
	for {
		cur := t.frames.Load()
		if n <= cur {
			return
		}
		if t.frames.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (t *tracker) markStopRequested() {
	t.stopRequested.Store(true)
}

func (t *tracker) exited() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// finish records the exit. Only the first call has an effect.
func (t *tracker) finish(err error) {
	t.doneOnce.Do(func() {
		t.exit = ExitStatus{
			Err:        err,
			At:         t.clock.Now(),
			BeforeStop: !t.stopRequested.Load(),
			Frames:     t.frames.Load(),
		}
		close(t.done)
	})
}
