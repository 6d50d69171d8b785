package worker

import (
	"context"
	"time"

	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// killSettleTimeout bounds the wait for a killed instance to be reaped.
const killSettleTimeout = 5 * time.Second

// Join waits up to timeout for inst to exit and classifies the outcome. An
// instance that is still running when the timeout expires (or ctx ends) is
// killed and reported as timed out.
func Join(ctx context.Context, inst Instance, timeout time.Duration, clk clock.Clock) interfaces.InstanceStatus {
	if clk == nil {
		clk = clock.RealClock{}
	}

	select {
	case <-inst.Done():
		return Classify(inst.Exit())
	default:
	}

	select {
	case <-inst.Done():
		return Classify(inst.Exit())
	case <-clk.After(timeout):
	case <-ctx.Done():
	}

	logger := ctrl.LoggerFrom(ctx)
	logger.Info("Instance did not exit in time, killing it", "index", inst.Index(), "timeout", timeout.String())
	if err := inst.Kill(); err != nil {
		logger.Error(err, "Failed to kill instance", "index", inst.Index())
	}
	select {
	case <-inst.Done():
	case <-clk.After(killSettleTimeout):
		logger.Info("Killed instance has not exited yet", "index", inst.Index())
	}
	return interfaces.InstanceTimedOut
}

// Classify maps an exit status to an instance status.
func Classify(exit ExitStatus) interfaces.InstanceStatus {
	if exit.BeforeStop && exit.Err != nil {
		return interfaces.InstanceCrashed
	}
	return interfaces.InstanceCompleted
}
