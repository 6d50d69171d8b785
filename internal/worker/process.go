package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"syscall"

	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-stress-controller/internal/logging"
)

// ProcessLauncher runs each instance as a local OS process.
type ProcessLauncher struct {
	command []string
	logDir  string
	env     []string
	clock   clock.Clock
}

// ProcessOption customizes a ProcessLauncher.
type ProcessOption func(*ProcessLauncher)

// WithLogDir writes each instance's output to a file in dir.
func WithLogDir(dir string) ProcessOption {
	return func(l *ProcessLauncher) { l.logDir = dir }
}

// WithEnv adds KEY=VALUE entries to every instance's environment.
func WithEnv(env ...string) ProcessOption {
	return func(l *ProcessLauncher) { l.env = append(l.env, env...) }
}

// WithClock sets the clock used to stamp exits.
func WithClock(clk clock.Clock) ProcessOption {
	return func(l *ProcessLauncher) { l.clock = clk }
}

// NewProcessLauncher returns a launcher running command, a template
// expanded with ExpandCommand for every instance.
func NewProcessLauncher(command []string, opts ...ProcessOption) (*ProcessLauncher, error) {
	if len(command) == 0 {
		return nil, errors.New("worker command must not be empty")
	}
	l := &ProcessLauncher{command: command, clock: clock.RealClock{}}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Spawn starts the instance process.
func (l *ProcessLauncher) Spawn(ctx context.Context, spec WorkloadSpec) (Instance, error) {
	logger := ctrl.LoggerFrom(ctx)
	args := ExpandCommand(l.command, spec)

	cmd := exec.Command(args[0], args[1:]...)
	// The instance leads its own process group so stop and kill reach every
	// process it starts.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(), l.env...)
	env := instanceEnv(spec)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, k+"="+env[k])
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach to instance %d output: %w", spec.Index, err)
	}

	var logFile *os.File
	if l.logDir != "" {
		logFile, err = os.Create(filepath.Join(l.logDir, InstanceLogName(spec)))
		if err != nil {
			return nil, fmt.Errorf("failed to create instance %d log: %w", spec.Index, err)
		}
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("failed to start instance %d: %w", spec.Index, err)
	}

	p := &processInstance{tracker: newTracker(spec.Index, l.clock), cmd: cmd}
	logger.V(logging.DEBUG).Info("Started instance process",
		"index", spec.Index, "pid", cmd.Process.Pid, "command", args)

	go func() {
		var logw io.Writer
		if logFile != nil {
			logw = logFile
		}
		if err := consumeProgress(stdout, p.tracker, logw); err != nil {
			logger.V(logging.DEBUG).Info("Instance output ended with error", "index", spec.Index, "error", err)
		}
		waitErr := cmd.Wait()
		p.reapGroup()
		if logFile != nil {
			_ = logFile.Close()
		}
		p.finish(waitErr)
		logger.V(logging.DEBUG).Info("Instance process exited",
			"index", spec.Index, "frames", p.FrameCount(), "error", waitErr)
	}()

	return p, nil
}

type processInstance struct {
	*tracker
	cmd *exec.Cmd
}

// Stop sends SIGTERM to the instance's process group.
func (p *processInstance) Stop() error {
	p.markStopRequested()
	if p.exited() {
		return nil
	}
	if err := p.signalGroup(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop instance %d: %w", p.index, err)
	}
	return nil
}

// Kill sends SIGKILL to the instance's process group.
func (p *processInstance) Kill() error {
	p.markStopRequested()
	if p.exited() {
		return nil
	}
	if err := p.signalGroup(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill instance %d: %w", p.index, err)
	}
	return nil
}

// signalGroup signals every process in the group led by the instance. An
// empty group is not an error.
func (p *processInstance) signalGroup(sig syscall.Signal) error {
	if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// reapGroup kills descendants that outlived the instance process, so no
// leftover load reaches the next batch.
func (p *processInstance) reapGroup() {
	_ = p.signalGroup(syscall.SIGKILL)
}
