package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/clock"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-stress-controller/internal/config"
	"github.com/llm-d/llm-d-stress-controller/internal/logging"
)

// Labels set on every instance Pod.
const (
	LabelAppName = "app.kubernetes.io/name"
	LabelRunID   = "stress.llm-d.ai/run-id"
	LabelBatch   = "stress.llm-d.ai/batch"
	LabelIndex   = "stress.llm-d.ai/index"

	AppName       = "stress-worker"
	ContainerName = "worker"

	defaultPodPollInterval = time.Second
)

var errPodVanished = errors.New("pod was deleted before it was asked to stop")

// PodLauncher runs each instance as a Kubernetes Pod.
type PodLauncher struct {
	client       kubernetes.Interface
	pod          config.PodConfig
	command      []string
	grace        time.Duration
	logDir       string
	pollInterval time.Duration
	clock        clock.Clock
}

// PodOption customizes a PodLauncher.
type PodOption func(*PodLauncher)

// WithPodLogDir writes each instance's container log to a file in dir.
func WithPodLogDir(dir string) PodOption {
	return func(l *PodLauncher) { l.logDir = dir }
}

// WithPollInterval sets how often Pod status is polled.
func WithPollInterval(d time.Duration) PodOption {
	return func(l *PodLauncher) { l.pollInterval = d }
}

// WithPodClock sets the clock used to stamp exits.
func WithPodClock(clk clock.Clock) PodOption {
	return func(l *PodLauncher) { l.clock = clk }
}

// NewPodLauncher returns a launcher creating Pods from cfg. command is the
// container command template; grace is the deletion grace period used by Stop.
func NewPodLauncher(client kubernetes.Interface, cfg config.PodConfig, command []string, grace time.Duration, opts ...PodOption) (*PodLauncher, error) {
	if client == nil {
		return nil, errors.New("kubernetes client must not be nil")
	}
	if cfg.Image == "" {
		return nil, errors.New("pod image must be set")
	}
	l := &PodLauncher{
		client:       client,
		pod:          cfg,
		command:      command,
		grace:        grace,
		pollInterval: defaultPodPollInterval,
		clock:        clock.RealClock{},
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// PodName returns the name of the Pod of an instance.
func PodName(spec WorkloadSpec) string {
	run := strings.ToLower(spec.RunID)
	if len(run) > 8 {
		run = run[:8]
	}
	return fmt.Sprintf("stress-%s-n%d-i%d", run, spec.BatchSize, spec.Index)
}

// BuildPod renders the Pod of an instance.
func (l *PodLauncher) BuildPod(spec WorkloadSpec) *corev1.Pod {
	env := instanceEnv(spec)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	envVars := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: env[k]})
	}

	requests := corev1.ResourceList{}
	if q, err := resource.ParseQuantity(l.pod.CPURequest); err == nil && l.pod.CPURequest != "" {
		requests[corev1.ResourceCPU] = q
	}
	if q, err := resource.ParseQuantity(l.pod.MemoryRequest); err == nil && l.pod.MemoryRequest != "" {
		requests[corev1.ResourceMemory] = q
	}

	container := corev1.Container{
		Name:      ContainerName,
		Image:     l.pod.Image,
		Env:       envVars,
		Resources: corev1.ResourceRequirements{Requests: requests},
	}
	if len(l.command) > 0 {
		container.Command = ExpandCommand(l.command, spec)
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      PodName(spec),
			Namespace: l.pod.Namespace,
			Labels: map[string]string{
				LabelAppName: AppName,
				LabelRunID:   spec.RunID,
				LabelBatch:   strconv.Itoa(spec.BatchSize),
				LabelIndex:   strconv.Itoa(spec.Index),
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy:                 corev1.RestartPolicyNever,
			NodeSelector:                  l.pod.NodeSelector,
			TerminationGracePeriodSeconds: ptr.To(int64(math.Ceil(l.grace.Seconds()))),
			Containers:                    []corev1.Container{container},
		},
	}
}

// Spawn creates the instance Pod and starts watching it.
func (l *PodLauncher) Spawn(ctx context.Context, spec WorkloadSpec) (Instance, error) {
	pod := l.BuildPod(spec)
	created, err := l.client.CoreV1().Pods(pod.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create pod for instance %d: %w", spec.Index, err)
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &podInstance{
		tracker:   newTracker(spec.Index, l.clock),
		launcher:  l,
		namespace: created.Namespace,
		name:      created.Name,
		cancel:    cancel,
	}
	if l.logDir != "" {
		p.logPath = filepath.Join(l.logDir, InstanceLogName(spec))
	}

	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Created instance pod",
		"index", spec.Index, "pod", created.Namespace+"/"+created.Name)

	go p.watch(watchCtx)
	return p, nil
}

type podInstance struct {
	*tracker
	launcher  *PodLauncher
	namespace string
	name      string
	logPath   string
	cancel    context.CancelFunc

	logsOnce sync.Once
}

func (p *podInstance) watch(ctx context.Context) {
	defer p.cancel()
	logger := ctrl.LoggerFrom(ctx).WithValues("pod", p.namespace+"/"+p.name)
	pods := p.launcher.client.CoreV1().Pods(p.namespace)

	err := wait.PollUntilContextCancel(ctx, p.launcher.pollInterval, true, func(ctx context.Context) (bool, error) {
		pod, err := pods.Get(ctx, p.name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			if p.stopRequested.Load() {
				p.finish(nil)
			} else {
				p.finish(errPodVanished)
			}
			return true, nil
		}
		if err != nil {
			logger.V(logging.DEBUG).Info("Failed to get instance pod, retrying", "error", err)
			return false, nil
		}

		switch pod.Status.Phase {
		case corev1.PodRunning:
			p.logsOnce.Do(func() { go p.followLogs(ctx) })
		case corev1.PodSucceeded:
			p.finish(nil)
			return true, nil
		case corev1.PodFailed:
			p.finish(fmt.Errorf("pod failed: %s", podFailureMessage(pod)))
			return true, nil
		}
		return false, nil
	})
	if err != nil && !p.exited() {
		p.finish(fmt.Errorf("stopped watching pod: %w", err))
	}
}

func (p *podInstance) followLogs(ctx context.Context) {
	req := p.launcher.client.CoreV1().Pods(p.namespace).GetLogs(p.name, &corev1.PodLogOptions{
		Container: ContainerName,
		Follow:    true,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Failed to follow instance logs", "pod", p.name, "error", err)
		return
	}
	defer stream.Close()

	var logw io.Writer
	if p.logPath != "" {
		f, err := os.Create(p.logPath)
		if err == nil {
			defer f.Close()
			logw = f
		}
	}
	_ = consumeProgress(stream, p.tracker, logw)
}

// Stop deletes the Pod with the configured grace period.
func (p *podInstance) Stop() error {
	return p.deletePod(int64(math.Ceil(p.launcher.grace.Seconds())))
}

// Kill deletes the Pod immediately and waits, bounded by killSettleTimeout,
// until it is gone from the API server.
func (p *podInstance) Kill() error {
	if p.exited() {
		p.markStopRequested()
		return nil
	}
	if err := p.deletePod(0); err != nil {
		return err
	}
	pods := p.launcher.client.CoreV1().Pods(p.namespace)
	err := wait.PollUntilContextTimeout(context.Background(), p.launcher.pollInterval, killSettleTimeout, true,
		func(ctx context.Context) (bool, error) {
			_, err := pods.Get(ctx, p.name, metav1.GetOptions{})
			return apierrors.IsNotFound(err), nil
		})
	if err != nil {
		return fmt.Errorf("pod %s/%s still terminating after kill: %w", p.namespace, p.name, err)
	}
	p.finish(nil)
	return nil
}

func (p *podInstance) deletePod(graceSeconds int64) error {
	p.markStopRequested()
	if p.exited() {
		return nil
	}
	err := p.launcher.client.CoreV1().Pods(p.namespace).Delete(context.Background(), p.name, metav1.DeleteOptions{
		GracePeriodSeconds: ptr.To(graceSeconds),
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete pod %s/%s: %w", p.namespace, p.name, err)
	}
	return nil
}

func podFailureMessage(pod *corev1.Pod) string {
	for _, cs := range pod.Status.ContainerStatuses {
		if t := cs.State.Terminated; t != nil {
			return fmt.Sprintf("container %s exited with code %d (%s)", cs.Name, t.ExitCode, t.Reason)
		}
	}
	if pod.Status.Reason != "" {
		return pod.Status.Reason
	}
	return "unknown reason"
}
