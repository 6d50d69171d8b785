package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-stress-controller/internal/collector"
	"github.com/llm-d/llm-d-stress-controller/internal/config"
	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
	"github.com/llm-d/llm-d-stress-controller/internal/metrics"
	"github.com/llm-d/llm-d-stress-controller/internal/sink"
	"github.com/llm-d/llm-d-stress-controller/internal/worker"
)

// kubeClient builds the Kubernetes client on first use, so sessions that
// need no cluster access never load a kubeconfig.
type kubeClient struct {
	once   sync.Once
	client kubernetes.Interface
	err    error
}

func (k *kubeClient) get() (kubernetes.Interface, error) {
	k.once.Do(func() {
		restConfig, err := ctrl.GetConfig()
		if err != nil {
			k.err = fmt.Errorf("failed to load kubeconfig: %w", err)
			return
		}
		k.client, k.err = kubernetes.NewForConfig(restConfig)
	})
	return k.client, k.err
}

// resolveThresholds applies the selected threshold profile. Values set
// explicitly by flag, environment or config file win over the profile.
func resolveThresholds(
	ctx context.Context,
	cfg config.SessionConfig,
	explicit func(string) bool,
	client func() (kubernetes.Interface, error),
) (config.ThresholdConfig, error) {
	p := cfg.Profiles
	if p.File == "" && p.ConfigMap == "" {
		if p.Name != "" {
			return cfg.Thresholds, errors.New("a profile was selected but no threshold profiles were given")
		}
		return cfg.Thresholds, nil
	}

	var data config.ThresholdProfileData
	var err error
	if p.File != "" {
		data, err = config.LoadThresholdProfilesFile(p.File)
	} else {
		namespace, name := config.SplitConfigMapRef(p.ConfigMap, cfg.Workload.Pod.Namespace)
		var c kubernetes.Interface
		if c, err = client(); err == nil {
			data, err = config.LoadThresholdProfilesConfigMap(ctx, c, namespace, name)
		}
	}
	if err != nil {
		return cfg.Thresholds, err
	}

	profile := data.GetDeviceProfile(p.Name)
	ctrl.LoggerFrom(ctx).Info("Applying threshold profile", "profile", p.Name, "device", profile.Device)
	return profile.Apply(cfg.Thresholds, explicit), nil
}

// buildSource assembles the resource sources in priority order: Prometheus,
// host procfs, nvidia-smi. Earlier sources win per metric.
func buildSource(ctx context.Context, cfg config.SamplerConfig) (*collector.CompositeSource, error) {
	logger := ctrl.LoggerFrom(ctx)
	var sources []collector.Source

	if cfg.Prometheus.Enabled() {
		p, err := collector.NewPrometheusSource(cfg.Prometheus)
		if err != nil {
			return nil, err
		}
		sources = append(sources, p)
	}

	host, err := collector.NewHostSource("")
	if err != nil {
		logger.Info("Host resource metrics unavailable, CPU and memory thresholds may go unevaluated", "error", err)
	} else {
		sources = append(sources, host)
	}

	switch cfg.Accelerator {
	case config.AcceleratorNvidiaSMI:
		sources = append(sources, collector.NewNvidiaSMISource(nil))
	case config.AcceleratorAuto:
		if collector.NvidiaSMIAvailable() {
			sources = append(sources, collector.NewNvidiaSMISource(nil))
		} else {
			logger.Info("nvidia-smi not found, accelerator metrics disabled")
		}
	case config.AcceleratorNone:
	default:
		return nil, fmt.Errorf("unsupported accelerator mode %q", cfg.Accelerator)
	}

	if len(sources) == 0 {
		logger.Info("No resource source available, all resource metrics will be unavailable")
	}
	return collector.NewCompositeSource(sources...), nil
}

func buildLauncher(
	w config.WorkloadConfig,
	logDir string,
	client func() (kubernetes.Interface, error),
) (worker.Launcher, error) {
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create instance log directory: %w", err)
		}
	}

	switch w.Launcher {
	case config.LauncherProcess:
		l, err := worker.NewProcessLauncher(w.Command, worker.WithLogDir(logDir))
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.LauncherPod:
		c, err := client()
		if err != nil {
			return nil, err
		}
		l, err := worker.NewPodLauncher(c, w.Pod, w.Command, w.GracePeriod, worker.WithPodLogDir(logDir))
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported launcher %q", w.Launcher)
	}
}

// buildSinks returns the session's sinks, a function closing them and the
// report sink, if any, for state updates.
func buildSinks(
	runID string,
	cfg config.SessionConfig,
	emitter *metrics.MetricsEmitter,
) (interfaces.ResultSink, func() error, *sink.ReportSink, error) {
	sinks := sink.MultiSink{
		sink.NewLogSink(ctrl.Log.WithName("results")),
		sink.NewMetricsSink(emitter),
	}
	if cfg.Output.Dir == "" {
		return sinks, func() error { return nil }, nil, nil
	}

	csvSink, err := sink.NewCSVSink(cfg.Output.Dir)
	if err != nil {
		return nil, nil, nil, err
	}
	report := sink.NewReportSink(filepath.Join(cfg.Output.Dir, sink.ReportFile), sink.SpecFromConfig(runID, cfg))
	sinks = append(sinks, csvSink, report)
	return sinks, csvSink.Close, report, nil
}
