package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Flag names. They double as viper keys and, upper-cased with EnvPrefix and
// dashes replaced by underscores, as environment variable names.
const (
	FlagConfig                = "config"
	FlagMaxInstances          = "max-instances"
	FlagBatchDuration         = "batch-duration"
	FlagSampleInterval        = "sample-interval"
	FlagCPUThreshold          = "cpu-threshold"
	FlagMemThreshold          = "mem-threshold"
	FlagFPSThreshold          = "fps-threshold"
	FlagFailOnInstanceFailure = "fail-on-instance-failure"

	FlagModel         = "model"
	FlagSource        = "source"
	FlagLauncher      = "launcher"
	FlagWorkerCommand = "worker-command"
	FlagWarmup        = "warmup"
	FlagGracePeriod   = "grace-period"
	FlagCooldown      = "cooldown"

	FlagPodNamespace     = "pod-namespace"
	FlagPodImage         = "pod-image"
	FlagPodNodeSelector  = "pod-node-selector"
	FlagPodCPURequest    = "pod-cpu-request"
	FlagPodMemoryRequest = "pod-memory-request"

	FlagAccelerator            = "accelerator"
	FlagPrometheusURL          = "prometheus-url"
	FlagPrometheusTokenFile    = "prometheus-token-file"
	FlagPrometheusTimeout      = "prometheus-timeout"
	FlagPrometheusCPUQuery     = "prometheus-cpu-query"
	FlagPrometheusMemoryQuery  = "prometheus-memory-query"
	FlagPrometheusAccelUtilQry = "prometheus-accelerator-util-query"
	FlagPrometheusAccelTempQry = "prometheus-accelerator-temp-query"

	FlagThresholdProfiles = "threshold-profiles"
	FlagProfilesConfigMap = "profiles-configmap"
	FlagProfile           = "profile"

	FlagOutputDir          = "output-dir"
	FlagMetricsBindAddress = "metrics-bind-address"
	FlagPushgatewayURL     = "pushgateway-url"
	FlagLogFile            = "log-file"

	EnvPrefix = "STRESS"
)

// Defaults for the workload and output settings.
const (
	DefaultWarmup        = 10 * time.Second
	DefaultGracePeriod   = 10 * time.Second
	DefaultOutputDir     = "stress-results"
	DefaultPodNamespace  = "default"
	DefaultWorkerCommand = "synthetic-worker --model {model} --source {source} --duration {duration}"
	DefaultPromTimeout   = 5 * time.Second
)

// LauncherType selects how worker instances are started.
type LauncherType string

const (
	// LauncherProcess runs each instance as a local OS process.
	LauncherProcess LauncherType = "process"
	// LauncherPod runs each instance as a Kubernetes Pod.
	LauncherPod LauncherType = "pod"
)

// AcceleratorMode selects the accelerator metric source.
type AcceleratorMode string

const (
	AcceleratorAuto      AcceleratorMode = "auto"
	AcceleratorNvidiaSMI AcceleratorMode = "nvidia-smi"
	AcceleratorNone      AcceleratorMode = "none"
)

// PodConfig describes the Pod created for each instance by the pod launcher.
type PodConfig struct {
	Namespace     string
	Image         string
	NodeSelector  map[string]string
	CPURequest    string
	MemoryRequest string
}

// WorkloadConfig describes the workload every instance runs.
type WorkloadConfig struct {
	// Model and Source are opaque locators handed to every instance unmodified.
	Model  string
	Source string

	Launcher LauncherType

	// Command is the instance command line. Placeholders such as {model} are
	// substituted per instance.
	Command []string

	// Warmup is the time between spawning instances and the start of the
	// measurement window.
	Warmup time.Duration

	// GracePeriod bounds how long a stopped instance may take to exit.
	GracePeriod time.Duration

	// Cooldown is the pause between two batches.
	Cooldown time.Duration

	Pod PodConfig
}

// PrometheusConfig configures the optional PromQL resource source.
type PrometheusConfig struct {
	URL       string
	TokenFile string
	Timeout   time.Duration

	CPUQuery             string
	MemoryQuery          string
	AcceleratorUtilQuery string
	AcceleratorTempQuery string
}

// Enabled reports whether a Prometheus endpoint and at least one query are set.
func (p PrometheusConfig) Enabled() bool {
	return p.URL != "" && (p.CPUQuery != "" || p.MemoryQuery != "" ||
		p.AcceleratorUtilQuery != "" || p.AcceleratorTempQuery != "")
}

// SamplerConfig selects the resource sources.
type SamplerConfig struct {
	Accelerator AcceleratorMode
	Prometheus  PrometheusConfig
}

// ProfileConfig locates threshold profiles.
type ProfileConfig struct {
	File string
	// ConfigMap is "<namespace>/<name>" or "<name>" (pod namespace assumed).
	ConfigMap string
	Name      string
}

// OutputConfig configures where results go.
type OutputConfig struct {
	Dir                string
	MetricsBindAddress string
	PushgatewayURL     string
	LogFile            string
}

// SessionConfig is the complete configuration of one stressctl invocation.
type SessionConfig struct {
	Thresholds ThresholdConfig
	Workload   WorkloadConfig
	Sampler    SamplerConfig
	Profiles   ProfileConfig
	Output     OutputConfig
}

// BindFlags registers every session flag on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "Optional config file (YAML, JSON or TOML) with keys named like the flags.")

	fs.Int(FlagMaxInstances, DefaultMaxInstances, "Largest number of concurrent instances to try.")
	fs.Duration(FlagBatchDuration, DefaultBatchDuration, "Measurement window of each batch.")
	fs.Duration(FlagSampleInterval, DefaultSampleInterval, "Resource sampling interval.")
	fs.Float64(FlagCPUThreshold, DefaultCPUThreshold, "Maximum mean CPU utilization (%) of a passing batch.")
	fs.Float64(FlagMemThreshold, DefaultMemThreshold, "Maximum mean memory utilization (%) of a passing batch.")
	fs.Float64(FlagFPSThreshold, DefaultFPSThreshold, "Minimum mean per-instance FPS of a passing batch.")
	fs.Bool(FlagFailOnInstanceFailure, false, "Fail a batch when any instance crashes or times out.")

	fs.String(FlagModel, "", "Model artifact locator passed to every instance.")
	fs.String(FlagSource, "", "Data source locator passed to every instance.")
	fs.String(FlagLauncher, string(LauncherProcess), "Instance launcher: process or pod.")
	fs.String(FlagWorkerCommand, DefaultWorkerCommand,
		"Instance command line. Placeholders: {model} {source} {duration} {index} {batch} {run_id}.")
	fs.Duration(FlagWarmup, DefaultWarmup, "Time between spawning instances and the start of measurement.")
	fs.Duration(FlagGracePeriod, DefaultGracePeriod, "Time a stopped instance may take to exit before it is killed.")
	fs.Duration(FlagCooldown, 0, "Pause between two batches.")

	fs.String(FlagPodNamespace, DefaultPodNamespace, "Namespace for instance Pods.")
	fs.String(FlagPodImage, "", "Container image for instance Pods.")
	fs.StringToString(FlagPodNodeSelector, nil, "Node selector for instance Pods (key=value,...).")
	fs.String(FlagPodCPURequest, "", "CPU request of each instance Pod (e.g., 500m).")
	fs.String(FlagPodMemoryRequest, "", "Memory request of each instance Pod (e.g., 512Mi).")

	fs.String(FlagAccelerator, string(AcceleratorAuto), "Accelerator metrics: auto, nvidia-smi or none.")
	fs.String(FlagPrometheusURL, "", "Prometheus base URL for PromQL resource queries.")
	fs.String(FlagPrometheusTokenFile, "", "File holding a bearer token for Prometheus.")
	fs.Duration(FlagPrometheusTimeout, DefaultPromTimeout, "Timeout of each Prometheus query.")
	fs.String(FlagPrometheusCPUQuery, "", "PromQL returning CPU utilization (%).")
	fs.String(FlagPrometheusMemoryQuery, "", "PromQL returning memory utilization (%).")
	fs.String(FlagPrometheusAccelUtilQry, "", "PromQL returning accelerator utilization (%).")
	fs.String(FlagPrometheusAccelTempQry, "", "PromQL returning accelerator temperature (C).")

	fs.String(FlagThresholdProfiles, "", "File with threshold profiles.")
	fs.String(FlagProfilesConfigMap, "", "ConfigMap with threshold profiles ([namespace/]name).")
	fs.String(FlagProfile, "", "Device profile to apply from the threshold profiles.")

	fs.String(FlagOutputDir, DefaultOutputDir, "Directory for CSV files, instance logs and the run report.")
	fs.String(FlagMetricsBindAddress, "0", "Address to serve Prometheus metrics on. 0 disables.")
	fs.String(FlagPushgatewayURL, "", "Pushgateway to push final metrics to.")
	fs.String(FlagLogFile, "", "Also append logs to this file.")
}

// Loader resolves a SessionConfig from flags, environment and config file.
type Loader struct {
	v *viper.Viper
}

// NewLoader binds fs to a fresh viper instance. fs must already be parsed.
func NewLoader(fs *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString(FlagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}
	return &Loader{v: v}, nil
}

// IsExplicit reports whether key was set by flag, environment or config file
// rather than taken from its default.
func (l *Loader) IsExplicit(key string) bool {
	return l.v.IsSet(key)
}

// Load builds the SessionConfig. It does not apply threshold profiles.
func (l *Loader) Load() (SessionConfig, error) {
	v := l.v
	cfg := SessionConfig{
		Thresholds: ThresholdConfig{
			CPUThreshold:          v.GetFloat64(FlagCPUThreshold),
			MemThreshold:          v.GetFloat64(FlagMemThreshold),
			FPSThreshold:          v.GetFloat64(FlagFPSThreshold),
			MaxInstances:          v.GetInt(FlagMaxInstances),
			BatchDuration:         v.GetDuration(FlagBatchDuration),
			SampleInterval:        v.GetDuration(FlagSampleInterval),
			FailOnInstanceFailure: v.GetBool(FlagFailOnInstanceFailure),
		},
		Workload: WorkloadConfig{
			Model:       v.GetString(FlagModel),
			Source:      v.GetString(FlagSource),
			Launcher:    LauncherType(v.GetString(FlagLauncher)),
			Command:     strings.Fields(v.GetString(FlagWorkerCommand)),
			Warmup:      v.GetDuration(FlagWarmup),
			GracePeriod: v.GetDuration(FlagGracePeriod),
			Cooldown:    v.GetDuration(FlagCooldown),
			Pod: PodConfig{
				Namespace:     v.GetString(FlagPodNamespace),
				Image:         v.GetString(FlagPodImage),
				NodeSelector:  v.GetStringMapString(FlagPodNodeSelector),
				CPURequest:    v.GetString(FlagPodCPURequest),
				MemoryRequest: v.GetString(FlagPodMemoryRequest),
			},
		},
		Sampler: SamplerConfig{
			Accelerator: AcceleratorMode(v.GetString(FlagAccelerator)),
			Prometheus: PrometheusConfig{
				URL:                  v.GetString(FlagPrometheusURL),
				TokenFile:            v.GetString(FlagPrometheusTokenFile),
				Timeout:              v.GetDuration(FlagPrometheusTimeout),
				CPUQuery:             v.GetString(FlagPrometheusCPUQuery),
				MemoryQuery:          v.GetString(FlagPrometheusMemoryQuery),
				AcceleratorUtilQuery: v.GetString(FlagPrometheusAccelUtilQry),
				AcceleratorTempQuery: v.GetString(FlagPrometheusAccelTempQry),
			},
		},
		Profiles: ProfileConfig{
			File:      v.GetString(FlagThresholdProfiles),
			ConfigMap: v.GetString(FlagProfilesConfigMap),
			Name:      v.GetString(FlagProfile),
		},
		Output: OutputConfig{
			Dir:                v.GetString(FlagOutputDir),
			MetricsBindAddress: v.GetString(FlagMetricsBindAddress),
			PushgatewayURL:     v.GetString(FlagPushgatewayURL),
			LogFile:            v.GetString(FlagLogFile),
		},
	}
	return cfg, nil
}

// Validate checks the whole session configuration.
func (c SessionConfig) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	return c.Workload.Validate()
}

// Validate checks the workload configuration.
func (w WorkloadConfig) Validate() error {
	if w.Model == "" {
		return errors.New("model must be set")
	}
	if w.Source == "" {
		return errors.New("source must be set")
	}
	if w.Warmup < 0 {
		return fmt.Errorf("warmup must be >= 0, got %s", w.Warmup)
	}
	if w.GracePeriod <= 0 {
		return fmt.Errorf("gracePeriod must be > 0, got %s", w.GracePeriod)
	}
	if w.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0, got %s", w.Cooldown)
	}
	switch w.Launcher {
	case LauncherProcess:
		if len(w.Command) == 0 {
			return errors.New("worker command must be set for the process launcher")
		}
	case LauncherPod:
		if w.Pod.Image == "" {
			return errors.New("pod image must be set for the pod launcher")
		}
		if w.Pod.Namespace == "" {
			return errors.New("pod namespace must be set for the pod launcher")
		}
		for name, q := range map[string]string{"cpu": w.Pod.CPURequest, "memory": w.Pod.MemoryRequest} {
			if q == "" {
				continue
			}
			if _, err := resource.ParseQuantity(q); err != nil {
				return fmt.Errorf("invalid pod %s request %q: %w", name, q, err)
			}
		}
	default:
		return fmt.Errorf("unsupported launcher %q", w.Launcher)
	}
	return nil
}

// ReadToken returns the trimmed content of the Prometheus token file, or ""
// when none is configured.
func (p PrometheusConfig) ReadToken() (string, error) {
	if p.TokenFile == "" {
		return "", nil
	}
	raw, err := os.ReadFile(p.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read prometheus token file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// SplitConfigMapRef splits "[namespace/]name", defaulting the namespace.
func SplitConfigMapRef(ref, defaultNamespace string) (namespace, name string) {
	if ns, n, ok := strings.Cut(ref, "/"); ok {
		return ns, n
	}
	return defaultNamespace, ref
}
