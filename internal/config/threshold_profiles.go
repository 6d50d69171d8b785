package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-stress-controller/internal/logging"
)

const (
	// GlobalDefaultsKey is the profile entry applied to every device.
	GlobalDefaultsKey = "default"

	// DefaultThresholdProfilesConfigMapName is the conventional name of the
	// ConfigMap holding threshold profiles.
	DefaultThresholdProfilesConfigMapName = "stress-threshold-profiles"
)

// ThresholdProfile is one entry of a threshold profile set. Zero values mean
// "not set" and fall back to the global defaults entry.
type ThresholdProfile struct {
	// Device identifies the device class this override applies to (only used in override entries)
	Device string `yaml:"device,omitempty" json:"device,omitempty"`

	CPUThreshold float64 `yaml:"cpuThreshold,omitempty" json:"cpuThreshold,omitempty"`
	MemThreshold float64 `yaml:"memThreshold,omitempty" json:"memThreshold,omitempty"`
	FPSThreshold float64 `yaml:"fpsThreshold,omitempty" json:"fpsThreshold,omitempty"`
	MaxInstances int     `yaml:"maxInstances,omitempty" json:"maxInstances,omitempty"`

	// BatchDuration and SampleInterval are duration strings (e.g., "200s", "5m").
	BatchDuration  string `yaml:"batchDuration,omitempty" json:"batchDuration,omitempty"`
	SampleInterval string `yaml:"sampleInterval,omitempty" json:"sampleInterval,omitempty"`

	// FailOnInstanceFailure uses a pointer so overrides can inherit from the defaults.
	FailOnInstanceFailure *bool `yaml:"failOnInstanceFailure,omitempty" json:"failOnInstanceFailure,omitempty"`
}

// ThresholdProfileData maps device names (and GlobalDefaultsKey) to profiles.
type ThresholdProfileData map[string]ThresholdProfile

// Validate checks for invalid profile values.
func (p *ThresholdProfile) Validate() error {
	if p.CPUThreshold < 0 || p.CPUThreshold > 100 {
		return fmt.Errorf("cpuThreshold must be between 0 and 100, got %.2f", p.CPUThreshold)
	}
	if p.MemThreshold < 0 || p.MemThreshold > 100 {
		return fmt.Errorf("memThreshold must be between 0 and 100, got %.2f", p.MemThreshold)
	}
	if p.FPSThreshold < 0 {
		return fmt.Errorf("fpsThreshold must be >= 0, got %.2f", p.FPSThreshold)
	}
	if p.MaxInstances < 0 {
		return fmt.Errorf("maxInstances must be >= 0, got %d", p.MaxInstances)
	}
	if p.BatchDuration != "" {
		if _, err := parsePositiveDuration(p.BatchDuration); err != nil {
			return fmt.Errorf("invalid batchDuration: %w", err)
		}
	}
	if p.SampleInterval != "" {
		if _, err := parsePositiveDuration(p.SampleInterval); err != nil {
			return fmt.Errorf("invalid sampleInterval: %w", err)
		}
	}
	return nil
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

// ParseThresholdProfiles parses threshold profiles from key/value data where
// each value is a YAML document. The format:
//   - "default": global defaults for all devices
//   - "<override-name>": per-device configuration with a device field
func ParseThresholdProfiles(data map[string]string) ThresholdProfileData {
	if data == nil {
		return make(ThresholdProfileData)
	}

	out := make(ThresholdProfileData)
	deviceToKey := make(map[string]string)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var profile ThresholdProfile
		if err := yaml.Unmarshal([]byte(data[key]), &profile); err != nil {
			ctrl.Log.Info("Failed to parse threshold profile entry, skipping",
				"key", key,
				"error", err)
			continue
		}

		if err := profile.Validate(); err != nil {
			ctrl.Log.Info("Invalid threshold profile entry, skipping",
				"key", key,
				"error", err)
			continue
		}

		if key == GlobalDefaultsKey {
			out[GlobalDefaultsKey] = profile
			continue
		}

		if profile.Device == "" {
			ctrl.Log.Info("Skipping threshold profile without device field",
				"key", key)
			continue
		}

		if winner, exists := deviceToKey[profile.Device]; exists {
			ctrl.Log.Info("Duplicate device found in threshold profiles - first key wins",
				"device", profile.Device,
				"winningKey", winner,
				"duplicateKey", key)
			continue
		}
		deviceToKey[profile.Device] = key

		out[profile.Device] = profile
	}

	ctrl.Log.V(logging.DEBUG).Info("Parsed threshold profiles",
		"profileCount", len(out))

	return out
}

// LoadThresholdProfilesFile reads a YAML mapping of profile keys to YAML
// documents, the same layout as a ConfigMap's data.
func LoadThresholdProfilesFile(path string) (ThresholdProfileData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read threshold profiles %q: %w", path, err)
	}
	var data map[string]string
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse threshold profiles %q: %w", path, err)
	}
	return ParseThresholdProfiles(data), nil
}

// LoadThresholdProfilesConfigMap reads threshold profiles from a ConfigMap.
func LoadThresholdProfilesConfigMap(ctx context.Context, client kubernetes.Interface, namespace, name string) (ThresholdProfileData, error) {
	cm, err := client.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get ConfigMap %s/%s: %w", namespace, name, err)
	}
	return ParseThresholdProfiles(cm.Data), nil
}

// GetDeviceProfile returns the effective profile for a device.
// It merges the device-specific profile with the global defaults.
func (data ThresholdProfileData) GetDeviceProfile(device string) ThresholdProfile {
	defaults := data[GlobalDefaultsKey]
	override, ok := data[device]
	if !ok {
		return defaults
	}

	result := defaults
	if override.Device != "" {
		result.Device = override.Device
	}
	if override.CPUThreshold != 0 {
		result.CPUThreshold = override.CPUThreshold
	}
	if override.MemThreshold != 0 {
		result.MemThreshold = override.MemThreshold
	}
	if override.FPSThreshold != 0 {
		result.FPSThreshold = override.FPSThreshold
	}
	if override.MaxInstances != 0 {
		result.MaxInstances = override.MaxInstances
	}
	if override.BatchDuration != "" {
		result.BatchDuration = override.BatchDuration
	}
	if override.SampleInterval != "" {
		result.SampleInterval = override.SampleInterval
	}
	if override.FailOnInstanceFailure != nil {
		result.FailOnInstanceFailure = override.FailOnInstanceFailure
	}
	return result
}

// Apply overlays the profile on cfg. Keys for which explicit reports true
// (set on the command line, in the environment or in the config file) keep
// their value from cfg.
func (p ThresholdProfile) Apply(cfg ThresholdConfig, explicit func(key string) bool) ThresholdConfig {
	if explicit == nil {
		explicit = func(string) bool { return false }
	}
	if p.CPUThreshold != 0 && !explicit(FlagCPUThreshold) {
		cfg.CPUThreshold = p.CPUThreshold
	}
	if p.MemThreshold != 0 && !explicit(FlagMemThreshold) {
		cfg.MemThreshold = p.MemThreshold
	}
	if p.FPSThreshold != 0 && !explicit(FlagFPSThreshold) {
		cfg.FPSThreshold = p.FPSThreshold
	}
	if p.MaxInstances != 0 && !explicit(FlagMaxInstances) {
		cfg.MaxInstances = p.MaxInstances
	}
	if p.BatchDuration != "" && !explicit(FlagBatchDuration) {
		if d, err := parsePositiveDuration(p.BatchDuration); err == nil {
			cfg.BatchDuration = d
		}
	}
	if p.SampleInterval != "" && !explicit(FlagSampleInterval) {
		if d, err := parsePositiveDuration(p.SampleInterval); err == nil {
			cfg.SampleInterval = d
		}
	}
	if p.FailOnInstanceFailure != nil && !explicit(FlagFailOnInstanceFailure) {
		cfg.FailOnInstanceFailure = *p.FailOnInstanceFailure
	}
	return cfg
}
