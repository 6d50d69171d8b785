package config

import (
	"fmt"
	"time"
)

// Defaults for ThresholdConfig.
const (
	DefaultMaxInstances   = 16
	DefaultBatchDuration  = 200 * time.Second
	DefaultSampleInterval = 10 * time.Second
	DefaultCPUThreshold   = 90.0
	DefaultMemThreshold   = 90.0
	DefaultFPSThreshold   = 3.0
)

// ThresholdConfig holds the pass/fail budgets and pacing of a scaling session.
// It is built once at session start and passed by value.
type ThresholdConfig struct {
	// CPUThreshold is the maximum mean system CPU utilization (%) of a passing batch.
	CPUThreshold float64 `json:"cpuThreshold"`

	// MemThreshold is the maximum mean system memory utilization (%) of a passing batch.
	MemThreshold float64 `json:"memThreshold"`

	// FPSThreshold is the minimum mean per-instance throughput (frames/s) of a passing batch.
	FPSThreshold float64 `json:"fpsThreshold"`

	// MaxInstances is the largest concurrency level the session will try.
	MaxInstances int `json:"maxInstances"`

	// BatchDuration is the measurement window of each batch.
	BatchDuration time.Duration `json:"batchDuration"`

	// SampleInterval is the resource sampling cadence.
	SampleInterval time.Duration `json:"sampleInterval"`

	// FailOnInstanceFailure fails a batch as soon as one instance crashes or
	// times out, even if the remaining instances meet every threshold.
	FailOnInstanceFailure bool `json:"failOnInstanceFailure,omitempty"`
}

// DefaultThresholdConfig returns the thresholds used when nothing is configured.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		CPUThreshold:   DefaultCPUThreshold,
		MemThreshold:   DefaultMemThreshold,
		FPSThreshold:   DefaultFPSThreshold,
		MaxInstances:   DefaultMaxInstances,
		BatchDuration:  DefaultBatchDuration,
		SampleInterval: DefaultSampleInterval,
	}
}

// Validate checks for invalid configuration values.
func (c ThresholdConfig) Validate() error {
	if c.CPUThreshold <= 0 || c.CPUThreshold > 100 {
		return fmt.Errorf("cpuThreshold must be in (0, 100], got %.2f", c.CPUThreshold)
	}
	if c.MemThreshold <= 0 || c.MemThreshold > 100 {
		return fmt.Errorf("memThreshold must be in (0, 100], got %.2f", c.MemThreshold)
	}
	if c.FPSThreshold <= 0 {
		return fmt.Errorf("fpsThreshold must be > 0, got %.2f", c.FPSThreshold)
	}
	if c.MaxInstances < 1 {
		return fmt.Errorf("maxInstances must be >= 1, got %d", c.MaxInstances)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sampleInterval must be > 0, got %s", c.SampleInterval)
	}
	if c.BatchDuration <= 0 {
		return fmt.Errorf("batchDuration must be > 0, got %s", c.BatchDuration)
	}
	if c.SampleInterval > c.BatchDuration {
		return fmt.Errorf("sampleInterval (%s) must be <= batchDuration (%s)", c.SampleInterval, c.BatchDuration)
	}
	return nil
}
