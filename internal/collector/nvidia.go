package collector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

const (
	nvidiaSMIBinary  = "nvidia-smi"
	nvidiaSMITimeout = 5 * time.Second
)

var nvidiaSMIArgs = []string{
	"--query-gpu=utilization.gpu,temperature.gpu",
	"--format=csv,noheader,nounits",
}

// CommandRunner runs a command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// NvidiaSMISource reads accelerator utilization and temperature from
// nvidia-smi. With several GPUs the values are averaged.
type NvidiaSMISource struct {
	run     CommandRunner
	timeout time.Duration
}

// NewNvidiaSMISource returns a source using run to invoke nvidia-smi.
// A nil run uses ExecRunner.
func NewNvidiaSMISource(run CommandRunner) *NvidiaSMISource {
	if run == nil {
		run = ExecRunner
	}
	return &NvidiaSMISource{run: run, timeout: nvidiaSMITimeout}
}

// NvidiaSMIAvailable reports whether nvidia-smi is on the PATH.
func NvidiaSMIAvailable() bool {
	_, err := exec.LookPath(nvidiaSMIBinary)
	return err == nil
}

// Name returns "nvidia-smi".
func (n *NvidiaSMISource) Name() string {
	return nvidiaSMIBinary
}

// Collect runs nvidia-smi once.
func (n *NvidiaSMISource) Collect(ctx context.Context) (interfaces.ResourceReading, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	out, err := n.run(ctx, nvidiaSMIBinary, nvidiaSMIArgs...)
	if err != nil {
		return interfaces.ResourceReading{}, fmt.Errorf("nvidia-smi failed: %w", err)
	}
	return ParseNvidiaSMI(out)
}

// ParseNvidiaSMI parses "utilization, temperature" lines. Fields reported as
// N/A are left nil.
func ParseNvidiaSMI(out []byte) (interfaces.ResourceReading, error) {
	var utilSum, tempSum float64
	var utilN, tempN, lines int

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines++
		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			return interfaces.ResourceReading{}, fmt.Errorf("unexpected nvidia-smi line %q", line)
		}
		if v, ok := parseSMIValue(fields[0]); ok {
			utilSum += v
			utilN++
		}
		if v, ok := parseSMIValue(fields[1]); ok {
			tempSum += v
			tempN++
		}
	}
	if err := scanner.Err(); err != nil {
		return interfaces.ResourceReading{}, err
	}
	if lines == 0 {
		return interfaces.ResourceReading{}, errors.New("nvidia-smi reported no GPUs")
	}

	var reading interfaces.ResourceReading
	if utilN > 0 {
		util := utilSum / float64(utilN)
		reading.AcceleratorUtilPercent = &util
	}
	if tempN > 0 {
		temp := tempSum / float64(tempN)
		reading.AcceleratorTempCelsius = &temp
	}
	return reading, nil
}

func parseSMIValue(field string) (float64, bool) {
	field = strings.TrimSpace(field)
	field = strings.Trim(field, "[]")
	if field == "" || strings.EqualFold(field, "N/A") {
		return 0, false
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
