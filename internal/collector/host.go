package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/procfs"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

var errNoMemInfo = errors.New("meminfo lacks MemTotal or MemAvailable")

// HostSource reads system-wide CPU and memory utilization from procfs.
// CPU utilization is the busy share of all CPU time elapsed since the
// previous read (or since Prime).
type HostSource struct {
	fs procfs.FS

	mu   sync.Mutex
	prev *procfs.CPUStat
}

// NewHostSource returns a HostSource reading from the proc filesystem mounted
// at mountPoint (procfs.DefaultMountPoint when empty).
func NewHostSource(mountPoint string) (*HostSource, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs at %s: %w", mountPoint, err)
	}
	return &HostSource{fs: fs}, nil
}

// Name returns "host".
func (h *HostSource) Name() string {
	return "host"
}

// Prime records the CPU baseline for the next Collect.
func (h *HostSource) Prime(_ context.Context) error {
	stat, err := h.fs.Stat()
	if err != nil {
		return fmt.Errorf("failed to read cpu stats: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	cpu := stat.CPUTotal
	h.prev = &cpu
	return nil
}

// Collect returns CPU and memory utilization. Each metric is read
// independently, so a failure of one leaves the other intact.
func (h *HostSource) Collect(_ context.Context) (interfaces.ResourceReading, error) {
	var reading interfaces.ResourceReading
	var errs []error

	if cpu, err := h.cpuPercent(); err != nil {
		errs = append(errs, err)
	} else {
		reading.CPUPercent = cpu
	}

	if mem, err := h.memoryPercent(); err != nil {
		errs = append(errs, err)
	} else {
		reading.MemoryPercent = &mem
	}

	return reading, errors.Join(errs...)
}

func (h *HostSource) cpuPercent() (*float64, error) {
	stat, err := h.fs.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu stats: %w", err)
	}
	cur := stat.CPUTotal

	h.mu.Lock()
	prev := h.prev
	h.prev = &cur
	h.mu.Unlock()

	// Without a baseline there is no interval to compute a rate over.
	if prev == nil {
		return nil, nil
	}

	busyDelta := cpuBusy(cur) - cpuBusy(*prev)
	totalDelta := cpuTotal(cur) - cpuTotal(*prev)
	if totalDelta <= 0 {
		return nil, nil
	}
	pct := 100 * busyDelta / totalDelta
	pct = min(max(pct, 0), 100)
	return &pct, nil
}

func (h *HostSource) memoryPercent() (float64, error) {
	mi, err := h.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("failed to read meminfo: %w", err)
	}
	if mi.MemTotal == nil || mi.MemAvailable == nil || *mi.MemTotal == 0 {
		return 0, errNoMemInfo
	}
	used := float64(*mi.MemTotal) - float64(*mi.MemAvailable)
	return 100 * used / float64(*mi.MemTotal), nil
}

// cpuTotal excludes guest time, which the kernel already counts in user time.
func cpuTotal(s procfs.CPUStat) float64 {
	return s.User + s.Nice + s.System + s.Idle + s.Iowait + s.IRQ + s.SoftIRQ + s.Steal
}

func cpuBusy(s procfs.CPUStat) float64 {
	return cpuTotal(s) - s.Idle - s.Iowait
}
