package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// CSV file names written by CSVSink.
const (
	BatchesFile   = "batches.csv"
	InstancesFile = "instances.csv"
	SamplesFile   = "samples.csv"
	SummaryFile   = "summary.csv"
)

var (
	batchesHeader = []string{
		"instance_count", "mean_fps", "mean_cpu_pct", "mean_mem_pct",
		"mean_accel_util_pct", "mean_accel_temp_c", "verdict", "cause", "exceeded",
		"unevaluated", "completed", "crashed", "timed_out", "started_at", "ended_at",
	}
	instancesHeader = []string{"batch", "index", "status", "frames", "fps", "elapsed_s", "exit_error"}
	samplesHeader   = []string{"batch", "timestamp", "cpu_pct", "mem_pct", "accel_util_pct", "accel_temp_c"}
	summaryHeader   = []string{
		"run_id", "max_sustainable_instances", "total_batches_run",
		"termination_reason", "started_at", "completed_at",
	}
)

type csvTable struct {
	file   *os.File
	writer *csv.Writer
}

func openTable(dir, name string, header []string) (*csvTable, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	t := &csvTable{file: f, writer: csv.NewWriter(f)}
	if err := t.write([][]string{header}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return t, nil
}

func (t *csvTable) write(rows [][]string) error {
	if err := t.writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(t.file.Name()), err)
	}
	return nil
}

// CSVSink writes batch, instance and sample tables to a directory. Rows are
// flushed after every batch so an interrupted session keeps its records.
type CSVSink struct {
	dir string

	mu        sync.Mutex
	batches   *csvTable
	instances *csvTable
	samples   *csvTable
}

// NewCSVSink creates dir if needed and opens the tables, truncating
// existing files.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %q: %w", dir, err)
	}
	s := &CSVSink{dir: dir}
	var err error
	if s.batches, err = openTable(dir, BatchesFile, batchesHeader); err != nil {
		return nil, err
	}
	if s.instances, err = openTable(dir, InstancesFile, instancesHeader); err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.samples, err = openTable(dir, SamplesFile, samplesHeader); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// RecordBatch implements interfaces.ResultSink.
func (s *CSVSink) RecordBatch(_ context.Context, b interfaces.BatchSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := strconv.Itoa(b.InstanceCount)
	if err := s.batches.write([][]string{{
		batch,
		formatOptional(b.MeanFPS),
		formatOptional(b.MeanCPUPercent),
		formatOptional(b.MeanMemoryPercent),
		formatOptional(b.MeanAcceleratorUtilPercent),
		formatOptional(b.MeanAcceleratorTempCelsius),
		string(b.Verdict),
		string(b.Cause),
		strings.Join(b.ExceededThresholds, ";"),
		strings.Join(b.UnevaluatedMetrics, ";"),
		strconv.Itoa(b.Completed),
		strconv.Itoa(b.Crashed),
		strconv.Itoa(b.TimedOut),
		formatTime(b.StartedAt),
		formatTime(b.EndedAt),
	}}); err != nil {
		return err
	}

	rows := make([][]string, 0, len(b.Instances))
	for _, r := range b.Instances {
		rows = append(rows, []string{
			batch,
			strconv.Itoa(r.Index),
			string(r.Status),
			strconv.FormatInt(r.Frames, 10),
			formatFloat(r.FPS),
			formatFloat(r.Elapsed.Seconds()),
			r.ExitError,
		})
	}
	if err := s.instances.write(rows); err != nil {
		return err
	}

	rows = make([][]string, 0, len(b.Samples))
	for _, m := range b.Samples {
		rows = append(rows, []string{
			batch,
			formatTime(m.Timestamp),
			formatOptional(m.CPUPercent),
			formatOptional(m.MemoryPercent),
			formatOptional(m.AcceleratorUtilPercent),
			formatOptional(m.AcceleratorTempCelsius),
		})
	}
	return s.samples.write(rows)
}

// RecordRun implements interfaces.ResultSink. It writes the one-row summary
// table.
func (s *CSVSink) RecordRun(_ context.Context, r interfaces.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := openTable(s.dir, SummaryFile, summaryHeader)
	if err != nil {
		return err
	}
	werr := t.write([][]string{{
		r.RunID,
		strconv.Itoa(r.MaxSustainableInstances),
		strconv.Itoa(r.TotalBatchesRun),
		string(r.TerminationReason),
		formatTime(r.StartedAt),
		formatTime(r.CompletedAt),
	}})
	return errors.Join(werr, t.file.Close())
}

// Close closes the tables.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, t := range []*csvTable{s.batches, s.instances, s.samples} {
		if t == nil {
			continue
		}
		t.writer.Flush()
		errs = append(errs, t.writer.Error(), t.file.Close())
	}
	return errors.Join(errs...)
}
