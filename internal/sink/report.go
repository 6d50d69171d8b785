package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	stressv1alpha1 "github.com/llm-d/llm-d-stress-controller/api/v1alpha1"
	"github.com/llm-d/llm-d-stress-controller/internal/config"
	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// ReportFile is the report written by ReportSink.
const ReportFile = "report.yaml"

// ReportSink maintains a StressRun object and rewrites it as YAML after
// every record.
type ReportSink struct {
	path string

	mu  sync.Mutex
	run *stressv1alpha1.StressRun
}

// NewReportSink creates a report sink writing to path.
func NewReportSink(path string, spec stressv1alpha1.StressRunSpec) *ReportSink {
	name := "stress"
	if spec.RunID != "" {
		name = "stress-" + strings.ToLower(spec.RunID[:min(8, len(spec.RunID))])
	}
	return &ReportSink{
		path: path,
		run: &stressv1alpha1.StressRun{
			TypeMeta: metav1.TypeMeta{
				APIVersion: stressv1alpha1.GroupVersion.String(),
				Kind:       "StressRun",
			},
			ObjectMeta: metav1.ObjectMeta{
				Name: name,
				Labels: map[string]string{
					"app.kubernetes.io/name": "stress-controller",
				},
			},
			Spec: spec,
		},
	}
}

// SpecFromConfig builds the StressRun spec of a session.
func SpecFromConfig(runID string, cfg config.SessionConfig) stressv1alpha1.StressRunSpec {
	t := cfg.Thresholds
	return stressv1alpha1.StressRunSpec{
		RunID:    runID,
		Model:    cfg.Workload.Model,
		Source:   cfg.Workload.Source,
		Launcher: string(cfg.Workload.Launcher),
		Device:   cfg.Profiles.Name,
		Thresholds: stressv1alpha1.ThresholdSpec{
			CPUThreshold:          formatFloat(t.CPUThreshold),
			MemThreshold:          formatFloat(t.MemThreshold),
			FPSThreshold:          formatFloat(t.FPSThreshold),
			MaxInstances:          int32(t.MaxInstances),
			BatchDuration:         metav1.Duration{Duration: t.BatchDuration},
			SampleInterval:        metav1.Duration{Duration: t.SampleInterval},
			FailOnInstanceFailure: t.FailOnInstanceFailure,
		},
		Warmup:      metav1.Duration{Duration: cfg.Workload.Warmup},
		GracePeriod: metav1.Duration{Duration: cfg.Workload.GracePeriod},
		Cooldown:    metav1.Duration{Duration: cfg.Workload.Cooldown},
	}
}

// BatchRecordFrom converts a batch summary to its report form.
func BatchRecordFrom(b interfaces.BatchSummary) stressv1alpha1.BatchRecord {
	return stressv1alpha1.BatchRecord{
		Instances:                  int32(b.InstanceCount),
		Verdict:                    string(b.Verdict),
		Cause:                      string(b.Cause),
		MeanFPS:                    optionalString(b.MeanFPS),
		MeanCPUPercent:             optionalString(b.MeanCPUPercent),
		MeanMemoryPercent:          optionalString(b.MeanMemoryPercent),
		MeanAcceleratorUtilPercent: optionalString(b.MeanAcceleratorUtilPercent),
		MeanAcceleratorTempCelsius: optionalString(b.MeanAcceleratorTempCelsius),
		ExceededThresholds:         append([]string(nil), b.ExceededThresholds...),
		UnevaluatedMetrics:         append([]string(nil), b.UnevaluatedMetrics...),
		Completed:                  int32(b.Completed),
		Crashed:                    int32(b.Crashed),
		TimedOut:                   int32(b.TimedOut),
		StartTime:                  metav1.NewTime(b.StartedAt),
		EndTime:                    metav1.NewTime(b.EndedAt),
	}
}

// ObserveState records a scaling driver transition in the report status. It
// does not rewrite the file.
func (s *ReportSink) ObserveState(state string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Status.State = state
	s.run.Status.CurrentInstances = int32(n)
	if s.run.Status.StartTime == nil {
		now := metav1.Now()
		s.run.Status.StartTime = &now
	}
}

// Run returns a copy of the current report.
func (s *ReportSink) Run() *stressv1alpha1.StressRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.DeepCopy()
}

// RecordBatch implements interfaces.ResultSink.
func (s *ReportSink) RecordBatch(_ context.Context, b interfaces.BatchSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.run.Status
	if st.StartTime == nil {
		start := metav1.NewTime(b.StartedAt)
		st.StartTime = &start
	}
	st.Batches = append(st.Batches, BatchRecordFrom(b))
	st.TotalBatchesRun = int32(len(st.Batches))
	st.CurrentInstances = int32(b.InstanceCount)
	if b.Passed() {
		st.MaxSustainableInstances = int32(b.InstanceCount)
	}

	s.run.SetCondition(stressv1alpha1.TypeConverged, metav1.ConditionFalse, stressv1alpha1.ReasonInProgress,
		fmt.Sprintf("batch with %d instances evaluated: %s", b.InstanceCount, b.Verdict))
	if b.Cause == interfaces.CauseAggregationImpossible {
		s.run.SetCondition(stressv1alpha1.TypeBatchAggregationImpossible, metav1.ConditionTrue,
			stressv1alpha1.ReasonAllInstancesFailed,
			fmt.Sprintf("no instance of the batch with %d instances produced throughput data (%d crashed, %d timed out)",
				b.InstanceCount, b.Crashed, b.TimedOut))
	} else if s.run.GetCondition(stressv1alpha1.TypeBatchAggregationImpossible) == nil {
		s.run.SetCondition(stressv1alpha1.TypeBatchAggregationImpossible, metav1.ConditionFalse,
			stressv1alpha1.ReasonThroughputAvailable, "every batch produced throughput data")
	}
	return s.write()
}

// RecordRun implements interfaces.ResultSink.
func (s *ReportSink) RecordRun(_ context.Context, r interfaces.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.run.Status
	st.MaxSustainableInstances = int32(r.MaxSustainableInstances)
	st.TotalBatchesRun = int32(r.TotalBatchesRun)
	st.TerminationReason = string(r.TerminationReason)
	start := metav1.NewTime(r.StartedAt)
	st.StartTime = &start
	done := metav1.NewTime(r.CompletedAt)
	st.CompletionTime = &done

	reason := stressv1alpha1.ReasonThresholdExceeded
	switch r.TerminationReason {
	case interfaces.TerminationReachedMaxInstances:
		reason = stressv1alpha1.ReasonReachedMaxInstances
	case interfaces.TerminationExternallyCancelled:
		reason = stressv1alpha1.ReasonExternallyCancelled
	}
	s.run.SetCondition(stressv1alpha1.TypeConverged, metav1.ConditionTrue, reason,
		fmt.Sprintf("maximum sustainable instances: %d after %d batches", r.MaxSustainableInstances, r.TotalBatchesRun))
	return s.write()
}

// write replaces the report file atomically. Callers hold s.mu.
func (s *ReportSink) write() error {
	data, err := yaml.Marshal(s.run)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".report-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by ReportSink.
func ReadReport(path string) (*stressv1alpha1.StressRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %q: %w", path, err)
	}
	run := &stressv1alpha1.StressRun{}
	if err := yaml.Unmarshal(data, run); err != nil {
		return nil, fmt.Errorf("failed to parse report %q: %w", path, err)
	}
	return run, nil
}
