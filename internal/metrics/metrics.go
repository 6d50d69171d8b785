package metrics

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

var (
	batchesTotal            *prometheus.CounterVec
	batchMeanFPS            *prometheus.GaugeVec
	batchMeanResource       *prometheus.GaugeVec
	batchAcceleratorTemp    *prometheus.GaugeVec
	instanceOutcomesTotal   *prometheus.CounterVec
	samplerUnavailableTotal *prometheus.CounterVec
	maxSustainableInstances prometheus.Gauge
	currentInstances        prometheus.Gauge
	driverState             *prometheus.GaugeVec
	runDurationSeconds      prometheus.Gauge
	runTerminationTotal     *prometheus.CounterVec

	// initOnce ensures InitMetrics is only executed once
	initOnce sync.Once
	initErr  error
)

// driverStates are the values of the state label.
var driverStates = []string{"Idle", "Running", "Evaluated", "Converged"}

// InitMetrics registers all stress metrics with the provided registry.
// Only the first call has an effect.
func InitMetrics(registry prometheus.Registerer) error {
	initOnce.Do(func() {
		batchesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: StressBatchesTotal,
				Help: "Total number of evaluated batches by verdict and failure cause",
			},
			[]string{LabelVerdict, LabelCause},
		)
		batchMeanFPS = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: StressBatchMeanFPS,
				Help: "Mean per-instance throughput of the batch in frames per second",
			},
			[]string{LabelInstances},
		)
		batchMeanResource = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: StressBatchMeanResourcePercent,
				Help: "Mean resource utilization of the batch in percent",
			},
			[]string{LabelInstances, LabelResource},
		)
		batchAcceleratorTemp = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: StressBatchAcceleratorTemp,
				Help: "Mean accelerator temperature of the batch in degrees Celsius",
			},
			[]string{LabelInstances},
		)
		instanceOutcomesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: StressInstanceOutcomesTotal,
				Help: "Total number of worker instances by terminal status",
			},
			[]string{LabelStatus},
		)
		samplerUnavailableTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: StressSamplerUnavailableTotal,
				Help: "Total number of sampler ticks on which a metric could not be read",
			},
			[]string{LabelSource, LabelMetric},
		)
		maxSustainableInstances = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: StressMaxSustainableInstances,
				Help: "Largest instance count whose batch passed all thresholds",
			},
		)
		currentInstances = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: StressCurrentInstances,
				Help: "Instance count of the batch the scaling driver is working on",
			},
		)
		driverState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: StressDriverState,
				Help: "Current scaling driver state (1 for the active state, 0 otherwise)",
			},
			[]string{LabelState},
		)
		runDurationSeconds = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: StressRunDurationSeconds,
				Help: "Wall-clock duration of the finished stress session",
			},
		)
		runTerminationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: StressRunTerminationReasonTotal,
				Help: "Total number of finished stress sessions by termination reason",
			},
			[]string{LabelReason},
		)

		collectors := map[string]prometheus.Collector{
			"batchesTotal":            batchesTotal,
			"batchMeanFPS":            batchMeanFPS,
			"batchMeanResource":       batchMeanResource,
			"batchAcceleratorTemp":    batchAcceleratorTemp,
			"instanceOutcomesTotal":   instanceOutcomesTotal,
			"samplerUnavailableTotal": samplerUnavailableTotal,
			"maxSustainableInstances": maxSustainableInstances,
			"currentInstances":        currentInstances,
			"driverState":             driverState,
			"runDurationSeconds":      runDurationSeconds,
			"runTerminationTotal":     runTerminationTotal,
		}
		for name, c := range collectors {
			if err := registry.Register(c); err != nil {
				initErr = fmt.Errorf("failed to register %s metric: %w", name, err)
				return
			}
		}
	})

	return initErr
}

// InitMetricsAndEmitter registers metrics and creates an emitter.
func InitMetricsAndEmitter(registry prometheus.Registerer) (*MetricsEmitter, error) {
	if err := InitMetrics(registry); err != nil {
		return nil, err
	}
	return NewMetricsEmitter(), nil
}

// MetricsEmitter updates the stress metrics.
type MetricsEmitter struct{}

// NewMetricsEmitter creates a new metrics emitter
func NewMetricsEmitter() *MetricsEmitter {
	return &MetricsEmitter{}
}

// RecordUnavailable counts a metric a sampler tick could not read.
func (m *MetricsEmitter) RecordUnavailable(source string, metric string) {
	if samplerUnavailableTotal == nil {
		return
	}
	samplerUnavailableTotal.WithLabelValues(source, metric).Inc()
}

// ObserveState records a scaling driver transition.
func (m *MetricsEmitter) ObserveState(state string, n int) {
	if driverState == nil || currentInstances == nil {
		return
	}
	for _, s := range driverStates {
		v := 0.0
		if s == state {
			v = 1
		}
		driverState.WithLabelValues(s).Set(v)
	}
	currentInstances.Set(float64(n))
}

// EmitBatchMetrics records an evaluated batch.
func (m *MetricsEmitter) EmitBatchMetrics(b interfaces.BatchSummary) error {
	if batchesTotal == nil || batchMeanFPS == nil || batchMeanResource == nil ||
		batchAcceleratorTemp == nil || instanceOutcomesTotal == nil || maxSustainableInstances == nil {
		return fmt.Errorf("batch metrics not initialized")
	}

	batchesTotal.WithLabelValues(string(b.Verdict), string(b.Cause)).Inc()
	instances := strconv.Itoa(b.InstanceCount)

	// Unavailable values are not exported rather than exported as zero
	if b.MeanFPS != nil {
		batchMeanFPS.WithLabelValues(instances).Set(*b.MeanFPS)
	}
	resources := map[string]*float64{
		interfaces.MetricCPU:    b.MeanCPUPercent,
		interfaces.MetricMemory: b.MeanMemoryPercent,
		"accelerator":           b.MeanAcceleratorUtilPercent,
	}
	for resource, v := range resources {
		if v != nil {
			batchMeanResource.WithLabelValues(instances, resource).Set(*v)
		}
	}
	if b.MeanAcceleratorTempCelsius != nil {
		batchAcceleratorTemp.WithLabelValues(instances).Set(*b.MeanAcceleratorTempCelsius)
	}

	instanceOutcomesTotal.WithLabelValues(string(interfaces.InstanceCompleted)).Add(float64(b.Completed))
	instanceOutcomesTotal.WithLabelValues(string(interfaces.InstanceCrashed)).Add(float64(b.Crashed))
	instanceOutcomesTotal.WithLabelValues(string(interfaces.InstanceTimedOut)).Add(float64(b.TimedOut))

	if b.Passed() {
		maxSustainableInstances.Set(float64(b.InstanceCount))
	}
	return nil
}

// EmitRunMetrics records the end of a session.
func (m *MetricsEmitter) EmitRunMetrics(r interfaces.RunSummary) error {
	if maxSustainableInstances == nil || runDurationSeconds == nil || runTerminationTotal == nil {
		return fmt.Errorf("run metrics not initialized")
	}
	maxSustainableInstances.Set(float64(r.MaxSustainableInstances))
	runDurationSeconds.Set(r.CompletedAt.Sub(r.StartedAt).Seconds())
	runTerminationTotal.WithLabelValues(string(r.TerminationReason)).Inc()
	return nil
}
