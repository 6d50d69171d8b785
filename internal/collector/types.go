/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package collector

import (
	"time"

	"github.com/llm-d/llm-d-stress-controller/internal/interfaces"
)

// MetricName identifies one field of a ResourceReading.
type MetricName string

const (
	MetricCPUPercent             MetricName = "cpu_percent"
	MetricMemoryPercent          MetricName = "memory_percent"
	MetricAcceleratorUtilPercent MetricName = "accelerator_util_percent"
	MetricAcceleratorTempCelsius MetricName = "accelerator_temp_celsius"
)

// AllMetrics lists every metric in reading order.
var AllMetrics = []MetricName{
	MetricCPUPercent,
	MetricMemoryPercent,
	MetricAcceleratorUtilPercent,
	MetricAcceleratorTempCelsius,
}

// Value returns the reading's value for metric, nil when unavailable.
func Value(r interfaces.ResourceReading, metric MetricName) *float64 {
	switch metric {
	case MetricCPUPercent:
		return r.CPUPercent
	case MetricMemoryPercent:
		return r.MemoryPercent
	case MetricAcceleratorUtilPercent:
		return r.AcceleratorUtilPercent
	case MetricAcceleratorTempCelsius:
		return r.AcceleratorTempCelsius
	default:
		return nil
	}
}

// Unavailable returns the metrics that are nil in r.
func Unavailable(r interfaces.ResourceReading) []MetricName {
	var out []MetricName
	for _, m := range AllMetrics {
		if Value(r, m) == nil {
			out = append(out, m)
		}
	}
	return out
}

// DataPoint represents a single time-series data point.
type DataPoint struct {
	// Timestamp is when this data point was recorded.
	Timestamp time.Time

	// Value is the metric value at this timestamp.
	Value float64
}

// TimeSeries is the sequence of available values of one metric.
type TimeSeries struct {
	// Metric is the name of the metric.
	Metric MetricName

	// Points are the data points in chronological order.
	Points []DataPoint

	// Missing counts samples in which the metric was unavailable.
	Missing int
}

// SeriesOf extracts the available values of metric from samples, in order.
func SeriesOf(samples []interfaces.SampleMetric, metric MetricName) *TimeSeries {
	ts := &TimeSeries{Metric: metric, Points: make([]DataPoint, 0, len(samples))}
	for _, s := range samples {
		v := Value(s.ResourceReading, metric)
		if v == nil {
			ts.Missing++
			continue
		}
		ts.Points = append(ts.Points, DataPoint{Timestamp: s.Timestamp, Value: *v})
	}
	return ts
}

// Mean returns the arithmetic mean of the series, or nil when it is empty.
func (ts *TimeSeries) Mean() *float64 {
	if len(ts.Points) == 0 {
		return nil
	}
	var sum float64
	for _, p := range ts.Points {
		sum += p.Value
	}
	mean := sum / float64(len(ts.Points))
	return &mean
}
