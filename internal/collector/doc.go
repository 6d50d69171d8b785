// Package collector provides the resource sampler of a stress session.
//
// The sampler polls a Source at a fixed wall-clock cadence for the duration of
// one batch and returns the collected SampleMetric sequence. Sources are
// pluggable and may be combined:
//
//   - HostSource: system-wide CPU and memory utilization from procfs
//   - NvidiaSMISource: accelerator utilization and temperature via nvidia-smi
//   - PrometheusSource: any of the above as instant PromQL queries
//   - CompositeSource: first available value per metric across sources
//
// # Scheduling
//
// A handle started at time t0 takes its k-th sample at t0 + k*interval for
// k = 1..floor(window/interval):
//
//	handle := sampler.Start(ctx, 20*time.Second) // interval 5s
//	samples := handle.Wait(ctx)                  // 4 samples: ~5s, 10s, 15s, 20s
//
// A tick that is delayed past its slot is still taken and stamped with the
// time it was actually taken. Drift is tolerated, not corrected.
//
// # Unavailable readings
//
// Sources report unavailable metrics as nil fields. When a source fails, the
// sampler records nil for every field the failing source did not return and
// keeps going; a failed read never aborts a session.
package collector
