// Package worker supervises the inference workload instances of a batch.
//
// An Instance is an opaque, separately scheduled unit of execution (a local
// process or a Kubernetes Pod) that runs one workload for a duration budget
// and reports progress as a cumulative frame counter. The controller only
// polls that counter, asks the instance to stop, and joins it with a bounded
// timeout; it never shares memory with the workload.
//
// # Progress protocol
//
// Instances report progress one line at a time on standard output (or the
// container log):
//
//	frames=1200
//	{"frames": 1300}
//
// Any other line is ignored by the controller and copied to the instance log.
//
// # Join policy
//
//   - exited with an error before being asked to stop: crashed
//   - exited after being asked to stop, or cleanly on its own: completed
//   - still running when the grace timeout expires: killed, timed-out
package worker
