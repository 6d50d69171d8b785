// Package sink provides ResultSink implementations that persist and publish
// the records of a stress session: CSV tables, a StressRun YAML report,
// structured log lines and Prometheus metrics. MultiSink fans a record out to
// several sinks.
package sink
