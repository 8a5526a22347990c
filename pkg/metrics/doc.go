// Package metrics provides tracking and exposure of credential resolution metrics.
// It integrates with Prometheus to count lookups, credential helper invocations
// and cloud token refreshes.
//
// Key components:
//   - Metrics: Holds the Prometheus counters.
//   - Default: Returns the process-wide handler registered with the default registry.
//   - WriteTextfile: Writes metrics for the node_exporter textfile collector.
//
// Usage example:
//
//	m := metrics.Default()
//	m.RecordLookup("docker-config", metrics.ResultFound)
//
// Every supplier records into Default, so the counters appear on any handler
// serving prometheus.DefaultGatherer.
package metrics
