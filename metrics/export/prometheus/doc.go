// Package prometheus exposes engine counters as a prometheus.Collector.
//
// Counter names follow nonceauth_*_total and the single histogram is
// nonceauth_validate_latency_seconds. Register the Collector on your own
// registry or mount Handler; nothing is added to the global registry.
package prometheus
