// Package prometheus exposes goGuard engine counters as a
// prometheus.Collector.
//
// Counters are named goguard_*_total; the one histogram is
// goguard_authenticate_latency_seconds. Handler mounts the collector on a
// private registry so callers never touch the global default registry.
package prometheus
