// Package metrics exposes Prometheus counters and gauges for the
// enumeration pipeline and the path engine.
package metrics
