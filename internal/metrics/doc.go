// Package metrics exposes Prometheus metrics for csvanon.
//
// Collector keeps its own registry so that tests and several servers in
// one process never share counters. The web server mounts Handler on
// /metrics and registers the collector as a pipeline observer.
package metrics
