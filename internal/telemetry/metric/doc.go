// Package metric provides Prometheus metrics for forkhttpd.
//
// This package implements metrics collection and exposition for a server
// generation:
//
//   - prometheus.go: registry, dispatcher and worker metrics, HTTP handler
//   - collector.go: a collector reporting the live worker pool size
//
// Metrics are exposed at /metrics in Prometheus format on the generation's
// metrics listener, when one is configured.
package metric
