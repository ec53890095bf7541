// Package httpserver provides the telemetry HTTP endpoint of a server
// generation.
//
// Routes:
//
//   - GET /metrics: Prometheus exposition of the generation's registry
//   - GET /healthz: worker pool health, 503 while a slot has no live worker
//
// The endpoint listens on metrics_addr. Its socket is bound before the
// process enters the filesystem jail.
package httpserver
