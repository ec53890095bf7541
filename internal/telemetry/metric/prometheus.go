// Package metric provides Prometheus metrics for forkhttpd.
package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forkhttpd"

// Registry holds all metrics of one server generation.
//
// A nil *Registry is valid: every recording method is a no-op on it, so
// components can be built without metrics.
type Registry struct {
	reg *prometheus.Registry

	ConnectionsAccepted prometheus.Counter
	AcceptErrors        prometheus.Counter
	Handoffs            *prometheus.CounterVec
	HandoffFailures     *prometheus.CounterVec
	WorkerRespawns      *prometheus.CounterVec
	ConnectionsInFlight prometheus.Gauge
	ConnectionDuration  prometheus.Histogram
	Responses           *prometheus.CounterVec
}

// NewRegistry creates a registry with the Go runtime and process collectors
// plus all forkhttpd metrics.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "connections_accepted_total",
			Help:      "Connections accepted on the listening socket.",
		}),
		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "accept_errors_total",
			Help:      "Failed accept calls that did not stop the dispatcher.",
		}),
		Handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "handoffs_total",
			Help:      "Connections handed off to a worker slot.",
		}, []string{"slot"}),
		HandoffFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "handoff_failures_total",
			Help:      "Handoffs that failed; the connection was dropped.",
		}, []string{"slot"}),
		WorkerRespawns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "worker_respawns_total",
			Help:      "Workers respawned after an unexpected exit.",
		}, []string{"slot"}),
		ConnectionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "connections_in_flight",
			Help:      "Connections currently being serviced by workers.",
		}),
		ConnectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "connection_duration_seconds",
			Help:      "Time spent servicing one handed-off connection.",
			Buckets:   prometheus.DefBuckets,
		}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "responses_total",
			Help:      "HTTP responses written, by status code.",
		}, []string{"code"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ConnectionsAccepted,
		r.AcceptErrors,
		r.Handoffs,
		r.HandoffFailures,
		r.WorkerRespawns,
		r.ConnectionsInFlight,
		r.ConnectionDuration,
		r.Responses,
	)
	return r
}

// MustRegister registers additional collectors.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	if r == nil {
		return
	}
	r.reg.MustRegister(cs...)
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Accepted records one accepted connection.
func (r *Registry) Accepted() {
	if r == nil {
		return
	}
	r.ConnectionsAccepted.Inc()
}

// AcceptFailed records one transient accept failure.
func (r *Registry) AcceptFailed() {
	if r == nil {
		return
	}
	r.AcceptErrors.Inc()
}

// HandedOff records the outcome of one handoff to slot.
func (r *Registry) HandedOff(slot int, err error) {
	if r == nil {
		return
	}
	label := strconv.Itoa(slot)
	if err != nil {
		r.HandoffFailures.WithLabelValues(label).Inc()
		return
	}
	r.Handoffs.WithLabelValues(label).Inc()
}

// Respawned records one worker respawn into slot.
func (r *Registry) Respawned(slot int) {
	if r == nil {
		return
	}
	r.WorkerRespawns.WithLabelValues(strconv.Itoa(slot)).Inc()
}

// ConnectionStarted records a worker picking up a connection.
func (r *Registry) ConnectionStarted() {
	if r == nil {
		return
	}
	r.ConnectionsInFlight.Inc()
}

// ConnectionDone records a worker finishing a connection.
func (r *Registry) ConnectionDone(d time.Duration) {
	if r == nil {
		return
	}
	r.ConnectionsInFlight.Dec()
	r.ConnectionDuration.Observe(d.Seconds())
}

// Response records one HTTP response status code.
func (r *Registry) Response(code int) {
	if r == nil {
		return
	}
	r.Responses.WithLabelValues(strconv.Itoa(code)).Inc()
}
