// Package metric provides Prometheus metrics for forkhttpd.
package metric

import "github.com/prometheus/client_golang/prometheus"

// PoolStats is the view of a worker pool needed by PoolCollector.
type PoolStats interface {
	Size() int
	Alive() int
}

// PoolCollector reports the configured and live worker counts at scrape time.
type PoolCollector struct {
	pool  PoolStats
	size  *prometheus.Desc
	alive *prometheus.Desc
}

// NewPoolCollector creates a collector for the given pool.
func NewPoolCollector(pool PoolStats) *PoolCollector {
	return &PoolCollector{
		pool: pool,
		size: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "workers_configured"),
			"Number of worker slots in the pool.",
			nil, nil,
		),
		alive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "workers_alive"),
			"Number of slots with a running worker.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.alive
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(c.pool.Size()))
	ch <- prometheus.MustNewConstMetric(c.alive, prometheus.GaugeValue, float64(c.pool.Alive()))
}
