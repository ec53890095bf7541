// Package httpserver provides the HTTP server for the telemetry endpoint.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/yndnr/forkhttpd/internal/server/worker"
	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
	"github.com/yndnr/forkhttpd/internal/telemetry/metric"
)

// Pool is the view of the worker pool behind /healthz.
type Pool interface {
	metric.PoolStats
	Slots() []worker.SlotInfo
}

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Metrics is served on /metrics.
	Metrics *metric.Registry

	// Pool backs /healthz.
	Pool Pool

	// Generation identifies the server generation in /healthz.
	Generation string

	// Logger for access logging.
	Logger logger.Logger
}

// HealthStatus is the body of /healthz.
type HealthStatus struct {
	Status     string `json:"status"`
	Generation string `json:"generation,omitempty"`
	Workers    int               `json:"workers"`
	Alive      int               `json:"alive"`
	Slots      []worker.SlotInfo `json:"slots,omitempty"`
}

// NewRouter creates the telemetry router.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	mux := http.NewServeMux()
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, cfg)
	})

	return Chain(mux,
		Recover(log),
		AccessLog(log),
	)
}

func writeHealth(w http.ResponseWriter, cfg *RouterConfig) {
	st := HealthStatus{Status: "ok", Generation: cfg.Generation}
	code := http.StatusOK
	if cfg.Pool != nil {
		st.Workers = cfg.Pool.Size()
		st.Alive = cfg.Pool.Alive()
		st.Slots = cfg.Pool.Slots()
		if st.Alive < st.Workers {
			st.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(st)
}
