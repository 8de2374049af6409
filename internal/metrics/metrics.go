// Package metrics exposes Prometheus instrumentation and the health/metrics
// HTTP server for the signal engine.
package metrics

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	CandlesDistributed prometheus.Counter
	UpdatesSuppressed  prometheus.Counter
	FanoutDropsTotal   *prometheus.CounterVec // labels: key
	SourceReconnects   *prometheus.CounterVec // labels: key
	ActiveSubscribers  prometheus.Gauge

	StrategiesRunning prometheus.Gauge
	InstanceFaults    prometheus.Counter
	SignalsEmitted    *prometheus.CounterVec // labels: strategy

	ForecastRuns     prometheus.Counter
	ForecastDegraded prometheus.Counter

	WSClients prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesDistributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_candles_distributed_total",
			Help: "Total candle updates fanned out to subscribers",
		}),
		UpdatesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_updates_suppressed_total",
			Help: "Redundant upstream candles suppressed before fan-out",
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_fanout_drops_total",
			Help: "Updates dropped for slow subscribers (by key)",
		}, []string{"key"}),
		SourceReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_source_reconnects_total",
			Help: "Upstream source reconnection attempts (by key)",
		}, []string{"key"}),
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_active_subscribers",
			Help: "Current number of distributor subscribers",
		}),
		StrategiesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_strategies_running",
			Help: "Strategy instances currently in the running state",
		}),
		InstanceFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_instance_faults_total",
			Help: "Strategy instances moved to the error state by a fault",
		}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_signals_emitted_total",
			Help: "Signals emitted after position dedup (by strategy)",
		}, []string{"strategy"}),
		ForecastRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_forecast_runs_total",
			Help: "Regression forecast fits performed",
		}),
		ForecastDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_forecast_degraded_total",
			Help: "Forecast runs degraded to stage-1 only",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_ws_clients",
			Help: "Connected streaming clients",
		}),
	}

	prometheus.MustRegister(
		m.CandlesDistributed,
		m.UpdatesSuppressed,
		m.FanoutDropsTotal,
		m.SourceReconnects,
		m.ActiveSubscribers,
		m.StrategiesRunning,
		m.InstanceFaults,
		m.SignalsEmitted,
		m.ForecastRuns,
		m.ForecastDegraded,
		m.WSClients,
	)
	return m
}

// HealthStatus tracks liveness of external collaborators for /healthz.
type HealthStatus struct {
	mu             sync.RWMutex
	redisConnected bool
	sqliteOK       bool
	startedAt      time.Time
}

// NewHealthStatus creates a HealthStatus stamped with the start time.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{startedAt: time.Now()}
}

// SetRedisConnected updates the Redis liveness flag.
func (h *HealthStatus) SetRedisConnected(ok bool) {
	h.mu.Lock()
	h.redisConnected = ok
	h.mu.Unlock()
}

// SetSQLiteOK updates the SQLite liveness flag.
func (h *HealthStatus) SetSQLiteOK(ok bool) {
	h.mu.Lock()
	h.sqliteOK = ok
	h.mu.Unlock()
}

func (h *HealthStatus) snapshot() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{
		"status":     "ok",
		"redis":      h.redisConnected,
		"sqlite":     h.sqliteOK,
		"uptime_sec": int(time.Since(h.startedAt).Seconds()),
	}
}

// Server serves /metrics and /healthz.
type Server struct {
	addr   string
	health *HealthStatus
}

// NewServer creates the metrics HTTP server.
func NewServer(addr string, health *HealthStatus) *Server {
	return &Server{addr: addr, health: health}
}

// Start runs the server on its own goroutine.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.health.snapshot())
	})
	go func() {
		log.Printf("[metrics] serving on %s", s.addr)
		if err := http.ListenAndServe(s.addr, mux); err != nil {
			log.Printf("[metrics] server stopped: %v", err)
		}
	}()
}
