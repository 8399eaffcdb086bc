// Package metrics exposes Prometheus metrics and the health endpoint for
// the trading controller.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the controller.
type Metrics struct {
	TicksTotal   prometheus.Counter
	TickDuration prometheus.Histogram

	TradesTotal   *prometheus.CounterVec // labels: provider, action, result
	TradeDuration prometheus.Histogram

	OpenPositions    prometheus.Gauge
	PortfolioSim     prometheus.Gauge
	PortfolioLive    prometheus.Gauge
	RealizedPnL      prometheus.Gauge
	StrategiesActive prometheus.Gauge

	MarketRefreshErrors prometheus.Counter
	MarketTokens        prometheus.Gauge

	WSClients           prometheus.Gauge
	RedisBufferedEvents prometheus.Gauge

	TriggerMatches prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_ticks_total",
			Help: "Total strategy evaluation ticks",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_tick_duration_seconds",
			Help:    "Strategy tick fan-out latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.2},
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Trades attempted (by provider, action, result)",
		}, []string{"provider", "action", "result"}),
		TradeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_trade_duration_seconds",
			Help:    "Execution latency per trade request",
			Buckets: prometheus.DefBuckets,
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Open positions across strategies and wallets",
		}),
		PortfolioSim: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_portfolio_sim_sol",
			Help: "Simulated portfolio value in SOL",
		}),
		PortfolioLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_portfolio_live_sol",
			Help: "Live portfolio value in SOL",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_realized_pnl_sol",
			Help: "Cumulative realized PnL in SOL",
		}),
		StrategiesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_strategies_running",
			Help: "Strategies currently RUNNING",
		}),
		MarketRefreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_market_refresh_errors_total",
			Help: "Market snapshot refresh failures (all sources dry)",
		}),
		MarketTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_market_tokens",
			Help: "Tokens in the current market snapshot",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_ws_clients",
			Help: "Connected WebSocket observers",
		}),
		RedisBufferedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_redis_buffered_events",
			Help: "Events buffered while the Redis circuit is open",
		}),
		TriggerMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_trigger_matches_total",
			Help: "On-chain log notifications matched by watchers",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.TradesTotal,
		m.TradeDuration,
		m.OpenPositions,
		m.PortfolioSim,
		m.PortfolioLive,
		m.RealizedPnL,
		m.StrategiesActive,
		m.MarketRefreshErrors,
		m.MarketTokens,
		m.WSClients,
		m.RedisBufferedEvents,
		m.TriggerMatches,
	)

	return m
}

// ObserveTrade records one execution attempt.
func (m *Metrics) ObserveTrade(provider, action string, success bool, dur time.Duration) {
	result := "failed"
	if success {
		result = "filled"
	}
	m.TradesTotal.WithLabelValues(provider, action, result).Inc()
	m.TradeDuration.Observe(dur.Seconds())
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	TradingActive  bool      `json:"trading_active"`
	Simulated      bool      `json:"simulated"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	MarketFreshAt  time.Time `json:"market_fresh_at"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		SQLiteOK:  true,
	}
}

func (h *HealthStatus) SetTradingActive(v bool) {
	h.mu.Lock()
	h.TradingActive = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSimulated(v bool) {
	h.mu.Lock()
	h.Simulated = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetMarketFreshAt(t time.Time) {
	h.mu.Lock()
	h.MarketFreshAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.MarketFreshAt.IsZero() && time.Since(h.MarketFreshAt) > 5*time.Minute {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		TradingActive   bool    `json:"trading_active"`
		Simulated       bool    `json:"simulated"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		MarketFreshAt   string  `json:"market_fresh_at"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		TradingActive:   h.TradingActive,
		Simulated:       h.Simulated,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		MarketFreshAt:   h.MarketFreshAt.Format(time.RFC3339),
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
