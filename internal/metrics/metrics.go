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

// Metrics holds all Prometheus metrics for the chart sync daemon.
type Metrics struct {
	SnapshotFetches       prometheus.Counter
	SnapshotFetchFailures prometheus.Counter
	SnapshotCacheHits     prometheus.Counter
	SnapshotFetchDur      prometheus.Histogram
	StaleResponsesDropped prometheus.Counter

	// Live bar merges, by outcome
	CandleMerges *prometheus.CounterVec // labels: result=appended|amended|dropped|buffered

	IndicatorComputeDur prometheus.Histogram

	FeedReconnects prometheus.Counter
	FeedUpdates    prometheus.Counter

	RenderOps prometheus.Counter
	WSClients prometheus.Gauge

	RefreshRuns    prometheus.Counter
	ArchiveRows    prometheus.Counter
	ArchiveFlushes prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		SnapshotFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_snapshot_fetches_total",
			Help: "Total candle snapshot fetches from the provider",
		}),
		SnapshotFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_snapshot_fetch_failures_total",
			Help: "Snapshot fetches that failed (chart keeps last good state)",
		}),
		SnapshotCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_snapshot_cache_hits_total",
			Help: "Snapshot loads served from the Redis cache",
		}),
		SnapshotFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartsync_snapshot_fetch_duration_seconds",
			Help:    "Snapshot fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		StaleResponsesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_stale_responses_dropped_total",
			Help: "Snapshot responses discarded because the selection changed mid-flight",
		}),

		CandleMerges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartsync_candle_merges_total",
			Help: "Live bar merges by outcome",
		}, []string{"result"}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartsync_indicator_compute_duration_seconds",
			Help:    "Overlay recompute latency per refresh",
			Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_feed_reconnects_total",
			Help: "Live feed reconnection attempts",
		}),
		FeedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_feed_updates_total",
			Help: "Market updates received from the live feed",
		}),

		RenderOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_render_ops_total",
			Help: "Drawing operations broadcast to dashboard clients",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartsync_ws_clients",
			Help: "Connected dashboard WebSocket clients",
		}),

		RefreshRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_refresh_runs_total",
			Help: "Scheduled snapshot refresh runs",
		}),
		ArchiveRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartsync_archive_rows_total",
			Help: "Candles written to the SQLite archive",
		}),
		ArchiveFlushes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartsync_archive_flush_duration_seconds",
			Help:    "SQLite archive batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.SnapshotFetches,
		m.SnapshotFetchFailures,
		m.SnapshotCacheHits,
		m.SnapshotFetchDur,
		m.StaleResponsesDropped,
		m.CandleMerges,
		m.IndicatorComputeDur,
		m.FeedReconnects,
		m.FeedUpdates,
		m.RenderOps,
		m.WSClients,
		m.RefreshRuns,
		m.ArchiveRows,
		m.ArchiveFlushes,
	)

	return m
}

// HealthStatus represents the daemon health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastUpdateTime time.Time `json:"last_update_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	ActiveSeries   string    `json:"active_series"`
	LiveOverlays   int       `json:"live_overlays"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastUpdateTime(t time.Time) {
	h.mu.Lock()
	h.LastUpdateTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetActiveSeries(key string) {
	h.mu.Lock()
	h.ActiveSeries = key
	h.mu.Unlock()
}

// SetLiveOverlays records how many overlay series the renderer is
// currently maintaining.
func (h *HealthStatus) SetLiveOverlays(n int) {
	h.mu.Lock()
	h.LiveOverlays = n
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

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.FeedConnected && !h.RedisConnected {
		overallStatus = "unhealthy"
	}

	updateAge := ""
	if !h.LastUpdateTime.IsZero() {
		updateAge = time.Since(h.LastUpdateTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastUpdateTime  string  `json:"last_update_time"`
		UpdateAge       string  `json:"update_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		ActiveSeries    string  `json:"active_series"`
		LiveOverlays    int     `json:"live_overlays"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastUpdateTime:  h.LastUpdateTime.Format(time.RFC3339),
		UpdateAge:       updateAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		ActiveSeries:    h.ActiveSeries,
		LiveOverlays:    h.LiveOverlays,
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
