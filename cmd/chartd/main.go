// cmd/chartd — Chart synchronization daemon.
//
// Wires the whole pipeline: bridge (or Binance) snapshot provider →
// sync controller → chart surface → stream renderer → dashboard
// gateway, with the live quote feed merging in-progress bars and
// Redis/SQLite behind the controller for caching and archival.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"chartsync/config"
	"chartsync/internal/broker"
	"chartsync/internal/broker/binance"
	"chartsync/internal/chart"
	"chartsync/internal/chart/streamrender"
	"chartsync/internal/feed"
	"chartsync/internal/gateway"
	"chartsync/internal/logger"
	"chartsync/internal/metrics"
	"chartsync/internal/model"
	redisstore "chartsync/internal/store/redis"
	sqlitestore "chartsync/internal/store/sqlite"
	"chartsync/internal/syncctl"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[chartd] starting...")

	cfg := config.Load()
	logger.Init("chartd", slog.LevelInfo)

	// ---- Watchlist + presets ----
	watchlist, err := config.LoadWatchlist(cfg.WatchlistPath)
	if err != nil {
		log.Printf("[chartd] WARNING: watchlist unavailable: %v (symbol filtering disabled)", err)
		watchlist = nil
	} else {
		log.Printf("[chartd] watchlist: %d symbols, %d presets", len(watchlist.Symbols), len(watchlist.Presets))
	}
	if watchlist != nil && !watchlist.Contains(cfg.DefaultSymbol) {
		log.Printf("[chartd] WARNING: default symbol %s not in watchlist", cfg.DefaultSymbol)
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite archive (off hot path) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	archive, err := sqlitestore.New(sqlitestore.ArchiveConfig{DBPath: cfg.SQLitePath, Metrics: prom})
	if err != nil {
		log.Fatalf("[chartd] sqlite init failed: %v", err)
	}
	defer archive.Close()
	go archive.Run(ctx)
	log.Println("[chartd] candle archive ready")

	// ---- Redis snapshot cache ----
	var cache *redisstore.Cache
	cache, err = redisstore.NewCache(redisstore.CacheConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[chartd] WARNING: redis init failed: %v (continuing without cache)", err)
		cache = nil
	} else {
		log.Println("[chartd] snapshot cache ready")
	}

	// ---- Periodic liveness checks ----
	if cache != nil {
		health.StartLivenessChecker(ctx, cache.Client(), archive.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, archive.DB(), 10*time.Second)
	}

	// ---- Snapshot provider: bridge or Binance (staging) ----
	var provider syncctl.SnapshotProvider
	switch cfg.SnapshotSource {
	case "binance":
		log.Println("[chartd] *** STAGING — snapshots from Binance klines ***")
		provider = binance.New(cfg.BinanceAPIKey, cfg.BinanceSecretKey)
	default:
		bridge := broker.New(broker.Config{
			BaseURL:    cfg.BridgeBaseURL,
			Login:      cfg.BridgeLogin,
			Password:   cfg.BridgePassword,
			Server:     cfg.BridgeServer,
			TOTPSecret: cfg.BridgeTOTPSecret,
		})
		loginCtx, loginCancel := context.WithTimeout(ctx, 15*time.Second)
		if err := bridge.Login(loginCtx); err != nil {
			log.Printf("[chartd] WARNING: bridge login failed: %v (snapshots may be rejected)", err)
		} else {
			log.Println("[chartd] bridge session established")
		}
		loginCancel()
		defer bridge.Logout(context.Background())
		provider = bridge
	}

	// ---- Render pipeline: renderer → surface → controller → hub ----
	// The hub is assigned before any surface op can fire: the first op
	// comes from the initial Select below.
	var hub *gateway.Hub
	renderer := streamrender.New(func(op []byte) {
		hub.Broadcast(op)
	})
	surface := chart.NewSurface(renderer)

	opts := []syncctl.Option{syncctl.WithArchiver(archive), syncctl.WithMetrics(prom)}
	if cache != nil {
		opts = append(opts, syncctl.WithCache(cache))
	}
	ctrl := syncctl.New(syncctl.Config{
		LookbackDays: cfg.LookbackDays,
		RefreshSpec:  cfg.RefreshSpec,
	}, provider, surface, opts...)

	hub = gateway.NewHub(ctrl, renderer, prom)
	hub.AttachHistory(archive)

	// ---- Live quote feed ----
	feedClient, err := feed.New(feed.Config{URL: cfg.FeedURL})
	if err != nil {
		log.Fatalf("[chartd] feed setup failed: %v", err)
	}
	feedClient.OnUpdate = func(u *model.MarketUpdate) {
		health.SetLastUpdateTime(time.Now())
		ctrl.OnMarketUpdate(u)
	}
	feedClient.OnStateChange = func(s feed.State) {
		health.SetFeedConnected(s == feed.StateConnected)
	}
	feedClient.OnReconnect = func() {
		prom.FeedReconnects.Inc()
	}
	go func() {
		if err := feedClient.Run(ctx); err != nil {
			log.Printf("[chartd] feed stopped: %v", err)
		}
	}()

	// ---- Initial series ----
	tf, err := model.ParseTimeframe(cfg.DefaultTimeframe)
	if err != nil {
		log.Fatalf("[chartd] bad DEFAULT_TIMEFRAME: %v", err)
	}
	startSel := model.SeriesSelector{Symbol: cfg.DefaultSymbol, Timeframe: tf}
	selectCtx, selectCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := ctrl.Select(selectCtx, startSel); err != nil {
		log.Printf("[chartd] WARNING: initial load of %s failed: %v (clients can retry via SELECT)", startSel.Key(), err)
	} else {
		health.SetActiveSeries(startSel.Key())
		log.Printf("[chartd] serving %s", startSel.Key())
	}
	selectCancel()

	applyStartupPreset(ctrl, watchlist, cfg.DefaultPreset)

	// ---- Scheduled snapshot refresh ----
	if cfg.RefreshSpec != "" {
		if err := ctrl.StartRefreshSchedule(ctx); err != nil {
			log.Printf("[chartd] WARNING: refresh schedule disabled: %v", err)
		} else {
			log.Printf("[chartd] snapshot refresh scheduled: %q", cfg.RefreshSpec)
		}
	}

	// ---- Health status follows the chart, not just the boot series ----
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if sel, ok := ctrl.Selector(); ok {
					health.SetActiveSeries(sel.Key())
				}
				health.SetLiveOverlays(renderer.LiveSeries())
			}
		}
	}()

	// ---- Dashboard gateway ----
	mux := http.NewServeMux()
	hub.Routes(mux)
	// Latest raw market snapshot, for dashboards that want account and
	// position data without speaking the drawing-op protocol.
	mux.HandleFunc("/api/market", func(w http.ResponseWriter, r *http.Request) {
		u := feedClient.Latest()
		if u == nil {
			http.Error(w, `{"error":"no market data yet"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(u)
	})
	gwSrv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}
	go func() {
		log.Printf("[chartd] gateway listening on %s", cfg.GatewayAddr)
		if err := gwSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[chartd] gateway error: %v", err)
		}
	}()

	log.Println("[chartd] pipeline ready")

	// ---- Wait for shutdown signal ----
	sig := <-sigCh
	log.Printf("[chartd] received %v, shutting down...", sig)

	ctrl.StopRefreshSchedule()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	gwSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if cache != nil {
		cache.Close()
	}
	log.Println("[chartd] shutdown complete")
}

// applyStartupPreset toggles the preset's indicators on so the chart
// comes up pre-configured before the first client connects.
func applyStartupPreset(ctrl *syncctl.Controller, wl *config.Watchlist, name string) {
	if name == "" || wl == nil {
		return
	}
	preset, ok := wl.Presets[name]
	if !ok {
		log.Printf("[chartd] WARNING: preset %q not found in watchlist", name)
		return
	}
	if preset.EMA != nil {
		ctrl.SetIndicatorVisible(chart.OverlayEMA, chart.IndicatorConfig{Period: preset.EMA.Period}, true)
	}
	if preset.SMA != nil {
		ctrl.SetIndicatorVisible(chart.OverlaySMA, chart.IndicatorConfig{Period: preset.SMA.Period}, true)
	}
	if preset.RSI != nil {
		ctrl.SetIndicatorVisible(chart.OverlayRSI, chart.IndicatorConfig{Period: preset.RSI.Period}, true)
	}
	if preset.MACD != nil {
		ctrl.SetIndicatorVisible(chart.OverlayMACD, chart.IndicatorConfig{
			FastPeriod:   preset.MACD.Fast,
			SlowPeriod:   preset.MACD.Slow,
			SignalPeriod: preset.MACD.Signal,
		}, true)
	}
	if preset.Bollinger != nil {
		ctrl.SetIndicatorVisible(chart.OverlayBollinger, chart.IndicatorConfig{
			Period:     preset.Bollinger.Period,
			StdDevMult: preset.Bollinger.StdDevMult,
		}, true)
	}
	log.Printf("[chartd] applied startup preset %q", name)
}
