package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"example.com/candle-confluence/internal/analysis"
	"example.com/candle-confluence/internal/binance"
	"example.com/candle-confluence/internal/config"
	"example.com/candle-confluence/internal/httpapi"
	"example.com/candle-confluence/internal/kline"
	"example.com/candle-confluence/internal/monitor"
	"example.com/candle-confluence/internal/pattern"
	"example.com/candle-confluence/internal/recorder"
	signalpkg "example.com/candle-confluence/internal/signal"
	"example.com/candle-confluence/internal/sse"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	corsOrigins := flag.String("cors-origins", "", "comma separated CORS origins (overrides config)")
	monitorHeartbeat := flag.Duration("monitor-heartbeat", getEnvDuration("MONITOR_HEARTBEAT", 0), "")
	staleAfter := flag.Duration("stale-after", getEnvDuration("KLINE_STALE_AFTER", 0), "drop symbols without updates for this long")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *corsOrigins != "" {
		cfg.HTTP.CORSOrigins = *corsOrigins
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("config: addr=%s data-dir=%s symbols=%s interval=%s", cfg.HTTP.Addr, cfg.DataDir, strings.Join(cfg.Symbols, ","), cfg.Interval)
	log.Printf("config: monitor_enabled=%v patterns=%v min_confidence=%d cdl=%v", cfg.Monitor.Enabled, cfg.Monitor.Patterns, cfg.Monitor.MinConfidence, cfg.Analysis.CDL)
	log.Printf("config: refresh_cron=%q workers=%d", cfg.Refresh.Cron, cfg.Refresh.Workers)

	rest := binance.NewRESTClient()

	// Scheduled analysis refresh.
	analyses := analysis.NewStore()
	refresher := analysis.NewRefresher(dataPath(cfg.DataDir, cfg.Refresh.SnapshotPath), analyses, rest, cfg.Analysis)
	refresher.Symbols = cfg.Symbols
	refresher.Interval = cfg.Interval
	refresher.Limit = cfg.KlineLimit
	refresher.Workers = cfg.Refresh.Workers
	refresher.LoadFromDisk()

	scheduler := analysis.NewScheduler(ctx, refresher)
	scheduler.Timeout = cfg.Refresh.Timeout
	if err := scheduler.Register(cfg.Refresh.Cron); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	if analyses.Snapshot() == nil {
		go scheduler.RunNow()
	}

	history, closeHistory := openHistory(cfg)
	defer closeHistory()

	signalBroker := sse.NewBroker[recorder.SignalRecord]()
	combinedBroker := sse.NewBroker[signalpkg.CombinedSignal]()
	combiner := signalpkg.NewCombiner(cfg.Monitor.CombineWindow)
	combiner.SetOnCombined(func(cs signalpkg.CombinedSignal) {
		combinedBroker.Publish(cs)
	})

	var klineStore *kline.Store
	var mon *monitor.Monitor
	if cfg.Monitor.Enabled {
		step, _ := kline.IntervalDuration(cfg.Interval)
		klineStore = kline.NewStore(step, cfg.Monitor.Buffer)

		var detector *pattern.Detector
		if cfg.Monitor.Patterns {
			dc := pattern.DefaultDetectorConfig()
			dc.Thresholds = cfg.Analysis.Patterns
			dc.IncludeCDL = cfg.Analysis.CDL
			dc.CryptoMode = cfg.Analysis.SkipGapped
			dc.MinStrength = cfg.Monitor.MinConfidence
			detector = pattern.NewDetector(dc)
		}

		mon = monitor.New(monitor.Config{
			Symbols:    cfg.Symbols,
			Interval:   cfg.Interval,
			Analysis:   cfg.Analysis,
			KlineStore: klineStore,
			Source:     rest,
			SeedLimit:  cfg.Monitor.Buffer,
			Detector:   detector,
			Broker:     signalBroker,
			History:    history,
			Combiner:   combiner,
			Analyses:   analyses,
		})
		mon.HeartbeatEvery = *monitorHeartbeat
		mon.StaleAfter = *staleAfter

		seedCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		n := mon.Seed(seedCtx)
		cancel()
		log.Printf("monitor seeded symbols=%d/%d buffer=%d", n, len(cfg.Symbols), cfg.Monitor.Buffer)
		go mon.Run(ctx)
	}

	api := httpapi.New(signalBroker, history, httpapi.ParseAllowedOrigins(cfg.HTTP.CORSOrigins))
	api.CombinedBroker = combinedBroker
	api.Analyses = analyses
	api.KlineStore = klineStore
	api.Monitor = mon
	api.NextRefresh = scheduler.Next

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	log.Printf("http listening on %s", cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("http server error: %v", err)
	}
}

// openHistory prefers SQLite when a database path is configured and falls
// back to the JSONL history.
func openHistory(cfg *config.Config) (recorder.SignalStore, func()) {
	if cfg.Database.SQLitePath != "" {
		rec, err := recorder.NewSQLiteRecorder(dataPath(cfg.DataDir, cfg.Database.SQLitePath))
		if err == nil {
			log.Printf("signal history: sqlite path=%s", cfg.Database.SQLitePath)
			return rec, func() { _ = rec.Close() }
		}
		log.Printf("sqlite init warning: %v (falling back to jsonl)", err)
	}

	hist, err := recorder.NewJSONLHistory(dataPath(cfg.DataDir, cfg.History.Path), cfg.History.Max)
	if err != nil {
		log.Printf("history init warning: %v (continuing without persistence)", err)
		hist, _ = recorder.NewJSONLHistory("", cfg.History.Max)
	}
	log.Printf("signal history: jsonl path=%s max=%d", cfg.History.Path, cfg.History.Max)
	return hist, func() { _ = hist.Close() }
}

func dataPath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// getEnvDuration reads a duration from environment variable.
// Supports both "5m" format and plain number "5" (interpreted as minutes).
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if mins, err := strconv.Atoi(v); err == nil && mins > 0 {
		return time.Duration(mins) * time.Minute
	}
	return defaultVal
}
