// Command arbd runs the latency-arbitrage engine: it scans Polymarket
// binary markets for mispriced opportunities against fast ground-truth
// feeds (economic releases, sports results, crypto thresholds) and, when
// an edge clears the configured threshold and passes risk checks, places
// an order against the CLOB.
//
// Startup order: client adapter -> scanner -> oracle/risk monitor ->
// engine -> alert scheduler -> feeds. Shutdown is the reverse.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"polyarb/internal/alerts"
	"polyarb/internal/clob"
	"polyarb/internal/config"
	"polyarb/internal/engine"
	"polyarb/internal/feeds"
	"polyarb/internal/market"
	"polyarb/internal/metrics"
	"polyarb/internal/paper"
	"polyarb/internal/risk"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ARB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE: no real orders will be placed")
	}
	if cfg.Paper.Enabled {
		logger.Warn("PAPER TRADING MODE: fills are simulated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auth, err := clob.NewAuth(*cfg)
	if err != nil {
		logger.Error("failed to build auth", "error", err)
		os.Exit(1)
	}

	realClient := clob.NewClient(*cfg, auth, logger)
	if err := realClient.Connect(ctx); err != nil {
		logger.Error("failed to connect to venue", "error", err)
		os.Exit(1)
	}

	paramsCache := clob.NewParamsCache(realClient, cfg.PreSign.TTL)
	pool := clob.NewPool(realClient, auth, paramsCache, cfg.PreSign.StaleThreshold, cfg.PreSign.RefreshInterval, logger)
	go pool.Run(ctx)

	// execClient and readClient are the same underlying adapter in both
	// modes; paper mode substitutes a Simulator for order placement while
	// every read still hits the real venue.
	var execClient engine.ExecutionClient
	var readClient market.Client
	var paperAdapter *paper.Adapter
	if cfg.Paper.Enabled {
		sim := paper.NewSimulator(cfg.Paper.FillProbability, cfg.Paper.SlippageBps)
		paperAdapter = paper.NewAdapter(realClient, sim, logger)
		execClient = paperAdapter
		readClient = paperAdapter
	} else {
		execClient = realClient
		readClient = realClient
	}

	scanner := market.NewScanner(readClient, cfg.Scanner, logger)
	executor := engine.NewExecutor(execClient, paramsCache)
	riskMonitor := risk.NewMonitor(cfg.Risk, cfg.Oracle, logger, time.Now())
	eng := engine.New(cfg.Strategy, scanner, executor, riskMonitor, logger)

	collector := metrics.NewCollector(cfg.Metrics)
	eng.OnEvent(collector.OnEngineEvent)

	httpClient := resty.New()
	dispatcher := alerts.NewDispatcher(cfg.Alerts, httpClient, logger)

	economicFeed := feeds.NewEconomicFeed(cfg.Feeds.Economic, httpClient, logger)
	sportsFeed := feeds.NewSportsFeed(cfg.Feeds.Sports, httpClient, logger)
	cryptoFeed := feeds.NewCryptoFeed(cfg.Feeds.Crypto, logger)

	wireAlerts(eng, riskMonitor, economicFeed, sportsFeed, cryptoFeed, dispatcher)

	dailySummary := alerts.NewDailyScheduler(dispatcher, riskMonitor, cfg.Alerts.DailySummaryHourUTC)

	var metricsSrv *http.Server
	if cfg.Metrics.PrometheusEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.PrometheusPort), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	scanner.Start(ctx)
	if paperAdapter != nil {
		paperAdapter.Run(ctx, time.Duration(cfg.Paper.OrderbookRefreshSecs)*time.Second)
	}
	eng.Start(ctx)
	dailySummary.Start(ctx)

	economicFeed.OnEvent(eng.OnFeedEvent)
	sportsFeed.OnEvent(eng.OnFeedEvent)
	cryptoFeed.OnEvent(eng.OnFeedEvent)

	if err := economicFeed.Start(ctx); err != nil {
		logger.Error("economic feed failed to start", "error", err)
	}
	if err := sportsFeed.Start(ctx); err != nil {
		logger.Error("sports feed failed to start", "error", err)
	}
	if err := cryptoFeed.Start(ctx); err != nil {
		logger.Error("crypto feed failed to start", "error", err)
	}

	logger.Info("arbd started",
		"dry_run", cfg.DryRun,
		"paper", cfg.Paper.Enabled,
		"min_edge", cfg.Strategy.MinEdge,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	economicFeed.Stop()
	sportsFeed.Stop()
	cryptoFeed.Stop()
	dailySummary.Stop()
	eng.Stop()
	if paperAdapter != nil {
		paperAdapter.Stop()
	}
	scanner.Stop()
	if metricsSrv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutCtx)
	}
	_ = realClient.Close()

	fmt.Println(renderFinalReport(collector))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
