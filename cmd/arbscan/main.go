package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/iulianbarbu/arbitrage-opportunities/internal/config"
	"github.com/iulianbarbu/arbitrage-opportunities/internal/observability"
	"github.com/iulianbarbu/arbitrage-opportunities/internal/rates"
	"github.com/iulianbarbu/arbitrage-opportunities/internal/scanner"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to configuration file")
	feedURL := flag.String("url", "", "Rate feed URL (overrides config)")
	amount := flag.String("amount", "", "Trade amount to compound through cycles (overrides config)")
	once := flag.Bool("once", false, "Fetch one snapshot, scan, and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	if *feedURL != "" {
		cfg.Feed.URL = *feedURL
	}
	if *amount != "" {
		cfg.Trade.Amount = *amount
	}

	setupLogging(cfg.General)

	tradeAmount, err := decimal.NewFromString(cfg.Trade.Amount)
	if err != nil || tradeAmount.Sign() <= 0 {
		log.Error().Str("amount", cfg.Trade.Amount).Msg("trade amount must be a positive decimal")
		return 1
	}
	if cfg.Feed.URL == "" && cfg.Feed.WSURL == "" {
		log.Error().Msg("no rate feed configured (set feed.url or pass -url)")
		return 1
	}

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("feed_url", cfg.Feed.URL).
		Str("source", cfg.Feed.Source).
		Str("trade_amount", tradeAmount.String()).
		Bool("once", *once).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	registry := observability.NewRegistry()
	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, registry, cfg.Metrics.Port)
	}

	scanCfg := scanner.DefaultConfig()
	scanCfg.TradeAmount = tradeAmount
	sc := scanner.New(scanCfg, scanner.NewMetrics(registry))

	if cfg.Feed.Source == "ws" {
		return runWSFeed(ctx, cfg, sc)
	}

	source := rates.NewHTTPSource(rates.HTTPConfig{
		URL:          cfg.Feed.URL,
		TimeoutS:     cfg.Feed.TimeoutS,
		MaxRetries:   cfg.Feed.MaxRetries,
		RateLimitRPS: cfg.Feed.RateLimitRPS,
	})

	if *once {
		return runOnce(ctx, source, sc)
	}

	interval := time.Duration(cfg.Feed.RefreshIntervalS) * time.Second
	if err := sc.Watch(ctx, source, interval); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Scanner stopped with error")
		return 1
	}
	log.Info().Msg("Shutdown complete")
	return 0
}

// runOnce performs a single fetch-scan-report pass. The exit message
// makes "nothing found" unmistakably distinct from a failed run.
func runOnce(ctx context.Context, source scanner.Source, sc *scanner.Scanner) int {
	snap, err := source.Fetch(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch rate snapshot")
		return 1
	}

	report, err := sc.Scan(ctx, snap)
	if err != nil {
		log.Error().Err(err).Msg("Snapshot rejected")
		return 1
	}

	report.Log()
	for _, o := range report.Opportunities {
		fmt.Println(o.Describe())
	}
	if len(report.Opportunities) == 0 {
		fmt.Println("no arbitrage found")
	}
	return 0
}

// runWSFeed scans every snapshot pushed over the websocket feed.
func runWSFeed(ctx context.Context, cfg *config.Config, sc *scanner.Scanner) int {
	source := rates.NewWSSource(cfg.Feed.WSURL)
	if err := source.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to connect to ws feed")
		return 1
	}
	defer source.Disconnect()

	snapshots, err := source.Snapshots(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to subscribe to ws feed")
		return 1
	}

	for snap := range snapshots {
		report, err := sc.Scan(ctx, snap)
		if err != nil {
			log.Error().Err(err).Str("snapshot_id", snap.ID).Msg("Snapshot rejected")
			continue
		}
		report.Log()
	}
	log.Info().Msg("Shutdown complete")
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func startMetricsServer(ctx context.Context, registry *observability.Registry, port int) {
	exporter := observability.NewExporter(registry)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: exporter.Handler(),
	}
	go func() {
		log.Info().Int("port", port).Msg("Metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "arbscan").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "arbscan").
			Str("instance", general.InstanceID).Logger()
	}
}
