package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stockcsv/internal/config"
	"stockcsv/internal/export"
	"stockcsv/internal/market"
	"stockcsv/internal/provider"
	"stockcsv/internal/provider/alphavantage"
	"stockcsv/internal/provider/yahoo"
	"stockcsv/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("STOCKCSV_CONFIG"), "path to YAML config file")
		symbolsArg = flag.String("symbols", "", "comma separated ticker symbols")
		startArg   = flag.String("start", "", "start date (YYYY-MM-DD, required)")
		endArg     = flag.String("end", "", "end date (YYYY-MM-DD, defaults to today)")
		outArg     = flag.String("out", "prices.csv", "output CSV path")
		sourceArg  = flag.String("source", "", "price source: yahoo or alphavantage")
		seriesArg  = flag.String("series", "", "alphavantage series: daily, weekly or monthly")
		cacheArg   = flag.String("cache", "", "sqlite cache path (empty disables caching)")
		workersArg = flag.Int("workers", 0, "parallel chunk fetches per symbol")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Flags override config.
	if *sourceArg != "" {
		cfg.Source = *sourceArg
	}
	if *seriesArg != "" {
		cfg.Series = *seriesArg
	}
	if *cacheArg != "" {
		cfg.CachePath = *cacheArg
	}
	if *workersArg > 0 {
		cfg.Workers = *workersArg
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if *startArg == "" {
		slog.Error("missing required flag", "flag", "-start")
		flag.Usage()
		os.Exit(2)
	}
	from, err := time.Parse(market.DateFormat, *startArg)
	if err != nil {
		slog.Error("invalid start date", "value", *startArg, "error", err)
		os.Exit(1)
	}
	var to time.Time
	if *endArg != "" {
		if to, err = time.Parse(market.DateFormat, *endArg); err != nil {
			slog.Error("invalid end date", "value", *endArg, "error", err)
			os.Exit(1)
		}
	}

	// Cancelled on SIGINT/SIGTERM so in-flight chunk fetches stop promptly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Provider registry
	registry := provider.NewRegistry()
	registry.Register(yahoo.New(yahoo.WithWorkers(cfg.Workers)))
	if cfg.AlphaVantageKey != "" {
		registry.Register(alphavantage.New(
			alphavantage.WithAPIKey(cfg.AlphaVantageKey),
			alphavantage.WithSeries(alphavantage.Series(cfg.Series)),
		))
	}

	src, err := registry.Get(cfg.Source)
	if err != nil {
		slog.Error("unknown source", "source", cfg.Source, "error", err)
		os.Exit(1)
	}

	// Optional sqlite cache in front of the provider
	if cfg.CachePath != "" {
		db, err := store.Open(cfg.CachePath)
		if err != nil {
			slog.Error("failed to open cache", "path", cfg.CachePath, "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		src = store.NewCachedProvider(src, store.NewBarRepository(db.DB))
	}

	svc := export.NewService(src)
	if err := svc.FetchAndSave(ctx, splitSymbols(*symbolsArg), from, to, *outArg); err != nil {
		slog.Error("export failed", "error", err)
		os.Exit(1)
	}
}

// splitSymbols splits a comma separated list, dropping blank entries.
func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
