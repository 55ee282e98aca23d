package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/raybot/config"
	"github.com/alejandrodnm/raybot/internal/adapters/health"
	"github.com/alejandrodnm/raybot/internal/adapters/notify"
	"github.com/alejandrodnm/raybot/internal/adapters/raydium"
	"github.com/alejandrodnm/raybot/internal/adapters/storage"
	"github.com/alejandrodnm/raybot/internal/application/engine"
	"github.com/alejandrodnm/raybot/internal/domain"
	"github.com/alejandrodnm/raybot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	profit := flag.String("profit", "", "take-profit threshold in percent (overrides config)")
	loss := flag.String("loss", "", "stop-loss threshold in percent (overrides config)")
	mode := flag.String("mode", "", "paper|live (overrides config)")
	once := flag.Bool("once", false, "run one cycle, persist and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print open positions table every cycle")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if err := applyFlags(cfg, *profit, *loss, *mode); err != nil {
		slog.Error("invalid flags", "err", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	slog.Info("raybot starting",
		"config", *configPath,
		"mode", cfg.Engine.Mode,
		"interval", cfg.CycleDelay(),
		"window", cfg.ListingWindow(),
		"profit_pct", cfg.Engine.ProfitPct.String(),
		"loss_pct", cfg.Engine.LossPct.String(),
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.HealthEnabled() {
		go func() {
			if err := health.NewServer(cfg.Health.Addr).Run(ctx); err != nil {
				slog.Warn("health endpoint unavailable", "err", err)
			}
		}()
	}

	executor, initial, err := buildExecutor(ctx, cfg)
	if errors.Is(err, errAborted) {
		slog.Info("live trading aborted by user")
		return
	}
	if err != nil {
		slog.Error("failed to create executor", "err", err, "mode", cfg.Engine.Mode)
		os.Exit(1)
	}

	sink, closeSink, err := buildSink(cfg, executor.Name())
	if err != nil {
		slog.Error("failed to open ledger storage", "err", err)
		os.Exit(1)
	}
	defer closeSink()

	feed := raydium.NewClient(cfg.Feed.BaseURL, raydium.Options{
		Timeout:           cfg.FeedTimeout(),
		RequestsPerSecond: cfg.Feed.RequestsPerSecond,
		QuoteMarker:       cfg.Feed.QuoteMarker,
	})

	state, err := engine.NewState(initial)
	if err != nil {
		slog.Error("failed to create engine state", "err", err)
		os.Exit(1)
	}

	eng, err := engine.New(engine.Config{
		Allocation:    cfg.Engine.Allocation,
		Exit:          domain.ExitRule{ProfitPct: cfg.Engine.ProfitPct, LossPct: cfg.Engine.LossPct},
		ListingWindow: cfg.ListingWindow(),
		CycleDelay:    cfg.CycleDelay(),
	}, state, feed, executor, sink, notify.NewConsole(*table))
	if err != nil {
		slog.Error("failed to create engine", "err", err)
		os.Exit(1)
	}

	if *once {
		eng.RunOnce(ctx)
		eng.Shutdown(ctx)
	} else {
		eng.Run(ctx)
	}

	slog.Info("raybot stopped cleanly", "csv", cfg.Export.CSVPath)
}

// applyFlags aplica los overrides de CLI. Tienen prioridad sobre YAML y env.
func applyFlags(cfg *config.Config, profit, loss, mode string) error {
	if profit != "" {
		d, err := decimal.NewFromString(profit)
		if err != nil {
			return fmt.Errorf("--profit: %w", err)
		}
		cfg.Engine.ProfitPct = d
	}
	if loss != "" {
		d, err := decimal.NewFromString(loss)
		if err != nil {
			return fmt.Errorf("--loss: %w", err)
		}
		cfg.Engine.LossPct = d
	}
	if mode != "" {
		cfg.Engine.Mode = mode
	}
	return nil
}

// buildSink arma el destino del ledger: siempre el CSV, y el journal SQLite
// si hay DSN.
func buildSink(cfg *config.Config, executorName string) (ports.LedgerSink, func(), error) {
	csv := storage.NewCSVExporter(cfg.Export.CSVPath)
	if cfg.Export.JournalDSN == "" {
		return csv, func() {}, nil
	}

	journal, err := storage.NewJournal(cfg.Export.JournalDSN, executorName)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("ledger journal opened", "dsn", cfg.Export.JournalDSN, "run_id", journal.RunID())

	closeFn := func() {
		if err := journal.Close(); err != nil {
			slog.Warn("journal close failed", "err", err)
		}
	}
	return storage.Multi{csv, journal}, closeFn, nil
}

func setupLogger(cfg config.LogConfig) {
	slog.SetDefault(newLogger(cfg, os.Stdout))
}

// newLogger arma el handler según cfg. En debug también va el archivo:línea.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseLevel acepta lo mismo que slog ("debug", "WARN", "info+2"...).
// Un nivel desconocido cae a info.
func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
