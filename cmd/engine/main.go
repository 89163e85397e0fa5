// Command engine is the live/paper/backtest entrypoint: it loads
// configuration, wires every collaborator the Trading Engine owns, and
// runs until SIGINT/SIGTERM, printing a performance report on exit.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iljae-kwon/korbit-engine/config"
	"github.com/iljae-kwon/korbit-engine/internal/adapters/notify"
	"github.com/iljae-kwon/korbit-engine/internal/application/engine"
	"github.com/iljae-kwon/korbit-engine/internal/application/scanner"
	"github.com/iljae-kwon/korbit-engine/internal/compliance"
	"github.com/iljae-kwon/korbit-engine/internal/execution"
	"github.com/iljae-kwon/korbit-engine/internal/korbitapi"
	"github.com/iljae-kwon/korbit-engine/internal/metrics"
	"github.com/iljae-kwon/korbit-engine/internal/ports"
	"github.com/iljae-kwon/korbit-engine/internal/ratelimit"
	"github.com/iljae-kwon/korbit-engine/internal/risk"
	"github.com/iljae-kwon/korbit-engine/internal/storage"
	"github.com/iljae-kwon/korbit-engine/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/engine.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on, empty to disable")
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

	slog.Info("korbit-engine starting",
		"config", *configPath,
		"mode", cfg.Mode,
		"scan_interval", cfg.ScanInterval(),
		"dry_run", cfg.DryRun,
	)

	metrics.Init()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	limiter := ratelimit.New()

	store, err := storage.Open(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open trade store", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.ApplySchema(ctx); err != nil {
		slog.Error("failed to apply trade store schema", "err", err)
		os.Exit(1)
	}

	riskMgr := risk.New(risk.Config{
		MaxPositions:    cfg.MaxPositions,
		MaxDailyTrades:  cfg.MaxDailyTrades,
		MaxDrawdownPct:  cfg.MaxDrawdown,
		MaxDailyLossKRW: cfg.MaxDailyLossKRW,
		MaxDailyLossPct: cfg.MaxDailyLossPct,
	}, cfg.InitialCapital)

	restored, err := store.GetOpenPositions(ctx)
	if err != nil {
		slog.Warn("failed to restore open positions", "err", err)
	}
	for _, pos := range restored {
		riskMgr.Enter(pos)
	}
	slog.Info("restored open positions", "count", len(restored))

	// The Compliance Adapter needs an exchange client to validate
	// against, and the exchange client reports Remaining-Req quotas back
	// to the adapter — a cycle resolved with two clients sharing one
	// limiter: the adapter's own client has no degrade observer, and the
	// client every other component uses reports to the adapter. The
	// adapter's own chance/tick-size calls therefore do not feed the
	// pre-emptive degrade.
	creds := korbitapi.Credentials{AccessKey: cfg.API.AccessKey, SecretKey: cfg.API.SecretKey}
	gateClient := korbitapi.NewClient(cfg.API.RESTBase, creds, limiter, nil)
	gate := compliance.New(gateClient, riskMgr, cfg.Mode == config.ModeLive)
	client := korbitapi.NewClient(cfg.API.RESTBase, creds, limiter, gate)

	var stream ports.PrivateOrderStream
	if cfg.Mode == config.ModeLive {
		stream = korbitapi.NewPrivateStream(cfg.API.WSBase, creds)
	}

	updateWriter, err := execution.NewUpdateWriter(cfg.Storage.UpdatesPath)
	if err != nil {
		slog.Error("failed to open execution update writer", "err", err, "path", cfg.Storage.UpdatesPath)
		os.Exit(1)
	}
	defer updateWriter.Close()

	orders := execution.NewManager(client, stream, updateWriter)
	if cfg.Mode == config.ModeLive {
		go func() {
			if err := orders.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("order manager event loop exited", "err", err)
			}
		}()
	}

	strategies := buildStrategies(cfg.EnabledStrategies)
	strat := strategy.New(strategies)

	scan := scanner.New(scanner.DefaultConfig(), client)
	notifier := notify.NewConsole()

	e := engine.New(engine.Settings{
		Mode:                engine.Mode(cfg.Mode),
		ScanInterval:        cfg.ScanInterval(),
		MinVolumeKRW:        cfg.MinVolumeKRW,
		MaxOrderKRW:         cfg.MaxOrderKRW,
		MinOrderKRW:         cfg.MinOrderKRW,
		OrderFeeReservePct:  cfg.OrderFeeReservePct,
		MaxNewOrdersPerScan: cfg.MaxNewOrdersPerScan,
		DryRun:              cfg.DryRun || cfg.Mode != config.ModeLive,
	}, client, scan, strat, riskMgr, orders, gate, notifier)

	e.Start(ctx)
	go persistPositionsPeriodically(ctx, store, riskMgr)

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping engine")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	e.Stop(stopCtx)

	slog.Info("korbit-engine stopped cleanly")
}

// buildStrategies resolves the configured strategy names to concrete
// ports.Strategy collaborators. An unknown name is logged and skipped
// rather than failing startup outright.
func buildStrategies(names []string) []ports.Strategy {
	out := make([]ports.Strategy, 0, len(names))
	for _, name := range names {
		switch name {
		case "momentum":
			out = append(out, strategy.NewMomentumStrategy())
		case "scalping":
			out = append(out, strategy.NewScalpingStrategy())
		default:
			slog.Warn("unknown strategy name in config, skipping", "name", name)
		}
	}
	return out
}

// persistPositionsPeriodically upserts the Risk Manager's currently open
// positions to the trade store every 30s, so a crash recovers the
// position snapshot even though trade-history write-back still happens
// only via the Risk Manager's in-memory history until it exposes a
// closed-trade event hook.
func persistPositionsPeriodically(ctx context.Context, store ports.TradeStore, riskMgr *risk.Manager) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pos := range riskMgr.OpenPositions() {
				if err := store.SavePosition(ctx, pos); err != nil {
					slog.Warn("failed to persist position", "market", pos.Market, "err", err)
				}
			}
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server exited", "err", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
