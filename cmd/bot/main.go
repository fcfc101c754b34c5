// Adaptive Grid Trading Bot — exchange connectivity core for Binance USD-M
// Futures with a normalized order management layer.
//
// Architecture:
//
//	main.go                — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go       — orchestrator: wires gateway → OMS, runs reconcile + telemetry loops
//	exchange/binance.go    — REST gateway (resty + HMAC signing, weighted rate limiting)
//	exchange/stream.go     — combined market-data WebSocket with auto-reconnect
//	exchange/userstream.go — user-data WebSocket with listen-key refresh handling
//	exchange/ratelimit.go  — three token buckets (requests, weight, orders) per venue
//	exchange/errors.go     — venue error codes mapped onto a retryability taxonomy
//	oms/registry.go        — dual-index order store fed by user-stream events
//	oms/reconciler.go      — periodic registry-versus-venue drift repair
//	metrics/metrics.go     — Prometheus counters/gauges + /metrics endpoint
//
// All prices, quantities, and PnL figures are decimal end to end; floats
// never touch money.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/config"
	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/engine"
	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/metrics"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("BOT_CONFIG"); p != "" {
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

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Create and start engine
	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	// Start metrics server if enabled
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.Exchange.Testnet {
		logger.Warn("TESTNET MODE — orders go to the venue's test environment")
	}

	logger.Info("trading bot started",
		"symbols", cfg.Trading.Symbols,
		"intervals", cfg.Trading.Intervals,
		"reconcile_interval", cfg.Reconcile.Interval,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error("failed to stop metrics server", "error", err)
		}
	}

	eng.Stop()
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
