// Package engine is the central orchestrator of the trading bot.
//
// It wires together all subsystems:
//
//  1. The exchange gateway provides REST access and the market/user streams.
//  2. The OMS registry mirrors every order the bot owns; user-stream order
//     events feed it in real time.
//  3. The reconciler periodically sweeps the registry against the venue's
//     open-order view and repairs drift in either direction.
//  4. Market-data subscriptions (klines, trades, book tickers) for the
//     configured symbols keep downstream consumers fed.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/config"
	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/exchange"
	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/metrics"
	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/oms"
	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

const telemetryInterval = 15 * time.Second

// Engine owns the lifecycle of the gateway, the OMS, and every background
// goroutine.
type Engine struct {
	cfg        config.Config
	gateway    *exchange.BinanceGateway
	registry   *oms.Registry
	reconciler *oms.Reconciler
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// last exported counter values, for delta publishing
	lastWaits            uint64
	lastMarketReconnects uint64
	lastUserReconnects   uint64
	lastMarketMessages   uint64
	lastUserMessages     uint64
}

// New creates and wires all engine components. Credentials flow from config
// into the gateway constructor here; nothing below this layer reads the
// environment.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	creds := exchange.Credentials{
		APIKey:    cfg.Exchange.ApiKey,
		APISecret: cfg.Exchange.ApiSecret,
	}
	gateway := exchange.NewBinanceGateway(creds, cfg.Exchange.Testnet, logger)
	registry := oms.NewRegistry(logger)
	reconciler := oms.NewReconciler(gateway, registry, logger)

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:        cfg,
		gateway:    gateway,
		registry:   registry,
		reconciler: reconciler,
		logger:     logger.With("component", "engine"),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Registry exposes the order registry to strategy layers.
func (e *Engine) Registry() *oms.Registry { return e.registry }

// Gateway exposes the venue gateway to strategy layers.
func (e *Engine) Gateway() *exchange.BinanceGateway { return e.gateway }

// Start connects the gateway, routes user-stream order events into the
// registry, subscribes market data for the configured symbols, and launches
// the reconcile and telemetry loops.
func (e *Engine) Start() error {
	e.registry.OnUpdate(func(o types.Order) {
		metrics.OrderUpdates.WithLabelValues(string(o.Status)).Inc()
		metrics.OpenOrders.Set(float64(len(e.registry.OpenOrders(""))))
	})

	e.gateway.SubscribeUserData(e.handleUserData)

	if err := e.gateway.Connect(e.ctx); err != nil {
		return err
	}

	for _, symbol := range e.cfg.Trading.Symbols {
		for _, interval := range e.cfg.Trading.Intervals {
			if err := e.gateway.SubscribeKlines(e.ctx, symbol, interval, e.handleCandle); err != nil {
				return err
			}
		}
		if err := e.gateway.SubscribeBookTicker(e.ctx, symbol, e.handleTicker); err != nil {
			return err
		}
	}

	// Converge the registry on the venue before trading starts.
	if report, err := e.reconciler.SyncAll(e.ctx); err != nil {
		e.logger.Warn("initial sync failed", "error", err)
	} else {
		e.logger.Info("initial sync complete",
			"exchange_orders", report.TotalExchangeOrders,
			"updates_applied", report.UpdatesApplied,
		)
	}

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.reconcileLoop()
	}()
	go func() {
		defer e.wg.Done()
		e.telemetryLoop()
	}()

	e.logger.Info("engine started",
		"symbols", e.cfg.Trading.Symbols,
		"testnet", e.cfg.Exchange.Testnet,
	)
	return nil
}

// Stop shuts everything down: cancels the engine context, disconnects the
// gateway, and waits for the loops to drain.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()
	if err := e.gateway.Disconnect(); err != nil {
		e.logger.Error("gateway disconnect failed", "error", err)
	}
	e.wg.Wait()

	e.logger.Info("shutdown complete")
}

// handleUserData routes parsed user-stream events. Order events feed the
// registry; account updates and raw frames are logged for the record.
func (e *Engine) handleUserData(evt exchange.UserDataEvent) {
	switch {
	case evt.Order != nil:
		if err := e.registry.Update(*evt.Order); err != nil {
			e.logger.Warn("order update rejected",
				"order_id", evt.Order.OrderID,
				"status", evt.Order.Status,
				"error", err,
			)
		}
	case evt.Account != nil:
		e.logger.Debug("account update",
			"reason", evt.Account.Reason,
			"balances", len(evt.Account.Balances),
			"positions", len(evt.Account.Positions),
		)
	case evt.Raw != nil:
		e.logger.Debug("raw user event", "event_type", evt.Raw.EventType)
	}
}

func (e *Engine) handleCandle(c types.Candle) {
	e.logger.Debug("candle closed",
		"symbol", c.Symbol,
		"interval", c.Interval,
		"close", c.Close,
	)
}

func (e *Engine) handleTicker(t types.Ticker) {
	e.logger.Debug("book ticker", "symbol", t.Symbol, "bid", t.Bid, "ask", t.Ask)
}

// reconcileLoop sweeps the registry against the venue at the configured
// interval.
func (e *Engine) reconcileLoop() {
	ticker := time.NewTicker(e.cfg.Reconcile.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			report, err := e.reconciler.SyncAll(e.ctx)
			if err != nil {
				e.logger.Warn("reconcile failed", "error", err)
				continue
			}
			metrics.ReconcileRuns.Inc()
			metrics.ReconcileUpdates.Add(float64(report.UpdatesApplied))
			if report.UpdatesApplied > 0 {
				e.logger.Info("reconcile applied corrections",
					"missing_locally", report.MissingLocally,
					"missing_on_exchange", report.MissingOnExchange,
					"updates_applied", report.UpdatesApplied,
				)
			}
			if e.cfg.Reconcile.CancelStray {
				if n, err := e.reconciler.CancelStray(e.ctx, "", true); err != nil {
					e.logger.Warn("cancel stray failed", "error", err)
				} else if n > 0 {
					e.logger.Warn("canceled stray orders", "count", n)
				}
			}
		}
	}
}

// telemetryLoop mirrors limiter and stream counters into Prometheus.
func (e *Engine) telemetryLoop() {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.publishTelemetry()
		}
	}
}

// publishTelemetry pushes one snapshot of gateway counters into Prometheus,
// publishing monotonic counters as deltas since the previous snapshot.
func (e *Engine) publishTelemetry() {
	stats := e.gateway.RateLimiterStats()
	metrics.RecordLimiter("binance_futures",
		stats.RequestsAvailable,
		stats.WeightAvailable,
		stats.OrdersAvailable,
	)
	metrics.LimiterWaits.WithLabelValues("binance_futures").Add(float64(stats.Waits - e.lastWaits))
	e.lastWaits = stats.Waits

	marketReconnects := e.gateway.MarketReconnections()
	metrics.StreamReconnects.WithLabelValues("market").Add(float64(marketReconnects - e.lastMarketReconnects))
	e.lastMarketReconnects = marketReconnects

	userReconnects := e.gateway.UserReconnections()
	metrics.StreamReconnects.WithLabelValues("user").Add(float64(userReconnects - e.lastUserReconnects))
	e.lastUserReconnects = userReconnects

	marketMessages := e.gateway.MarketMessages()
	metrics.StreamMessages.WithLabelValues("market").Add(float64(marketMessages - e.lastMarketMessages))
	e.lastMarketMessages = marketMessages

	userMessages := e.gateway.UserMessages()
	metrics.StreamMessages.WithLabelValues("user").Add(float64(userMessages - e.lastUserMessages))
	e.lastUserMessages = userMessages
}
