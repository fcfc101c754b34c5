// Package metrics exposes Prometheus instrumentation for the trading bot:
// stream health, REST call outcomes, rate-limiter pressure, and order flow.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Stream metrics
	StreamMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_stream_messages_total",
			Help: "Total number of WebSocket frames received",
		},
		[]string{"feed"},
	)

	StreamReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_stream_reconnects_total",
			Help: "Total number of WebSocket reconnections after failure",
		},
		[]string{"feed"},
	)

	StreamConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_stream_connected",
			Help: "WebSocket connection status (1=connected, 0=disconnected)",
		},
		[]string{"feed"},
	)

	// REST metrics
	RESTRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_rest_requests_total",
			Help: "Total number of REST calls issued",
		},
		[]string{"endpoint"},
	)

	RESTErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_rest_errors_total",
			Help: "Total number of REST calls that returned an error",
		},
		[]string{"endpoint", "kind"},
	)

	RESTDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_rest_duration_seconds",
			Help:    "REST round-trip latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	// Rate-limiter metrics
	LimiterTokens = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_limiter_tokens",
			Help: "Tokens currently available per limiter bucket",
		},
		[]string{"venue", "bucket"},
	)

	LimiterWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_limiter_waits_total",
			Help: "Total number of acquisitions that had to wait for refill",
		},
		[]string{"venue"},
	)

	// Order flow metrics
	OrdersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_submitted_total",
			Help: "Total number of orders sent to the venue",
		},
		[]string{"symbol", "side"},
	)

	OrderUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_order_updates_total",
			Help: "Total number of order status updates applied to the registry",
		},
		[]string{"status"},
	)

	OpenOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_open_orders",
			Help: "Orders currently resting on the book",
		},
	)

	// Reconciliation metrics
	ReconcileRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_reconcile_runs_total",
			Help: "Total number of reconciliation passes",
		},
	)

	ReconcileUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_reconcile_updates_total",
			Help: "Total number of registry corrections applied by reconciliation",
		},
	)
)

// RecordStreamStatus records whether a feed is currently connected.
func RecordStreamStatus(feed string, connected bool) {
	status := 0.0
	if connected {
		status = 1.0
	}
	StreamConnected.WithLabelValues(feed).Set(status)
}

// RecordRESTCall records the outcome of one REST round trip.
func RecordRESTCall(endpoint string, seconds float64, errKind string) {
	RESTRequests.WithLabelValues(endpoint).Inc()
	RESTDuration.WithLabelValues(endpoint).Observe(seconds)
	if errKind != "" {
		RESTErrors.WithLabelValues(endpoint, errKind).Inc()
	}
}

// RecordLimiter mirrors a limiter snapshot into gauges.
func RecordLimiter(venue string, requests, weight, orders float64) {
	LimiterTokens.WithLabelValues(venue, "requests").Set(requests)
	LimiterTokens.WithLabelValues(venue, "weight").Set(weight)
	LimiterTokens.WithLabelValues(venue, "orders").Set(orders)
}

// Server serves /metrics and /health.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer builds a metrics server bound to addr.
func NewServer(addr string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger.With("component", "metrics"),
	}
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("metrics server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop closes the server.
func (s *Server) Stop() error {
	return s.server.Close()
}
