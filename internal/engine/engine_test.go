package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/config"
	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Exchange.ApiKey = "test-key"
	cfg.Exchange.ApiSecret = "test-secret"
	cfg.Exchange.Testnet = true
	cfg.Trading.Symbols = []string{"BTC/USDT"}
	cfg.Trading.Intervals = []string{"1m"}
	cfg.Reconcile.Interval = time.Minute
	return cfg
}

func gaugeValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("read metric: %v", err)
	}
	return pb.Gauge.GetValue()
}

// Reads package-level gauges, so no t.Parallel().
func TestPublishTelemetryMirrorsLimiterSnapshot(t *testing.T) {
	eng, err := New(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.cancel()

	eng.publishTelemetry()

	// A freshly built gateway has full token buckets; the venue's request
	// ceiling is 2400 per minute.
	got := gaugeValue(t, metrics.LimiterTokens.WithLabelValues("binance_futures", "requests"))
	if got != 2400 {
		t.Errorf("requests tokens gauge = %v, want 2400", got)
	}
	if eng.lastMarketMessages != 0 || eng.lastUserMessages != 0 {
		t.Error("no stream traffic expected before Start")
	}

	// A second snapshot must publish deltas, not re-add absolute counts.
	waits := metrics.LimiterWaits.WithLabelValues("binance_futures")
	var before dto.Metric
	if err := waits.Write(&before); err != nil {
		t.Fatalf("read metric: %v", err)
	}
	eng.publishTelemetry()
	var after dto.Metric
	if err := waits.Write(&after); err != nil {
		t.Fatalf("read metric: %v", err)
	}
	if before.Counter.GetValue() != after.Counter.GetValue() {
		t.Error("idle snapshot must not move the waits counter")
	}
}
