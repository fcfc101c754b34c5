package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/metrics"
	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

func timeZero() time.Time { return time.Time{} }

// newTestGateway points a gateway at an httptest server.
func newTestGateway(t *testing.T, handler http.Handler) (*BinanceGateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g := NewBinanceGateway(Credentials{APIKey: "test-key", APISecret: "test-secret"}, true, testLogger())
	g.http.SetBaseURL(srv.URL)
	return g, srv
}

func TestSubmitOrderLimitRequiresPrice(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))

	_, err := g.SubmitOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT",
		Side:   types.BUY,
		Type:   types.OrderTypeLimit,
		Qty:    decimal.RequireFromString("0.002"),
	})
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected InvalidOrder, got %v", err)
	}
	if hits.Load() != 0 {
		t.Error("validation failure must not reach the wire")
	}
}

func TestSubmitOrderStopRequiresStopPrice(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	price := decimal.RequireFromString("16000")
	_, err := g.SubmitOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT",
		Side:   types.SELL,
		Type:   types.OrderTypeStopLossLimit,
		Qty:    decimal.RequireFromString("0.002"),
		Price:  &price,
	})
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected InvalidOrder for missing stop price, got %v", err)
	}
}

func TestSubmitOrderSignsAndNormalizes(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/fapi/v1/order" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-MBX-APIKEY") != "test-key" {
			t.Error("missing api key header")
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" {
			t.Errorf("symbol = %q, want venue form BTCUSDT", q.Get("symbol"))
		}
		if q.Get("timeInForce") != "GTC" {
			t.Errorf("timeInForce = %q, want GTC default", q.Get("timeInForce"))
		}
		if q.Get("signature") == "" || q.Get("timestamp") == "" {
			t.Error("request must be signed with a timestamp")
		}
		if q.Get("newClientOrderId") == "" {
			t.Error("client order id must be generated")
		}
		w.Write([]byte(`{"orderId":123456,"clientOrderId":"` + q.Get("newClientOrderId") + `",
			"symbol":"BTCUSDT","status":"NEW","side":"BUY","type":"LIMIT",
			"origQty":"0.002","price":"16000.00","avgPrice":"0.00","executedQty":"0","cumQuote":"0"}`))
	}))

	price := decimal.RequireFromString("16000.00")
	order, err := g.SubmitOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT",
		Side:   types.BUY,
		Type:   types.OrderTypeLimit,
		Qty:    decimal.RequireFromString("0.002"),
		Price:  &price,
	})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if order.OrderID != "123456" {
		t.Errorf("OrderID = %q", order.OrderID)
	}
	if order.Symbol != "BTC/USDT" {
		t.Errorf("Symbol = %q, want canonical form", order.Symbol)
	}
	if order.Status != types.OrderStatusNew {
		t.Errorf("Status = %q, want NEW", order.Status)
	}
	if order.Price == nil || !order.Price.Equal(price) {
		t.Errorf("Price = %v", order.Price)
	}
	if !order.AvgFillPrice.IsZero() {
		t.Errorf("AvgFillPrice = %s, want 0 before fills", order.AvgFillPrice)
	}
}

func TestSubmitOrderInsufficientBalance(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient balance."}`))
	}))

	price := decimal.RequireFromString("16000")
	_, err := g.SubmitOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT",
		Side:   types.BUY,
		Type:   types.OrderTypeLimit,
		Qty:    decimal.RequireFromString("10"),
		Price:  &price,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
}

func TestGetOHLCLimitRules(t *testing.T) {
	t.Parallel()

	var gotLimit atomic.Value
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit.Store(r.URL.Query().Get("limit"))
		w.Write([]byte(`[[1672531200000,"16500","16512","16498","16510","42.5",1672531259999,"0",0,"0","0","0"]]`))
	}))

	if _, err := g.GetOHLC(context.Background(), "BTC/USDT", "1m", timeZero(), timeZero(), 2000); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("limit 2000 must be rejected, got %v", err)
	}

	candles, err := g.GetOHLC(context.Background(), "BTC/USDT", "1m", timeZero(), timeZero(), 0)
	if err != nil {
		t.Fatalf("GetOHLC: %v", err)
	}
	if gotLimit.Load() != "500" {
		t.Errorf("limit = %v, want default 500", gotLimit.Load())
	}
	if len(candles) != 1 {
		t.Fatalf("candles = %d", len(candles))
	}
	c := candles[0]
	if c.Symbol != "BTC/USDT" || c.Interval != "1m" {
		t.Errorf("candle identity = %s %s", c.Symbol, c.Interval)
	}
	if !c.High.GreaterThanOrEqual(c.Low) {
		t.Error("high must be >= low")
	}
}

func TestGetOrderBookRejectsBadDepth(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	if _, err := g.GetOrderBook(context.Background(), "BTC/USDT", 7); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("depth 7 must be rejected, got %v", err)
	}
}

func TestGetOrderBookSorted(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lastUpdateId":1,"E":1672531200000,"T":1672531199999,
			"bids":[["16500.00","5.5"],["16499.90","2.0"]],
			"asks":[["16500.10","3.2"],["16500.20","1.1"]]}`))
	}))

	book, err := g.GetOrderBook(context.Background(), "BTC/USDT", 5)
	if err != nil {
		t.Fatalf("GetOrderBook: %v", err)
	}
	if len(book.Bids) != 2 || len(book.Asks) != 2 {
		t.Fatalf("levels = %d/%d", len(book.Bids), len(book.Asks))
	}
	if !book.Bids[0].Price.GreaterThan(book.Bids[1].Price) {
		t.Error("bids must be descending")
	}
	if !book.Asks[0].Price.LessThan(book.Asks[1].Price) {
		t.Error("asks must be ascending")
	}
}

const exchangeInfoBody = `{"symbols":[
	{"symbol":"BTCUSDT","status":"TRADING","contractType":"PERPETUAL",
	 "baseAsset":"BTC","quoteAsset":"USDT","filters":[
		{"filterType":"LOT_SIZE","minQty":"0.001","maxQty":"1000","stepSize":"0.001"},
		{"filterType":"PRICE_FILTER","minPrice":"556.80","maxPrice":"4529764","tickSize":"0.10"},
		{"filterType":"MIN_NOTIONAL","notional":"100"}]}]}`

func TestGetSymbolInfo(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exchangeInfoBody))
	}))

	info, err := g.GetSymbolInfo(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("GetSymbolInfo: %v", err)
	}
	if !info.QtyStep.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("QtyStep = %s", info.QtyStep)
	}
	if !info.PriceStep.Equal(decimal.RequireFromString("0.10")) {
		t.Errorf("PriceStep = %s", info.PriceStep)
	}
	if !info.MinNotional.Equal(decimal.RequireFromString("100")) {
		t.Errorf("MinNotional = %s", info.MinNotional)
	}
	if !info.IsTrading || !info.IsFutures {
		t.Error("BTCUSDT should be a trading futures symbol")
	}

	if _, err := g.GetSymbolInfo(context.Background(), "DOGE/USDT"); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("unlisted symbol must be InvalidOrder, got %v", err)
	}
}

func TestGetPositionsFiltersAndInfersSide(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","positionAmt":"-0.010","entryPrice":"16500","markPrice":"16510",
			 "unRealizedProfit":"-0.10","liquidationPrice":"21000","leverage":"10","positionSide":"BOTH"},
			{"symbol":"ETHUSDT","positionAmt":"0.000","entryPrice":"0","markPrice":"1200",
			 "unRealizedProfit":"0","liquidationPrice":"0","leverage":"20","positionSide":"BOTH"}]`))
	}))

	positions, err := g.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1 (flat filtered)", len(positions))
	}
	p := positions[0]
	if p.Side != types.PositionSideShort {
		t.Errorf("Side = %q, want SHORT from negative amount", p.Side)
	}
	if !p.Qty.Equal(decimal.RequireFromString("0.010")) {
		t.Errorf("Qty = %s, want absolute value", p.Qty)
	}
}

func TestGetBalancesExcludesZero(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"assets":[
			{"asset":"USDT","walletBalance":"1000.50","availableBalance":"900.50"},
			{"asset":"BNB","walletBalance":"0.00000000","availableBalance":"0.00000000"}]}`))
	}))

	balances, err := g.GetBalances(context.Background())
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	if len(balances) != 1 {
		t.Fatalf("balances = %d, want zero-total excluded", len(balances))
	}
	b := balances[0]
	if !b.Locked.Equal(decimal.RequireFromString("100")) {
		t.Errorf("Locked = %s, want wallet - available", b.Locked)
	}
	if !b.Total.Equal(b.Free.Add(b.Locked)) {
		t.Error("Total must equal Free + Locked")
	}
}

func TestCancelOrderRequiresOneIdentifier(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	if _, err := g.CancelOrder(context.Background(), "BTC/USDT", "", ""); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("missing ids must be InvalidOrder, got %v", err)
	}
	if _, err := g.CancelOrder(context.Background(), "BTC/USDT", "1", "c1"); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("both ids must be InvalidOrder, got %v", err)
	}
}

func TestGetOrderStatusAvgPriceFallback(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"orderId":777,"clientOrderId":"c777","symbol":"ETHUSDT","status":"FILLED",
			"side":"SELL","type":"LIMIT","origQty":"2","price":"1200.00",
			"avgPrice":"0.00","executedQty":"2","cumQuote":"2401.00"}`))
	}))

	order, err := g.GetOrderStatus(context.Background(), "ETH/USDT", "777", "")
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if !order.AvgFillPrice.Equal(decimal.RequireFromString("1200.5")) {
		t.Errorf("AvgFillPrice = %s, want cumQuote/executedQty = 1200.5", order.AvgFillPrice)
	}
}

func TestGetPositionMode(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dualSidePosition":true}`))
	}))

	mode, err := g.GetPositionMode(context.Background())
	if err != nil {
		t.Fatalf("GetPositionMode: %v", err)
	}
	if mode != types.PositionModeHedge {
		t.Errorf("mode = %q, want HEDGE", mode)
	}
}

func TestModifyOrderCarriesStopPrice(t *testing.T) {
	t.Parallel()

	resting := `{"orderId":500,"clientOrderId":"c500","symbol":"BTCUSDT","status":"NEW",
		"side":"SELL","type":"STOP","origQty":"0.002","price":"15000.00","stopPrice":"15500.00",
		"avgPrice":"0.00","executedQty":"0","cumQuote":"0"}`
	canceled := strings.Replace(resting, `"NEW"`, `"CANCELED"`, 1)

	var stopParam atomic.Value
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(resting))
		case http.MethodDelete:
			w.Write([]byte(canceled))
		case http.MethodPost:
			stopParam.Store(r.URL.Query().Get("stopPrice"))
			w.Write([]byte(`{"orderId":501,"clientOrderId":"c501","symbol":"BTCUSDT","status":"NEW",
				"side":"SELL","type":"STOP","origQty":"0.002","price":"14900.00","stopPrice":"15500.00",
				"avgPrice":"0.00","executedQty":"0","cumQuote":"0"}`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	price := decimal.RequireFromString("14900")
	order, err := g.ModifyOrder(context.Background(), "BTC/USDT", "500", nil, &price)
	if err != nil {
		t.Fatalf("ModifyOrder: %v", err)
	}
	if got, _ := stopParam.Load().(string); got != "15500" {
		t.Errorf("replacement stopPrice param = %q, want 15500", got)
	}
	if order.StopPrice == nil || !order.StopPrice.Equal(decimal.RequireFromString("15500")) {
		t.Errorf("StopPrice = %v, want 15500", order.StopPrice)
	}
	if order.Type != types.OrderTypeStopLossLimit {
		t.Errorf("Type = %q, want STOP_LOSS_LIMIT", order.Type)
	}
}

// metricValue reads the current value of a counter or gauge.
func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("read metric: %v", err)
	}
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

// Reads package-level counters, so no t.Parallel().
func TestRESTCallsRecordMetrics(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","markPrice":"16500.00","indexPrice":"16501.00",
			"lastFundingRate":"0.0001","nextFundingTime":1672560000000,"time":1672531200000}`))
	}))

	requests := metrics.RESTRequests.WithLabelValues("/fapi/v1/premiumIndex")
	before := metricValue(t, requests)

	if _, err := g.GetMarkPrice(context.Background(), "BTC/USDT"); err != nil {
		t.Fatalf("GetMarkPrice: %v", err)
	}
	if got := metricValue(t, requests); got != before+1 {
		t.Errorf("request counter = %v, want %v", got, before+1)
	}
}

// Reads package-level counters, so no t.Parallel().
func TestRESTErrorsRecordTaxonomyKind(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":-1003,"msg":"Too many requests."}`))
	}))

	rateLimited := metrics.RESTErrors.WithLabelValues("/fapi/v1/leverage", "rate_limit")
	before := metricValue(t, rateLimited)

	if err := g.SetLeverage(context.Background(), "BTC/USDT", 10); !errors.Is(err, ErrRateLimit) {
		t.Fatalf("expected RateLimit, got %v", err)
	}
	if got := metricValue(t, rateLimited); got != before+1 {
		t.Errorf("rate_limit error counter = %v, want %v", got, before+1)
	}
}

// Reads package-level counters, so no t.Parallel().
func TestSubmitOrderRecordsMetric(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"orderId":900,"clientOrderId":"c900","symbol":"ETHUSDT","status":"NEW",
			"side":"SELL","type":"MARKET","origQty":"0.1","price":"0",
			"avgPrice":"0.00","executedQty":"0","cumQuote":"0"}`))
	}))

	submitted := metrics.OrdersSubmitted.WithLabelValues("ETH/USDT", "SELL")
	before := metricValue(t, submitted)

	_, err := g.SubmitOrder(context.Background(), types.OrderRequest{
		Symbol: "ETH/USDT",
		Side:   types.SELL,
		Type:   types.OrderTypeMarket,
		Qty:    decimal.RequireFromString("0.1"),
	})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if got := metricValue(t, submitted); got != before+1 {
		t.Errorf("submitted counter = %v, want %v", got, before+1)
	}
}
