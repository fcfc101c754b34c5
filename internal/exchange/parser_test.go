package exchange

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

const closedKlineFrame = `{
	"e":"kline","E":1672531260005,"s":"BTCUSDT",
	"k":{"t":1672531200000,"T":1672531259999,"s":"BTCUSDT","i":"1m",
	"o":"16500.10","c":"16510.50","h":"16512.00","l":"16498.00","v":"42.5","x":true}}`

const openKlineFrame = `{
	"e":"kline","E":1672531230005,"s":"BTCUSDT",
	"k":{"t":1672531200000,"T":1672531259999,"s":"BTCUSDT","i":"1m",
	"o":"16500.10","c":"16505.00","h":"16506.00","l":"16498.00","v":"20.1","x":false}}`

func TestParseKlineClosed(t *testing.T) {
	t.Parallel()

	c := ParseKline([]byte(closedKlineFrame), BinanceFutures, testLogger())
	if c == nil {
		t.Fatal("closed kline should produce a candle")
	}
	if c.Symbol != "BTC/USDT" {
		t.Errorf("Symbol = %q, want BTC/USDT", c.Symbol)
	}
	if c.Interval != "1m" {
		t.Errorf("Interval = %q, want 1m", c.Interval)
	}
	if !c.Open.Equal(decimal.RequireFromString("16500.10")) {
		t.Errorf("Open = %s", c.Open)
	}
	if !c.Close.Equal(decimal.RequireFromString("16510.50")) {
		t.Errorf("Close = %s", c.Close)
	}
	if c.OpenTime.UnixMilli() != 1672531200000 {
		t.Errorf("OpenTime = %v", c.OpenTime)
	}
	if !c.CloseTime.After(c.OpenTime) {
		t.Error("CloseTime must be after OpenTime")
	}
}

func TestParseKlineOpenSuppressed(t *testing.T) {
	t.Parallel()

	if c := ParseKline([]byte(openKlineFrame), BinanceFutures, testLogger()); c != nil {
		t.Errorf("open kline must be suppressed, got %+v", c)
	}
}

func TestParseKlineMalformed(t *testing.T) {
	t.Parallel()

	if c := ParseKline([]byte(`{"e":"kline","k":`), BinanceFutures, testLogger()); c != nil {
		t.Error("malformed frame must return nil")
	}
}

func TestParseTrade(t *testing.T) {
	t.Parallel()

	frame := `{"e":"trade","E":1672531200100,"s":"ETHUSDT","t":12345,"p":"1200.55","q":"0.75","T":1672531200095}`
	tr := ParseTrade([]byte(frame), BinanceFutures, testLogger())
	if tr == nil {
		t.Fatal("expected trade")
	}
	if tr.Symbol != "ETH/USDT" {
		t.Errorf("Symbol = %q", tr.Symbol)
	}
	if !tr.Price.Equal(decimal.RequireFromString("1200.55")) {
		t.Errorf("Price = %s", tr.Price)
	}
	if !tr.Qty.Equal(decimal.RequireFromString("0.75")) {
		t.Errorf("Qty = %s", tr.Qty)
	}
	if tr.Time.UnixMilli() != 1672531200095 {
		t.Errorf("Time = %v", tr.Time)
	}
}

func TestParseBookTickerLastIsBestBid(t *testing.T) {
	t.Parallel()

	frame := `{"e":"bookTicker","u":400900217,"E":1672531200100,"s":"BTCUSDT","b":"16500.00","B":"5.5","a":"16500.10","A":"3.2"}`
	tk := ParseBookTicker([]byte(frame), BinanceFutures, testLogger())
	if tk == nil {
		t.Fatal("expected ticker")
	}
	if !tk.Last.Equal(tk.Bid) {
		t.Errorf("Last should equal best bid: last=%s bid=%s", tk.Last, tk.Bid)
	}
	if !tk.Ask.Equal(decimal.RequireFromString("16500.10")) {
		t.Errorf("Ask = %s", tk.Ask)
	}
	if tk.Bid.GreaterThanOrEqual(tk.Ask) {
		t.Error("bid must be below ask")
	}
}

const orderTradeUpdateFrame = `{
	"e":"ORDER_TRADE_UPDATE","E":1672531200200,"T":1672531200195,
	"o":{"s":"BTCUSDT","c":"bot-abc123","S":"BUY","o":"LIMIT","x":"TRADE","X":"PARTIALLY_FILLED",
	"i":8886774,"q":"0.010","p":"16000.00","ap":"0","L":"16000.00","n":"0.0128","N":"USDT","z":"0.004"}}`

func TestParseUserDataOrderUpdate(t *testing.T) {
	t.Parallel()

	evt := ParseUserData([]byte(orderTradeUpdateFrame), BinanceFutures, testLogger())
	if evt == nil || evt.Order == nil {
		t.Fatal("expected order event")
	}
	o := evt.Order
	if o.OrderID != "8886774" {
		t.Errorf("OrderID = %q", o.OrderID)
	}
	if o.ClientOrderID != "bot-abc123" {
		t.Errorf("ClientOrderID = %q", o.ClientOrderID)
	}
	if o.Symbol != "BTC/USDT" {
		t.Errorf("Symbol = %q", o.Symbol)
	}
	if o.Status != types.OrderStatusPartiallyFilled {
		t.Errorf("Status = %q", o.Status)
	}
	if o.Price == nil || !o.Price.Equal(decimal.RequireFromString("16000.00")) {
		t.Errorf("Price = %v", o.Price)
	}
	// avg price "0" falls back to the last filled price
	if !o.AvgFillPrice.Equal(decimal.RequireFromString("16000.00")) {
		t.Errorf("AvgFillPrice = %s", o.AvgFillPrice)
	}
	if !o.Commission.Equal(decimal.RequireFromString("0.0128")) || o.CommissionAsset != "USDT" {
		t.Errorf("commission = %s %s", o.Commission, o.CommissionAsset)
	}
}

func TestParseUserDataMarketOrderHasNoPrice(t *testing.T) {
	t.Parallel()

	frame := `{"e":"ORDER_TRADE_UPDATE","E":1,"T":1,
		"o":{"s":"BTCUSDT","c":"x","S":"SELL","o":"MARKET","X":"FILLED","i":1,"q":"0.01","p":"0","ap":"16499.5"}}`
	evt := ParseUserData([]byte(frame), BinanceFutures, testLogger())
	if evt == nil || evt.Order == nil {
		t.Fatal("expected order event")
	}
	if evt.Order.Price != nil {
		t.Errorf("market order must have nil price, got %s", evt.Order.Price)
	}
	if !evt.Order.AvgFillPrice.Equal(decimal.RequireFromString("16499.5")) {
		t.Errorf("AvgFillPrice = %s", evt.Order.AvgFillPrice)
	}
}

const accountUpdateFrame = `{
	"e":"ACCOUNT_UPDATE","E":1672531200300,"T":1672531200295,
	"a":{"m":"ORDER",
	"B":[{"a":"USDT","wb":"1000.50","cw":"990.25"}],
	"P":[{"s":"BTCUSDT","pa":"-0.010","ep":"16500.00","up":"-1.25","ps":"BOTH"}]}}`

func TestParseUserDataAccountUpdate(t *testing.T) {
	t.Parallel()

	evt := ParseUserData([]byte(accountUpdateFrame), BinanceFutures, testLogger())
	if evt == nil || evt.Account == nil {
		t.Fatal("expected account event")
	}
	a := evt.Account
	if a.Reason != "ORDER" {
		t.Errorf("Reason = %q", a.Reason)
	}
	if len(a.Balances) != 1 || a.Balances[0].Asset != "USDT" {
		t.Fatalf("Balances = %+v", a.Balances)
	}
	if !a.Balances[0].WalletBalance.Equal(decimal.RequireFromString("1000.50")) {
		t.Errorf("WalletBalance = %s", a.Balances[0].WalletBalance)
	}
	if len(a.Positions) != 1 {
		t.Fatalf("Positions = %+v", a.Positions)
	}
	p := a.Positions[0]
	if p.Symbol != "BTC/USDT" {
		t.Errorf("Symbol = %q", p.Symbol)
	}
	if !p.PositionAmount.IsNegative() {
		t.Error("position amount should keep its sign")
	}
}

func TestParseUserDataUnknownEventSurfacedRaw(t *testing.T) {
	t.Parallel()

	frame := `{"e":"MARGIN_CALL","E":1672531200400,"p":[]}`
	evt := ParseUserData([]byte(frame), BinanceFutures, testLogger())
	if evt == nil || evt.Raw == nil {
		t.Fatal("unknown events must surface as raw")
	}
	if evt.Raw.EventType != "MARGIN_CALL" {
		t.Errorf("EventType = %q", evt.Raw.EventType)
	}
}

func TestParseUserDataMalformed(t *testing.T) {
	t.Parallel()

	if evt := ParseUserData([]byte("not json"), BinanceFutures, testLogger()); evt != nil {
		t.Error("malformed user frame must return nil")
	}
}
