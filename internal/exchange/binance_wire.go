// binance_wire.go mirrors the venue's fapi JSON payloads and converts them
// into the normalized models in pkg/types. Numeric fields arrive as strings
// and are decoded into decimals; a missing or "0" value uniformly decodes
// to decimal zero.
package exchange

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

// wireError is the venue's error body: {"code":-1121,"msg":"Invalid symbol."}
type wireError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// dec parses a venue decimal string, treating empty as zero. Malformed
// values also decode to zero rather than aborting a whole payload.
func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ————————————————————————————————————————————————————————————————————————
// Exchange info
// ————————————————————————————————————————————————————————————————————————

type wireExchangeInfo struct {
	Symbols []wireSymbol `json:"symbols"`
}

type wireSymbol struct {
	Symbol       string       `json:"symbol"`
	Status       string       `json:"status"`
	ContractType string       `json:"contractType"`
	BaseAsset    string       `json:"baseAsset"`
	QuoteAsset   string       `json:"quoteAsset"`
	Filters      []wireFilter `json:"filters"`
}

type wireFilter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty"`
	MaxQty     string `json:"maxQty"`
	StepSize   string `json:"stepSize"`
	MinPrice   string `json:"minPrice"`
	MaxPrice   string `json:"maxPrice"`
	TickSize   string `json:"tickSize"`
	Notional   string `json:"notional"`
}

func (ws wireSymbol) toSymbolInfo(venue VenueProfile) types.SymbolInfo {
	info := types.SymbolInfo{
		Symbol:    Normalize(ws.Symbol, venue),
		Base:      ws.BaseAsset,
		Quote:     ws.QuoteAsset,
		IsFutures: true,
		IsTrading: ws.Status == "TRADING",
	}
	for _, f := range ws.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			info.MinQty = dec(f.MinQty)
			info.MaxQty = dec(f.MaxQty)
			info.QtyStep = dec(f.StepSize)
		case "PRICE_FILTER":
			info.MinPrice = dec(f.MinPrice)
			info.MaxPrice = dec(f.MaxPrice)
			info.PriceStep = dec(f.TickSize)
		case "MIN_NOTIONAL":
			info.MinNotional = dec(f.Notional)
		}
	}
	return info
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// Klines arrive as positional arrays:
// [openTime, open, high, low, close, volume, closeTime, ...]
type wireKlines [][]any

func (wk wireKlines) toCandles(symbol, interval string) ([]types.Candle, error) {
	candles := make([]types.Candle, 0, len(wk))
	for _, k := range wk {
		if len(k) < 7 {
			return nil, fmt.Errorf("kline row has %d fields, want >= 7", len(k))
		}
		openTime, ok1 := k[0].(float64)
		closeTime, ok2 := k[6].(float64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("kline row has non-numeric timestamps")
		}
		candles = append(candles, types.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  msTime(int64(openTime)),
			CloseTime: msTime(int64(closeTime)),
			Open:      dec(asString(k[1])),
			High:      dec(asString(k[2])),
			Low:       dec(asString(k[3])),
			Close:     dec(asString(k[4])),
			Volume:    dec(asString(k[5])),
		})
	}
	return candles, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

type wireTicker24h struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	CloseTime int64  `json:"closeTime"`
}

type wireBookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
	Time     int64  `json:"time"`
}

type wireDepth struct {
	Time int64       `json:"T"`
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

func (wd wireDepth) toOrderBook(symbol string) types.OrderBook {
	book := types.OrderBook{
		Symbol: symbol,
		Bids:   make([]types.PriceLevel, 0, len(wd.Bids)),
		Asks:   make([]types.PriceLevel, 0, len(wd.Asks)),
		Time:   msTime(wd.Time),
	}
	for _, lvl := range wd.Bids {
		book.Bids = append(book.Bids, types.PriceLevel{Price: dec(lvl[0]), Qty: dec(lvl[1])})
	}
	for _, lvl := range wd.Asks {
		book.Asks = append(book.Asks, types.PriceLevel{Price: dec(lvl[0]), Qty: dec(lvl[1])})
	}
	return book
}

type wireMarkPrice struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

// ————————————————————————————————————————————————————————————————————————
// Account
// ————————————————————————————————————————————————————————————————————————

type wireAccount struct {
	Assets []wireAsset `json:"assets"`
}

type wireAsset struct {
	Asset            string `json:"asset"`
	WalletBalance    string `json:"walletBalance"`
	AvailableBalance string `json:"availableBalance"`
}

func (wa wireAsset) toBalance() types.Balance {
	total := dec(wa.WalletBalance)
	free := dec(wa.AvailableBalance)
	return types.Balance{
		Asset:  wa.Asset,
		Free:   free,
		Locked: total.Sub(free),
		Total:  total,
	}
}

type wirePosition struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	LiquidationPrice string `json:"liquidationPrice"`
	Leverage         string `json:"leverage"`
	PositionSide     string `json:"positionSide"`
}

// toPosition returns ok=false for flat positions, which are filtered out.
// Side is inferred from the sign of positionAmt unless the venue reports
// an explicit hedge-mode side.
func (wp wirePosition) toPosition(venue VenueProfile) (types.Position, bool) {
	amt := dec(wp.PositionAmt)
	if amt.IsZero() {
		return types.Position{}, false
	}
	side := types.PositionSide(wp.PositionSide)
	if side == "" || side == types.PositionSideBoth {
		if amt.IsNegative() {
			side = types.PositionSideShort
		} else {
			side = types.PositionSideLong
		}
	}
	return types.Position{
		Symbol:           Normalize(wp.Symbol, venue),
		Side:             side,
		Qty:              amt.Abs(),
		EntryPrice:       dec(wp.EntryPrice),
		MarkPrice:        dec(wp.MarkPrice),
		UnrealizedPnL:    dec(wp.UnRealizedProfit),
		Leverage:         dec(wp.Leverage),
		LiquidationPrice: dec(wp.LiquidationPrice),
	}, true
}

type wirePositionMode struct {
	DualSidePosition bool `json:"dualSidePosition"`
}

type wireListenKey struct {
	ListenKey string `json:"listenKey"`
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

type wireOrder struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	OrigQty       string `json:"origQty"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
	CumQuote      string `json:"cumQuote"`
}

// wireOrderStatus maps the venue's status tokens onto the local lifecycle.
func wireOrderStatus(s string) types.OrderStatus {
	switch s {
	case "NEW":
		return types.OrderStatusNew
	case "PARTIALLY_FILLED":
		return types.OrderStatusPartiallyFilled
	case "FILLED":
		return types.OrderStatusFilled
	case "CANCELED":
		return types.OrderStatusCanceled
	case "REJECTED":
		return types.OrderStatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return types.OrderStatusExpired
	default:
		return types.OrderStatusPendingNew
	}
}

// wireOrderType maps venue order-type tokens, which use STOP/STOP_MARKET
// where the normalized model says STOP_LOSS_LIMIT/STOP_LOSS.
func wireOrderType(s string) types.OrderType {
	switch s {
	case "LIMIT":
		return types.OrderTypeLimit
	case "MARKET":
		return types.OrderTypeMarket
	case "STOP":
		return types.OrderTypeStopLossLimit
	case "STOP_MARKET":
		return types.OrderTypeStopLoss
	case "TAKE_PROFIT":
		return types.OrderTypeTakeProfitLimit
	case "TAKE_PROFIT_MARKET":
		return types.OrderTypeTakeProfit
	default:
		return types.OrderType(s)
	}
}

// venueOrderType is the inverse mapping used when building requests.
func venueOrderType(t types.OrderType) string {
	switch t {
	case types.OrderTypeStopLossLimit:
		return "STOP"
	case types.OrderTypeStopLoss:
		return "STOP_MARKET"
	case types.OrderTypeTakeProfitLimit:
		return "TAKE_PROFIT"
	case types.OrderTypeTakeProfit:
		return "TAKE_PROFIT_MARKET"
	default:
		return string(t)
	}
}

func (wo wireOrder) toOrder(venue VenueProfile) types.Order {
	orderType := wireOrderType(wo.Type)
	order := types.Order{
		OrderID:       fmt.Sprintf("%d", wo.OrderID),
		ClientOrderID: wo.ClientOrderID,
		Symbol:        Normalize(wo.Symbol, venue),
		Side:          types.Side(strings.ToUpper(wo.Side)),
		Type:          orderType,
		Status:        wireOrderStatus(wo.Status),
		Qty:           dec(wo.OrigQty),
	}

	// Price is nil exactly when the order is MARKET.
	if orderType != types.OrderTypeMarket {
		p := dec(wo.Price)
		order.Price = &p
	}
	if sp := dec(wo.StopPrice); !sp.IsZero() {
		order.StopPrice = &sp
	}

	// Average fill price falls back to cumQuote/executedQty when the venue
	// reports avgPrice as zero despite fills.
	avg := dec(wo.AvgPrice)
	executed := dec(wo.ExecutedQty)
	if avg.IsZero() && executed.IsPositive() {
		avg = dec(wo.CumQuote).Div(executed)
	}
	order.AvgFillPrice = avg
	return order
}
