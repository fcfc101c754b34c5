// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — symbols, candles,
// tickers, order books, orders, balances, positions, and account events.
// It has no dependencies on internal packages, so it can be imported by
// any layer. All prices, quantities, and PnL values are decimal.Decimal;
// binary floating point is never used for money.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// OrderType enumerates the supported order types on the futures venue.
type OrderType string

const (
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeStopLoss        OrderType = "STOP_LOSS"
	OrderTypeStopLossLimit   OrderType = "STOP_LOSS_LIMIT"
	OrderTypeTakeProfit      OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
)

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderStatusPendingNew      OrderStatus = "PENDING_NEW"
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPendingCancel   OrderStatus = "PENDING_CANCEL"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// TimeInForce controls how long a resting order stays on the book.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // good till canceled
	TimeInForceIOC TimeInForce = "IOC" // immediate or cancel
	TimeInForceFOK TimeInForce = "FOK" // fill or kill
	TimeInForceGTX TimeInForce = "GTX" // post-only
)

// PositionSide identifies which side of a futures position a record refers to.
// BOTH is used in one-way mode; LONG/SHORT appear in hedge mode.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideBoth  PositionSide = "BOTH"
)

// PositionMode is the account-level futures position model.
type PositionMode string

const (
	PositionModeOneWay PositionMode = "ONE_WAY"
	PositionModeHedge  PositionMode = "HEDGE"
)

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// SymbolInfo carries the venue's trading constraints for one symbol.
// Strategy code must round prices to PriceStep and quantities to QtyStep
// (toward zero) before submitting orders.
type SymbolInfo struct {
	Symbol      string // canonical BASE/QUOTE
	Base        string
	Quote       string
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	QtyStep     decimal.Decimal
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	PriceStep   decimal.Decimal
	MinNotional decimal.Decimal
	IsSpot      bool
	IsFutures   bool
	IsMargin    bool
	IsTrading   bool
}

// RoundPrice rounds a price down to a multiple of PriceStep.
func (si SymbolInfo) RoundPrice(p decimal.Decimal) decimal.Decimal {
	if si.PriceStep.IsZero() {
		return p
	}
	return p.Div(si.PriceStep).Floor().Mul(si.PriceStep)
}

// RoundQty rounds a quantity down to a multiple of QtyStep.
func (si SymbolInfo) RoundQty(q decimal.Decimal) decimal.Decimal {
	if si.QtyStep.IsZero() {
		return q
	}
	return q.Div(si.QtyStep).Floor().Mul(si.QtyStep)
}

// Candle is a closed OHLCV bucket. The stream layer only emits candles
// whose interval has elapsed; open candles never reach subscribers.
type Candle struct {
	Symbol    string
	Interval  string // e.g. "1m", "5m", "1h"
	OpenTime  time.Time
	CloseTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Trade is a single public trade print.
type Trade struct {
	Symbol string
	Price  decimal.Decimal
	Qty    decimal.Decimal
	Time   time.Time
}

// Ticker is a top-of-book snapshot. Last is the venue's last trade price
// where available; the book-ticker stream approximates it with the best bid.
type Ticker struct {
	Symbol string
	Last   decimal.Decimal
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	BidQty decimal.Decimal
	AskQty decimal.Decimal
	Time   time.Time
}

// PriceLevel is one bid or ask level in an order book.
type PriceLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// OrderBook is a point-in-time depth snapshot. Bids are sorted descending
// by price, asks ascending.
type OrderBook struct {
	Symbol string
	Bids   []PriceLevel
	Asks   []PriceLevel
	Time   time.Time
}

// MarkPrice is the venue's mark-price record for one futures symbol,
// including the current funding rate and the next funding time.
type MarkPrice struct {
	Symbol          string
	MarkPrice       decimal.Decimal
	IndexPrice      decimal.Decimal
	FundingRate     decimal.Decimal
	NextFundingTime time.Time
	Time            time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Account
// ————————————————————————————————————————————————————————————————————————

// Balance is one asset's wallet balance. Total = Free + Locked.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
	Total  decimal.Decimal
}

// Position is an open futures position. Qty is always positive; Side
// carries the direction. Zero-quantity records are filtered out before
// they reach callers.
type Position struct {
	Symbol           string
	Side             PositionSide
	Qty              decimal.Decimal
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	Leverage         decimal.Decimal
	LiquidationPrice decimal.Decimal // zero when the venue does not report one
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// Order is the canonical local order record the OMS state machine operates
// on. Price is nil for MARKET orders and set for LIMIT-style orders.
// AvgFillPrice is zero until the first fill.
type Order struct {
	OrderID         string
	ClientOrderID   string
	Symbol          string // canonical BASE/QUOTE
	Side            Side
	Type            OrderType
	Status          OrderStatus
	Qty             decimal.Decimal
	Price           *decimal.Decimal
	StopPrice       *decimal.Decimal // set only on stop and take-profit orders
	AvgFillPrice    decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
}

// Clone returns a value copy safe to hand to callers outside the OMS.
func (o Order) Clone() Order {
	c := o
	if o.Price != nil {
		p := *o.Price
		c.Price = &p
	}
	if o.StopPrice != nil {
		sp := *o.StopPrice
		c.StopPrice = &sp
	}
	return c
}

// IsOpen reports whether the order still rests on the book.
func (o Order) IsOpen() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}

// OrderRequest is the normalized input to Gateway.SubmitOrder. Price and
// StopPrice are required or forbidden depending on Type; the gateway
// validates before any wire call.
type OrderRequest struct {
	Symbol        string // canonical BASE/QUOTE
	Side          Side
	Type          OrderType
	Qty           decimal.Decimal
	Price         *decimal.Decimal
	StopPrice     *decimal.Decimal
	TimeInForce   TimeInForce // defaults to GTC for LIMIT-style orders
	ClientOrderID string      // generated when empty
	ReduceOnly    bool
	PositionSide  PositionSide // required in hedge mode
}

// ————————————————————————————————————————————————————————————————————————
// User-data events
// ————————————————————————————————————————————————————————————————————————

// AccountBalance is one asset entry inside an AccountUpdate.
type AccountBalance struct {
	Asset              string
	WalletBalance      decimal.Decimal
	CrossWalletBalance decimal.Decimal
}

// AccountPosition is one position entry inside an AccountUpdate.
// PositionAmount is signed: negative means short.
type AccountPosition struct {
	Symbol         string
	PositionAmount decimal.Decimal
	EntryPrice     decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	Side           PositionSide
}

// AccountUpdate is emitted on the user-data stream whenever balances or
// positions change. Reason is the venue's event reason token, e.g.
// "ORDER" or "FUNDING_FEE".
type AccountUpdate struct {
	EventTime       time.Time
	TransactionTime time.Time
	Balances        []AccountBalance
	Positions       []AccountPosition
	Reason          string
}

// RawEvent carries a user-data frame the parser does not model, such as
// MARGIN_CALL or listenKeyExpired. Subscribers that care inspect Data.
type RawEvent struct {
	EventType string
	Data      []byte
}
