// gateway.go defines the capability surface a venue connector exposes to
// the layers above it. BinanceGateway is the concrete implementor; other
// venues plug in behind the same interface.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

// Gateway is the normalized REST + stream surface of one venue. All symbol
// arguments and results use the canonical BASE/QUOTE form.
type Gateway interface {
	// Connect establishes the user-data session (listen key + stream) and
	// starts the keepalive loop. Disconnect cancels every stream task and
	// waits for them to stop.
	Connect(ctx context.Context) error
	Disconnect() error

	// Market data.
	GetExchangeInfo(ctx context.Context) ([]types.SymbolInfo, error)
	GetSymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error)
	GetOHLC(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]types.Candle, error)
	GetTicker24h(ctx context.Context, symbol string) (types.Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBook, error)
	GetMarkPrice(ctx context.Context, symbol string) (types.MarkPrice, error)

	// Account.
	GetBalances(ctx context.Context) ([]types.Balance, error)
	GetPositions(ctx context.Context) ([]types.Position, error)
	GetPositionMode(ctx context.Context) (types.PositionMode, error)
	SetPositionMode(ctx context.Context, mode types.PositionMode) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// Order lifecycle.
	SubmitOrder(ctx context.Context, req types.OrderRequest) (types.Order, error)
	ModifyOrder(ctx context.Context, symbol, orderID string, qty, price *decimal.Decimal) (types.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID, clientOrderID string) (types.Order, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error)
	GetOrderStatus(ctx context.Context, symbol, orderID, clientOrderID string) (types.Order, error)

	// Streams. Subscribing while the market stream is running restarts it
	// with the updated stream set.
	SubscribeKlines(ctx context.Context, symbol, interval string, h CandleHandler) error
	SubscribeTrades(ctx context.Context, symbol string, h TradeHandler) error
	SubscribeBookTicker(ctx context.Context, symbol string, h TickerHandler) error
	Unsubscribe(ctx context.Context, stream string) error
	SubscribeUserData(h UserDataHandler)
}

// Handler types for parsed stream events. Handlers run synchronously on the
// stream goroutine and in arrival order; a panic in one handler is
// contained and does not affect other handlers or the stream loop.
type (
	CandleHandler   func(types.Candle)
	TradeHandler    func(types.Trade)
	TickerHandler   func(types.Ticker)
	UserDataHandler func(UserDataEvent)
)

// UserDataEvent is one parsed user-stream frame. Exactly one of the
// pointers is set.
type UserDataEvent struct {
	Order   *types.Order
	Account *types.AccountUpdate
	Raw     *types.RawEvent
}
