// Package exchange implements the venue connectivity core: a normalized
// REST gateway, token-bucket rate limiting, retry on transient faults, the
// symbol codec, and resilient WebSocket market/user streams.
//
// BinanceGateway talks to Binance USD-M Futures:
//   - GetExchangeInfo / GetSymbolInfo:  GET  /fapi/v1/exchangeInfo
//   - GetOHLC:                          GET  /fapi/v1/klines
//   - GetTicker24h:                     GET  /fapi/v1/ticker/24hr + bookTicker
//   - GetOrderBook:                     GET  /fapi/v1/depth
//   - GetMarkPrice:                     GET  /fapi/v1/premiumIndex
//   - GetBalances:                      GET  /fapi/v2/account
//   - GetPositions:                     GET  /fapi/v2/positionRisk
//   - Get/SetPositionMode:              GET/POST /fapi/v1/positionSide/dual
//   - SetLeverage:                      POST /fapi/v1/leverage
//   - SubmitOrder / CancelOrder / ...:  /fapi/v1/order, /fapi/v1/openOrders
//   - listen key lifecycle:             POST/PUT /fapi/v1/listenKey
//
// Every request first acquires from the venue's shared rate limiter with
// the endpoint's weight; private endpoints are HMAC-signed; raw venue
// errors are classified through the taxonomy in errors.go; read-only calls
// are retried on Transient faults.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/metrics"
	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

const (
	httpTimeout          = 10 * time.Second
	listenKeyRefreshTime = 30 * time.Minute // venue TTL is 60 minutes
)

var validDepths = map[int]bool{5: true, 10: true, 20: true, 50: true, 100: true, 500: true, 1000: true}

// BinanceGateway is the Gateway implementation for Binance USD-M Futures.
type BinanceGateway struct {
	venue  VenueProfile
	http   *resty.Client
	signer *Signer
	rl     *Limiter
	logger *slog.Logger

	market *MarketStream
	user   *UserStream

	userHandlersMu sync.RWMutex
	userHandlers   []UserDataHandler

	mu        sync.Mutex
	listenKey string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool
}

var _ Gateway = (*BinanceGateway)(nil)

// NewBinanceGateway creates a gateway. Credentials come in as arguments;
// testnet selects the venue's test endpoints. The rate limiter is shared
// with every other gateway for the same venue and network.
func NewBinanceGateway(creds Credentials, testnet bool, logger *slog.Logger) *BinanceGateway {
	venue := BinanceFutures
	httpClient := resty.New().
		SetBaseURL(venue.RESTURL(testnet)).
		SetTimeout(httpTimeout).
		SetHeader("Content-Type", "application/x-www-form-urlencoded")

	g := &BinanceGateway{
		venue:  venue,
		http:   httpClient,
		signer: NewSigner(creds),
		rl:     LimiterFor(fmt.Sprintf("%s/testnet=%v", venue.Name, testnet), venue.RateLimits),
		logger: logger.With("component", "gateway", "venue", venue.Name),
	}
	g.market = NewMarketStream(venue.WSURL(testnet), logger)
	g.user = NewUserStream(venue.WSURL(testnet), g.userStreamKey, g.dispatchUserData, logger)
	return g
}

// RateLimiterStats exposes the limiter telemetry snapshot.
func (g *BinanceGateway) RateLimiterStats() LimiterStats { return g.rl.Stats() }

// ————————————————————————————————————————————————————————————————————————
// Connection lifecycle
// ————————————————————————————————————————————————————————————————————————

// Connect obtains a listen key, starts the user-data stream, and starts
// the keepalive loop that refreshes the key every 30 minutes.
func (g *BinanceGateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connected {
		return nil
	}

	key, err := g.createListenKey(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	g.listenKey = key

	runCtx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.connected = true

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		g.user.Run(runCtx)
	}()
	go func() {
		defer g.wg.Done()
		g.keepAliveLoop(runCtx)
	}()

	g.logger.Info("gateway connected")
	return nil
}

// Disconnect cancels every stream task and waits for them to stop.
func (g *BinanceGateway) Disconnect() error {
	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return nil
	}
	g.connected = false
	cancel := g.cancel
	g.mu.Unlock()

	cancel()
	g.market.Stop()
	g.wg.Wait()
	g.logger.Info("gateway disconnected")
	return nil
}

// userStreamKey hands the user stream a current listen key, requesting a
// fresh one when the stored key has been invalidated.
func (g *BinanceGateway) userStreamKey(ctx context.Context, refresh bool) (string, error) {
	g.mu.Lock()
	key := g.listenKey
	g.mu.Unlock()
	if key != "" && !refresh {
		return key, nil
	}

	key, err := g.createListenKey(ctx)
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	g.listenKey = key
	g.mu.Unlock()
	return key, nil
}

func (g *BinanceGateway) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(listenKeyRefreshTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged and the stream keeps running: if the key
			// really expired the stream surfaces it on the next reconnect.
			if err := g.keepAliveListenKey(ctx); err != nil {
				g.logger.Warn("listen key keepalive failed", "error", err)
			}
		}
	}
}

func (g *BinanceGateway) createListenKey(ctx context.Context) (string, error) {
	var result wireListenKey
	if err := g.do(ctx, "POST", "/fapi/v1/listenKey", nil, callOpts{weight: 1, apiKey: true}, &result); err != nil {
		return "", fmt.Errorf("create listen key: %w", err)
	}
	return result.ListenKey, nil
}

func (g *BinanceGateway) keepAliveListenKey(ctx context.Context) error {
	return g.do(ctx, "PUT", "/fapi/v1/listenKey", nil, callOpts{weight: 1, apiKey: true}, nil)
}

// ————————————————————————————————————————————————————————————————————————
// HTTP plumbing
// ————————————————————————————————————————————————————————————————————————

type callOpts struct {
	weight  float64
	isOrder bool
	signed  bool // HMAC signature + api key header
	apiKey  bool // api key header only (listen key endpoints)
}

// do acquires rate-limit tokens, performs one HTTP call, records the
// outcome, and decodes either the result or a classified venue error.
func (g *BinanceGateway) do(ctx context.Context, method, path string, params url.Values, opts callOpts, out any) error {
	start := time.Now()
	err := g.doCall(ctx, method, path, params, opts, out)
	metrics.RecordRESTCall(path, time.Since(start).Seconds(), errorKindLabel(err))
	return err
}

func (g *BinanceGateway) doCall(ctx context.Context, method, path string, params url.Values, opts callOpts, out any) error {
	if err := g.rl.Acquire(ctx, opts.weight, opts.isOrder); err != nil {
		return connErr(path, err)
	}

	req := g.http.R().SetContext(ctx)
	switch {
	case opts.signed:
		req.SetHeader(apiKeyHeader, g.signer.APIKey())
		req.SetQueryString(g.signer.Sign(params))
	case opts.apiKey:
		req.SetHeader(apiKeyHeader, g.signer.APIKey())
		if params != nil {
			req.SetQueryString(params.Encode())
		}
	default:
		if params != nil {
			req.SetQueryString(params.Encode())
		}
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return connErr(path, err)
	}
	if resp.IsError() {
		var we wireError
		if jsonErr := json.Unmarshal(resp.Body(), &we); jsonErr == nil && we.Code != 0 {
			return fmt.Errorf("%s: %w", path, ClassifyAPIError(we.Code, we.Msg))
		}
		return fmt.Errorf("%s: status %d: %s: %w", path, resp.StatusCode(), resp.String(), ErrConnection)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("%s: decode response: %w", path, err)
		}
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// GetExchangeInfo fetches the full symbol listing with trading filters.
func (g *BinanceGateway) GetExchangeInfo(ctx context.Context) ([]types.SymbolInfo, error) {
	var result wireExchangeInfo
	err := WithRetry(ctx, g.logger, "exchange info", func() error {
		return g.do(ctx, "GET", "/fapi/v1/exchangeInfo", nil, callOpts{weight: 1}, &result)
	})
	if err != nil {
		return nil, err
	}

	infos := make([]types.SymbolInfo, 0, len(result.Symbols))
	for _, ws := range result.Symbols {
		infos = append(infos, ws.toSymbolInfo(g.venue))
	}
	return infos, nil
}

// GetSymbolInfo returns trading constraints for one symbol, failing with
// InvalidOrder when the venue does not list it.
func (g *BinanceGateway) GetSymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error) {
	infos, err := g.GetExchangeInfo(ctx)
	if err != nil {
		return types.SymbolInfo{}, err
	}
	for _, info := range infos {
		if info.Symbol == symbol {
			return info, nil
		}
	}
	return types.SymbolInfo{}, fmt.Errorf("symbol %s not listed: %w", symbol, ErrInvalidOrder)
}

// GetOHLC fetches closed candles. limit defaults to 500 and is capped at
// 1500; start and end are optional (zero time skips them).
func (g *BinanceGateway) GetOHLC(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]types.Candle, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > 1500 {
		return nil, fmt.Errorf("kline limit %d exceeds 1500: %w", limit, ErrInvalidOrder)
	}

	params := url.Values{}
	params.Set("symbol", Denormalize(symbol, g.venue))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	var rows wireKlines
	err := WithRetry(ctx, g.logger, "klines", func() error {
		return g.do(ctx, "GET", "/fapi/v1/klines", params, callOpts{weight: klineWeight(limit)}, &rows)
	})
	if err != nil {
		return nil, err
	}
	candles, err := rows.toCandles(symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("klines: %w", err)
	}
	return candles, nil
}

func klineWeight(limit int) float64 {
	switch {
	case limit < 100:
		return 1
	case limit < 500:
		return 2
	case limit <= 1000:
		return 5
	default:
		return 10
	}
}

// GetTicker24h combines the 24h ticker (last price) with the book ticker
// (best bid/ask) into one snapshot.
func (g *BinanceGateway) GetTicker24h(ctx context.Context, symbol string) (types.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", Denormalize(symbol, g.venue))

	var day wireTicker24h
	err := WithRetry(ctx, g.logger, "ticker 24h", func() error {
		return g.do(ctx, "GET", "/fapi/v1/ticker/24hr", params, callOpts{weight: 1}, &day)
	})
	if err != nil {
		return types.Ticker{}, err
	}

	book := url.Values{}
	book.Set("symbol", Denormalize(symbol, g.venue))
	var top wireBookTicker
	err = WithRetry(ctx, g.logger, "book ticker", func() error {
		return g.do(ctx, "GET", "/fapi/v1/ticker/bookTicker", book, callOpts{weight: 2}, &top)
	})
	if err != nil {
		return types.Ticker{}, err
	}

	return types.Ticker{
		Symbol: symbol,
		Last:   dec(day.LastPrice),
		Bid:    dec(top.BidPrice),
		Ask:    dec(top.AskPrice),
		BidQty: dec(top.BidQty),
		AskQty: dec(top.AskQty),
		Time:   msTime(day.CloseTime),
	}, nil
}

// GetOrderBook fetches a depth snapshot. depth must be one of the venue's
// supported levels.
func (g *BinanceGateway) GetOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBook, error) {
	if !validDepths[depth] {
		return types.OrderBook{}, fmt.Errorf("unsupported depth %d: %w", depth, ErrInvalidOrder)
	}

	params := url.Values{}
	params.Set("symbol", Denormalize(symbol, g.venue))
	params.Set("limit", strconv.Itoa(depth))

	var result wireDepth
	err := WithRetry(ctx, g.logger, "depth", func() error {
		return g.do(ctx, "GET", "/fapi/v1/depth", params, callOpts{weight: depthWeight(depth)}, &result)
	})
	if err != nil {
		return types.OrderBook{}, err
	}
	return result.toOrderBook(symbol), nil
}

func depthWeight(depth int) float64 {
	switch {
	case depth <= 50:
		return 2
	case depth <= 100:
		return 5
	case depth <= 500:
		return 10
	default:
		return 20
	}
}

// GetMarkPrice fetches the mark price and current funding rate.
func (g *BinanceGateway) GetMarkPrice(ctx context.Context, symbol string) (types.MarkPrice, error) {
	params := url.Values{}
	params.Set("symbol", Denormalize(symbol, g.venue))

	var result wireMarkPrice
	err := WithRetry(ctx, g.logger, "mark price", func() error {
		return g.do(ctx, "GET", "/fapi/v1/premiumIndex", params, callOpts{weight: 1}, &result)
	})
	if err != nil {
		return types.MarkPrice{}, err
	}
	return types.MarkPrice{
		Symbol:          symbol,
		MarkPrice:       dec(result.MarkPrice),
		IndexPrice:      dec(result.IndexPrice),
		FundingRate:     dec(result.LastFundingRate),
		NextFundingTime: msTime(result.NextFundingTime),
		Time:            msTime(result.Time),
	}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Account
// ————————————————————————————————————————————————————————————————————————

// GetBalances returns non-zero wallet balances.
func (g *BinanceGateway) GetBalances(ctx context.Context) ([]types.Balance, error) {
	var result wireAccount
	err := WithRetry(ctx, g.logger, "account", func() error {
		return g.do(ctx, "GET", "/fapi/v2/account", nil, callOpts{weight: 5, signed: true}, &result)
	})
	if err != nil {
		return nil, err
	}

	balances := make([]types.Balance, 0, len(result.Assets))
	for _, a := range result.Assets {
		b := a.toBalance()
		if b.Total.IsZero() {
			continue
		}
		balances = append(balances, b)
	}
	return balances, nil
}

// GetPositions returns open positions; flat records are filtered out.
func (g *BinanceGateway) GetPositions(ctx context.Context) ([]types.Position, error) {
	var result []wirePosition
	err := WithRetry(ctx, g.logger, "positions", func() error {
		return g.do(ctx, "GET", "/fapi/v2/positionRisk", nil, callOpts{weight: 5, signed: true}, &result)
	})
	if err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(result))
	for _, wp := range result {
		if p, ok := wp.toPosition(g.venue); ok {
			positions = append(positions, p)
		}
	}
	return positions, nil
}

// GetPositionMode reports whether the account is in one-way or hedge mode.
func (g *BinanceGateway) GetPositionMode(ctx context.Context) (types.PositionMode, error) {
	var result wirePositionMode
	err := WithRetry(ctx, g.logger, "position mode", func() error {
		return g.do(ctx, "GET", "/fapi/v1/positionSide/dual", nil, callOpts{weight: 30, signed: true}, &result)
	})
	if err != nil {
		return "", err
	}
	if result.DualSidePosition {
		return types.PositionModeHedge, nil
	}
	return types.PositionModeOneWay, nil
}

// SetPositionMode switches the account position model.
func (g *BinanceGateway) SetPositionMode(ctx context.Context, mode types.PositionMode) error {
	params := url.Values{}
	params.Set("dualSidePosition", strconv.FormatBool(mode == types.PositionModeHedge))
	return g.do(ctx, "POST", "/fapi/v1/positionSide/dual", params, callOpts{weight: 1, signed: true}, nil)
}

// SetLeverage sets the leverage for one symbol.
func (g *BinanceGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage < 1 || leverage > 125 {
		return fmt.Errorf("leverage %d out of range: %w", leverage, ErrInvalidOrder)
	}
	params := url.Values{}
	params.Set("symbol", Denormalize(symbol, g.venue))
	params.Set("leverage", strconv.Itoa(leverage))
	return g.do(ctx, "POST", "/fapi/v1/leverage", params, callOpts{weight: 1, signed: true}, nil)
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// validateOrderRequest enforces per-type required fields before any wire
// call touches the rate limiter.
func validateOrderRequest(req types.OrderRequest) error {
	if req.Qty.IsZero() || req.Qty.IsNegative() {
		return fmt.Errorf("quantity must be positive: %w", ErrInvalidOrder)
	}
	switch req.Type {
	case types.OrderTypeLimit, types.OrderTypeStopLossLimit, types.OrderTypeTakeProfitLimit:
		if req.Price == nil || req.Price.IsZero() {
			return fmt.Errorf("%s order requires a price: %w", req.Type, ErrInvalidOrder)
		}
	}
	switch req.Type {
	case types.OrderTypeStopLoss, types.OrderTypeStopLossLimit,
		types.OrderTypeTakeProfit, types.OrderTypeTakeProfitLimit:
		if req.StopPrice == nil || req.StopPrice.IsZero() {
			return fmt.Errorf("%s order requires a stop price: %w", req.Type, ErrInvalidOrder)
		}
	}
	return nil
}

// SubmitOrder validates and places an order, returning the normalized ACK.
// A client order ID is generated when the request leaves it empty.
func (g *BinanceGateway) SubmitOrder(ctx context.Context, req types.OrderRequest) (types.Order, error) {
	if err := validateOrderRequest(req); err != nil {
		return types.Order{}, err
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = "bot-" + uuid.NewString()
	}

	params := url.Values{}
	params.Set("symbol", Denormalize(req.Symbol, g.venue))
	params.Set("side", string(req.Side))
	params.Set("type", venueOrderType(req.Type))
	params.Set("quantity", req.Qty.String())
	params.Set("newClientOrderId", clientID)
	if req.Price != nil {
		params.Set("price", req.Price.String())
	}
	if req.StopPrice != nil {
		params.Set("stopPrice", req.StopPrice.String())
	}
	switch req.Type {
	case types.OrderTypeLimit, types.OrderTypeStopLossLimit, types.OrderTypeTakeProfitLimit:
		tif := req.TimeInForce
		if tif == "" {
			tif = types.TimeInForceGTC
		}
		params.Set("timeInForce", string(tif))
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	if req.PositionSide != "" {
		params.Set("positionSide", string(req.PositionSide))
	}

	var result wireOrder
	if err := g.do(ctx, "POST", "/fapi/v1/order", params, callOpts{weight: 1, isOrder: true, signed: true}, &result); err != nil {
		return types.Order{}, fmt.Errorf("submit order: %w", err)
	}

	order := result.toOrder(g.venue)
	metrics.OrdersSubmitted.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	g.logger.Info("order submitted",
		"symbol", order.Symbol,
		"side", order.Side,
		"type", order.Type,
		"qty", order.Qty,
		"order_id", order.OrderID,
	)
	return order, nil
}

// ReplaceError reports a modify that canceled the original order but failed
// to place the replacement. Callers must resubmit or accept the flat state.
type ReplaceError struct {
	CanceledOrderID string
	Err             error
}

func (e *ReplaceError) Error() string {
	return fmt.Sprintf("order %s canceled but replacement failed: %v", e.CanceledOrderID, e.Err)
}

func (e *ReplaceError) Unwrap() error { return e.Err }

// ModifyOrder changes the price and/or quantity of a resting order via
// cancel-then-submit. Omitted fields keep the original values. When the
// cancel succeeds but the replacement is rejected, the returned error is a
// *ReplaceError naming the canceled original.
func (g *BinanceGateway) ModifyOrder(ctx context.Context, symbol, orderID string, qty, price *decimal.Decimal) (types.Order, error) {
	if qty == nil && price == nil {
		return types.Order{}, fmt.Errorf("modify requires a new qty or price: %w", ErrInvalidOrder)
	}

	original, err := g.GetOrderStatus(ctx, symbol, orderID, "")
	if err != nil {
		return types.Order{}, fmt.Errorf("modify order: %w", err)
	}
	if !original.IsOpen() {
		return types.Order{}, fmt.Errorf("order %s is %s, not open: %w", orderID, original.Status, ErrInvalidOrder)
	}

	if _, err := g.CancelOrder(ctx, symbol, orderID, ""); err != nil {
		return types.Order{}, fmt.Errorf("modify order: cancel: %w", err)
	}

	req := types.OrderRequest{
		Symbol:    symbol,
		Side:      original.Side,
		Type:      original.Type,
		Qty:       original.Qty,
		Price:     original.Price,
		StopPrice: original.StopPrice,
	}
	if qty != nil {
		req.Qty = *qty
	}
	if price != nil {
		req.Price = price
	}

	replacement, err := g.SubmitOrder(ctx, req)
	if err != nil {
		return types.Order{}, &ReplaceError{CanceledOrderID: orderID, Err: err}
	}
	return replacement, nil
}

// orderIDParams fills the identifier parameter, requiring exactly one of
// orderID and clientOrderID.
func orderIDParams(params url.Values, orderID, clientOrderID string) error {
	switch {
	case orderID != "" && clientOrderID != "":
		return fmt.Errorf("pass either order id or client order id, not both: %w", ErrInvalidOrder)
	case orderID != "":
		params.Set("orderId", orderID)
	case clientOrderID != "":
		params.Set("origClientOrderId", clientOrderID)
	default:
		return fmt.Errorf("order id or client order id required: %w", ErrInvalidOrder)
	}
	return nil
}

// CancelOrder cancels by order ID or client order ID and returns the final
// order record.
func (g *BinanceGateway) CancelOrder(ctx context.Context, symbol, orderID, clientOrderID string) (types.Order, error) {
	params := url.Values{}
	params.Set("symbol", Denormalize(symbol, g.venue))
	if err := orderIDParams(params, orderID, clientOrderID); err != nil {
		return types.Order{}, err
	}

	var result wireOrder
	if err := g.do(ctx, "DELETE", "/fapi/v1/order", params, callOpts{weight: 1, isOrder: true, signed: true}, &result); err != nil {
		return types.Order{}, fmt.Errorf("cancel order: %w", err)
	}

	order := result.toOrder(g.venue)
	g.logger.Info("order canceled", "symbol", order.Symbol, "order_id", order.OrderID)
	return order, nil
}

// CancelAllOrders cancels every open order on one symbol.
func (g *BinanceGateway) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", Denormalize(symbol, g.venue))
	if err := g.do(ctx, "DELETE", "/fapi/v1/allOpenOrders", params, callOpts{weight: 1, isOrder: true, signed: true}, nil); err != nil {
		return fmt.Errorf("cancel all orders: %w", err)
	}
	g.logger.Warn("all orders canceled", "symbol", symbol)
	return nil
}

// GetOpenOrders lists open orders, for one symbol or account-wide.
func (g *BinanceGateway) GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	params := url.Values{}
	weight := float64(40) // account-wide listing is expensive
	if symbol != "" {
		params.Set("symbol", Denormalize(symbol, g.venue))
		weight = 1
	}

	var result []wireOrder
	err := WithRetry(ctx, g.logger, "open orders", func() error {
		return g.do(ctx, "GET", "/fapi/v1/openOrders", params, callOpts{weight: weight, signed: true}, &result)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]types.Order, 0, len(result))
	for _, wo := range result {
		orders = append(orders, wo.toOrder(g.venue))
	}
	return orders, nil
}

// GetOrderStatus fetches one order by order ID or client order ID.
func (g *BinanceGateway) GetOrderStatus(ctx context.Context, symbol, orderID, clientOrderID string) (types.Order, error) {
	params := url.Values{}
	params.Set("symbol", Denormalize(symbol, g.venue))
	if err := orderIDParams(params, orderID, clientOrderID); err != nil {
		return types.Order{}, err
	}

	var result wireOrder
	err := WithRetry(ctx, g.logger, "order status", func() error {
		return g.do(ctx, "GET", "/fapi/v1/order", params, callOpts{weight: 1, signed: true}, &result)
	})
	if err != nil {
		return types.Order{}, err
	}
	return result.toOrder(g.venue), nil
}

// ————————————————————————————————————————————————————————————————————————
// Streams
// ————————————————————————————————————————————————————————————————————————

// SubscribeKlines routes closed candles for symbol/interval to h.
func (g *BinanceGateway) SubscribeKlines(ctx context.Context, symbol, interval string, h CandleHandler) error {
	stream := fmt.Sprintf("%s@kline_%s", StreamSymbol(symbol, g.venue), interval)
	return g.market.Subscribe(ctx, stream, func(data []byte) {
		if c := ParseKline(data, g.venue, g.logger); c != nil {
			h(*c)
		}
	})
}

// SubscribeTrades routes public trades for symbol to h.
func (g *BinanceGateway) SubscribeTrades(ctx context.Context, symbol string, h TradeHandler) error {
	stream := StreamSymbol(symbol, g.venue) + "@trade"
	return g.market.Subscribe(ctx, stream, func(data []byte) {
		if t := ParseTrade(data, g.venue, g.logger); t != nil {
			h(*t)
		}
	})
}

// SubscribeBookTicker routes top-of-book updates for symbol to h.
func (g *BinanceGateway) SubscribeBookTicker(ctx context.Context, symbol string, h TickerHandler) error {
	stream := StreamSymbol(symbol, g.venue) + "@bookTicker"
	return g.market.Subscribe(ctx, stream, func(data []byte) {
		if t := ParseBookTicker(data, g.venue, g.logger); t != nil {
			h(*t)
		}
	})
}

// Unsubscribe removes one stream; the market loop restarts without it, or
// exits when it was the last one.
func (g *BinanceGateway) Unsubscribe(ctx context.Context, stream string) error {
	return g.market.Unsubscribe(ctx, stream)
}

// SubscribeUserData registers a handler for parsed user-stream events.
// Handlers are called in registration order for every event.
func (g *BinanceGateway) SubscribeUserData(h UserDataHandler) {
	g.userHandlersMu.Lock()
	defer g.userHandlersMu.Unlock()
	g.userHandlers = append(g.userHandlers, h)
}

func (g *BinanceGateway) dispatchUserData(data []byte) {
	evt := ParseUserData(data, g.venue, g.logger)
	if evt == nil {
		return
	}
	g.userHandlersMu.RLock()
	handlers := make([]UserDataHandler, len(g.userHandlers))
	copy(handlers, g.userHandlers)
	g.userHandlersMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					g.logger.Error("user data handler panicked", "panic", r)
				}
			}()
			h(*evt)
		}()
	}
}

// MarketReconnections exposes the market stream's reconnect counter.
func (g *BinanceGateway) MarketReconnections() uint64 { return g.market.Reconnections() }

// UserReconnections exposes the user stream's reconnect counter.
func (g *BinanceGateway) UserReconnections() uint64 { return g.user.Reconnections() }

// MarketMessages exposes the market stream's received-frame counter.
func (g *BinanceGateway) MarketMessages() uint64 { return g.market.Messages() }

// UserMessages exposes the user stream's received-frame counter.
func (g *BinanceGateway) UserMessages() uint64 { return g.user.Messages() }
