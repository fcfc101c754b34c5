// parser.go translates raw stream frames into the normalized models.
//
// Parse failures never propagate: they are logged with context and the
// frame is dropped, so a malformed message cannot take down a stream loop
// or reach a subscriber. Kline frames additionally pass the closed-candle
// filter: a candle is emitted at most once, after its interval closes.
package exchange

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

type wireKlineFrame struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

// ParseKline returns a candle for a closed kline frame, nil for open
// candles and malformed frames.
func ParseKline(data []byte, venue VenueProfile, logger *slog.Logger) *types.Candle {
	var frame wireKlineFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn("failed to parse kline frame", "error", err, "data", string(data))
		return nil
	}
	if !frame.Kline.IsClosed {
		return nil
	}
	return &types.Candle{
		Symbol:    Normalize(frame.Symbol, venue),
		Interval:  frame.Kline.Interval,
		OpenTime:  msTime(frame.Kline.OpenTime),
		CloseTime: msTime(frame.Kline.CloseTime),
		Open:      dec(frame.Kline.Open),
		High:      dec(frame.Kline.High),
		Low:       dec(frame.Kline.Low),
		Close:     dec(frame.Kline.Close),
		Volume:    dec(frame.Kline.Volume),
	}
}

type wireTradeFrame struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTime int64  `json:"T"`
}

// ParseTrade returns a trade print, or nil on a malformed frame.
func ParseTrade(data []byte, venue VenueProfile, logger *slog.Logger) *types.Trade {
	var frame wireTradeFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn("failed to parse trade frame", "error", err, "data", string(data))
		return nil
	}
	return &types.Trade{
		Symbol: Normalize(frame.Symbol, venue),
		Price:  dec(frame.Price),
		Qty:    dec(frame.Qty),
		Time:   msTime(frame.TradeTime),
	}
}

type wireBookTickerFrame struct {
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	BidQty    string `json:"B"`
	AskPrice  string `json:"a"`
	AskQty    string `json:"A"`
	EventTime int64  `json:"E"`
}

// ParseBookTicker returns a top-of-book snapshot. Last is approximated by
// the best bid; subscribers needing true last use the trade stream.
func ParseBookTicker(data []byte, venue VenueProfile, logger *slog.Logger) *types.Ticker {
	var frame wireBookTickerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn("failed to parse book ticker frame", "error", err, "data", string(data))
		return nil
	}
	bid := dec(frame.BidPrice)
	return &types.Ticker{
		Symbol: Normalize(frame.Symbol, venue),
		Last:   bid,
		Bid:    bid,
		Ask:    dec(frame.AskPrice),
		BidQty: dec(frame.BidQty),
		AskQty: dec(frame.AskQty),
		Time:   msTime(frame.EventTime),
	}
}

// ————————————————————————————————————————————————————————————————————————
// User data
// ————————————————————————————————————————————————————————————————————————

type wireOrderUpdateFrame struct {
	EventType string `json:"e"`
	Order     struct {
		Symbol          string `json:"s"`
		ClientOrderID   string `json:"c"`
		Side            string `json:"S"`
		Type            string `json:"o"`
		Status          string `json:"X"`
		OrderID         int64  `json:"i"`
		Qty             string `json:"q"`
		Price           string `json:"p"`
		AvgPrice        string `json:"ap"`
		LastFilledPrice string `json:"L"`
		Commission      string `json:"n"`
		CommissionAsset string `json:"N"`
	} `json:"o"`
}

type wireAccountUpdateFrame struct {
	EventType       string `json:"e"`
	EventTime       int64  `json:"E"`
	TransactionTime int64  `json:"T"`
	Account         struct {
		Reason   string `json:"m"`
		Balances []struct {
			Asset              string `json:"a"`
			WalletBalance      string `json:"wb"`
			CrossWalletBalance string `json:"cw"`
		} `json:"B"`
		Positions []struct {
			Symbol         string `json:"s"`
			PositionAmount string `json:"pa"`
			EntryPrice     string `json:"ep"`
			UnrealizedPnL  string `json:"up"`
			PositionSide   string `json:"ps"`
		} `json:"P"`
	} `json:"a"`
}

// ParseUserData routes a user-stream frame by its event type. Order and
// account updates become typed models; anything else is surfaced raw with
// a warning so subscribers can still inspect it.
func ParseUserData(data []byte, venue VenueProfile, logger *slog.Logger) *UserDataEvent {
	var envelope struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		logger.Warn("failed to parse user data frame", "error", err, "data", string(data))
		return nil
	}

	switch envelope.EventType {
	case "ORDER_TRADE_UPDATE", "executionReport":
		order := parseOrderUpdate(data, venue, logger)
		if order == nil {
			return nil
		}
		return &UserDataEvent{Order: order}

	case "ACCOUNT_UPDATE":
		update := parseAccountUpdate(data, venue, logger)
		if update == nil {
			return nil
		}
		return &UserDataEvent{Account: update}

	default:
		logger.Warn("unhandled user data event", "event_type", envelope.EventType)
		return &UserDataEvent{Raw: &types.RawEvent{EventType: envelope.EventType, Data: data}}
	}
}

func parseOrderUpdate(data []byte, venue VenueProfile, logger *slog.Logger) *types.Order {
	var frame wireOrderUpdateFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn("failed to parse order update", "error", err, "data", string(data))
		return nil
	}
	o := frame.Order

	order := &types.Order{
		OrderID:         formatOrderID(o.OrderID),
		ClientOrderID:   o.ClientOrderID,
		Symbol:          Normalize(o.Symbol, venue),
		Side:            types.Side(o.Side),
		Type:            wireOrderType(o.Type),
		Status:          wireOrderStatus(o.Status),
		Qty:             dec(o.Qty),
		Commission:      dec(o.Commission),
		CommissionAsset: o.CommissionAsset,
	}

	// Price only applies to resting limit orders; "0" means not set.
	if order.Type == types.OrderTypeLimit && o.Price != "" && o.Price != "0" {
		p := dec(o.Price)
		order.Price = &p
	}

	// The stream reports avg price as "0" until the venue computes it; the
	// last-filled price is the best available fallback.
	avg := dec(o.AvgPrice)
	if avg.IsZero() {
		avg = dec(o.LastFilledPrice)
	}
	order.AvgFillPrice = avg
	return order
}

func parseAccountUpdate(data []byte, venue VenueProfile, logger *slog.Logger) *types.AccountUpdate {
	var frame wireAccountUpdateFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn("failed to parse account update", "error", err, "data", string(data))
		return nil
	}

	update := &types.AccountUpdate{
		EventTime:       msTime(frame.EventTime),
		TransactionTime: msTime(frame.TransactionTime),
		Reason:          frame.Account.Reason,
	}
	for _, b := range frame.Account.Balances {
		update.Balances = append(update.Balances, types.AccountBalance{
			Asset:              b.Asset,
			WalletBalance:      dec(b.WalletBalance),
			CrossWalletBalance: dec(b.CrossWalletBalance),
		})
	}
	for _, p := range frame.Account.Positions {
		side := types.PositionSide(p.PositionSide)
		if side == "" {
			side = types.PositionSideBoth
		}
		update.Positions = append(update.Positions, types.AccountPosition{
			Symbol:         Normalize(p.Symbol, venue),
			PositionAmount: dec(p.PositionAmount),
			EntryPrice:     dec(p.EntryPrice),
			UnrealizedPnL:  dec(p.UnrealizedPnL),
			Side:           side,
		})
	}
	return update
}

func formatOrderID(id int64) string {
	return strconv.FormatInt(id, 10)
}
