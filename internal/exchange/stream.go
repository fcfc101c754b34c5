// stream.go implements the market-data WebSocket stream.
//
// A subscription registry maps venue stream names (btcusdt@kline_1m,
// ethusdt@trade, btcusdt@bookTicker) to raw-frame callbacks. The stream
// connects to a combined-streams URL derived from the registry; changing
// the registry while the loop runs triggers a graceful restart with the
// new URL, and the loop exits when the registry empties.
//
// The loop auto-reconnects with exponential backoff (1s doubling to 120s,
// reset on a successful connect), pings every 60s, and drops the socket
// when a pong does not arrive within 10s. Transport errors never reach
// subscribers; they only show up in the reconnection counter.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/metrics"
)

const (
	streamPingInterval    = 60 * time.Second
	streamPongTimeout     = 10 * time.Second
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 120 * time.Second
	reconnectDelayFactor  = 2
	streamWriteTimeout    = 10 * time.Second
)

// StreamHandler receives the raw data payload of one frame.
type StreamHandler func(data []byte)

// MarketStream multiplexes venue market-data streams over one connection.
type MarketStream struct {
	baseURL string
	logger  *slog.Logger

	mu      sync.Mutex
	subs    map[string]StreamHandler
	conn    *websocket.Conn
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	restarting    atomic.Bool
	reconnections atomic.Uint64
	messages      atomic.Uint64
}

// NewMarketStream creates a stream rooted at the venue's WS base URL.
func NewMarketStream(baseURL string, logger *slog.Logger) *MarketStream {
	return &MarketStream{
		baseURL: baseURL,
		logger:  logger.With("component", "ws_market"),
		subs:    make(map[string]StreamHandler),
	}
}

// Reconnections returns how many times the loop has re-dialed after a drop.
func (s *MarketStream) Reconnections() uint64 { return s.reconnections.Load() }

// Messages returns the count of frames received.
func (s *MarketStream) Messages() uint64 { return s.messages.Load() }

// Subscribe registers a handler for one stream name. If the loop is
// already running it restarts gracefully on a URL that includes the new
// stream; otherwise the loop is started.
func (s *MarketStream) Subscribe(ctx context.Context, stream string, h StreamHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[stream] = h

	if s.running {
		s.restartLocked()
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(runCtx, s.done)
	return ctx.Err()
}

// Unsubscribe removes a stream. The loop restarts without it, or exits
// when nothing remains subscribed.
func (s *MarketStream) Unsubscribe(ctx context.Context, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[stream]; !ok {
		return fmt.Errorf("not subscribed to %s", stream)
	}
	delete(s.subs, stream)
	if s.running {
		s.restartLocked()
	}
	return ctx.Err()
}

// Stop cancels the loop and waits for it to exit.
func (s *MarketStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	cancel()
	<-done
}

// restartLocked closes the live socket so the loop rebuilds its URL from
// the current registry. Restart drops are not counted as reconnections.
func (s *MarketStream) restartLocked() {
	s.restarting.Store(true)
	if s.conn != nil {
		s.conn.Close()
	}
}

// combinedURL encodes the registry as ${base}/stream?streams=s1/s2/...
func (s *MarketStream) combinedURL() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return "", false
	}
	names := make([]string, 0, len(s.subs))
	for name := range s.subs {
		names = append(names, name)
	}
	return fmt.Sprintf("%s/stream?streams=%s", s.baseURL, strings.Join(names, "/")), true
}

func (s *MarketStream) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.restarting.Store(false)
		s.mu.Lock()
		// A Subscribe may land between the loop seeing an empty registry
		// and this teardown; it observes running == true and registers
		// without starting a new loop. Re-check under the lock and keep
		// the session alive instead of stranding the subscription.
		if ctx.Err() == nil && len(s.subs) > 0 {
			go s.run(ctx, done)
			s.mu.Unlock()
			return
		}
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	delay := initialReconnectDelay
	for {
		url, ok := s.combinedURL()
		if !ok {
			s.logger.Info("no subscriptions left, stopping market stream")
			return
		}

		err := s.connectAndRead(ctx, url, &delay)
		if ctx.Err() != nil {
			return
		}
		if s.restarting.Swap(false) {
			// Graceful restart after a registry change: reconnect now.
			continue
		}

		s.reconnections.Add(1)
		s.logger.Warn("market stream disconnected, reconnecting",
			"error", err,
			"delay", delay,
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= reconnectDelayFactor
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (s *MarketStream) connectAndRead(ctx context.Context, url string, delay *time.Duration) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w: %w", ErrConnection, err)
	}
	*delay = initialReconnectDelay

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	metrics.RecordStreamStatus("market", true)
	defer func() {
		metrics.RecordStreamStatus("market", false)
		s.mu.Lock()
		conn.Close()
		s.conn = nil
		s.mu.Unlock()
	}()

	s.logger.Info("market stream connected", "url", url)

	pongCh := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongCh <- struct{}{}:
		default:
		}
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go pingLoop(pingCtx, conn, pongCh, s.logger)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w: %w", ErrWebSocket, err)
		}
		s.messages.Add(1)
		s.dispatch(msg)
	}
}

// pingLoop sends a ping every streamPingInterval and closes the socket if
// the pong does not arrive within streamPongTimeout.
func pingLoop(ctx context.Context, conn *websocket.Conn, pongCh chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Warn("ping failed", "error", err)
				conn.Close()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-pongCh:
			case <-time.After(streamPongTimeout):
				logger.Warn("pong timeout, closing socket")
				conn.Close()
				return
			}
		}
	}
}

// dispatch routes one frame to its subscriber. Combined frames carry the
// stream name; raw frames get one synthesized from the event type.
func (s *MarketStream) dispatch(msg []byte) {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		s.logger.Debug("ignoring non-json ws message", "data", string(msg))
		return
	}

	stream, data := envelope.Stream, envelope.Data
	if stream == "" {
		stream = synthesizeStreamName(msg)
		data = msg
	}
	if stream == "" {
		s.logger.Debug("frame without stream name", "data", string(msg))
		return
	}

	s.mu.Lock()
	handler, ok := s.subs[stream]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("no subscriber for stream", "stream", stream)
		return
	}

	// A panicking handler must not take down the loop or other handlers.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream handler panicked", "stream", stream, "panic", r)
		}
	}()
	handler(data)
}

// synthesizeStreamName derives the stream name from a raw (non-combined)
// frame's event type and symbol.
func synthesizeStreamName(data []byte) string {
	var frame struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Kline     struct {
			Interval string `json:"i"`
		} `json:"k"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Symbol == "" {
		return ""
	}
	symbol := strings.ToLower(frame.Symbol)
	switch frame.EventType {
	case "kline":
		return fmt.Sprintf("%s@kline_%s", symbol, frame.Kline.Interval)
	case "trade", "aggTrade":
		return symbol + "@trade"
	case "bookTicker":
		return symbol + "@bookTicker"
	default:
		return fmt.Sprintf("%s@%s", symbol, frame.EventType)
	}
}
