// userstream.go implements the user-data WebSocket stream.
//
// The stream URL embeds a listen key obtained over REST. Key refresh lives
// in the gateway: its keepalive loop PUTs the key every 30 minutes, and
// this loop only asks the key provider for a replacement when the venue
// reports the key expired. Reconnect behavior matches the market stream.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/internal/metrics"
)

// KeyProvider returns a current listen key. refresh forces a new key when
// the previous one was rejected or expired.
type KeyProvider func(ctx context.Context, refresh bool) (string, error)

// UserStream is the authenticated account-event stream. Every frame goes
// to a single dispatcher; fan-out to subscribers happens in the gateway.
type UserStream struct {
	baseURL  string
	keyFn    KeyProvider
	dispatch StreamHandler
	logger   *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	reconnections atomic.Uint64
	messages      atomic.Uint64
}

// NewUserStream creates a user stream. Run must be called to start it.
func NewUserStream(baseURL string, keyFn KeyProvider, dispatch StreamHandler, logger *slog.Logger) *UserStream {
	return &UserStream{
		baseURL:  baseURL,
		keyFn:    keyFn,
		dispatch: dispatch,
		logger:   logger.With("component", "ws_user"),
	}
}

// Reconnections returns how many times the loop has re-dialed after a drop.
func (s *UserStream) Reconnections() uint64 { return s.reconnections.Load() }

// Messages returns the count of frames received.
func (s *UserStream) Messages() uint64 { return s.messages.Load() }

// Run connects and maintains the stream until ctx is cancelled.
func (s *UserStream) Run(ctx context.Context) {
	delay := initialReconnectDelay
	refreshKey := false

	for {
		key, err := s.keyFn(ctx, refreshKey)
		if err == nil {
			refreshKey = false
			url := fmt.Sprintf("%s/ws/%s", s.baseURL, key)
			var expired bool
			expired, err = s.connectAndRead(ctx, url, &delay)
			if expired {
				refreshKey = true
			}
		}
		if ctx.Err() != nil {
			return
		}

		s.reconnections.Add(1)
		s.logger.Warn("user stream disconnected, reconnecting",
			"error", err,
			"delay", delay,
			"refresh_key", refreshKey,
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

// connectAndRead reports expired=true when the venue announced the listen
// key's expiry, so the caller fetches a new one before redialing.
func (s *UserStream) connectAndRead(ctx context.Context, url string, delay *time.Duration) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w: %w", ErrConnection, err)
	}
	*delay = initialReconnectDelay

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	metrics.RecordStreamStatus("user", true)
	defer func() {
		metrics.RecordStreamStatus("user", false)
		s.mu.Lock()
		conn.Close()
		s.conn = nil
		s.mu.Unlock()
	}()

	s.logger.Info("user stream connected")

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
			return false, ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return false, fmt.Errorf("read: %w: %w", ErrWebSocket, err)
		}
		s.messages.Add(1)

		if eventType(msg) == "listenKeyExpired" {
			s.logger.Warn("listen key expired, reconnecting with a new key")
			return true, nil
		}
		s.dispatch(msg)
	}
}

func eventType(msg []byte) string {
	var envelope struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return ""
	}
	return envelope.EventType
}
