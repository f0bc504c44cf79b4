package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/market"
)

const tradesChannelSuffix = "-trades"

// Publisher receives decoded trade events.
type Publisher interface {
	Publish(ev market.TradeEvent)
}

type subscriptionMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Source reads trade events from a websocket endpoint and publishes them.
// Frames are either a bare TradeEvent object or a two-element array
// ["<token>-trades", TradeEvent].
type Source struct {
	url    string
	pub    Publisher
	dialer *websocket.Dialer
	logger *zap.Logger

	pingInterval time.Duration
	readTimeout  time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration

	mu     sync.Mutex
	tokens map[string]struct{}
	conn   *websocket.Conn
}

// NewSource creates a Source for url that subscribes to tokens on every
// connection.
func NewSource(url string, tokens []string, pub Publisher, logger *zap.Logger) *Source {
	s := &Source{
		url:          url,
		pub:          pub,
		dialer:       websocket.DefaultDialer,
		logger:       logger.Named("feed-source"),
		pingInterval: 30 * time.Second,
		readTimeout:  90 * time.Second,
		minBackoff:   time.Second,
		maxBackoff:   time.Minute,
		tokens:       make(map[string]struct{}),
	}
	for _, t := range tokens {
		if t != "" {
			s.tokens[t] = struct{}{}
		}
	}
	return s
}

// Track adds token to the subscription set, subscribing immediately when
// connected.
func (s *Source) Track(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token]; ok || token == "" {
		return
	}
	s.tokens[token] = struct{}{}
	if s.conn != nil {
		if err := s.subscribeLocked(token); err != nil {
			s.logger.Error("Failed to subscribe", zap.String("token", token), zap.Error(err))
		}
	}
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff when the connection is lost.
func (s *Source) Run(ctx context.Context) error {
	backoff := s.minBackoff
	attempt := 0
	for {
		connected, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = s.minBackoff
			attempt = 0
		}
		attempt++
		s.logger.Error("Feed connection lost, reconnecting",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// runOnce serves one connection. connected reports whether the dial
// succeeded.
func (s *Source) runOnce(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.url, err)
	}
	s.logger.Info("Connected to feed", zap.String("url", s.url))

	s.mu.Lock()
	s.conn = conn
	for token := range s.tokens {
		if err := s.subscribeLocked(token); err != nil {
			s.conn = nil
			s.mu.Unlock()
			conn.Close()
			return true, err
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	s.setReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		s.setReadDeadline(conn)
		return nil
	})

	done := make(chan error, 1)
	go func() {
		done <- s.readLoop(conn)
	}()

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case err := <-done:
			return true, err
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return true, fmt.Errorf("ping: %w", err)
			}
		case <-ctx.Done():
			s.logger.Info("Closing feed connection")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			select {
			case <-done:
			case <-time.After(2 * time.Second):
			}
			return true, ctx.Err()
		}
	}
}

func (s *Source) readLoop(conn *websocket.Conn) error {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("feed closed the connection")
			}
			return fmt.Errorf("read: %w", err)
		}
		s.setReadDeadline(conn)
		if messageType != websocket.TextMessage {
			continue
		}
		ev, ok, err := decodeTrade(message)
		if err != nil {
			s.logger.Warn("Discarding malformed feed message", zap.ByteString("message", message), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		s.pub.Publish(ev)
	}
}

func (s *Source) setReadDeadline(conn *websocket.Conn) {
	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

func (s *Source) subscribeLocked(token string) error {
	channel := token + tradesChannelSuffix
	s.logger.Info("Subscribing to channel", zap.String("channel", channel))
	return s.conn.WriteJSON(subscriptionMessage{Type: "subscribe", Channel: channel})
}

// decodeTrade parses a feed frame. ok is false for frames that carry no
// trade, such as keepalives or other channels.
func decodeTrade(message []byte) (market.TradeEvent, bool, error) {
	var ev market.TradeEvent
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) == 0 {
		return ev, false, nil
	}

	if trimmed[0] == '[' {
		var frame []json.RawMessage
		if err := json.Unmarshal(trimmed, &frame); err != nil {
			return ev, false, err
		}
		if len(frame) != 2 {
			return ev, false, fmt.Errorf("expected 2 elements, got %d", len(frame))
		}
		var channel string
		if err := json.Unmarshal(frame[0], &channel); err != nil {
			return ev, false, fmt.Errorf("channel name: %w", err)
		}
		if !strings.HasSuffix(channel, tradesChannelSuffix) {
			return ev, false, nil
		}
		if err := json.Unmarshal(frame[1], &ev); err != nil {
			return ev, false, err
		}
		if ev.TokenAddress == "" {
			ev.TokenAddress = strings.TrimSuffix(channel, tradesChannelSuffix)
		}
	} else {
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return ev, false, err
		}
	}

	if ev.TokenAddress == "" {
		return ev, false, errors.New("missing token_address")
	}
	if ev.Side != "" && !ev.Side.Valid() {
		return ev, false, fmt.Errorf("unknown side %q", ev.Side)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev, true, nil
}
