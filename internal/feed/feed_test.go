package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/market"
)

const (
	baseAddr  = "So11111111111111111111111111111111111111112"
	tokenAddr = "TokenMint1111111111111111111111111111111111"
)

func TestHub_SubscribePublish(t *testing.T) {
	hub := NewHub(zap.NewNop())

	var got []string
	assert.True(t, hub.Subscribe(tokenAddr, "a", func(ev market.TradeEvent) { got = append(got, "a:"+ev.Ref) }))
	assert.False(t, hub.Subscribe(tokenAddr, "a", func(market.TradeEvent) {}), "duplicate subscriber")
	assert.True(t, hub.Subscribe(tokenAddr, "b", func(ev market.TradeEvent) { got = append(got, "b:"+ev.Ref) }))
	hub.Observe(func(ev market.TradeEvent) { got = append(got, "obs:"+ev.Ref) })
	assert.Equal(t, 2, hub.Subscribers(tokenAddr))

	hub.Publish(market.TradeEvent{TokenAddress: tokenAddr, Ref: "1"})
	hub.Publish(market.TradeEvent{TokenAddress: "other", Ref: "2"})
	assert.ElementsMatch(t, []string{"obs:1", "a:1", "b:1", "obs:2"}, got)

	assert.True(t, hub.Unsubscribe(tokenAddr, "a"))
	assert.False(t, hub.Unsubscribe(tokenAddr, "a"))
	assert.True(t, hub.Unsubscribe(tokenAddr, "b"))
	assert.Empty(t, hub.Tokens())
}

func TestHub_HandlerMayUnsubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop())
	calls := 0
	hub.Subscribe(tokenAddr, "self", func(market.TradeEvent) {
		calls++
		hub.Unsubscribe(tokenAddr, "self")
	})
	hub.Publish(market.TradeEvent{TokenAddress: tokenAddr})
	hub.Publish(market.TradeEvent{TokenAddress: tokenAddr})
	assert.Equal(t, 1, calls)
}

func TestPriceBook(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	book := NewPriceBook(baseAddr, 150, time.Minute)
	book.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := book.FetchPrice(ctx, tokenAddr)
	assert.ErrorIs(t, err, market.ErrNoQuote)

	book.Record(market.TradeEvent{TokenAddress: tokenAddr, Price: 0.002, Timestamp: now.Add(-10 * time.Second)})
	book.Record(market.TradeEvent{TokenAddress: tokenAddr, Price: 0.001, Timestamp: now.Add(-20 * time.Second)})
	book.Record(market.TradeEvent{TokenAddress: tokenAddr, Price: 0, Timestamp: now})

	q, err := book.FetchPrice(ctx, tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, 0.002, q.Price, "older and zero-priced trades are ignored")
	assert.InDelta(t, 0.3, q.PriceInQuote, 1e-12)
	assert.Equal(t, 150.0, q.QuoteRate)

	base, err := book.FetchPrice(ctx, baseAddr)
	require.NoError(t, err)
	assert.Equal(t, 1.0, base.Price)
	assert.Equal(t, 150.0, base.QuoteRate)

	now = now.Add(2 * time.Minute)
	_, err = book.FetchPrice(ctx, tokenAddr)
	assert.ErrorIs(t, err, market.ErrNoQuote, "stale price")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = book.FetchPrice(cancelled, baseAddr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeTrade(t *testing.T) {
	testCases := []struct {
		name    string
		message string
		ok      bool
		wantErr bool
		token   string
	}{
		{name: "bare event", message: `{"token_address":"T","side":"buy","price":1.5,"ref":"x"}`, ok: true, token: "T"},
		{name: "channel frame", message: `["T-trades",{"side":"sell","price":2}]`, ok: true, token: "T"},
		{name: "other channel", message: `["T-orderbook",{}]`},
		{name: "empty", message: "  "},
		{name: "missing token", message: `{"price":1}`, wantErr: true},
		{name: "bad side", message: `{"token_address":"T","side":"hold"}`, wantErr: true},
		{name: "bad frame", message: `["T-trades"]`, wantErr: true},
		{name: "not json", message: `hello`, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok, err := decodeTrade([]byte(tc.message))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.token, ev.TokenAddress)
				assert.False(t, ev.Timestamp.IsZero())
			}
		})
	}
}

type collector struct {
	mu     sync.Mutex
	events []market.TradeEvent
	ch     chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 16)}
}

func (c *collector) Publish(ev market.TradeEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []market.TradeEvent {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]market.TradeEvent(nil), c.events...)
}

func TestSource_ReadsAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections atomic.Int32
	subscribed := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := connections.Add(1)

		var sub subscriptionMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub.Channel

		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`["`+tokenAddr+`-trades",{"side":"buy","price":0.001,"ref":"first"}]`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"token_address":"`+tokenAddr+`","side":"sell","price":0.002,"ref":"second"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	pub := newCollector()
	src := NewSource("ws"+strings.TrimPrefix(srv.URL, "http"), []string{tokenAddr}, pub, zap.NewNop())
	src.minBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx) }()

	events := pub.wait(t, 2)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Ref)
	assert.Equal(t, tokenAddr, events[0].TokenAddress)
	assert.Equal(t, "second", events[1].Ref)
	assert.Equal(t, market.SideSell, events[1].Side)
	assert.GreaterOrEqual(t, connections.Load(), int32(2))
	assert.Equal(t, tokenAddr+"-trades", <-subscribed)

	cancel()
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSource_DialFailureHonoursContext(t *testing.T) {
	src := NewSource("ws://127.0.0.1:1/none", nil, newCollector(), zap.NewNop())
	src.minBackoff = 5 * time.Millisecond
	src.maxBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := src.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
