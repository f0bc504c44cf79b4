// Package market defines the price and trade-event types shared by the
// simulation engine, the orchestrator and the feed.
package market

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrNoQuote is returned by an oracle that has no price for a token.
var ErrNoQuote = errors.New("market: no quote available")

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Quote is a single price observation for a token.
type Quote struct {
	TokenAddress string `json:"token_address"`
	// Price is the token price denominated in the base currency.
	Price float64 `json:"price"`
	// PriceInQuote is the token price denominated in the quote currency.
	PriceInQuote float64 `json:"price_in_quote"`
	// QuoteRate is the base currency price denominated in the quote currency.
	QuoteRate float64   `json:"quote_rate"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the quote carries a usable positive price.
func (q Quote) Valid() bool {
	return validPrice(q.Price)
}

// ValidRate reports whether the quote carries a usable base/quote rate.
func (q Quote) ValidRate() bool {
	return validPrice(q.QuoteRate)
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// TradeEvent is a real trade observed on the market for a token.
type TradeEvent struct {
	TokenAddress string    `json:"token_address"`
	Side         Side      `json:"side"`
	BaseAmount   float64   `json:"base_amount"`
	TokenAmount  float64   `json:"token_amount"`
	Price        float64   `json:"price"`
	Timestamp    time.Time `json:"timestamp"`
	Ref          string    `json:"ref"`
}

// PriceOracle supplies current prices. Implementations may be slow or
// unavailable; retries are the caller's responsibility.
type PriceOracle interface {
	FetchPrice(ctx context.Context, tokenAddress string) (Quote, error)
}

// TradeHandler receives trade events for a subscription.
type TradeHandler func(ev TradeEvent)

// EventFeed is a per-token publish/subscribe source of trade events.
type EventFeed interface {
	// Subscribe registers h for tokenAddress under subscriberID. It returns
	// false if the subscriber is already registered for that token.
	Subscribe(tokenAddress, subscriberID string, h TradeHandler) bool
	// Unsubscribe removes a registration and reports whether it existed.
	Unsubscribe(tokenAddress, subscriberID string) bool
}
