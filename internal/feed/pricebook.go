package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/your-org/strategy-runner/internal/market"
)

// PriceBook is a PriceOracle that quotes the last observed trade price of
// each token.
type PriceBook struct {
	mu          sync.RWMutex
	baseAddress string
	quoteRate   float64
	maxAge      time.Duration
	now         func() time.Time
	last        map[string]market.TradeEvent
}

// NewPriceBook creates a PriceBook. quoteRate is the base/quote rate attached
// to every quote; maxAge, when positive, rejects older prices.
func NewPriceBook(baseAddress string, quoteRate float64, maxAge time.Duration) *PriceBook {
	return &PriceBook{
		baseAddress: baseAddress,
		quoteRate:   quoteRate,
		maxAge:      maxAge,
		now:         time.Now,
		last:        make(map[string]market.TradeEvent),
	}
}

// Record stores ev as the latest trade of its token. Events without a
// positive price or older than the stored one are ignored.
func (b *PriceBook) Record(ev market.TradeEvent) {
	if !(market.Quote{Price: ev.Price}).Valid() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.last[ev.TokenAddress]; ok && ev.Timestamp.Before(prev.Timestamp) {
		return
	}
	b.last[ev.TokenAddress] = ev
}

// SetQuoteRate updates the base/quote rate.
func (b *PriceBook) SetQuoteRate(rate float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quoteRate = rate
}

// FetchPrice returns the latest quote for token. The base currency is always
// quoted at 1 with the configured rate.
func (b *PriceBook) FetchPrice(ctx context.Context, token string) (market.Quote, error) {
	if err := ctx.Err(); err != nil {
		return market.Quote{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	now := b.now()
	if token == b.baseAddress {
		return market.Quote{
			TokenAddress: token,
			Price:        1,
			PriceInQuote: b.quoteRate,
			QuoteRate:    b.quoteRate,
			Source:       "pricebook",
			Timestamp:    now,
		}, nil
	}
	ev, ok := b.last[token]
	if !ok {
		return market.Quote{}, fmt.Errorf("%w: %s", market.ErrNoQuote, token)
	}
	if b.maxAge > 0 && now.Sub(ev.Timestamp) > b.maxAge {
		return market.Quote{}, fmt.Errorf("%w: %s last traded %s ago", market.ErrNoQuote, token, now.Sub(ev.Timestamp).Truncate(time.Second))
	}
	return market.Quote{
		TokenAddress: token,
		Price:        ev.Price,
		PriceInQuote: ev.Price * b.quoteRate,
		QuoteRate:    b.quoteRate,
		Source:       "pricebook",
		Timestamp:    ev.Timestamp,
	}, nil
}
