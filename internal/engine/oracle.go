package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/your-org/strategy-runner/internal/ledger"
	"github.com/your-org/strategy-runner/internal/market"
)

// retry calls fn up to attempts times with exponential backoff starting at
// baseDelay. It returns nil on the first success, or the last error.
func retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		// Don't sleep after the last failed attempt.
		if attempt == attempts-1 {
			break
		}
		if delay <= 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}

// fetchPrice returns the market price for a leg: the token/base price for
// LegToken and the base/quote rate for LegBase. Quotes without a valid
// positive price count as failed attempts.
func (e *SimulationEngine) fetchPrice(ctx context.Context, token string, leg ledger.Leg) (float64, error) {
	var price float64
	err := retry(ctx, e.cfg.PriceRetryAttempts, e.cfg.PriceRetryBaseDelay, func() error {
		q, err := e.oracle.FetchPrice(ctx, token)
		if err != nil {
			return err
		}
		switch {
		case leg == ledger.LegBase && q.ValidRate():
			price = q.QuoteRate
		case leg == ledger.LegToken && q.Valid():
			price = q.Price
		default:
			return market.ErrNoQuote
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s after %d attempts: %v", ErrMarketDataUnavailable, token, e.cfg.PriceRetryAttempts, err)
	}
	return price, nil
}
