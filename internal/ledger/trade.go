// Package ledger implements pure portfolio accounting over an append-only
// trade log.
package ledger

import (
	"time"

	"github.com/your-org/strategy-runner/internal/market"
)

// Leg identifies which balance funds a trade and how it is priced.
type Leg string

const (
	// LegToken trades an arbitrary token against the base balance, priced
	// from the token/base rate.
	LegToken Leg = "token"
	// LegBase trades the base currency itself against the quote balance,
	// priced from the base/quote rate.
	LegBase Leg = "base"
)

// Fees is the fee breakdown of a single trade, in the funding currency.
type Fees struct {
	Trading float64 `json:"trading"`
	Network float64 `json:"network"`
	Total   float64 `json:"total"`
}

// Trade is an immutable record of one simulated fill.
type Trade struct {
	ID           string      `json:"id"`
	SessionID    string      `json:"session_id"`
	Side         market.Side `json:"side"`
	Leg          Leg         `json:"leg"`
	TokenAddress string      `json:"token_address"`

	// RequestedAmount is the funding amount for buys and the token quantity
	// for sells, as asked by the caller.
	RequestedAmount float64 `json:"requested_amount"`
	SellAll         bool    `json:"sell_all,omitempty"`

	// TokenAmount is the quantity received on a buy or sold on a sell.
	TokenAmount float64 `json:"token_amount"`
	// FundsAmount is the funding currency spent on a buy, fees included,
	// or the net proceeds received on a sell.
	FundsAmount float64 `json:"funds_amount"`

	MarketPrice    float64 `json:"market_price"`
	ExecutionPrice float64 `json:"execution_price"`
	SlippagePct    float64 `json:"slippage_pct"`
	Fees           Fees    `json:"fees"`

	// CostBasis and RealizedPnL are set on sells only, in the funding currency.
	CostBasis   float64 `json:"cost_basis"`
	RealizedPnL float64 `json:"realized_pnl"`
	// RealizedPnLBase is RealizedPnL converted to the base currency.
	RealizedPnLBase float64 `json:"realized_pnl_base"`

	BaseBalanceAfter  float64 `json:"base_balance_after"`
	QuoteBalanceAfter float64 `json:"quote_balance_after"`
	TotalValueAfter   float64 `json:"total_value_after"`

	Synthetic bool      `json:"synthetic,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsBuy reports whether the trade is a buy.
func (t Trade) IsBuy() bool {
	return t.Side == market.SideBuy
}

// IsSell reports whether the trade is a sell.
func (t Trade) IsSell() bool {
	return t.Side == market.SideSell
}

// FeesInBase returns the total fee converted to the base currency.
func (t Trade) FeesInBase() float64 {
	if t.Leg == LegBase && t.ExecutionPrice > 0 {
		return t.Fees.Total / t.ExecutionPrice
	}
	return t.Fees.Total
}
