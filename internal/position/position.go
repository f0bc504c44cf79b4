package position

import (
	"fmt"
)

// dustThreshold is the remaining amount below which a position counts as closed.
const dustThreshold = 1e-12

// Position holds the state of an open token holding.
// Position is a value type; callers own synchronization.
type Position struct {
	TokenAddress      string  `json:"token_address"`
	Amount            float64 `json:"amount"`
	AverageEntryPrice float64 `json:"average_entry_price"`
	TotalInvestedBase float64 `json:"total_invested_base"`
	CurrentPrice      float64 `json:"current_price"`
	UnrealizedPnL     float64 `json:"unrealized_pnl"`
}

// New creates an empty Position for the given token.
func New(tokenAddress string) Position {
	return Position{TokenAddress: tokenAddress}
}

// ApplyBuy adds amount tokens bought at price and recomputes the
// trade-weighted average entry price. invested is the funding currency
// spent, fees included. The current price is left to Mark.
func (p Position) ApplyBuy(amount, price, invested float64) Position {
	if amount <= 0 {
		return p
	}
	// If there is no existing position, the trade simply opens a new one.
	if p.Amount <= 0 {
		p.Amount = amount
		p.AverageEntryPrice = price
		p.TotalInvestedBase = invested
	} else {
		currentValue := p.Amount * p.AverageEntryPrice
		tradeValue := amount * price
		newAmount := p.Amount + amount
		p.AverageEntryPrice = (currentValue + tradeValue) / newAmount
		p.Amount = newAmount
		p.TotalInvestedBase += invested
	}
	return p
}

// ApplySell removes amount tokens and returns the updated position and the
// cost basis of the removed amount. The average entry price never changes
// on a sell. The caller must ensure amount does not exceed the holding.
func (p Position) ApplySell(amount float64) (Position, float64) {
	if amount <= 0 {
		return p, 0
	}
	costBasis := amount * p.AverageEntryPrice
	remaining := p.Amount - amount
	if remaining <= dustThreshold {
		p.Amount = 0
		p.TotalInvestedBase = 0
		p.UnrealizedPnL = 0
		return p, costBasis
	}
	// Invested capital shrinks with the fraction sold.
	p.TotalInvestedBase *= remaining / p.Amount
	p.Amount = remaining
	return p, costBasis
}

// Mark updates the current price and unrealized PnL.
func (p Position) Mark(price float64) Position {
	if price > 0 {
		p.CurrentPrice = price
	}
	p.UnrealizedPnL = (p.CurrentPrice - p.AverageEntryPrice) * p.Amount
	return p
}

// Value returns the position value at its current price.
func (p Position) Value() float64 {
	return p.Amount * p.CurrentPrice
}

// Closed reports whether nothing is held.
func (p Position) Closed() bool {
	return p.Amount <= dustThreshold
}

// String returns a string representation of the position.
func (p Position) String() string {
	return fmt.Sprintf("Position{Token: %s, Amount: %.8f, AvgEntryPrice: %.8f, CurrentPrice: %.8f}",
		p.TokenAddress, p.Amount, p.AverageEntryPrice, p.CurrentPrice)
}
