package orchestrator

import (
	"context"

	"github.com/your-org/strategy-runner/internal/market"
)

// TradeIntent is an order a step asks for. BaseAmount is spent on buys; Sell
// selects the quantity on sells.
type TradeIntent struct {
	Side         market.Side `json:"side"`
	TokenAddress string      `json:"token_address"`
	BaseAmount   float64     `json:"base_amount,omitempty"`
	SellQty      float64     `json:"sell_qty,omitempty"`
	SellAll      bool        `json:"sell_all,omitempty"`
}

// StepResult is the outcome of one StepEngine call.
type StepResult struct {
	Success   bool
	Completed bool
	// Context is the next execution context. Nil keeps the previous one.
	Context               *ExecutionContext
	Err                   error
	SubscriptionRequested bool
	Intents               []TradeIntent
}

// StepEngine advances a strategy by one step. ctx is cancelled when the
// instance is stopped. Implementations must not retry internally.
type StepEngine interface {
	Execute(ctx context.Context, strategyID string, ec *ExecutionContext) (StepResult, error)
}

// StepFunc adapts a function to StepEngine.
type StepFunc func(ctx context.Context, strategyID string, ec *ExecutionContext) (StepResult, error)

// Execute calls f.
func (f StepFunc) Execute(ctx context.Context, strategyID string, ec *ExecutionContext) (StepResult, error) {
	return f(ctx, strategyID, ec)
}
