package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/your-org/strategy-runner/internal/market"
	"github.com/your-org/strategy-runner/internal/position"
)

// balanceEpsilon absorbs float rounding when a trade spends the whole balance.
const balanceEpsilon = 1e-9

var (
	// ErrInvalidTrade is returned for a trade that cannot be applied.
	ErrInvalidTrade = errors.New("ledger: invalid trade")
	// ErrInsufficientFunds is returned when a buy spends more than is held.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrInsufficientPosition is returned when a sell exceeds the holding.
	ErrInsufficientPosition = errors.New("ledger: insufficient position")
)

// Balances is the starting point of a ledger.
type Balances struct {
	BaseAddress  string  `json:"base_address"`
	BaseBalance  float64 `json:"base_balance"`
	QuoteBalance float64 `json:"quote_balance"`
}

// Portfolio is the current holdings of a ledger.
type Portfolio struct {
	BaseAddress  string                       `json:"base_address"`
	BaseBalance  float64                      `json:"base_balance"`
	QuoteBalance float64                      `json:"quote_balance"`
	Positions    map[string]position.Position `json:"positions"`
}

func newPortfolio(b Balances) Portfolio {
	return Portfolio{
		BaseAddress:  b.BaseAddress,
		BaseBalance:  b.BaseBalance,
		QuoteBalance: b.QuoteBalance,
		Positions:    make(map[string]position.Position),
	}
}

// Clone returns a deep copy of the portfolio.
func (p Portfolio) Clone() Portfolio {
	c := p
	c.Positions = make(map[string]position.Position, len(p.Positions))
	for k, v := range p.Positions {
		c.Positions[k] = v
	}
	return c
}

// ValueInBase returns the base-currency value of a position.
func (p Portfolio) ValueInBase(pos position.Position) float64 {
	if pos.TokenAddress == p.BaseAddress {
		return pos.Amount
	}
	return pos.Value()
}

// PositionsValue returns the sum of all position values in the base currency.
func (p Portfolio) PositionsValue() float64 {
	total := 0.0
	for _, pos := range p.sortedPositions() {
		total += p.ValueInBase(pos)
	}
	return total
}

// TotalValue returns the base balance plus every position value.
func (p Portfolio) TotalValue() float64 {
	return p.BaseBalance + p.PositionsValue()
}

// UnrealizedPnLBase returns the mark-to-market PnL of open positions in the
// base currency.
func (p Portfolio) UnrealizedPnLBase() float64 {
	total := 0.0
	for _, pos := range p.sortedPositions() {
		if pos.TokenAddress == p.BaseAddress {
			if pos.CurrentPrice > 0 {
				total += pos.UnrealizedPnL / pos.CurrentPrice
			}
			continue
		}
		total += pos.UnrealizedPnL
	}
	return total
}

// sortedPositions returns positions in a stable order so float sums are
// reproducible.
func (p Portfolio) sortedPositions() []position.Position {
	out := make([]position.Position, 0, len(p.Positions))
	for _, pos := range p.Positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenAddress < out[j].TokenAddress })
	return out
}

// Ledger accumulates trades into a portfolio. It is not safe for concurrent use.
type Ledger struct {
	initial   Balances
	portfolio Portfolio
	trades    []Trade
	// tradePrices is the market price of the last trade per token. Unlike
	// position marks it is derived from the trade log alone.
	tradePrices map[string]float64
}

// New creates a ledger holding the initial balances and no positions.
func New(initial Balances) *Ledger {
	return &Ledger{
		initial:     initial,
		portfolio:   newPortfolio(initial),
		tradePrices: make(map[string]float64),
	}
}

// Initial returns the starting balances.
func (l *Ledger) Initial() Balances {
	return l.initial
}

// Portfolio returns a copy of the current portfolio.
func (l *Ledger) Portfolio() Portfolio {
	return l.portfolio.Clone()
}

// Trades returns a copy of the trade log.
func (l *Ledger) Trades() []Trade {
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Check reports whether t could be applied without changing anything.
func (l *Ledger) Check(t Trade) error {
	_, err := apply(l.portfolio, t)
	return err
}

// AddTrade applies t to the portfolio and appends it to the log. It returns
// the trade stamped with the resulting balances. TotalValueAfter values
// positions at their last traded price, never at a mark, so replaying the log
// stamps the same values. On error nothing changes.
func (l *Ledger) AddTrade(t Trade) (Trade, error) {
	next, err := apply(l.portfolio, t)
	if err != nil {
		return Trade{}, err
	}
	l.tradePrices[t.TokenAddress] = t.MarketPrice
	t.BaseBalanceAfter = next.BaseBalance
	t.QuoteBalanceAfter = next.QuoteBalance
	t.TotalValueAfter = valueAtTradePrices(next, l.tradePrices)
	l.portfolio = next
	l.trades = append(l.trades, t)
	return t, nil
}

// Mark refreshes the current price of a held position.
func (l *Ledger) Mark(tokenAddress string, price float64) bool {
	pos, ok := l.portfolio.Positions[tokenAddress]
	if !ok {
		return false
	}
	l.portfolio.Positions[tokenAddress] = pos.Mark(price)
	return true
}

// valueAtTradePrices is TotalValue with every token position priced at its
// last traded price.
func valueAtTradePrices(p Portfolio, prices map[string]float64) float64 {
	total := p.BaseBalance
	for _, pos := range p.sortedPositions() {
		if pos.TokenAddress == p.BaseAddress {
			total += pos.Amount
			continue
		}
		total += pos.Amount * prices[pos.TokenAddress]
	}
	return total
}

// apply computes the portfolio that results from t without touching p.
func apply(p Portfolio, t Trade) (Portfolio, error) {
	if t.TokenAddress == "" || !t.Side.Valid() {
		return p, fmt.Errorf("%w: side %q token %q", ErrInvalidTrade, t.Side, t.TokenAddress)
	}
	if t.TokenAmount <= 0 || t.FundsAmount < 0 || t.ExecutionPrice <= 0 {
		return p, fmt.Errorf("%w: amounts must be positive", ErrInvalidTrade)
	}
	if (t.Leg == LegBase) != (t.TokenAddress == p.BaseAddress) {
		return p, fmt.Errorf("%w: leg %q does not match token %q", ErrInvalidTrade, t.Leg, t.TokenAddress)
	}

	next := p.Clone()
	funds := &next.BaseBalance
	if t.Leg == LegBase {
		funds = &next.QuoteBalance
	}

	pos, held := next.Positions[t.TokenAddress]
	switch t.Side {
	case market.SideBuy:
		if t.FundsAmount > *funds+balanceEpsilon {
			return p, fmt.Errorf("%w: need %.8f, have %.8f", ErrInsufficientFunds, t.FundsAmount, *funds)
		}
		*funds = clampZero(*funds - t.FundsAmount)
		if !held {
			pos = position.New(t.TokenAddress)
		}
		pos = pos.ApplyBuy(t.TokenAmount, t.ExecutionPrice, t.FundsAmount).Mark(t.MarketPrice)
		next.Positions[t.TokenAddress] = pos
	case market.SideSell:
		if !held || t.TokenAmount > pos.Amount+balanceEpsilon {
			return p, fmt.Errorf("%w: sell %.8f, hold %.8f", ErrInsufficientPosition, t.TokenAmount, pos.Amount)
		}
		*funds += t.FundsAmount
		pos, _ = pos.ApplySell(t.TokenAmount)
		if pos.Closed() {
			delete(next.Positions, t.TokenAddress)
		} else {
			next.Positions[t.TokenAddress] = pos.Mark(t.MarketPrice)
		}
	}
	return next, nil
}

func clampZero(v float64) float64 {
	if v < 0 && v > -balanceEpsilon {
		return 0
	}
	return v
}
