package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// State is a serializable snapshot of a ledger.
type State struct {
	ExportedAt time.Time `json:"exported_at"`
	Initial    Balances  `json:"initial"`
	Portfolio  Portfolio `json:"portfolio"`
	Trades     []Trade   `json:"trades"`
}

// ExportState returns a deep copy of the ledger state.
func (l *Ledger) ExportState() State {
	return State{
		ExportedAt: time.Now().UTC(),
		Initial:    l.initial,
		Portfolio:  l.Portfolio(),
		Trades:     l.Trades(),
	}
}

// ImportState replaces the ledger contents with s. The trade log is replayed
// and must reproduce the snapshot portfolio; on mismatch the ledger is left
// unchanged.
func (l *Ledger) ImportState(s State) error {
	replayed, err := Replay(s.Initial, s.Trades)
	if err != nil {
		return err
	}
	if s.Portfolio.Positions == nil {
		s.Portfolio.Positions = newPortfolio(s.Initial).Positions
	}
	if err := Compare(replayed.portfolio, s.Portfolio); err != nil {
		return fmt.Errorf("ledger: snapshot does not match its trade log: %w", err)
	}
	l.initial = s.Initial
	// Keep marked prices from the snapshot.
	l.portfolio = s.Portfolio.Clone()
	l.trades = replayed.trades
	l.tradePrices = replayed.tradePrices
	return nil
}

// Replay rebuilds a ledger by applying trades, in order, to the initial
// balances.
func Replay(initial Balances, trades []Trade) (*Ledger, error) {
	l := New(initial)
	for i, t := range trades {
		if _, err := l.AddTrade(t); err != nil {
			return nil, fmt.Errorf("replay trade %d (%s): %w", i, t.ID, err)
		}
	}
	return l, nil
}

// Compare checks that two portfolios hold the same balances and positions.
// Mark-to-market fields are not compared.
func Compare(expected, actual Portfolio) error {
	if expected.BaseAddress != actual.BaseAddress {
		return fmt.Errorf("base address mismatch: expected=%s actual=%s", expected.BaseAddress, actual.BaseAddress)
	}
	if !sameFloat(expected.BaseBalance, actual.BaseBalance) {
		return fmt.Errorf("base balance mismatch: expected=%v actual=%v", expected.BaseBalance, actual.BaseBalance)
	}
	if !sameFloat(expected.QuoteBalance, actual.QuoteBalance) {
		return fmt.Errorf("quote balance mismatch: expected=%v actual=%v", expected.QuoteBalance, actual.QuoteBalance)
	}
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("position count mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	for token, want := range expected.Positions {
		got, ok := actual.Positions[token]
		if !ok {
			return fmt.Errorf("missing position: %s", token)
		}
		if !sameFloat(want.Amount, got.Amount) ||
			!sameFloat(want.AverageEntryPrice, got.AverageEntryPrice) ||
			!sameFloat(want.TotalInvestedBase, got.TotalInvestedBase) {
			return fmt.Errorf("position mismatch for %s: expected=%s actual=%s", token, want, got)
		}
	}
	return nil
}

// Equal reports whether Compare finds no difference.
func Equal(a, b Portfolio) bool {
	return Compare(a, b) == nil
}

// sameFloat is exact equality that survives a JSON round trip.
func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// WriteSnapshot writes a ledger state to disk as JSON.
func WriteSnapshot(path string, s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a ledger state from disk.
func ReadSnapshot(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, err
	}
	return s, nil
}
