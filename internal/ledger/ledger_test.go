package ledger

import (
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/strategy-runner/internal/market"
)

const (
	baseAddr  = "So11111111111111111111111111111111111111112"
	tokenAddr = "TokenAAA"
)

var t0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func buyTrade(token string, funds, price float64) Trade {
	leg := LegToken
	if token == baseAddr {
		leg = LegBase
	}
	return Trade{
		ID:              "b-" + token,
		Side:            market.SideBuy,
		Leg:             leg,
		TokenAddress:    token,
		RequestedAmount: funds,
		TokenAmount:     funds / price,
		FundsAmount:     funds,
		MarketPrice:     price,
		ExecutionPrice:  price,
		Timestamp:       t0,
	}
}

func sellTrade(token string, qty, price, avgEntry float64) Trade {
	leg := LegToken
	if token == baseAddr {
		leg = LegBase
	}
	proceeds := qty * price
	return Trade{
		ID:              "s-" + token,
		Side:            market.SideSell,
		Leg:             leg,
		TokenAddress:    token,
		RequestedAmount: qty,
		TokenAmount:     qty,
		FundsAmount:     proceeds,
		MarketPrice:     price,
		ExecutionPrice:  price,
		CostBasis:       qty * avgEntry,
		RealizedPnL:     proceeds - qty*avgEntry,
		Timestamp:       t0,
	}
}

func TestLedger_AddTradeBuyAndSell(t *testing.T) {
	l := New(Balances{BaseAddress: baseAddr, BaseBalance: 10})

	stamped, err := l.AddTrade(buyTrade(tokenAddr, 1, 100))
	require.NoError(t, err)
	assert.InDelta(t, 9, stamped.BaseBalanceAfter, 1e-12)
	assert.InDelta(t, 10, stamped.TotalValueAfter, 1e-12)

	p := l.Portfolio()
	require.Contains(t, p.Positions, tokenAddr)
	assert.InDelta(t, 0.01, p.Positions[tokenAddr].Amount, 1e-12)
	assert.Equal(t, 100.0, p.Positions[tokenAddr].AverageEntryPrice)

	_, err = l.AddTrade(sellTrade(tokenAddr, 0.01, 120, 100))
	require.NoError(t, err)
	p = l.Portfolio()
	assert.NotContains(t, p.Positions, tokenAddr, "fully sold position is closed")
	assert.InDelta(t, 10.2, p.BaseBalance, 1e-9)
	assert.Len(t, l.Trades(), 2)
}

func TestLedger_RejectsWithoutMutation(t *testing.T) {
	l := New(Balances{BaseAddress: baseAddr, BaseBalance: 1})
	_, err := l.AddTrade(buyTrade(tokenAddr, 0.5, 10))
	require.NoError(t, err)
	before := l.ExportState()

	_, err = l.AddTrade(buyTrade(tokenAddr, 5, 10))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = l.AddTrade(sellTrade(tokenAddr, 1, 10, 10))
	assert.ErrorIs(t, err, ErrInsufficientPosition)

	_, err = l.AddTrade(sellTrade("Unknown", 1, 10, 10))
	assert.ErrorIs(t, err, ErrInsufficientPosition)

	bad := buyTrade(tokenAddr, 0.1, 10)
	bad.Leg = LegBase
	_, err = l.AddTrade(bad)
	assert.ErrorIs(t, err, ErrInvalidTrade)

	after := l.ExportState()
	assert.Empty(t, cmp.Diff(before.Portfolio, after.Portfolio))
	assert.Equal(t, before.Trades, after.Trades)
}

func TestLedger_BaseLegUsesQuoteBalance(t *testing.T) {
	l := New(Balances{BaseAddress: baseAddr, BaseBalance: 1, QuoteBalance: 500})

	_, err := l.AddTrade(buyTrade(baseAddr, 200, 100))
	require.NoError(t, err)
	p := l.Portfolio()
	assert.Equal(t, 300.0, p.QuoteBalance)
	assert.Equal(t, 1.0, p.BaseBalance, "base leg does not touch the base balance")
	assert.InDelta(t, 3.0, p.TotalValue(), 1e-12, "base position counts at face value")

	_, err = l.AddTrade(sellTrade(baseAddr, 1, 110, 100))
	require.NoError(t, err)
	p = l.Portfolio()
	assert.Equal(t, 410.0, p.QuoteBalance)
	assert.InDelta(t, 1.0, p.Positions[baseAddr].Amount, 1e-12)
}

func TestLedger_Mark(t *testing.T) {
	l := New(Balances{BaseAddress: baseAddr, BaseBalance: 10})
	_, err := l.AddTrade(buyTrade(tokenAddr, 2, 100))
	require.NoError(t, err)

	assert.True(t, l.Mark(tokenAddr, 150))
	assert.False(t, l.Mark("missing", 1))
	p := l.Portfolio()
	assert.InDelta(t, 1.0, p.Positions[tokenAddr].UnrealizedPnL, 1e-12)
	assert.InDelta(t, 11.0, p.TotalValue(), 1e-12)
	assert.InDelta(t, 1.0, p.UnrealizedPnLBase(), 1e-12)
}

func TestLedger_TotalValueAfterIgnoresMarks(t *testing.T) {
	l := New(Balances{BaseAddress: baseAddr, BaseBalance: 10})
	_, err := l.AddTrade(buyTrade(tokenAddr, 2, 100))
	require.NoError(t, err)
	require.True(t, l.Mark(tokenAddr, 300))

	stamped, err := l.AddTrade(buyTrade("OtherToken", 1, 1))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, stamped.TotalValueAfter, 1e-12, "positions are valued at their last traded price")
	assert.InDelta(t, 14.0, l.Portfolio().TotalValue(), 1e-12, "the portfolio keeps the mark")

	replayed, err := Replay(l.Initial(), l.Trades())
	require.NoError(t, err)
	assert.Equal(t, l.Trades(), replayed.Trades())
}

// randomTrades builds a valid random trade sequence by feeding a scratch ledger.
func randomTrades(t *testing.T, rng *rand.Rand, initial Balances, n int) []Trade {
	t.Helper()
	scratch := New(initial)
	tokens := []string{"TokA", "TokB", "TokC", baseAddr}
	var out []Trade
	for len(out) < n {
		token := tokens[rng.Intn(len(tokens))]
		price := 0.001 + rng.Float64()*200
		p := scratch.Portfolio()
		pos, held := p.Positions[token]
		var tr Trade
		if held && rng.Intn(2) == 0 {
			qty := pos.Amount * (0.1 + rng.Float64()*0.9)
			if rng.Intn(4) == 0 {
				qty = pos.Amount
			}
			tr = sellTrade(token, qty, price, pos.AverageEntryPrice)
		} else {
			funds := p.BaseBalance
			if token == baseAddr {
				funds = p.QuoteBalance
			}
			if funds <= 0.01 {
				continue
			}
			tr = buyTrade(token, funds*rng.Float64()*0.3, price)
		}
		stamped, err := scratch.AddTrade(tr)
		require.NoError(t, err)
		out = append(out, stamped)
	}
	return out
}

func TestReplay_ReproducesPortfolio(t *testing.T) {
	initial := Balances{BaseAddress: baseAddr, BaseBalance: 10, QuoteBalance: 1000}
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		live := New(initial)
		for _, tr := range randomTrades(t, rng, initial, 60) {
			_, err := live.AddTrade(tr)
			require.NoError(t, err)
		}

		replayed, err := Replay(initial, live.Trades())
		require.NoError(t, err)

		assert.Empty(t, cmp.Diff(live.Portfolio(), replayed.Portfolio()), "seed %d", seed)
		assert.Empty(t, cmp.Diff(live.Trades(), replayed.Trades()), "seed %d", seed)
		assert.True(t, Equal(live.Portfolio(), replayed.Portfolio()))
	}
}

func TestReplay_RejectsInvalidLog(t *testing.T) {
	_, err := Replay(Balances{BaseAddress: baseAddr, BaseBalance: 1}, []Trade{sellTrade(tokenAddr, 1, 1, 1)})
	assert.ErrorIs(t, err, ErrInsufficientPosition)
}

func TestSnapshot_RoundTripAndImport(t *testing.T) {
	initial := Balances{BaseAddress: baseAddr, BaseBalance: 10, QuoteBalance: 100}
	live := New(initial)
	rng := rand.New(rand.NewSource(42))
	for _, tr := range randomTrades(t, rng, initial, 25) {
		_, err := live.AddTrade(tr)
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "snapshots", "session.json")
	require.NoError(t, WriteSnapshot(path, live.ExportState()))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)

	restored := New(Balances{})
	require.NoError(t, restored.ImportState(loaded))
	assert.Empty(t, cmp.Diff(live.Portfolio(), restored.Portfolio(), cmpopts.EquateApprox(0, 1e-12)))
	assert.Equal(t, initial, restored.Initial())

	// A snapshot whose portfolio disagrees with its own log is refused.
	loaded.Portfolio.BaseBalance += 1
	before := restored.ExportState()
	assert.Error(t, restored.ImportState(loaded))
	assert.True(t, Equal(before.Portfolio, restored.Portfolio()))
}

func TestReadSnapshot_Missing(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
