package main

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/csvwriter"
	"github.com/your-org/strategy-runner/internal/ledger"
	"github.com/your-org/strategy-runner/internal/market"
)

const tokenAddr = "TokenMint1111111111111111111111111111111111"

func sampleState(t *testing.T) ledger.State {
	t.Helper()
	l := ledger.New(ledger.Balances{BaseAddress: "So11111111111111111111111111111111111111112", BaseBalance: 10})
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := l.AddTrade(ledger.Trade{
		ID: "b1", Side: market.SideBuy, Leg: ledger.LegToken, TokenAddress: tokenAddr,
		TokenAmount: 1000, FundsAmount: 1, MarketPrice: 0.001, ExecutionPrice: 0.001, Timestamp: t0,
	})
	require.NoError(t, err)
	_, err = l.AddTrade(ledger.Trade{
		ID: "s1", Side: market.SideSell, Leg: ledger.LegToken, TokenAddress: tokenAddr,
		TokenAmount: 500, FundsAmount: 1, MarketPrice: 0.002, ExecutionPrice: 0.002,
		CostBasis: 0.5, RealizedPnL: 0.5, RealizedPnLBase: 0.5, Timestamp: t0.Add(time.Hour),
	})
	require.NoError(t, err)
	return l.ExportState()
}

func TestExport(t *testing.T) {
	var trades, metrics bytes.Buffer
	m, err := export(sampleState(t), &trades, &metrics, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalTrades)
	assert.InDelta(t, 0.5, m.RealizedPnL, 1e-9)

	records, err := csv.NewReader(&trades).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvwriter.TradeHeader, records[0])
	assert.Equal(t, "b1", records[1][1])
	assert.Equal(t, "s1", records[2][1])

	assert.Contains(t, metrics.String(), "total_trades,2")
}

func TestExport_RejectsTamperedSnapshot(t *testing.T) {
	state := sampleState(t)
	state.Portfolio.BaseBalance += 1

	var trades bytes.Buffer
	_, err := export(state, &trades, nil, zap.NewNop())
	assert.Error(t, err)
	assert.Zero(t, trades.Len())
}
