package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/strategy-runner/internal/ledger"
	"github.com/your-org/strategy-runner/internal/market"
	"github.com/your-org/strategy-runner/internal/report"
	"github.com/your-org/strategy-runner/pkg/logger"
)

type fakeStore struct {
	sessions []report.Session
	trades   map[string][]ledger.Trade
	loadErr  map[string]error
	saveErr  error
	saved    map[string]report.Metrics
}

func (f *fakeStore) ListSessions(context.Context) ([]report.Session, error) {
	return f.sessions, nil
}

func (f *fakeStore) LoadSessionTrades(_ context.Context, id string) ([]ledger.Trade, error) {
	if err := f.loadErr[id]; err != nil {
		return nil, err
	}
	return f.trades[id], nil
}

func (f *fakeStore) SaveSessionReport(_ context.Context, id string, m report.Metrics) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.saved == nil {
		f.saved = make(map[string]report.Metrics)
	}
	f.saved[id] = m
	return nil
}

func TestRunReportGeneration(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		sessions: []report.Session{
			{SessionID: "win", StrategyID: "dca", InitialValue: 10},
			{SessionID: "synthetic-only", StrategyID: "dca", InitialValue: 10},
			{SessionID: "broken", StrategyID: "dca", InitialValue: 10},
		},
		trades: map[string][]ledger.Trade{
			"win": {
				{Side: market.SideBuy, TokenAmount: 1000, FundsAmount: 1, TotalValueAfter: 10, Timestamp: t0},
				{Side: market.SideSell, TokenAmount: 1000, FundsAmount: 2, CostBasis: 1, RealizedPnL: 1, RealizedPnLBase: 1, TotalValueAfter: 11, Timestamp: t0.Add(time.Hour)},
			},
			"synthetic-only": {
				{Side: market.SideBuy, Synthetic: true, TotalValueAfter: 10, Timestamp: t0},
			},
		},
		loadErr: map[string]error{"broken": errors.New("connection reset")},
	}

	saved := runReportGeneration(context.Background(), store, logger.NewLogger("error"))
	assert.Equal(t, 1, saved)
	require.Contains(t, store.saved, "win")
	m := store.saved["win"]
	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.InDelta(t, 1.0, m.RealizedPnL, 1e-12)
	assert.InDelta(t, 10.0, m.ROIPercent, 1e-9)
	assert.NotContains(t, store.saved, "synthetic-only", "sessions without executed trades are skipped")
}

func TestRunReportGeneration_SaveError(t *testing.T) {
	store := &fakeStore{
		sessions: []report.Session{{SessionID: "s", InitialValue: 1}},
		trades: map[string][]ledger.Trade{
			"s": {{Side: market.SideBuy, TotalValueAfter: 1, Timestamp: time.Now()}},
		},
		saveErr: errors.New("disk full"),
	}
	assert.Equal(t, 0, runReportGeneration(context.Background(), store, logger.NewLogger("error")))
}
