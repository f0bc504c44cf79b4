package equity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/engine"
	"github.com/your-org/strategy-runner/internal/ledger"
	"github.com/your-org/strategy-runner/internal/report"
)

type fakeMarker struct {
	views  []engine.SessionView
	marked []string
	fail   map[string]bool
}

func (f *fakeMarker) ListSessions() []engine.SessionView { return f.views }

func (f *fakeMarker) MarkToMarket(_ context.Context, id string) (engine.SessionView, error) {
	if f.fail[id] {
		return engine.SessionView{}, errors.New("boom")
	}
	f.marked = append(f.marked, id)
	for _, v := range f.views {
		if v.ID == id {
			return v, nil
		}
	}
	return engine.SessionView{}, engine.ErrSessionNotFound
}

type memSink struct {
	points []Point
	err    error
}

func (m *memSink) Tick(_ context.Context, p Point) error {
	if m.err != nil {
		return m.err
	}
	m.points = append(m.points, p)
	return nil
}

func view(id string, active bool, base float64) engine.SessionView {
	return engine.SessionView{
		ID:        id,
		Active:    active,
		Config:    engine.SessionConfig{StrategyID: "strat-" + id},
		Portfolio: ledger.Portfolio{BaseBalance: base},
		Metrics:   report.Metrics{UnrealizedPnL: 0.25},
	}
}

func TestRecorder_RecordOnce(t *testing.T) {
	marker := &fakeMarker{
		views: []engine.SessionView{view("a", true, 10), view("b", false, 5), view("c", true, 7)},
		fail:  map[string]bool{"c": true},
	}
	sink := &memSink{}
	r := NewRecorder(marker, sink, time.Minute, zap.NewNop())
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	assert.Equal(t, 1, r.RecordOnce(context.Background()))
	assert.Equal(t, []string{"a"}, marker.marked, "ended sessions are skipped")
	require.Len(t, sink.points, 1)
	assert.Equal(t, Point{Time: now, SessionID: "a", StrategyID: "strat-a", TotalValue: 10, UnrealizedPnL: 0.25}, sink.points[0])

	sink.err = errors.New("db down")
	assert.Equal(t, 0, r.RecordOnce(context.Background()))
}

func TestRecorder_RunDisabled(t *testing.T) {
	r := NewRecorder(&fakeMarker{}, nil, 0, zap.NewNop())
	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when disabled")
	}
}

func TestDBSink_Tick(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO session_equity").
		WithArgs(now, "s1", "strat", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sink := NewDBSink(mock)
	require.NoError(t, sink.Tick(context.Background(), Point{Time: now, SessionID: "s1", StrategyID: "strat", TotalValue: 10.5}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
