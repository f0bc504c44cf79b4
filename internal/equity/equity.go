// Package equity records the mark-to-market value of paper sessions over time.
package equity

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/engine"
)

// Point is one equity observation of a session.
type Point struct {
	Time          time.Time
	SessionID     string
	StrategyID    string
	TotalValue    float64
	UnrealizedPnL float64
}

// Sink stores equity points.
type Sink interface {
	// Tick は現在のセッション評価額を記録します。
	Tick(ctx context.Context, p Point) error
}

// PgxPoolIface は、*pgxpool.Poolが満たすべきメソッドのインターフェースです。
// これにより、テストでモックを注入できます。
type PgxPoolIface interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
}

// DBSink は、データベースに評価額を保存するSinkの実装です。
type DBSink struct {
	pool PgxPoolIface
}

// NewDBSink は、新しいDBSinkを生成します。
func NewDBSink(pool PgxPoolIface) *DBSink {
	return &DBSink{pool: pool}
}

// Tick は、指定されたセッションの評価額をデータベースに挿入します。
func (s *DBSink) Tick(ctx context.Context, p Point) error {
	const query = `
		INSERT INTO session_equity (time, session_id, strategy_id, total_value, unrealized_pnl)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query, p.Time, p.SessionID, p.StrategyID,
		decimal.NewFromFloat(p.TotalValue), decimal.NewFromFloat(p.UnrealizedPnL))
	return err
}

// Marker lists sessions and re-prices them.
type Marker interface {
	ListSessions() []engine.SessionView
	MarkToMarket(ctx context.Context, sessionID string) (engine.SessionView, error)
}

// Recorder periodically marks every active session to market and hands its
// value to a Sink.
type Recorder struct {
	marker   Marker
	sink     Sink
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecorder creates a Recorder. A nil sink only refreshes the sessions.
func NewRecorder(marker Marker, sink Sink, interval time.Duration, logger *zap.Logger) *Recorder {
	return &Recorder{
		marker:   marker,
		sink:     sink,
		interval: interval,
		logger:   logger.Named("equity"),
		now:      time.Now,
	}
}

// Run records until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("Equity recording disabled")
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RecordOnce(ctx)
		}
	}
}

// RecordOnce marks every active session and returns the number of points
// stored.
func (r *Recorder) RecordOnce(ctx context.Context) int {
	recorded := 0
	for _, s := range r.marker.ListSessions() {
		if !s.Active {
			continue
		}
		view, err := r.marker.MarkToMarket(ctx, s.ID)
		if err != nil {
			r.logger.Warn("Failed to mark session", zap.String("sessionID", s.ID), zap.Error(err))
			continue
		}
		if r.sink == nil {
			continue
		}
		p := Point{
			Time:          r.now().UTC(),
			SessionID:     view.ID,
			StrategyID:    view.Config.StrategyID,
			TotalValue:    view.Portfolio.TotalValue(),
			UnrealizedPnL: view.Metrics.UnrealizedPnL,
		}
		if err := r.sink.Tick(ctx, p); err != nil {
			r.logger.Error("Failed to record equity", zap.String("sessionID", s.ID), zap.Error(err))
			continue
		}
		recorded++
	}
	return recorded
}
