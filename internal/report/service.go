package report

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/your-org/strategy-runner/internal/ledger"
	"github.com/your-org/strategy-runner/internal/market"
)

// DB is the subset of pgxpool.Pool used by Service.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Session is a persisted paper session header.
type Session struct {
	SessionID    string
	StrategyID   string
	InitialValue float64
	CreatedAt    time.Time
}

// Service handles report generation.
type Service struct {
	db  DB
	now func() time.Time
}

// NewService creates a new report service.
func NewService(db DB) *Service {
	return &Service{db: db, now: time.Now}
}

// ListSessions returns every paper session that has trades newer than its last report.
func (s *Service) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.Query(ctx, `
        SELECT s.session_id, s.strategy_id, s.initial_base_balance, s.created_at
        FROM paper_sessions s
        WHERE EXISTS (
            SELECT 1 FROM paper_trades t
            WHERE t.session_id = s.session_id
              AND t.time > COALESCE((SELECT MAX(r.time) FROM session_reports r WHERE r.session_id = s.session_id), '-infinity')
        )
        ORDER BY s.created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query paper sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var initial decimal.Decimal
		if err := rows.Scan(&sess.SessionID, &sess.StrategyID, &initial, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan paper session: %w", err)
		}
		sess.InitialValue = initial.InexactFloat64()
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// LoadSessionTrades returns the trade log of a session in execution order.
func (s *Service) LoadSessionTrades(ctx context.Context, sessionID string) ([]ledger.Trade, error) {
	rows, err := s.db.Query(ctx, `
        SELECT trade_id, time, side, leg, token_address, token_amount, funds_amount,
               market_price, execution_price, fee_total, cost_basis, realized_pnl,
               realized_pnl_base, base_balance_after, quote_balance_after, total_value_after, synthetic
        FROM paper_trades
        WHERE session_id = $1
        ORDER BY time, seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query paper trades: %w", err)
	}
	defer rows.Close()

	var trades []ledger.Trade
	for rows.Next() {
		var (
			t                                                  ledger.Trade
			side, leg                                          string
			tokenAmount, funds, marketPrice, execPrice, feeTot decimal.Decimal
			costBasis, realized, realizedBase                  decimal.Decimal
			baseAfter, quoteAfter, totalAfter                  decimal.Decimal
		)
		if err := rows.Scan(&t.ID, &t.Timestamp, &side, &leg, &t.TokenAddress, &tokenAmount, &funds,
			&marketPrice, &execPrice, &feeTot, &costBasis, &realized,
			&realizedBase, &baseAfter, &quoteAfter, &totalAfter, &t.Synthetic); err != nil {
			return nil, fmt.Errorf("failed to scan paper trade: %w", err)
		}
		t.SessionID = sessionID
		t.Side = market.Side(side)
		t.Leg = ledger.Leg(leg)
		t.TokenAmount = tokenAmount.InexactFloat64()
		t.FundsAmount = funds.InexactFloat64()
		t.MarketPrice = marketPrice.InexactFloat64()
		t.ExecutionPrice = execPrice.InexactFloat64()
		t.Fees.Total = feeTot.InexactFloat64()
		t.CostBasis = costBasis.InexactFloat64()
		t.RealizedPnL = realized.InexactFloat64()
		t.RealizedPnLBase = realizedBase.InexactFloat64()
		t.BaseBalanceAfter = baseAfter.InexactFloat64()
		t.QuoteBalanceAfter = quoteAfter.InexactFloat64()
		t.TotalValueAfter = totalAfter.InexactFloat64()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveSessionReport は分析レポートをデータベースに保存します。
func (s *Service) SaveSessionReport(ctx context.Context, sessionID string, m Metrics) error {
	query := `
        INSERT INTO session_reports (
            time, session_id, start_date, end_date, total_trades, buy_trades, sell_trades,
            winning_trades, losing_trades, win_rate, realized_pnl, unrealized_pnl, total_pnl,
            roi, average_win, average_loss, profit_factor, max_drawdown, sharpe_ratio,
            sortino_ratio, max_consecutive_wins, max_consecutive_losses, total_fees
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
            $20, $21, $22, $23
        );
    `
	_, err := s.db.Exec(ctx, query,
		s.now().UTC(), sessionID, m.StartDate, m.EndDate, m.TotalTrades, m.BuyTrades, m.SellTrades,
		m.WinningTrades, m.LosingTrades, m.WinRate,
		decimal.NewFromFloat(m.RealizedPnL), decimal.NewFromFloat(m.UnrealizedPnL), decimal.NewFromFloat(m.TotalPnL),
		m.ROI, decimal.NewFromFloat(m.AverageWin), decimal.NewFromFloat(m.AverageLoss), m.ProfitFactor,
		decimal.NewFromFloat(m.MaxDrawdown), m.SharpeRatio,
		m.SortinoRatio, m.MaxConsecutiveWins, m.MaxConsecutiveLosses, decimal.NewFromFloat(m.TotalFees),
	)
	if err != nil {
		return fmt.Errorf("failed to save session report %s: %w", sessionID, err)
	}
	return nil
}
