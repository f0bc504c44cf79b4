package dbwriter

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/your-org/strategy-runner/internal/ledger"
)

// ExecutionLog はデータベースに保存する戦略の実行記録です。
type ExecutionLog struct {
	Time           time.Time `db:"time"`
	InstanceID     string    `db:"instance_id"`
	StrategyID     string    `db:"strategy_id"`
	Trigger        string    `db:"trigger"` // "tick" or "event"
	Success        bool      `db:"success"`
	Completed      bool      `db:"completed"`
	DurationMs     int64     `db:"duration_ms"`
	ExecutionCount int       `db:"execution_count"`
	Error          string    `db:"error"`
}

// PaperSession はデータベースに保存するペーパートレードのセッション情報です。
type PaperSession struct {
	SessionID           string          `db:"session_id"`
	InstanceID          string          `db:"instance_id"`
	StrategyID          string          `db:"strategy_id"`
	TokenAddress        string          `db:"token_address"`
	InitialBaseBalance  decimal.Decimal `db:"initial_base_balance"`
	InitialQuoteBalance decimal.Decimal `db:"initial_quote_balance"`
	FeePct              float64         `db:"fee_pct"`
	SlippagePct         float64         `db:"slippage_pct"`
	NetworkFee          decimal.Decimal `db:"network_fee"`
	CreatedAt           time.Time       `db:"created_at"`
}

// sessionEnd marks a session as ended on the next flush.
type sessionEnd struct {
	SessionID string
	EndedAt   time.Time
}

// Repository defines the interface for database writing operations.
// Every method only buffers; nothing blocks on the database.
type Repository interface {
	// SaveExecutionLog adds an execution record to the buffer.
	SaveExecutionLog(log ExecutionLog)

	// SavePaperSession adds a session header to the buffer.
	SavePaperSession(session PaperSession)

	// EndPaperSession records the end time of a session.
	EndPaperSession(sessionID string, endedAt time.Time)

	// SavePaperTrade adds a simulated trade to the buffer.
	SavePaperTrade(trade ledger.Trade)

	// Close flushes any buffered data and closes the database connection.
	Close()
}

var paperTradeColumns = []string{
	"time", "trade_id", "session_id", "side", "leg", "token_address",
	"requested_amount", "token_amount", "funds_amount", "market_price", "execution_price",
	"fee_trading", "fee_network", "fee_total", "cost_basis", "realized_pnl", "realized_pnl_base",
	"base_balance_after", "quote_balance_after", "total_value_after", "synthetic",
}

func paperTradeRow(t ledger.Trade) []interface{} {
	d := decimal.NewFromFloat
	return []interface{}{
		t.Timestamp, t.ID, t.SessionID, string(t.Side), string(t.Leg), t.TokenAddress,
		d(t.RequestedAmount), d(t.TokenAmount), d(t.FundsAmount), d(t.MarketPrice), d(t.ExecutionPrice),
		d(t.Fees.Trading), d(t.Fees.Network), d(t.Fees.Total), d(t.CostBasis), d(t.RealizedPnL), d(t.RealizedPnLBase),
		d(t.BaseBalanceAfter), d(t.QuoteBalanceAfter), d(t.TotalValueAfter), t.Synthetic,
	}
}

var executionLogColumns = []string{
	"time", "instance_id", "strategy_id", "trigger", "success", "completed",
	"duration_ms", "execution_count", "error",
}

func executionLogRow(l ExecutionLog) []interface{} {
	return []interface{}{
		l.Time, l.InstanceID, l.StrategyID, l.Trigger, l.Success, l.Completed,
		l.DurationMs, l.ExecutionCount, l.Error,
	}
}

var paperSessionColumns = []string{
	"session_id", "instance_id", "strategy_id", "token_address",
	"initial_base_balance", "initial_quote_balance", "fee_pct", "slippage_pct", "network_fee", "created_at",
}

func paperSessionRow(s PaperSession) []interface{} {
	return []interface{}{
		s.SessionID, s.InstanceID, s.StrategyID, s.TokenAddress,
		s.InitialBaseBalance, s.InitialQuoteBalance, s.FeePct, s.SlippagePct, s.NetworkFee, s.CreatedAt,
	}
}
