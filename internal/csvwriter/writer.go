// Package csvwriter writes paper trading logs and metrics as CSV.
package csvwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/ledger"
	"github.com/your-org/strategy-runner/internal/report"
)

// TradeHeader is the column order of WriteTrade.
var TradeHeader = []string{
	"time", "trade_id", "session_id", "side", "leg", "token_address",
	"token_amount", "funds_amount", "market_price", "execution_price",
	"fee_total", "cost_basis", "realized_pnl", "realized_pnl_base",
	"base_balance_after", "quote_balance_after", "total_value_after", "synthetic",
}

// Writer is a CSV writer safe for concurrent use.
type Writer struct {
	closer io.Closer
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates a Writer on top of w. Close does not close w.
func New(w io.Writer, logger *zap.Logger) *Writer {
	return &Writer{writer: csv.NewWriter(w), logger: logger}
}

// NewWriter creates a new CSV file at filePath.
func NewWriter(filePath string, logger *zap.Logger) (*Writer, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}
	w := New(file, logger)
	w.closer = file
	return w, nil
}

// Write writes a record to the CSV file.
func (w *Writer) Write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	return nil
}

// WriteTrades writes TradeHeader followed by one row per trade.
func (w *Writer) WriteTrades(trades []ledger.Trade) error {
	if err := w.Write(TradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := w.Write(TradeRecord(t)); err != nil {
			return err
		}
	}
	w.logger.Debug("Wrote trades", zap.Int("rows", len(trades)))
	return nil
}

// WriteMetrics writes the metrics as metric,value rows.
func (w *Writer) WriteMetrics(m report.Metrics) error {
	if err := w.Write([]string{"metric", "value"}); err != nil {
		return err
	}
	for _, rec := range MetricsRecords(m) {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the file, if the Writer owns one.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// TradeRecord formats a trade in TradeHeader order.
func TradeRecord(t ledger.Trade) []string {
	return []string{
		t.Timestamp.UTC().Format(time.RFC3339Nano),
		t.ID,
		t.SessionID,
		string(t.Side),
		string(t.Leg),
		t.TokenAddress,
		formatFloat(t.TokenAmount),
		formatFloat(t.FundsAmount),
		formatFloat(t.MarketPrice),
		formatFloat(t.ExecutionPrice),
		formatFloat(t.Fees.Total),
		formatFloat(t.CostBasis),
		formatFloat(t.RealizedPnL),
		formatFloat(t.RealizedPnLBase),
		formatFloat(t.BaseBalanceAfter),
		formatFloat(t.QuoteBalanceAfter),
		formatFloat(t.TotalValueAfter),
		strconv.FormatBool(t.Synthetic),
	}
}

// MetricsRecords formats metrics as metric,value pairs.
func MetricsRecords(m report.Metrics) [][]string {
	return [][]string{
		{"start_date", formatTime(m.StartDate)},
		{"end_date", formatTime(m.EndDate)},
		{"total_trades", strconv.Itoa(m.TotalTrades)},
		{"buy_trades", strconv.Itoa(m.BuyTrades)},
		{"sell_trades", strconv.Itoa(m.SellTrades)},
		{"winning_trades", strconv.Itoa(m.WinningTrades)},
		{"losing_trades", strconv.Itoa(m.LosingTrades)},
		{"win_rate", formatFloat(m.WinRate)},
		{"realized_pnl", formatFloat(m.RealizedPnL)},
		{"unrealized_pnl", formatFloat(m.UnrealizedPnL)},
		{"total_pnl", formatFloat(m.TotalPnL)},
		{"initial_value", formatFloat(m.InitialValue)},
		{"current_value", formatFloat(m.CurrentValue)},
		{"roi_percent", formatFloat(m.ROIPercent)},
		{"average_win", formatFloat(m.AverageWin)},
		{"average_loss", formatFloat(m.AverageLoss)},
		{"profit_factor", formatFloat(m.ProfitFactor)},
		{"max_drawdown", formatFloat(m.MaxDrawdown)},
		{"max_drawdown_percent", formatFloat(m.MaxDrawdownPercent)},
		{"sharpe_ratio", formatFloat(m.SharpeRatio)},
		{"sortino_ratio", formatFloat(m.SortinoRatio)},
		{"max_consecutive_wins", strconv.Itoa(m.MaxConsecutiveWins)},
		{"max_consecutive_losses", strconv.Itoa(m.MaxConsecutiveLosses)},
		{"total_fees", formatFloat(m.TotalFees)},
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
