package dbwriter

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/ledger"
)

// dummyWriter discards every record. It is used when no database is
// configured and reports how much was dropped on Close.
type dummyWriter struct {
	logger   *zap.Logger
	logs     atomic.Int64
	trades   atomic.Int64
	sessions atomic.Int64
}

// NewDummyWriter creates a writer that persists nothing.
func NewDummyWriter(l *zap.Logger) Repository {
	l = l.Named("dbwriter")
	l.Info("Persistence disabled, execution logs and paper trades will be discarded.")
	return &dummyWriter{logger: l}
}

func (d *dummyWriter) SaveExecutionLog(log ExecutionLog) {
	d.logs.Add(1)
}

func (d *dummyWriter) SavePaperSession(session PaperSession) {
	d.sessions.Add(1)
	d.logger.Debug("Discarding paper session", zap.String("sessionID", session.SessionID), zap.String("token", session.TokenAddress))
}

func (d *dummyWriter) EndPaperSession(sessionID string, endedAt time.Time) {
	d.logger.Debug("Discarding paper session end", zap.String("sessionID", sessionID), zap.Time("endedAt", endedAt))
}

func (d *dummyWriter) SavePaperTrade(trade ledger.Trade) {
	d.trades.Add(1)
	d.logger.Debug("Discarding paper trade", zap.String("sessionID", trade.SessionID), zap.String("tradeID", trade.ID))
}

// Close logs the number of discarded records.
func (d *dummyWriter) Close() {
	d.logger.Info("Dummy writer closed",
		zap.Int64("executionLogs", d.logs.Load()),
		zap.Int64("paperSessions", d.sessions.Load()),
		zap.Int64("paperTrades", d.trades.Load()))
}
