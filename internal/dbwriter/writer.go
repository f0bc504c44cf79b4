package dbwriter

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/config"
	"github.com/your-org/strategy-runner/internal/ledger"
)

// flushTimeout bounds a single flush so a stuck database cannot stall shutdown.
const flushTimeout = 10 * time.Second

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Close()
}

// TimescaleWriter はTimescaleDBへのデータ書き込みを担当します。
type TimescaleWriter struct {
	pool         Pool
	logger       *zap.Logger
	config       config.DBWriterConfig
	logBuffer    []ExecutionLog
	tradeBuffer  []ledger.Trade
	sessionBuf   []PaperSession
	endBuffer    []sessionEnd
	bufferMutex  sync.Mutex
	flushMutex   sync.Mutex
	flushTicker  *time.Ticker
	shutdownChan chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
}

// NewTimescaleWriter は新しいTimescaleWriterインスタンスを作成します。
// このコンストラクタは、外部から提供されたDB接続プールを使用します。
// pool が nil の場合はダミーライターを返します。
func NewTimescaleWriter(pool Pool, writerConfig config.DBWriterConfig, logger *zap.Logger) Repository {
	if pool == nil {
		return NewDummyWriter(logger)
	}

	// Fallback for zero or invalid values
	if writerConfig.WriteIntervalSeconds <= 0 {
		logger.Warn("WriteIntervalSeconds is zero or negative, defaulting to 1s.", zap.Int("originalValue", writerConfig.WriteIntervalSeconds))
		writerConfig.WriteIntervalSeconds = 1
	}
	if writerConfig.BatchSize <= 0 {
		logger.Warn("BatchSize is zero or negative, defaulting to 100.", zap.Int("originalValue", writerConfig.BatchSize))
		writerConfig.BatchSize = 100
	}

	writer := &TimescaleWriter{
		pool:         pool,
		logger:       logger.Named("dbwriter"),
		config:       writerConfig,
		logBuffer:    make([]ExecutionLog, 0, writerConfig.BatchSize),
		tradeBuffer:  make([]ledger.Trade, 0, writerConfig.BatchSize),
		shutdownChan: make(chan struct{}),
		flushTicker:  time.NewTicker(time.Duration(writerConfig.WriteIntervalSeconds) * time.Second),
	}

	writer.wg.Add(1)
	go writer.run()
	writer.logger.Info("Started batch writer",
		zap.Int("batchSize", writerConfig.BatchSize),
		zap.Int("intervalSeconds", writerConfig.WriteIntervalSeconds))
	return writer
}

// Close はバッファをフラッシュし、データベース接続プールをクローズします。
func (w *TimescaleWriter) Close() {
	w.closeOnce.Do(func() {
		w.logger.Info("Closing TimescaleDB writer...")
		close(w.shutdownChan)
		w.flushTicker.Stop()
		w.wg.Wait()

		// Final flush
		w.flushBuffers()

		w.pool.Close()
		w.logger.Info("TimescaleDB connection pool closed")
	})
}

func (w *TimescaleWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.flushTicker.C:
			w.flushBuffers()
		case <-w.shutdownChan:
			return
		}
	}
}

// SaveExecutionLog は実行記録をバッファに追加します。
func (w *TimescaleWriter) SaveExecutionLog(log ExecutionLog) {
	w.bufferMutex.Lock()
	w.logBuffer = append(w.logBuffer, log)
	shouldFlush := len(w.logBuffer) >= w.config.BatchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		go w.flushBuffers()
	}
}

// SavePaperTrade はペーパートレードをバッファに追加します。
func (w *TimescaleWriter) SavePaperTrade(trade ledger.Trade) {
	w.bufferMutex.Lock()
	w.tradeBuffer = append(w.tradeBuffer, trade)
	shouldFlush := len(w.tradeBuffer) >= w.config.BatchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		go w.flushBuffers()
	}
}

// SavePaperSession はセッション情報をバッファに追加します。
func (w *TimescaleWriter) SavePaperSession(session PaperSession) {
	w.bufferMutex.Lock()
	w.sessionBuf = append(w.sessionBuf, session)
	w.bufferMutex.Unlock()
}

// EndPaperSession はセッションの終了時刻を次回のフラッシュで記録します。
func (w *TimescaleWriter) EndPaperSession(sessionID string, endedAt time.Time) {
	w.bufferMutex.Lock()
	w.endBuffer = append(w.endBuffer, sessionEnd{SessionID: sessionID, EndedAt: endedAt})
	w.bufferMutex.Unlock()
}

// flushBuffers swaps the buffers out under lock and writes them. Sessions go
// first so trades and ends always find their header.
func (w *TimescaleWriter) flushBuffers() {
	w.flushMutex.Lock()
	defer w.flushMutex.Unlock()

	w.bufferMutex.Lock()
	sessions, trades, logs, ends := w.sessionBuf, w.tradeBuffer, w.logBuffer, w.endBuffer
	w.sessionBuf = nil
	w.tradeBuffer = make([]ledger.Trade, 0, w.config.BatchSize)
	w.logBuffer = make([]ExecutionLog, 0, w.config.BatchSize)
	w.endBuffer = nil
	w.bufferMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if len(sessions) > 0 {
		rows := make([][]interface{}, len(sessions))
		for i, s := range sessions {
			rows[i] = paperSessionRow(s)
		}
		w.copyRows(ctx, "paper_sessions", paperSessionColumns, rows)
	}
	if len(trades) > 0 {
		rows := make([][]interface{}, len(trades))
		for i, t := range trades {
			rows[i] = paperTradeRow(t)
		}
		w.copyRows(ctx, "paper_trades", paperTradeColumns, rows)
	}
	if len(logs) > 0 {
		rows := make([][]interface{}, len(logs))
		for i, l := range logs {
			rows[i] = executionLogRow(l)
		}
		w.copyRows(ctx, "execution_logs", executionLogColumns, rows)
	}
	for _, end := range ends {
		_, err := w.pool.Exec(ctx, `UPDATE paper_sessions SET ended_at = $2 WHERE session_id = $1`, end.SessionID, end.EndedAt)
		if err != nil {
			w.logger.Error("Failed to mark paper session ended", zap.String("sessionID", end.SessionID), zap.Error(err))
		}
	}
}

func (w *TimescaleWriter) copyRows(ctx context.Context, table string, columns []string, rows [][]interface{}) {
	w.logger.Debug("Flushing rows", zap.String("table", table), zap.Int("count", len(rows)))
	_, err := w.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		w.logger.Error("Failed to batch insert", zap.String("table", table), zap.Int("count", len(rows)), zap.Error(err))
	}
}
