package dbwriter

import (
	"sync"
	"time"

	"github.com/your-org/strategy-runner/internal/ledger"
)

// InMemWriter is an in-memory implementation of the Repository interface for testing.
type InMemWriter struct {
	mu            sync.RWMutex
	ExecutionLogs []ExecutionLog
	Sessions      []PaperSession
	EndedSessions map[string]time.Time
	Trades        []ledger.Trade
	IsClosed      bool
}

// NewInMemWriter creates a new InMemWriter.
func NewInMemWriter() *InMemWriter {
	return &InMemWriter{
		ExecutionLogs: make([]ExecutionLog, 0),
		Sessions:      make([]PaperSession, 0),
		EndedSessions: make(map[string]time.Time),
		Trades:        make([]ledger.Trade, 0),
	}
}

// SaveExecutionLog appends an execution log to the in-memory slice.
func (w *InMemWriter) SaveExecutionLog(log ExecutionLog) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ExecutionLogs = append(w.ExecutionLogs, log)
}

// SavePaperSession appends a session to the in-memory slice.
func (w *InMemWriter) SavePaperSession(session PaperSession) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Sessions = append(w.Sessions, session)
}

// EndPaperSession records the end time of a session.
func (w *InMemWriter) EndPaperSession(sessionID string, endedAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.EndedSessions[sessionID] = endedAt
}

// SavePaperTrade appends a trade to the in-memory slice.
func (w *InMemWriter) SavePaperTrade(trade ledger.Trade) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Trades = append(w.Trades, trade)
}

// Close marks the writer as closed.
func (w *InMemWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.IsClosed = true
}

// Logs returns a copy of the recorded execution logs.
func (w *InMemWriter) Logs() []ExecutionLog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ExecutionLog, len(w.ExecutionLogs))
	copy(out, w.ExecutionLogs)
	return out
}

// PaperTrades returns a copy of the recorded trades.
func (w *InMemWriter) PaperTrades() []ledger.Trade {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ledger.Trade, len(w.Trades))
	copy(out, w.Trades)
	return out
}

// Ended reports whether a session end was recorded.
func (w *InMemWriter) Ended(sessionID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.EndedSessions[sessionID]
	return ok
}

// Clear resets all the in-memory slices.
func (w *InMemWriter) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ExecutionLogs = make([]ExecutionLog, 0)
	w.Sessions = make([]PaperSession, 0)
	w.EndedSessions = make(map[string]time.Time)
	w.Trades = make([]ledger.Trade, 0)
	w.IsClosed = false
}
