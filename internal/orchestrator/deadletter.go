package orchestrator

import (
	"sync"
	"time"

	"github.com/your-org/strategy-runner/internal/market"
	"github.com/your-org/strategy-runner/pkg/ring"
)

// DeadLetter is a fast-path event that was dropped.
type DeadLetter struct {
	ID         string            `json:"id"`
	StrategyID string            `json:"strategy_id"`
	InstanceID string            `json:"instance_id"`
	Event      market.TradeEvent `json:"event"`
	Error      string            `json:"error"`
	Timestamp  time.Time         `json:"timestamp"`
}

// DeadLetterQueue is a bounded log of dropped events. The oldest entry is
// evicted when it is full.
type DeadLetterQueue struct {
	mu  sync.Mutex
	buf *ring.Buffer[DeadLetter]
}

// NewDeadLetterQueue creates a DeadLetterQueue holding at most capacity entries.
func NewDeadLetterQueue(capacity int) *DeadLetterQueue {
	return &DeadLetterQueue{buf: ring.New[DeadLetter](capacity)}
}

// Add appends an entry. It returns the evicted entry, if any.
func (q *DeadLetterQueue) Add(dl DeadLetter) (DeadLetter, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Add(dl)
}

// Entries returns all entries, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Items()
}

// Len returns the number of entries.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len()
}

// Cap returns the capacity.
func (q *DeadLetterQueue) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Cap()
}

// Clear drops every entry and returns how many were removed.
func (q *DeadLetterQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Clear()
}
