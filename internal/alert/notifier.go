// Package alert delivers lifecycle and alert events to monitoring.
// Delivery is fire-and-forget: a notifier never reports failure to the caller.
package alert

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType names a lifecycle or alert event.
type EventType string

const (
	InstanceStarted       EventType = "instance_started"
	InstanceStopped       EventType = "instance_stopped"
	InstanceCompleted     EventType = "instance_completed"
	InstanceFailed        EventType = "instance_failed"
	RateLimitExceeded     EventType = "rate_limit_exceeded"
	CircuitBreakerTripped EventType = "circuit_breaker_tripped"
	CircuitBreakerReset   EventType = "circuit_breaker_reset"
	DeadLetterAdded       EventType = "dead_letter_added"
	TradeExecuted         EventType = "trade_executed"
	TradeFailed           EventType = "trade_failed"
	BalanceUpdated        EventType = "balance_updated"
	MetricsUpdated        EventType = "metrics_updated"
)

// Event is a single notification.
type Event struct {
	Type       EventType      `json:"type"`
	StrategyID string         `json:"strategy_id,omitempty"`
	InstanceID string         `json:"instance_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Time       time.Time      `json:"time"`
}

// Notifier is the interface for sending alert events.
type Notifier interface {
	Notify(ev Event)
	Close() error
}

// NoOpNotifier is a notifier that does nothing. It is used when alerting is disabled.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Notify does nothing.
func (n *NoOpNotifier) Notify(Event) {}

// Close does nothing and returns nil.
func (n *NoOpNotifier) Close() error {
	return nil
}

// LogNotifier writes every event to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("alert")}
}

// Notify logs the event. Failures and trips are logged at warn level.
func (n *LogNotifier) Notify(ev Event) {
	fields := []zap.Field{
		zap.String("type", string(ev.Type)),
		zap.String("strategyID", ev.StrategyID),
		zap.String("instanceID", ev.InstanceID),
	}
	if ev.SessionID != "" {
		fields = append(fields, zap.String("sessionID", ev.SessionID))
	}
	if len(ev.Data) > 0 {
		fields = append(fields, zap.Any("data", ev.Data))
	}
	switch ev.Type {
	case InstanceFailed, RateLimitExceeded, CircuitBreakerTripped, DeadLetterAdded, TradeFailed:
		n.logger.Warn(ev.Message, fields...)
	case BalanceUpdated, MetricsUpdated:
		n.logger.Debug(ev.Message, fields...)
	default:
		n.logger.Info(ev.Message, fields...)
	}
}

// Close flushes the logger.
func (n *LogNotifier) Close() error {
	_ = n.logger.Sync()
	return nil
}

// MultiNotifier fans an event out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier. Nil entries are skipped.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify forwards ev to every notifier.
func (m *MultiNotifier) Notify(ev Event) {
	for _, n := range m.notifiers {
		n.Notify(ev)
	}
}

// Close closes every notifier and returns the first error.
func (m *MultiNotifier) Close() error {
	var first error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps every event in memory. It is used by tests and by the
// status endpoint to show recent activity.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify stores ev.
func (r *Recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Close does nothing.
func (r *Recorder) Close() error {
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
