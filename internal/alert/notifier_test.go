package alert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockNotifier is a mock for the Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ev Event) {
	m.Called(ev)
}

func (m *MockNotifier) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestNoOpNotifier(t *testing.T) {
	n := NewNoOpNotifier()
	n.Notify(Event{Type: InstanceStarted})
	assert.NoError(t, n.Close())
}

func TestLogNotifier_Levels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	n := NewLogNotifier(zap.New(core))

	n.Notify(Event{Type: InstanceStarted, StrategyID: "s1", InstanceID: "i1", Message: "started"})
	n.Notify(Event{Type: CircuitBreakerTripped, StrategyID: "s1", Message: "tripped", Data: map[string]any{"failures": 10}})
	n.Notify(Event{Type: BalanceUpdated, SessionID: "sess", Message: "balance"})

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, zap.InfoLevel, entries[0].Level)
		assert.Equal(t, "started", entries[0].Message)
		assert.Equal(t, zap.WarnLevel, entries[1].Level)
		assert.Contains(t, entries[1].ContextMap(), "data")
		assert.Equal(t, zap.DebugLevel, entries[2].Level)
		assert.Equal(t, "sess", entries[2].ContextMap()["sessionID"])
	}
	assert.NoError(t, n.Close())
}

func TestMultiNotifier(t *testing.T) {
	a, b := new(MockNotifier), new(MockNotifier)
	ev := Event{Type: TradeExecuted, SessionID: "sess"}
	a.On("Notify", ev).Once()
	b.On("Notify", ev).Once()
	a.On("Close").Return(errors.New("close failed")).Once()
	b.On("Close").Return(nil).Once()

	m := NewMultiNotifier(a, nil, b)
	m.Notify(ev)
	assert.EqualError(t, m.Close(), "close failed")

	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Notify(Event{Type: DeadLetterAdded})
	r.Notify(Event{Type: DeadLetterAdded})
	r.Notify(Event{Type: InstanceStopped})

	assert.Len(t, r.Events(), 3)
	assert.Equal(t, 2, r.Count(DeadLetterAdded))
	assert.Equal(t, 0, r.Count(InstanceFailed))
	assert.NoError(t, r.Close())
}
