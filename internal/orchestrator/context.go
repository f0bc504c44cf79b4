package orchestrator

import (
	"fmt"
	"time"

	"github.com/your-org/strategy-runner/internal/market"
)

// TriggerSource tells what started an execution.
type TriggerSource string

const (
	TriggerSchedule TriggerSource = "tick"
	TriggerEvent    TriggerSource = "event"
)

// TriggerInfo describes the trigger of the current execution.
type TriggerInfo struct {
	Source     TriggerSource      `json:"source"`
	Event      *market.TradeEvent `json:"event,omitempty"`
	ReceivedAt time.Time          `json:"received_at"`
}

// ExecutionContext is the state carried between steps of one instance. The
// orchestrator owns it; a StepEngine receives a copy and returns the next one.
type ExecutionContext struct {
	InstanceID     string `json:"instance_id"`
	StrategyID     string `json:"strategy_id"`
	TokenAddress   string `json:"token_address,omitempty"`
	PaperSessionID string `json:"paper_session_id,omitempty"`
	StepIndex      int    `json:"step_index"`
	StopRequested  bool   `json:"stop_requested"`

	// WaitingForTrigger marks an instance that only advances on events; its
	// ticks use the shorter waiting delay.
	WaitingForTrigger bool        `json:"waiting_for_trigger"`
	Trigger           TriggerInfo `json:"trigger"`
	LastError         string      `json:"last_error,omitempty"`

	Vars    map[string]any `json:"vars,omitempty"`
	maxVars int
}

func newExecutionContext(instanceID, strategyID string, maxVars int) *ExecutionContext {
	return &ExecutionContext{
		InstanceID: instanceID,
		StrategyID: strategyID,
		Vars:       make(map[string]any),
		maxVars:    maxVars,
	}
}

// Clone returns a copy with its own Vars map. Values are copied shallowly.
func (c *ExecutionContext) Clone() *ExecutionContext {
	out := *c
	out.Vars = make(map[string]any, len(c.Vars))
	for k, v := range c.Vars {
		out.Vars[k] = v
	}
	if c.Trigger.Event != nil {
		ev := *c.Trigger.Event
		out.Trigger.Event = &ev
	}
	return &out
}

// SetVar stores a strategy-specific value. New keys beyond the limit are
// rejected; existing keys can always be overwritten.
func (c *ExecutionContext) SetVar(key string, value any) error {
	if c.Vars == nil {
		c.Vars = make(map[string]any)
	}
	if _, exists := c.Vars[key]; !exists && c.maxVars > 0 && len(c.Vars) >= c.maxVars {
		return fmt.Errorf("%w: %d keys, cannot add %q", ErrTooManyVars, len(c.Vars), key)
	}
	c.Vars[key] = value
	return nil
}

// Var returns a stored value.
func (c *ExecutionContext) Var(key string) (any, bool) {
	v, ok := c.Vars[key]
	return v, ok
}

// DeleteVar removes a stored value.
func (c *ExecutionContext) DeleteVar(key string) {
	delete(c.Vars, key)
}

// MaxVars returns the key limit of Vars. Zero means unlimited.
func (c *ExecutionContext) MaxVars() int { return c.maxVars }
