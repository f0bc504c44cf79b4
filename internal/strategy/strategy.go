// Package strategy defines strategy definitions and provides a Registry for
// looking them up by id.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Mode selects how a strategy's trade intents are executed.
type Mode string

const (
	// ModePaper routes trade intents through the simulation engine.
	ModePaper Mode = "paper"
	// ModeSignal runs the strategy without executing any trades.
	ModeSignal Mode = "signal"
)

// ErrInvalidDefinition is returned by Register for an unusable definition.
var ErrInvalidDefinition = errors.New("strategy: invalid definition")

// Definition describes a runnable strategy.
type Definition struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	OwnerID string `json:"owner_id" yaml:"owner_id"`
	Mode    Mode   `json:"mode" yaml:"mode"`
	// TokenAddress is the token traded by paper sessions of this strategy.
	TokenAddress string `json:"token_address" yaml:"token_address"`
	// RequiresInventory makes paper sessions start already holding the token.
	RequiresInventory bool `json:"requires_inventory" yaml:"requires_inventory"`
	// Steps is the program run by the built-in sequence engine.
	Steps []Step `json:"steps,omitempty" yaml:"steps"`
	// Loop restarts the program after its last step instead of completing.
	Loop bool `json:"loop,omitempty" yaml:"loop"`
	// AutoStart starts one instance when the runner boots.
	AutoStart bool `json:"auto_start,omitempty" yaml:"auto_start"`
}

// Action is the kind of a program step.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	// ActionWaitTrade waits for the next observed trade of the token.
	ActionWaitTrade Action = "wait_trade"
	// ActionStop ends the program.
	ActionStop Action = "stop"
)

// Step is one instruction of a strategy program.
type Step struct {
	Action Action `json:"action" yaml:"action"`
	// Token overrides the strategy token for this step.
	Token string `json:"token,omitempty" yaml:"token"`
	// Amount is the base amount spent by a buy or the token quantity of a sell.
	Amount float64 `json:"amount,omitempty" yaml:"amount"`
	// All sells the whole position.
	All bool `json:"all,omitempty" yaml:"all"`
}

func (s Step) validate() error {
	switch s.Action {
	case ActionBuy:
		if s.Amount <= 0 {
			return errors.New("buy amount must be positive")
		}
	case ActionSell:
		if !s.All && s.Amount <= 0 {
			return errors.New("sell needs a positive amount or all")
		}
	case ActionWaitTrade, ActionStop:
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
	return nil
}

// Catalog looks up strategy definitions.
type Catalog interface {
	// Get returns the definition for id. The second return value indicates
	// whether the strategy was found.
	Get(id string) (Definition, bool)
}

// Registry is an in-memory Catalog. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Definition
}

// NewRegistry creates a Registry holding defs.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{strategies: make(map[string]Definition)}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a definition, keyed by its ID.
func (r *Registry) Register(d Definition) error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}
	switch d.Mode {
	case "":
		d.Mode = ModeSignal
	case ModePaper, ModeSignal:
	default:
		return fmt.Errorf("%w: unknown mode %q for %s", ErrInvalidDefinition, d.Mode, d.ID)
	}
	for i, s := range d.Steps {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: %s step %d: %v", ErrInvalidDefinition, d.ID, i, err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[d.ID] = d
	return nil
}

// Get retrieves a definition by id.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.strategies[id]
	return d, ok
}

// List returns a sorted slice of all registered strategy ids.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
