// Package builtins provides the step engines that ship with the runner.
package builtins

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/market"
	"github.com/your-org/strategy-runner/internal/orchestrator"
	"github.com/your-org/strategy-runner/internal/strategy"
)

// Compile-time interface check.
var _ orchestrator.StepEngine = (*Sequence)(nil)

// ErrUnknownStrategy is returned for a strategy id missing from the catalog.
var ErrUnknownStrategy = errors.New("builtins: unknown strategy")

const (
	varCycles         = "cycles"
	varLastTradePrice = "last_trade_price"
)

// Sequence runs the Steps program of a strategy definition, one step per
// call. StepIndex in the execution context is the program counter.
type Sequence struct {
	catalog strategy.Catalog
	logger  *zap.Logger
}

// NewSequence creates a Sequence reading programs from catalog.
func NewSequence(catalog strategy.Catalog, logger *zap.Logger) *Sequence {
	return &Sequence{catalog: catalog, logger: logger.Named("sequence")}
}

// Execute runs the step at ec.StepIndex and advances the program counter.
// A wait_trade step only advances when triggered by a trade of its token.
func (s *Sequence) Execute(ctx context.Context, strategyID string, ec *orchestrator.ExecutionContext) (orchestrator.StepResult, error) {
	if err := ctx.Err(); err != nil {
		return orchestrator.StepResult{}, err
	}
	def, ok := s.catalog.Get(strategyID)
	if !ok {
		return orchestrator.StepResult{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategyID)
	}
	res := orchestrator.StepResult{Success: true, Context: ec}
	if len(def.Steps) == 0 {
		res.Completed = true
		return res, nil
	}
	if ec.StepIndex < 0 || ec.StepIndex >= len(def.Steps) {
		ec.StepIndex = 0
	}

	step := def.Steps[ec.StepIndex]
	token := step.Token
	if token == "" {
		token = ec.TokenAddress
	}
	if token == "" {
		token = def.TokenAddress
	}

	advance := true
	switch step.Action {
	case strategy.ActionBuy:
		res.Intents = append(res.Intents, orchestrator.TradeIntent{
			Side:         market.SideBuy,
			TokenAddress: token,
			BaseAmount:   step.Amount,
		})
	case strategy.ActionSell:
		res.Intents = append(res.Intents, orchestrator.TradeIntent{
			Side:         market.SideSell,
			TokenAddress: token,
			SellQty:      step.Amount,
			SellAll:      step.All,
		})
	case strategy.ActionWaitTrade:
		res.SubscriptionRequested = true
		ev := ec.Trigger.Event
		if ec.Trigger.Source != orchestrator.TriggerEvent || ev == nil || ev.TokenAddress != token {
			ec.WaitingForTrigger = true
			advance = false
			break
		}
		ec.WaitingForTrigger = false
		if err := ec.SetVar(varLastTradePrice, ev.Price); err != nil {
			return orchestrator.StepResult{}, err
		}
	case strategy.ActionStop:
		res.Completed = true
		return res, nil
	default:
		return orchestrator.StepResult{}, fmt.Errorf("unknown action %q at step %d", step.Action, ec.StepIndex)
	}

	if !advance {
		return res, nil
	}
	ec.StepIndex++
	if ec.StepIndex >= len(def.Steps) {
		if !def.Loop {
			res.Completed = true
			return res, nil
		}
		ec.StepIndex = 0
		cycles, _ := ec.Var(varCycles)
		n, _ := cycles.(int)
		if err := ec.SetVar(varCycles, n+1); err != nil {
			return orchestrator.StepResult{}, err
		}
		s.logger.Debug("Program restarted", zap.String("strategyID", strategyID), zap.Int("cycle", n+1))
	}
	return res, nil
}
