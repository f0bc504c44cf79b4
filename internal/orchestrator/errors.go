package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrStrategyNotFound    = errors.New("orchestrator: strategy not found")
	ErrAlreadyRunning      = errors.New("orchestrator: strategy is already running")
	ErrCapacityExceeded    = errors.New("orchestrator: instance capacity exceeded")
	ErrOwnerLimitExceeded  = errors.New("orchestrator: owner instance limit exceeded")
	ErrDailyLimitExceeded  = errors.New("orchestrator: owner daily execution limit exceeded")
	ErrValidation          = errors.New("orchestrator: invalid parameters")
	ErrRateLimitExceeded   = errors.New("orchestrator: rate limit exceeded")
	ErrCircuitOpen         = errors.New("orchestrator: circuit breaker is open")
	ErrStepFailed          = errors.New("orchestrator: step execution failed")
	ErrInstanceNotRunnable = errors.New("orchestrator: instance is not runnable")
	ErrTooManyVars         = errors.New("orchestrator: context variable limit reached")
	ErrClosed              = errors.New("orchestrator: shut down")
)

// StepError is a failed StepEngine call. It matches ErrStepFailed with errors.Is.
type StepError struct {
	StrategyID string
	InstanceID string
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step failed for strategy %s instance %s: %v", e.StrategyID, e.InstanceID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return target == ErrStepFailed }
