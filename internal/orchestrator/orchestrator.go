// Package orchestrator runs strategy instances on scheduled ticks and on
// market events, with retries, rate limiting, circuit breaking and
// dead-lettering.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/alert"
	"github.com/your-org/strategy-runner/internal/config"
	"github.com/your-org/strategy-runner/internal/dbwriter"
	"github.com/your-org/strategy-runner/internal/engine"
	"github.com/your-org/strategy-runner/internal/ledger"
	"github.com/your-org/strategy-runner/internal/market"
	"github.com/your-org/strategy-runner/internal/report"
	"github.com/your-org/strategy-runner/internal/strategy"
)

// Status is the lifecycle state of an instance.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// Simulator is the part of the simulation engine used for paper instances.
type Simulator interface {
	DefaultSessionConfig(token string) engine.SessionConfig
	CreateSession(ctx context.Context, sessionID string, cfg engine.SessionConfig) (engine.SessionView, error)
	GetSession(sessionID string) (engine.SessionView, error)
	EndSession(sessionID string) (report.Metrics, error)
	ExecuteBuy(ctx context.Context, sessionID, token string, amount float64) (ledger.Trade, error)
	ExecuteSell(ctx context.Context, sessionID, token string, qty engine.SellAmount) (ledger.Trade, error)
}

// Deps are the collaborators of an Orchestrator. Feed, Simulator, Repo,
// Notifier and Scheduler are optional.
type Deps struct {
	Catalog   strategy.Catalog
	Steps     StepEngine
	Feed      market.EventFeed
	Simulator Simulator
	Repo      dbwriter.Repository
	Notifier  alert.Notifier
	Scheduler Scheduler
}

// StartOptions customizes one instance.
type StartOptions struct {
	// OwnerID overrides the strategy owner.
	OwnerID string
	// MaxRetries is the number of failed ticks tolerated. Zero uses the
	// configured default; negative disables retries.
	MaxRetries   int
	RestartDelay time.Duration
	// TokenAddress overrides the strategy token.
	TokenAddress string
	// PaperSessionID attaches the instance to an existing paper session. The
	// session is not ended when the instance stops.
	PaperSessionID string
	// Session overrides the default paper session settings.
	Session *engine.SessionConfig
	Vars    map[string]any
}

// InstanceInfo is a snapshot of an instance.
type InstanceInfo struct {
	ID              string            `json:"id"`
	StrategyID      string            `json:"strategy_id"`
	OwnerID         string            `json:"owner_id,omitempty"`
	Status          Status            `json:"status"`
	StopReason      string            `json:"stop_reason,omitempty"`
	StartTime       time.Time         `json:"start_time"`
	ExecutionCount  int               `json:"execution_count"`
	RetryCount      int               `json:"retry_count"`
	MaxRetries      int               `json:"max_retries"`
	Executing       bool              `json:"executing"`
	PaperSessionID  string            `json:"paper_session_id,omitempty"`
	SubscribedToken string            `json:"subscribed_token,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	Context         *ExecutionContext `json:"context"`
}

type instance struct {
	id         string
	strategyID string
	ownerID    string
	def        strategy.Definition

	status         Status
	stopReason     string
	startTime      time.Time
	executionCount int
	retryCount     int
	maxRetries     int
	restartDelay   time.Duration
	lastError      string
	ec             *ExecutionContext

	// executing is the execution slot shared by ticks and the fast path.
	executing atomic.Bool
	runCtx    context.Context
	cancel    context.CancelFunc
	timer     Handle

	paperSessionID  string
	ownsSession     bool
	subscribedToken string
}

type queuedEvent struct {
	instanceID string
	event      market.TradeEvent
	enqueuedAt time.Time
}

// Orchestrator owns the registry of strategy instances.
type Orchestrator struct {
	cfg       config.OrchestratorConfig
	catalog   strategy.Catalog
	steps     StepEngine
	feed      market.EventFeed
	sim       Simulator
	repo      dbwriter.Repository
	notifier  alert.Notifier
	scheduler Scheduler
	logger    *zap.Logger

	limiter     *RateLimiter
	breaker     *CircuitBreaker
	quota       *OwnerQuota
	deadLetters *DeadLetterQueue

	now   func() time.Time
	spawn func(func())

	mu        sync.Mutex
	instances map[string]*instance
	queue     []queuedEvent
	draining  bool
	// deferred holds at most one event per instance that arrived while the
	// instance was executing.
	deferred map[string]queuedEvent
	closed   bool

	inflight sync.WaitGroup
}

// New creates an Orchestrator.
func New(cfg config.OrchestratorConfig, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Catalog == nil || deps.Steps == nil {
		return nil, fmt.Errorf("%w: catalog and step engine are required", ErrValidation)
	}
	if cfg.DeadLetterCapacity <= 0 {
		cfg.DeadLetterCapacity = 1000
	}
	if deps.Repo == nil {
		deps.Repo = dbwriter.NewDummyWriter(logger)
	}
	if deps.Notifier == nil {
		deps.Notifier = alert.NewNoOpNotifier()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewTimeScheduler()
	}
	return &Orchestrator{
		cfg:         cfg,
		catalog:     deps.Catalog,
		steps:       deps.Steps,
		feed:        deps.Feed,
		sim:         deps.Simulator,
		repo:        deps.Repo,
		notifier:    deps.Notifier,
		scheduler:   deps.Scheduler,
		logger:      logger.Named("orchestrator"),
		limiter:     NewRateLimiter(cfg.RateLimitPerMinute),
		breaker:     NewCircuitBreaker(cfg.CircuitBreakerThreshold),
		quota:       NewOwnerQuota(cfg.MaxDailyExecutionsPerOwner),
		deadLetters: NewDeadLetterQueue(cfg.DeadLetterCapacity),
		now:         time.Now,
		spawn:       func(f func()) { go f() },
		instances:   make(map[string]*instance),
		deferred:    make(map[string]queuedEvent),
	}, nil
}

// Start creates a running instance of strategyID and schedules its first
// tick. Paper strategies get a simulation session.
func (o *Orchestrator) Start(ctx context.Context, strategyID string, opts StartOptions) (string, error) {
	def, ok := o.catalog.Get(strategyID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrStrategyNotFound, strategyID)
	}
	owner := opts.OwnerID
	if owner == "" {
		owner = def.OwnerID
	}

	o.mu.Lock()
	err := o.checkStartLocked(strategyID, owner)
	o.mu.Unlock()
	if err != nil {
		return "", err
	}
	if !o.breaker.Allow(strategyID) {
		return "", fmt.Errorf("%w: %s", ErrCircuitOpen, strategyID)
	}
	if !o.quota.Allow(owner) {
		return "", fmt.Errorf("%w: %s", ErrDailyLimitExceeded, owner)
	}

	id := uuid.NewString()
	token := opts.TokenAddress
	if token == "" {
		token = def.TokenAddress
	}
	inst := &instance{
		id:           id,
		strategyID:   strategyID,
		ownerID:      owner,
		def:          def,
		status:       StatusRunning,
		startTime:    o.now().UTC(),
		maxRetries:   o.cfg.DefaultMaxRetries,
		restartDelay: o.cfg.DefaultRestartDelay.Std(),
		ec:           newExecutionContext(id, strategyID, o.cfg.MaxContextVars),
	}
	switch {
	case opts.MaxRetries > 0:
		inst.maxRetries = opts.MaxRetries
	case opts.MaxRetries < 0:
		inst.maxRetries = 0
	}
	if opts.RestartDelay > 0 {
		inst.restartDelay = opts.RestartDelay
	}
	inst.ec.TokenAddress = token
	for k, v := range opts.Vars {
		if err := inst.ec.SetVar(k, v); err != nil {
			return "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	if def.Mode == strategy.ModePaper {
		sessionID, owns, err := o.provisionSession(ctx, inst, token, opts)
		if err != nil {
			return "", err
		}
		inst.paperSessionID = sessionID
		inst.ownsSession = owns
		inst.ec.PaperSessionID = sessionID
	}

	o.mu.Lock()
	if o.closed {
		err = ErrClosed
	} else {
		// Caps may have changed while the session was being created.
		err = o.checkStartLocked(strategyID, owner)
	}
	if err != nil {
		o.mu.Unlock()
		if inst.ownsSession {
			o.endSession(inst.paperSessionID)
		}
		return "", err
	}
	inst.runCtx, inst.cancel = context.WithCancel(context.Background())
	o.instances[id] = inst
	inst.timer = o.scheduler.AfterFunc(0, func() { o.tick(id) })
	o.mu.Unlock()

	o.logger.Info("Strategy instance started",
		zap.String("instanceID", id),
		zap.String("strategyID", strategyID),
		zap.String("ownerID", owner),
		zap.String("mode", string(def.Mode)),
		zap.String("paperSessionID", inst.paperSessionID))
	o.notify(inst, alert.InstanceStarted, "instance started", nil)
	return id, nil
}

// checkStartLocked applies the concurrency caps. The caller holds o.mu.
func (o *Orchestrator) checkStartLocked(strategyID, owner string) error {
	running, ownerRunning := 0, 0
	for _, inst := range o.instances {
		if inst.status != StatusRunning {
			continue
		}
		if inst.strategyID == strategyID {
			return fmt.Errorf("%w: %s (instance %s)", ErrAlreadyRunning, strategyID, inst.id)
		}
		running++
		if owner != "" && inst.ownerID == owner {
			ownerRunning++
		}
	}
	if o.cfg.MaxInstances > 0 && running >= o.cfg.MaxInstances {
		return fmt.Errorf("%w: %d running", ErrCapacityExceeded, running)
	}
	if o.cfg.MaxInstancesPerOwner > 0 && owner != "" && ownerRunning >= o.cfg.MaxInstancesPerOwner {
		return fmt.Errorf("%w: %s has %d running", ErrOwnerLimitExceeded, owner, ownerRunning)
	}
	return nil
}

func (o *Orchestrator) provisionSession(ctx context.Context, inst *instance, token string, opts StartOptions) (string, bool, error) {
	if o.sim == nil {
		return "", false, fmt.Errorf("%w: paper mode needs a simulation engine", ErrValidation)
	}
	if opts.PaperSessionID != "" {
		view, err := o.sim.GetSession(opts.PaperSessionID)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if !view.Active {
			return "", false, fmt.Errorf("%w: paper session %s has ended", ErrValidation, opts.PaperSessionID)
		}
		return view.ID, false, nil
	}
	if token == "" {
		return "", false, fmt.Errorf("%w: paper mode needs a token address", ErrValidation)
	}

	sc := o.sim.DefaultSessionConfig(token)
	if opts.Session != nil {
		sc = *opts.Session
		if sc.TokenAddress == "" {
			sc.TokenAddress = token
		}
	}
	sc.StrategyID = inst.strategyID
	sc.InstanceID = inst.id
	if inst.def.RequiresInventory && sc.InitialInventoryBase == 0 {
		sc.InitialInventoryBase = sc.InitialBaseBalance / 2
	}
	view, err := o.sim.CreateSession(ctx, "", sc)
	if err != nil {
		return "", false, fmt.Errorf("create paper session: %w", err)
	}
	return view.ID, true, nil
}

// Stop stops an instance. It returns false for an unknown instance and true
// otherwise, including when the instance had already stopped.
func (o *Orchestrator) Stop(instanceID string) bool {
	o.mu.Lock()
	inst, ok := o.instances[instanceID]
	if !ok {
		o.mu.Unlock()
		return false
	}
	cleanup, stopped := o.terminateLocked(inst, StatusStopped, "stopped")
	o.mu.Unlock()

	cleanup()
	if stopped {
		o.logger.Info("Strategy instance stopped", zap.String("instanceID", instanceID), zap.String("strategyID", inst.strategyID))
		o.notify(inst, alert.InstanceStopped, "instance stopped", nil)
	}
	return true
}

// Remove forgets a stopped or failed instance. Running instances are kept.
func (o *Orchestrator) Remove(instanceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	inst, ok := o.instances[instanceID]
	if !ok || inst.status == StatusRunning {
		return false
	}
	delete(o.instances, instanceID)
	return true
}

// terminateLocked moves a running instance to a terminal status. The caller
// holds o.mu and must run the returned cleanup after unlocking.
func (o *Orchestrator) terminateLocked(inst *instance, status Status, reason string) (func(), bool) {
	if inst.status != StatusRunning {
		return func() {}, false
	}
	inst.status = status
	inst.stopReason = reason
	inst.ec.StopRequested = true
	if inst.cancel != nil {
		inst.cancel()
	}
	if inst.timer != nil {
		inst.timer.Stop()
		inst.timer = nil
	}
	delete(o.deferred, inst.id)

	token := inst.subscribedToken
	inst.subscribedToken = ""
	sessionID := ""
	if inst.ownsSession {
		sessionID = inst.paperSessionID
	}
	return func() {
		if token != "" && o.feed != nil {
			o.feed.Unsubscribe(token, inst.id)
		}
		if sessionID != "" {
			o.endSession(sessionID)
		}
	}, true
}

func (o *Orchestrator) endSession(sessionID string) {
	m, err := o.sim.EndSession(sessionID)
	if err != nil {
		o.logger.Error("Failed to end paper session", zap.String("sessionID", sessionID), zap.Error(err))
		return
	}
	o.logger.Info("Paper session closed",
		zap.String("sessionID", sessionID),
		zap.Int("trades", m.TotalTrades),
		zap.Float64("totalPnL", m.TotalPnL))
}

// finish terminates inst and notifies evType.
func (o *Orchestrator) finish(inst *instance, status Status, reason string, evType alert.EventType) {
	o.mu.Lock()
	cleanup, done := o.terminateLocked(inst, status, reason)
	o.mu.Unlock()
	cleanup()
	if done {
		o.notify(inst, evType, reason, nil)
	}
}

// tick is the scheduled path.
func (o *Orchestrator) tick(instanceID string) {
	o.mu.Lock()
	inst, ok := o.instances[instanceID]
	if !ok || o.closed || inst.status != StatusRunning || inst.ec.StopRequested {
		o.mu.Unlock()
		return
	}
	inst.timer = nil
	o.inflight.Add(1)
	o.mu.Unlock()
	defer o.inflight.Done()

	if !inst.executing.CompareAndSwap(false, true) {
		o.logger.Debug("Execution in flight, skipping tick", zap.String("instanceID", instanceID))
		o.scheduleNext(inst, false)
		return
	}
	_, err := o.execute(inst, TriggerInfo{Source: TriggerSchedule, ReceivedAt: o.now().UTC()})
	inst.executing.Store(false)
	o.releaseDeferred(instanceID)

	switch {
	case err == nil:
		o.scheduleNext(inst, false)
	case errors.Is(err, ErrInstanceNotRunnable):
	case errors.Is(err, ErrDailyLimitExceeded):
		o.logger.Debug("Daily execution limit reached", zap.String("instanceID", instanceID), zap.String("ownerID", inst.ownerID))
		o.scheduleNext(inst, false)
	default:
		o.handleTickFailure(inst, err)
	}
}

// scheduleNext arms the next tick of a running instance.
func (o *Orchestrator) scheduleNext(inst *instance, retry bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || inst.status != StatusRunning || inst.ec.StopRequested {
		return
	}
	delay := inst.restartDelay
	if !retry && inst.ec.WaitingForTrigger && o.cfg.WaitingDelay > 0 {
		delay = o.cfg.WaitingDelay.Std()
	}
	if inst.timer != nil {
		inst.timer.Stop()
	}
	id := inst.id
	inst.timer = o.scheduler.AfterFunc(delay, func() { o.tick(id) })
}

func (o *Orchestrator) handleTickFailure(inst *instance, err error) {
	o.mu.Lock()
	if inst.status != StatusRunning {
		o.mu.Unlock()
		return
	}
	inst.retryCount++
	inst.lastError = err.Error()
	if inst.retryCount < inst.maxRetries {
		attempt, limit := inst.retryCount, inst.maxRetries
		o.mu.Unlock()
		o.logger.Warn("Step failed, retrying",
			zap.String("instanceID", inst.id),
			zap.String("strategyID", inst.strategyID),
			zap.Int("retry", attempt),
			zap.Int("maxRetries", limit),
			zap.Error(err))
		o.scheduleNext(inst, true)
		return
	}
	cleanup, failed := o.terminateLocked(inst, StatusError, err.Error())
	o.mu.Unlock()
	cleanup()
	if failed {
		o.logger.Error("Strategy instance failed", zap.String("instanceID", inst.id), zap.String("strategyID", inst.strategyID), zap.Error(err))
		o.notify(inst, alert.InstanceFailed, err.Error(), nil)
	}
}

// execute runs one step and commits its result. The caller holds the
// instance's execution slot.
func (o *Orchestrator) execute(inst *instance, trig TriggerInfo) (StepResult, error) {
	o.mu.Lock()
	if inst.status != StatusRunning || inst.ec.StopRequested {
		o.mu.Unlock()
		return StepResult{}, ErrInstanceNotRunnable
	}
	ec := inst.ec.Clone()
	ec.Trigger = trig
	runCtx := inst.runCtx
	o.mu.Unlock()

	if !o.quota.TryRecord(inst.ownerID) {
		return StepResult{}, fmt.Errorf("%w: %s", ErrDailyLimitExceeded, inst.ownerID)
	}

	started := o.now()
	res, err := o.steps.Execute(runCtx, inst.strategyID, ec)
	if err == nil && !res.Success {
		err = res.Err
		if err == nil {
			err = errors.New("step reported failure")
		}
	}
	next := res.Context
	if next == nil {
		next = ec
	}
	if err == nil && o.cfg.MaxContextVars > 0 && len(next.Vars) > o.cfg.MaxContextVars {
		err = fmt.Errorf("%w: %d keys", ErrTooManyVars, len(next.Vars))
	}
	elapsed := o.now().Sub(started)

	if err != nil {
		err = &StepError{StrategyID: inst.strategyID, InstanceID: inst.id, Err: err}
		o.recordExecution(inst, trig, false, false, elapsed, err)
		if o.breaker.RecordFailure(inst.strategyID) {
			o.tripBreaker(inst, err)
		}
		return res, err
	}
	o.breaker.RecordSuccess(inst.strategyID)

	next.InstanceID = inst.id
	next.StrategyID = inst.strategyID
	next.maxVars = o.cfg.MaxContextVars

	o.mu.Lock()
	inst.executionCount++
	if inst.status != StatusRunning {
		// Stopped during the step: keep the context but act on nothing.
		next.StopRequested = true
		inst.ec = next
		o.mu.Unlock()
		o.recordExecution(inst, trig, true, res.Completed, elapsed, nil)
		return res, nil
	}
	if inst.ec.StopRequested {
		next.StopRequested = true
	}
	inst.ec = next
	inst.retryCount = 0
	inst.lastError = ""
	stopRequested := next.StopRequested
	token := next.TokenAddress
	if token == "" {
		token = inst.def.TokenAddress
	}
	needSubscription := res.SubscriptionRequested && inst.subscribedToken == "" && o.feed != nil && token != ""
	paper := inst.def.Mode == strategy.ModePaper && inst.paperSessionID != ""
	sessionID := inst.paperSessionID
	o.mu.Unlock()

	o.recordExecution(inst, trig, true, res.Completed, elapsed, nil)

	if paper && len(res.Intents) > 0 {
		o.routeIntents(runCtx, inst, sessionID, token, res.Intents)
	}
	if needSubscription {
		o.subscribe(inst, token)
	}
	switch {
	case res.Completed:
		o.logger.Info("Strategy instance completed", zap.String("instanceID", inst.id), zap.String("strategyID", inst.strategyID))
		o.finish(inst, StatusStopped, "completed", alert.InstanceCompleted)
	case stopRequested:
		o.Stop(inst.id)
	}
	return res, nil
}

func (o *Orchestrator) routeIntents(ctx context.Context, inst *instance, sessionID, defaultToken string, intents []TradeIntent) {
	for _, in := range intents {
		token := in.TokenAddress
		if token == "" {
			token = defaultToken
		}
		var err error
		switch in.Side {
		case market.SideBuy:
			_, err = o.sim.ExecuteBuy(ctx, sessionID, token, in.BaseAmount)
		case market.SideSell:
			qty := engine.Exact(in.SellQty)
			if in.SellAll {
				qty = engine.All()
			}
			_, err = o.sim.ExecuteSell(ctx, sessionID, token, qty)
		default:
			err = fmt.Errorf("%w: unknown side %q", ErrValidation, in.Side)
		}
		if err == nil {
			continue
		}
		o.logger.Warn("Trade intent failed",
			zap.String("instanceID", inst.id),
			zap.String("sessionID", sessionID),
			zap.String("side", string(in.Side)),
			zap.String("token", token),
			zap.Error(err))
		if !errors.Is(err, engine.ErrMarketDataUnavailable) {
			// The engine already reports market data failures.
			o.notify(inst, alert.TradeFailed, err.Error(), map[string]any{"side": string(in.Side), "token": token})
		}
		o.mu.Lock()
		if inst.status == StatusRunning {
			inst.ec.LastError = err.Error()
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) subscribe(inst *instance, token string) {
	o.mu.Lock()
	if inst.status != StatusRunning || inst.subscribedToken != "" {
		o.mu.Unlock()
		return
	}
	inst.subscribedToken = token
	o.mu.Unlock()

	id := inst.id
	if !o.feed.Subscribe(token, id, func(ev market.TradeEvent) { o.enqueue(id, ev) }) {
		o.logger.Debug("Already subscribed", zap.String("instanceID", id), zap.String("token", token))
	}

	o.mu.Lock()
	stopped := inst.status != StatusRunning
	o.mu.Unlock()
	if stopped {
		o.feed.Unsubscribe(token, id)
		return
	}
	o.logger.Info("Subscribed to trade events", zap.String("instanceID", id), zap.String("token", token))
}

func (o *Orchestrator) tripBreaker(inst *instance, cause error) {
	o.logger.Error("Circuit breaker tripped",
		zap.String("strategyID", inst.strategyID),
		zap.String("instanceID", inst.id),
		zap.Int("threshold", o.cfg.CircuitBreakerThreshold),
		zap.Error(cause))
	o.notify(inst, alert.CircuitBreakerTripped, cause.Error(), map[string]any{"threshold": o.cfg.CircuitBreakerThreshold})
	o.finish(inst, StatusStopped, "circuit breaker tripped", alert.InstanceStopped)
}

func (o *Orchestrator) recordExecution(inst *instance, trig TriggerInfo, success, completed bool, elapsed time.Duration, err error) {
	o.mu.Lock()
	count := inst.executionCount
	o.mu.Unlock()
	log := dbwriter.ExecutionLog{
		Time:           o.now().UTC(),
		InstanceID:     inst.id,
		StrategyID:     inst.strategyID,
		Trigger:        string(trig.Source),
		Success:        success,
		Completed:      completed,
		DurationMs:     elapsed.Milliseconds(),
		ExecutionCount: count,
	}
	if err != nil {
		log.Error = err.Error()
	}
	o.repo.SaveExecutionLog(log)
}

func (o *Orchestrator) notify(inst *instance, t alert.EventType, msg string, data map[string]any) {
	o.notifier.Notify(alert.Event{
		Type:       t,
		StrategyID: inst.strategyID,
		InstanceID: inst.id,
		SessionID:  inst.paperSessionID,
		Message:    msg,
		Data:       data,
		Time:       o.now().UTC(),
	})
}

// Status returns a snapshot of one instance.
func (o *Orchestrator) Status(instanceID string) (InstanceInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	inst, ok := o.instances[instanceID]
	if !ok {
		return InstanceInfo{}, false
	}
	return inst.info(), true
}

// Instances returns snapshots of every known instance ordered by start time.
func (o *Orchestrator) Instances() []InstanceInfo {
	o.mu.Lock()
	out := make([]InstanceInfo, 0, len(o.instances))
	for _, inst := range o.instances {
		out = append(out, inst.info())
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// info copies the instance. The caller holds o.mu.
func (inst *instance) info() InstanceInfo {
	return InstanceInfo{
		ID:              inst.id,
		StrategyID:      inst.strategyID,
		OwnerID:         inst.ownerID,
		Status:          inst.status,
		StopReason:      inst.stopReason,
		StartTime:       inst.startTime,
		ExecutionCount:  inst.executionCount,
		RetryCount:      inst.retryCount,
		MaxRetries:      inst.maxRetries,
		Executing:       inst.executing.Load(),
		PaperSessionID:  inst.paperSessionID,
		SubscribedToken: inst.subscribedToken,
		LastError:       inst.lastError,
		Context:         inst.ec.Clone(),
	}
}

// DeadLetters returns the dead-letter entries, oldest first.
func (o *Orchestrator) DeadLetters() []DeadLetter {
	return o.deadLetters.Entries()
}

// ClearDeadLetters empties the dead-letter queue.
func (o *Orchestrator) ClearDeadLetters() int {
	n := o.deadLetters.Clear()
	o.logger.Info("Dead letters cleared", zap.Int("count", n))
	return n
}

// ResetCircuitBreaker closes the breaker of strategyID.
func (o *Orchestrator) ResetCircuitBreaker(strategyID string) {
	o.breaker.Reset(strategyID)
	o.logger.Info("Circuit breaker reset", zap.String("strategyID", strategyID))
	o.notifier.Notify(alert.Event{
		Type:       alert.CircuitBreakerReset,
		StrategyID: strategyID,
		Message:    "circuit breaker reset",
		Time:       o.now().UTC(),
	})
}

// CircuitState returns the breaker state of strategyID.
func (o *Orchestrator) CircuitState(strategyID string) CircuitState {
	return o.breaker.State(strategyID)
}

// RateWindowCount returns the fast-path executions of strategyID in the
// current window.
func (o *Orchestrator) RateWindowCount(strategyID string) int {
	return o.limiter.Count(strategyID)
}

// Shutdown stops every running instance and waits for in-flight executions
// until ctx is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	var cleanups []func()
	var stopped []*instance
	for _, inst := range o.instances {
		if cleanup, ok := o.terminateLocked(inst, StatusStopped, "shutdown"); ok {
			cleanups = append(cleanups, cleanup)
			stopped = append(stopped, inst)
		}
	}
	o.queue = nil
	o.mu.Unlock()

	for _, c := range cleanups {
		c()
	}
	for _, inst := range stopped {
		o.notify(inst, alert.InstanceStopped, "shutdown", nil)
	}
	o.logger.Info("Orchestrator shutting down", zap.Int("stopped", len(stopped)))

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
