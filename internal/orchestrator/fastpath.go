package orchestrator

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/alert"
	"github.com/your-org/strategy-runner/internal/market"
)

// enqueue adds a trade event to the shared queue and starts the drainer if
// it is idle.
func (o *Orchestrator) enqueue(instanceID string, ev market.TradeEvent) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, queuedEvent{instanceID: instanceID, event: ev, enqueuedAt: o.now().UTC()})
	start := !o.draining
	if start {
		o.draining = true
		o.inflight.Add(1)
	}
	o.mu.Unlock()
	if start {
		o.spawn(o.drain)
	}
}

// drain processes queued events in FIFO order until the queue is empty.
// Only one drain runs at a time.
func (o *Orchestrator) drain() {
	defer o.inflight.Done()
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.draining = false
			o.mu.Unlock()
			return
		}
		qe := o.queue[0]
		o.queue[0] = queuedEvent{}
		o.queue = o.queue[1:]
		o.mu.Unlock()

		o.processEvent(qe)
	}
}

func (o *Orchestrator) processEvent(qe queuedEvent) {
	o.mu.Lock()
	inst, ok := o.instances[qe.instanceID]
	if !ok || inst.status != StatusRunning || inst.ec.StopRequested {
		o.mu.Unlock()
		o.logger.Debug("Dropping event for inactive instance", zap.String("instanceID", qe.instanceID))
		return
	}
	o.mu.Unlock()

	if !inst.executing.CompareAndSwap(false, true) {
		o.park(inst, qe)
		return
	}
	defer func() {
		inst.executing.Store(false)
		o.releaseDeferred(inst.id)
	}()

	if !o.limiter.Allow(inst.strategyID) {
		o.logger.Warn("Rate limit exceeded", zap.String("strategyID", inst.strategyID), zap.Int("limit", o.cfg.RateLimitPerMinute))
		o.notify(inst, alert.RateLimitExceeded, "rate limit exceeded", map[string]any{"limit": o.cfg.RateLimitPerMinute})
		o.deadLetter(inst, qe.event, ErrRateLimitExceeded)
		return
	}
	if !o.breaker.Allow(inst.strategyID) {
		o.deadLetter(inst, qe.event, ErrCircuitOpen)
		return
	}

	ev := qe.event
	_, err := o.execute(inst, TriggerInfo{Source: TriggerEvent, Event: &ev, ReceivedAt: qe.enqueuedAt})
	switch {
	case err == nil:
	case errors.Is(err, ErrInstanceNotRunnable):
		o.logger.Debug("Instance stopped before event execution", zap.String("instanceID", inst.id))
	default:
		o.deadLetter(inst, qe.event, err)
	}
}

// park keeps one event per busy instance until its slot is released. Later
// events for the same instance are dropped.
func (o *Orchestrator) park(inst *instance, qe queuedEvent) {
	o.mu.Lock()
	if _, parked := o.deferred[inst.id]; parked {
		o.mu.Unlock()
		o.logger.Debug("Instance busy, dropping coalesced event", zap.String("instanceID", inst.id), zap.String("ref", qe.event.Ref))
		return
	}
	o.deferred[inst.id] = qe
	o.mu.Unlock()

	// The slot may have been released before the event was parked.
	if !inst.executing.Load() {
		o.releaseDeferred(inst.id)
	}
}

// releaseDeferred requeues the parked event of an instance, if any.
func (o *Orchestrator) releaseDeferred(instanceID string) {
	o.mu.Lock()
	qe, ok := o.deferred[instanceID]
	delete(o.deferred, instanceID)
	o.mu.Unlock()
	if ok {
		o.enqueue(qe.instanceID, qe.event)
	}
}

func (o *Orchestrator) deadLetter(inst *instance, ev market.TradeEvent, cause error) {
	dl := DeadLetter{
		ID:         uuid.NewString(),
		StrategyID: inst.strategyID,
		InstanceID: inst.id,
		Event:      ev,
		Error:      cause.Error(),
		Timestamp:  o.now().UTC(),
	}
	if evicted, ok := o.deadLetters.Add(dl); ok {
		o.logger.Debug("Dead letter evicted", zap.String("id", evicted.ID))
	}
	o.logger.Warn("Event dead-lettered",
		zap.String("strategyID", inst.strategyID),
		zap.String("instanceID", inst.id),
		zap.String("ref", ev.Ref),
		zap.Error(cause))
	o.notify(inst, alert.DeadLetterAdded, cause.Error(), map[string]any{"dead_letter_id": dl.ID})
}
