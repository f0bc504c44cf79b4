package orchestrator

import (
	"sync"
	"time"
)

// rateWindow is the length of the rolling rate-limit window.
const rateWindow = time.Minute

// RateLimiter allows at most limit executions per key within a rolling
// window.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string][]time.Time
}

// NewRateLimiter creates a RateLimiter with a one minute window.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  rateWindow,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
}

// Allow records an execution for key and reports whether it is within the
// limit. Rejected calls are not recorded.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	stamps := r.prune(key, now)
	if r.limit > 0 && len(stamps) >= r.limit {
		return false
	}
	r.windows[key] = append(stamps, now)
	return true
}

// Count returns the number of executions of key inside the current window.
func (r *RateLimiter) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prune(key, r.now()))
}

// prune drops timestamps older than the window. The caller holds r.mu.
func (r *RateLimiter) prune(key string, now time.Time) []time.Time {
	stamps := r.windows[key]
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	stamps = stamps[i:]
	if len(stamps) == 0 {
		delete(r.windows, key)
		return nil
	}
	r.windows[key] = stamps
	return stamps
}

// CircuitState is the breaker state of one key.
type CircuitState struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Tripped             bool      `json:"tripped"`
	TrippedAt           time.Time `json:"tripped_at,omitempty"`
}

// CircuitBreaker trips a key after threshold consecutive failures. A tripped
// key stays open until Reset.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	now       func() time.Time
	states    map[string]*CircuitState
}

// NewCircuitBreaker creates a CircuitBreaker.
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		now:       time.Now,
		states:    make(map[string]*CircuitState),
	}
}

// Allow reports whether key is closed.
func (b *CircuitBreaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.states[key]
	return !ok || !s.Tripped
}

// RecordSuccess resets the failure count of a closed key.
func (b *CircuitBreaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.states[key]; ok && !s.Tripped {
		delete(b.states, key)
	}
}

// RecordFailure counts a failure and reports whether this failure tripped
// the breaker.
func (b *CircuitBreaker) RecordFailure(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.states[key]
	if !ok {
		s = &CircuitState{}
		b.states[key] = s
	}
	if s.Tripped {
		return false
	}
	s.ConsecutiveFailures++
	if b.threshold > 0 && s.ConsecutiveFailures >= b.threshold {
		s.Tripped = true
		s.TrippedAt = b.now()
		return true
	}
	return false
}

// Reset closes key and clears its failure count.
func (b *CircuitBreaker) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, key)
}

// State returns the state of key.
func (b *CircuitBreaker) State(key string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.states[key]; ok {
		return *s
	}
	return CircuitState{}
}

// OwnerQuota counts executions per owner per UTC day.
type OwnerQuota struct {
	mu       sync.Mutex
	limit    int
	now      func() time.Time
	day      time.Time
	counters map[string]int
}

// NewOwnerQuota creates an OwnerQuota. A limit of zero disables it.
func NewOwnerQuota(limit int) *OwnerQuota {
	return &OwnerQuota{
		limit:    limit,
		now:      time.Now,
		counters: make(map[string]int),
	}
}

// Allow reports whether owner may execute again today.
func (q *OwnerQuota) Allow(owner string) bool {
	if q.limit <= 0 || owner == "" {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetIfNeeded()
	return q.counters[owner] < q.limit
}

// TryRecord counts one execution for owner if today's limit allows it. The
// check and the increment happen under one lock.
func (q *OwnerQuota) TryRecord(owner string) bool {
	if q.limit <= 0 || owner == "" {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetIfNeeded()
	if q.counters[owner] >= q.limit {
		return false
	}
	q.counters[owner]++
	return true
}

// Used returns today's execution count of owner.
func (q *OwnerQuota) Used(owner string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetIfNeeded()
	return q.counters[owner]
}

func (q *OwnerQuota) resetIfNeeded() {
	day := q.now().UTC().Truncate(24 * time.Hour)
	if !day.Equal(q.day) {
		q.day = day
		q.counters = make(map[string]int)
	}
}
