// Package health implements the upstream health-check machinery: a
// circuit breaker wrapping each upstream's ping loop (SPEC_FULL.md §C.2)
// and the health snapshot structure published to the observability
// collaborator (spec.md §4.5 "Health metrics").
package health

import (
	"sync"
	"time"
)

// BreakerState is one of the three canonical circuit breaker states.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops a persistently failing upstream from consuming ping
// budget: once consecutive failures cross the threshold it opens and
// backs off its own health-check cadence, probing again (half-open) only
// after coolDown has elapsed.
type CircuitBreaker struct {
	failureThreshold int
	coolDown         time.Duration
	now              func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
}

// NewCircuitBreaker builds a breaker that opens after failureThreshold
// consecutive failures and allows one half-open probe after coolDown.
func NewCircuitBreaker(failureThreshold int, coolDown time.Duration, now func() time.Time) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{failureThreshold: failureThreshold, coolDown: coolDown, now: now}
}

// Allow reports whether a health check may be attempted right now: always
// true when closed or half-open, true from open only once coolDown has
// elapsed (transitioning to half-open).
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.coolDown {
		b.state = HalfOpen
		return true
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = Closed
}

// RecordFailure increments the failure count; once it reaches the
// threshold (or a half-open probe fails) the breaker opens.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = b.now()
		return
	}
	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = Open
		b.openedAt = b.now()
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
