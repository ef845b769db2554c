// Package gate guards calls to downstream services with a per-service
// circuit breaker and a per-client token-bucket rate limiter.
package gate

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// halfOpenSuccesses is the number of consecutive probe successes needed to
// close a half-open breaker.
const halfOpenSuccesses = 3

// CircuitBreaker tracks failures against one downstream dependency.
//
// closed: all calls admitted; failureThreshold consecutive-window failures
// trip it open. open: calls rejected until openTimeout has elapsed since the
// last recorded failure, then the next check moves to half-open. half-open:
// calls admitted as probes; one failure re-opens, halfOpenSuccesses
// consecutive successes close it and reset both counters.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	openTimeout      time.Duration
	now              func() time.Time

	onTransition func(to BreakerState)
}

// BreakerStatus is a point-in-time snapshot for the admin surface.
type BreakerStatus struct {
	State           BreakerState
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(failureThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed, transitioning open -> half-open
// once the cooldown since the last failure has elapsed. Rejected calls do
// not reset the cooldown clock.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess notes a successful downstream call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successCount++
	if cb.state == StateHalfOpen && cb.successCount >= halfOpenSuccesses {
		cb.transition(StateClosed)
		cb.failureCount = 0
		cb.successCount = 0
	}
}

// RecordFailure notes a failed downstream call, tripping the breaker when
// the threshold is reached. A failure during a half-open probe re-opens
// immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount = 0
		cb.transition(StateOpen)
	case StateClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.transition(StateOpen)
		}
	}
}

// Status returns a consistent snapshot of the breaker.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStatus{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Reset forces the breaker closed and zeroes its counters. Admin operation.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
}

// transition changes state and fires the hook. Caller holds cb.mu.
func (cb *CircuitBreaker) transition(to BreakerState) {
	if cb.state == to {
		return
	}
	cb.state = to
	if cb.onTransition != nil {
		cb.onTransition(to)
	}
}
