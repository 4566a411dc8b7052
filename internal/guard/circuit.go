package guard

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState is the breaker's failure-mode state.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitOpenError rejects a call while the breaker is open. The worker
// requeues the opportunity without consuming a retry attempt: the failure
// is ours, not the message's.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *CircuitOpenError) Retryable() bool { return true }

// CircuitBreaker suspends outbound requests after sustained failure and
// probes for recovery after a timeout. The open -> half_open transition
// happens lazily on the next state check; there is no background timer.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	openedAt        time.Time
	threshold       int
	recoveryTimeout time.Duration
	probeInFlight   bool
	now             func() time.Time
	log             *zap.SugaredLogger
}

// NewCircuitBreaker builds a closed breaker. threshold is the consecutive
// failure count that opens it; recoveryTimeout is how long it stays open
// before allowing a single probe.
func NewCircuitBreaker(threshold int, recoveryTimeout time.Duration, log *zap.SugaredLogger) *CircuitBreaker {
	return &CircuitBreaker{
		state:           CircuitClosed,
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
		now:             time.Now,
		log:             log,
	}
}

// CheckAndThrow must be called before every guarded request. While open it
// fails immediately without touching the API; in half_open it admits
// exactly one probe at a time.
func (cb *CircuitBreaker) CheckAndThrow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpenLocked()

	switch cb.state {
	case CircuitOpen:
		remaining := cb.recoveryTimeout - cb.now().Sub(cb.openedAt)
		return &CircuitOpenError{RetryAfter: remaining}
	case CircuitHalfOpen:
		if cb.probeInFlight {
			return &CircuitOpenError{RetryAfter: cb.recoveryTimeout}
		}
		cb.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// maybeHalfOpenLocked performs the lazy open -> half_open transition once
// the recovery timeout has elapsed.
func (cb *CircuitBreaker) maybeHalfOpenLocked() {
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.recoveryTimeout {
		cb.state = CircuitHalfOpen
		cb.probeInFlight = false
		cb.log.Info("circuit half-open, probing")
	}
}

// RecordSuccess reports a completed request. In closed it resets the
// failure count; in half_open the probe succeeded and the circuit closes.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitClosed
		cb.failureCount = 0
		cb.probeInFlight = false
		cb.log.Info("circuit closed after successful probe")
	case CircuitClosed:
		cb.failureCount = 0
	}
}

// RecordFailure reports a failed request. In half_open the probe failed
// and the circuit reopens immediately; in closed it opens once the
// threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.openLocked()
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.threshold {
			cb.openLocked()
		}
	}
}

func (cb *CircuitBreaker) openLocked() {
	cb.state = CircuitOpen
	cb.openedAt = cb.now()
	cb.probeInFlight = false
	cb.log.Warnw("circuit opened", "failures", cb.failureCount)
}

// State returns the current state, applying the lazy recovery transition
// first so callers never observe a stale open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpenLocked()
	return cb.state
}

// IsOpen reports whether calls are currently rejected outright.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == CircuitOpen
}
