package webhook

import (
	"sync"
	"time"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitConfig tunes the breakers a Sender keeps per endpoint host.
type CircuitConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int `env:"WEBHOOK_CIRCUIT_FAILURES" envDefault:"5"`
	// SuccessThreshold successes in half-open state close it again.
	SuccessThreshold int `env:"WEBHOOK_CIRCUIT_SUCCESSES" envDefault:"2"`
	// RecoveryTimeout is how long an open circuit rejects requests.
	RecoveryTimeout time.Duration `env:"WEBHOOK_CIRCUIT_RECOVERY" envDefault:"30s"`
}

// CircuitBreaker stops calls to an endpoint that keeps failing. Safe for
// concurrent use.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg CircuitConfig
	now func() time.Time

	state        CircuitState
	failures     int
	successCount int
	lastFailure  time.Time
}

// NewCircuitBreaker creates a closed breaker. Zero config fields default to
// 5 failures, 2 successes and 30 seconds.
func NewCircuitBreaker(cfg CircuitConfig, now func() time.Time) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, now: now}
}

// Allow reports whether a request may go through. An open circuit moves to
// half-open once the recovery timeout has passed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) > cb.cfg.RecoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			return true
		}
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.successCount = 0
	}
}

// State returns the state Allow would act on.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailure) > cb.cfg.RecoveryTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}
