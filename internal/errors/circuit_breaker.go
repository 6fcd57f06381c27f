package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"agentscore/internal/logging"
)

// CircuitState is the position of a breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a breaker. Zero fields take the defaults.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold consecutive probe successes close it again.
	SuccessThreshold int
	// Timeout is the cool-down before the next probe.
	Timeout time.Duration
	Logger  logging.Logger
	Now     func() time.Time
}

// DefaultCircuitBreakerConfig is tuned for a 30 s poll cadence: five failed
// polls open the circuit and one probe is let through every 30 s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// BreakerCounts is a point-in-time view of a breaker.
type BreakerCounts struct {
	State               CircuitState
	ConsecutiveFailures int
	ProbeSuccesses      int
	OpenedAt            time.Time
}

// CircuitBreaker stops calling a collaborator that keeps failing. While
// open, calls fail fast with a KindTransientRemote error; while half-open a
// single probe is in flight at a time.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig
	log  logging.Logger

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if logging.IsNil(log) {
		log = logging.NewComponentLogger("breaker")
	}
	return &CircuitBreaker{name: name, cfg: cfg, log: log}
}

// Execute guards fn. A canceled context is neither a success nor a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if stderrors.Is(err, context.Canceled) {
		cb.Release()
		return err
	}
	cb.Mark(err)
	return err
}

// Allow reports whether a call may go out now. Every nil return must be
// followed by exactly one Mark.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if cb.probing {
			return cb.rejection("probe in flight")
		}
		cb.probing = true
		return nil
	}

	wait := cb.cfg.Timeout - cb.cfg.Now().Sub(cb.openedAt)
	if wait > 0 {
		return cb.rejection(fmt.Sprintf("retry in %s", wait.Truncate(time.Second)))
	}
	cb.transition(StateHalfOpen)
	cb.probing = true
	return nil
}

func (cb *CircuitBreaker) rejection(reason string) error {
	return New(KindTransientRemote, cb.name, fmt.Errorf("circuit open: %s", reason))
}

// Mark records the outcome of an allowed call; nil is a success.
func (cb *CircuitBreaker) Mark(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false

	if err != nil {
		switch cb.state {
		case StateClosed:
			cb.failures++
			if cb.failures >= cb.cfg.FailureThreshold {
				cb.transition(StateOpen)
			}
		case StateHalfOpen:
			cb.transition(StateOpen)
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

// Release gives back an allowed call without recording an outcome.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.successes = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
		cb.log.Warn("[%s] circuit %s -> open after %d failures", cb.name, from, cb.failures)
	case StateHalfOpen:
		cb.log.Info("[%s] circuit half-open, probing", cb.name)
	case StateClosed:
		cb.failures = 0
		cb.log.Info("[%s] circuit closed", cb.name)
	}
}

// State returns the current state without advancing it.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Counts() BreakerCounts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerCounts{
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		ProbeSuccesses:      cb.successes,
		OpenedAt:            cb.openedAt,
	}
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.probing = false
	cb.openedAt = time.Time{}
}
