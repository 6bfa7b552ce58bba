// Package resilience keeps slow or dead backends from stalling the assistant.
//
// [CircuitBreaker] guards a single backend (the intent classifier, one speech
// service). [Chain] tries an ordered list of interchangeable backends, each
// behind its own breaker, and the typed wrappers in this package expose a
// chain as an ordinary llm, stt or tts provider.
//
// Not every error is a fault. A silent microphone window or a caller giving
// up on its context says nothing about backend health; such errors are
// filtered through [CircuitBreakerConfig.IsFailure] and never trip a breaker.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while a
// breaker rejects traffic.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down elapses.
	StateOpen
	// StateHalfOpen admits a limited number of probe calls.
	StateHalfOpen
)

func (s State) String() string {
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is the run of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is the cool-down before an open breaker admits probes.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of probes admitted while half-open and
	// the number of successful probes needed to close again. Default: 2.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker.
	// Default: [DefaultIsFailure].
	IsFailure func(error) bool

	// OnStateChange is called after each transition, outside the lock.
	OnStateChange func(name string, from, to State)
}

// DefaultIsFailure counts every error except caller cancellation.
func DefaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker is a three-state breaker. Results are tied to the
// generation they were admitted in, so a slow call that returns after the
// breaker already moved on cannot skew the new state's counters.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	openedAt   time.Time
	failures   int // consecutive, closed state
	probes     int // admitted, half-open state
	successes  int // successful probes, half-open state
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 2
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = DefaultIsFailure
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute calls fn unless the breaker rejects the call, in which case it
// returns [ErrCircuitOpen]. fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(gen, cb.cfg.IsFailure(err))
	return err
}

// State reports the current state. An open breaker whose cool-down has
// elapsed reports half-open; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.moveTo(StateClosed)
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen {
		if !cb.cooledDown() {
			cb.mu.Unlock()
			return 0, ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			cb.mu.Unlock()
			cb.notify(from, StateHalfOpen)
			return 0, ErrCircuitOpen
		}
		cb.probes++
	}
	gen, to := cb.generation, cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return gen, nil
}

func (cb *CircuitBreaker) settle(gen uint64, failed bool) {
	cb.mu.Lock()
	if gen != cb.generation {
		cb.mu.Unlock()
		return
	}
	from, to := cb.state, cb.state
	switch {
	case cb.state == StateHalfOpen && failed:
		to = StateOpen
	case cb.state == StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			to = StateClosed
		}
	case failed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			to = StateOpen
		}
	default:
		cb.failures = 0
	}
	if to != from {
		cb.moveTo(to)
	}
	cb.mu.Unlock()

	switch {
	case to == StateOpen && from == StateClosed:
		slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "failures", cb.cfg.MaxFailures)
	case to == StateOpen:
		slog.Warn("circuit breaker probe failed, re-opened", "name", cb.cfg.Name)
	case to == StateClosed && from != StateClosed:
		slog.Info("circuit breaker closed", "name", cb.cfg.Name)
	}
	cb.notify(from, to)
}

// moveTo switches state, starts a new generation and returns the old state.
// cb.mu must be held.
func (cb *CircuitBreaker) moveTo(s State) State {
	from := cb.state
	cb.state = s
	cb.generation++
	cb.failures, cb.probes, cb.successes = 0, 0, 0
	if s == StateOpen {
		cb.openedAt = cb.now()
	}
	return from
}

// cooledDown reports whether an open breaker may probe. cb.mu must be held.
func (cb *CircuitBreaker) cooledDown() bool {
	return cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
