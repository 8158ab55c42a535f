// Package resilience wraps calls to the service's optional backends (Kafka,
// Redis and the snapshot store) with a circuit breaker, exponential-backoff
// retry and per-call timeouts.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current phase of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
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
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls failure thresholds and recovery timing.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// CallTimeout bounds each call made through Execute. Zero leaves the
	// caller's deadline in charge.
	CallTimeout time.Duration
	// IsFailure decides whether an error counts against the breaker. The
	// default ignores cancellation by the caller.
	IsFailure func(ctx context.Context, err error) bool
	// OnStateChange, if set, is called with the breaker lock held after
	// every transition.
	OnStateChange func(name string, from, to State)
}

func defaultCBConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
		IsFailure:           countsAsFailure,
	}
}

func countsAsFailure(ctx context.Context, err error) bool {
	return !(errors.Is(err, context.Canceled) && ctx.Err() != nil)
}

// CircuitBreaker trips open after FailureThreshold consecutive failures,
// rejects calls until ResetTimeout has passed, then lets HalfOpenMaxRequests
// probes through to decide whether to close again.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenRequests    int
	rejected            uint64
}

// NewCircuitBreaker creates a CircuitBreaker with the given config, filling
// in defaults for zero values.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	defaults := defaultCBConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaults.IsFailure
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn if the circuit allows it and records the outcome. fn
// receives a context bounded by CallTimeout.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := WithTimeout(ctx, cb.cfg.CallTimeout, cb.name, fn)
	cb.record(ctx, err)
	return err
}

// GetState returns the current State of the circuit breaker.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Rejected returns how many calls were refused while the circuit was open.
func (cb *CircuitBreaker) Rejected() uint64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.rejected
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - time.Since(cb.openedAt)
		if wait > 0 {
			cb.rejected++
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.setState(StateHalfOpen)
		cb.halfOpenRequests = 1
		cb.logger.Info("circuit transitioning to half-open", "after", cb.cfg.ResetTimeout)
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.cfg.HalfOpenMaxRequests {
			cb.rejected++
			return fmt.Errorf("%w: %s (half-open probe limit reached)", ErrCircuitOpen, cb.name)
		}
		cb.halfOpenRequests++
	}
	return nil
}

func (cb *CircuitBreaker) record(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil || !cb.cfg.IsFailure(ctx, err) {
		if cb.state == StateOpen {
			return
		}
		if cb.state == StateHalfOpen {
			cb.logger.Info("circuit closed (recovered)")
		}
		cb.setState(StateClosed)
		cb.consecutiveFailures = 0
		cb.halfOpenRequests = 0
		return
	}
	cb.consecutiveFailures++
	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.trip()
			cb.logger.Warn("circuit opened", "consecutive_failures", cb.consecutiveFailures, "threshold", cb.cfg.FailureThreshold, "error", err)
		}
	case StateHalfOpen:
		cb.trip()
		cb.logger.Warn("circuit re-opened (half-open probe failed)", "error", err)
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = time.Now()
	cb.halfOpenRequests = 0
	cb.setState(StateOpen)
}

// Reset forces the circuit breaker back to the Closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.consecutiveFailures = 0
	cb.halfOpenRequests = 0
	cb.logger.Info("circuit manually reset")
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	cb.state = to
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
