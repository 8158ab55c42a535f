// Package health runs dependency checks for the liveness and readiness
// probes. Components register a Check; the Checker runs them concurrently,
// each under its own deadline, and reports the worst status.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// DefaultCheckTimeout bounds a single check.
const DefaultCheckTimeout = 2 * time.Second

// Check is a function that probes a single dependency and returns its status.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency string         `json:"latency,omitempty"`
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// PingCheck adapts a dependency's Ping method into a Check. A failing
// optional dependency reports degraded rather than down.
func PingCheck(ping func(ctx context.Context) error, optional bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failed(optional), Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// BreakerCheck reports degraded while open returns true. Used for
// dependencies behind a circuit breaker, which the service can run without.
func BreakerCheck(open func() bool) Check {
	return func(context.Context) ComponentHealth {
		if open() {
			return ComponentHealth{Status: StatusDegraded, Message: "circuit open"}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// InfoCheck always reports up and attaches details, such as corpus size.
func InfoCheck(details func() map[string]any) Check {
	return func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUp, Details: details()}
	}
}

func failed(optional bool) Status {
	if optional {
		return StatusDegraded
	}
	return StatusDown
}

// Checker manages registered health checks and runs them concurrently.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates an empty Checker whose checks each get
// DefaultCheckTimeout.
func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]Check),
		timeout: DefaultCheckTimeout,
		logger:  slog.Default().With("component", "health"),
	}
}

// Register adds a named health check, replacing any check with that name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all registered checks concurrently and returns an aggregated
// Report. The overall status is the worst status among all components. A
// check that outlives its deadline is reported down.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := maps.Clone(c.checks)
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			result := c.runOne(ctx, check)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	for name, comp := range report.Components {
		switch comp.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		}
		if comp.Status != StatusUp {
			c.logger.Debug("component unhealthy", "name", name, "status", comp.Status, "message", comp.Message)
		}
	}
	return report
}

func (c *Checker) runOne(ctx context.Context, check Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	done := make(chan ComponentHealth, 1)
	go func() { done <- check(ctx) }()

	var result ComponentHealth
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ComponentHealth{Status: StatusDown, Message: "check timed out"}
	}
	result.Latency = time.Since(start).Round(time.Millisecond).String()
	return result
}

// LiveHandler returns an HTTP handler for Kubernetes liveness probes.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler returns an HTTP handler for Kubernetes readiness probes. A
// degraded service stays ready.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
