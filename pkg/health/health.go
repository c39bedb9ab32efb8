// Package health provides a lightweight health check registry with an HTTP handler.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ameliahart/conversational_memory/pkg/logger"
)

// Check represents a single health check that can succeed or fail.
type Check interface {
	// Name returns the human-readable name of this check
	Name() string

	// Check performs the health check.
	// Returns nil if healthy, error if unhealthy.
	Check(ctx context.Context) error
}

// CheckFunc is a function adapter that allows simple functions to be used as checks.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc creates a new CheckFunc with the given name and function.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the name of this check.
func (c *CheckFunc) Name() string { return c.name }

// Check executes the check function.
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// CheckResult represents the result of a single health check execution.
type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Status represents the overall health status.
type Status struct {
	Healthy bool          `json:"healthy"`
	Checks  []CheckResult `json:"checks"`
}

// Checker manages and executes health checks.
type Checker struct {
	checks  []Check
	timeout time.Duration
	log     logger.Logger
	mu      sync.RWMutex
}

// New creates a Checker. A zero timeout defaults to 5 seconds.
func New(timeout time.Duration, log logger.Logger) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{timeout: timeout, log: log}
}

// Add registers a health check.
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Run executes all registered checks with the configured per-check timeout.
func (c *Checker) Run(ctx context.Context) Status {
	c.mu.RLock()
	checks := c.checks
	c.mu.RUnlock()

	status := Status{Healthy: true, Checks: make([]CheckResult, 0, len(checks))}
	for _, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		err := check.Check(checkCtx)
		cancel()

		result := CheckResult{
			Name:    check.Name(),
			Healthy: err == nil,
			Latency: time.Since(start).String(),
		}
		if err != nil {
			result.Error = err.Error()
			status.Healthy = false
			if c.log != nil {
				c.log.Warn("Health check failed",
					logger.StringField("check", check.Name()),
					logger.ErrorField(err))
			}
		}
		status.Checks = append(status.Checks, result)
	}
	return status
}

// Handler returns an HTTP handler serving the health status as JSON.
// Returns 200 when all checks pass, 503 otherwise.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Run(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}
