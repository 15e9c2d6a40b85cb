// Package health runs readiness checks for the admin API and serves them
// over HTTP.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

// Check is one named readiness probe. A nil error means healthy.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Check.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc creates a CheckFunc.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string                    { return c.name }
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// CheckResult is the outcome of one check run.
type CheckResult struct {
	Name    string
	Healthy bool
	Error   string
	Latency time.Duration
}

// Status is the aggregate outcome of a run.
type Status struct {
	Healthy bool
	Checks  []CheckResult
}

// Checker runs registered checks concurrently. A check is reported
// unhealthy only after failureThreshold consecutive failures, so a single
// slow database round trip does not flap readiness.
type Checker struct {
	timeout          time.Duration
	failureThreshold int
	log              logger.Logger

	mu       sync.Mutex
	checks   []Check
	failures map[string]int
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout bounds each check. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFailureThreshold sets the consecutive failures needed to report
// unhealthy. Default 1.
func WithFailureThreshold(threshold int) Option {
	return func(c *Checker) {
		if threshold > 0 {
			c.failureThreshold = threshold
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Checker) {
		c.log = l
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		timeout:          5 * time.Second,
		failureThreshold: 1,
		log:              logger.Nop(),
		failures:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add registers a check.
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Run executes every check and returns the aggregate status. The error
// names the failing checks.
func (c *Checker) Run(ctx context.Context) (*Status, error) {
	c.mu.Lock()
	checks := append([]Check(nil), c.checks...)
	c.mu.Unlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = c.run(ctx, check)
		}(i, check)
	}
	wg.Wait()

	status := &Status{Healthy: true, Checks: results}
	var failed []string
	for _, r := range results {
		if !r.Healthy {
			status.Healthy = false
			failed = append(failed, r.Name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return status, fmt.Errorf("health checks failed: %v", failed)
	}
	return status, nil
}

func (c *Checker) run(parent context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	start := time.Now()
	err := check.Check(ctx)
	result := CheckResult{Name: check.Name(), Latency: time.Since(start), Healthy: true}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.failures[check.Name()] = 0
		return result
	}

	c.failures[check.Name()]++
	count := c.failures[check.Name()]
	if count < c.failureThreshold {
		c.log.Debug("Health check failed below threshold",
			logger.StringField("check", check.Name()),
			logger.ErrorField(err),
			logger.IntField("failures", count))
		return result
	}

	result.Healthy = false
	result.Error = err.Error()
	c.log.Warn("Health check failed",
		logger.StringField("check", check.Name()),
		logger.ErrorField(err),
		logger.IntField("failures", count),
		logger.DurationField("latency", result.Latency))
	return result
}
