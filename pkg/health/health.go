// Package health runs named checks periodically and tracks whether each one
// is currently passing.
//
// Checks use failure/success thresholds to avoid flapping: a check must fail
// consecutively failureThreshold times before being marked unhealthy, and
// succeed successThreshold times before being marked healthy again.
package health

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Default thresholds.
const (
	DefaultFailureThreshold = 3
	DefaultSuccessThreshold = 1
)

// CheckFunc is a check function. It returns nil if the checked component is
// healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// ChangeFunc is called when a check flips between healthy and unhealthy.
type ChangeFunc func(name string, healthy bool, err error)

// checkConfig holds the configuration and runtime state for a single check.
//
// run() is called from exactly one goroutine, so the counters need no
// synchronization. healthy and lastErr are read from arbitrary goroutines.
type checkConfig struct {
	name             string
	timeout          time.Duration
	check            CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]
	runs    atomic.Int64

	consecutiveFails int
	consecutiveOK    int
}

func (c *checkConfig) isHealthy() bool {
	return c.healthy.Load()
}

func (c *checkConfig) getLastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and updates thresholds accordingly. It reports
// whether the health state changed.
func (c *checkConfig) run(ctx context.Context) (changed bool) {
	checkCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := c.check(checkCtx)
	c.lastErr.Store(&err)
	c.runs.Add(1)

	was := c.healthy.Load()
	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy.Store(false)
		}
	} else {
		c.consecutiveFails = 0
		c.consecutiveOK++
		if c.consecutiveOK >= c.successThreshold {
			c.healthy.Store(true)
		}
	}
	return was != c.healthy.Load()
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithThresholds overrides the failure and success thresholds of checks
// added afterwards.
func WithThresholds(failure, success int) Option {
	return func(m *Monitor) {
		if failure > 0 {
			m.failureThreshold = failure
		}
		if success > 0 {
			m.successThreshold = success
		}
	}
}

// WithOnChange sets the state change callback.
func WithOnChange(fn ChangeFunc) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// WithLogger sets the logger used to report state changes.
func WithLogger(lg *zap.Logger) Option {
	return func(m *Monitor) { m.lg = lg }
}

// Monitor runs registered checks in background goroutines.
type Monitor struct {
	failureThreshold int
	successThreshold int
	onChange         ChangeFunc
	lg               *zap.Logger

	// mu protects checks and cancel. It is never held while a check runs.
	mu     sync.RWMutex
	checks []*checkConfig
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor with no checks.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		failureThreshold: DefaultFailureThreshold,
		successThreshold: DefaultSuccessThreshold,
		lg:               zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AddCheck registers a check. Checks start healthy until proven otherwise.
// A zero timeout means the check is bounded only by the Monitor context.
func (m *Monitor) AddCheck(name string, timeout time.Duration, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := &checkConfig{
		name:             name,
		timeout:          timeout,
		check:            check,
		failureThreshold: m.failureThreshold,
		successThreshold: m.successThreshold,
	}
	c.healthy.Store(true)
	m.checks = append(m.checks, c)
}

// Start runs every registered check immediately and then at the given
// interval, each in its own goroutine, until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	checks := append([]*checkConfig(nil), m.checks...)
	m.mu.Unlock()

	for _, c := range checks {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runCheck(ctx, c, interval)
		}()
	}
}

func (m *Monitor) runCheck(ctx context.Context, c *checkConfig, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.runOnce(ctx, c)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx, c)
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context, c *checkConfig) {
	if !c.run(ctx) {
		return
	}
	healthy, err := c.isHealthy(), c.getLastError()
	if healthy {
		m.lg.Info("Check recovered", zap.String("check", c.name))
	} else {
		m.lg.Warn("Check unhealthy", zap.String("check", c.name), zap.Error(err))
	}
	if m.onChange != nil {
		m.onChange(c.name, healthy, err)
	}
}

// Stop cancels all check goroutines and waits for them to return. It is safe
// to call Stop multiple times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// Healthy reports whether every check is currently passing.
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	checks := m.checks
	m.mu.RUnlock()

	for _, c := range checks {
		if !c.isHealthy() {
			return false
		}
	}
	return true
}

// Failures returns check name to error message for every unhealthy check.
func (m *Monitor) Failures() map[string]string {
	m.mu.RLock()
	checks := m.checks
	m.mu.RUnlock()

	failures := make(map[string]string)
	for _, c := range checks {
		if c.isHealthy() {
			continue
		}
		if err := c.getLastError(); err != nil {
			failures[c.name] = err.Error()
		} else {
			failures[c.name] = "check is unhealthy"
		}
	}
	return failures
}

// Runs returns how many times each check has run, ordered by name.
func (m *Monitor) Runs() []CheckRuns {
	m.mu.RLock()
	checks := m.checks
	m.mu.RUnlock()

	out := make([]CheckRuns, 0, len(checks))
	for _, c := range checks {
		out = append(out, CheckRuns{Name: c.name, Runs: c.runs.Load()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CheckRuns is a run counter of one check.
type CheckRuns struct {
	Name string
	Runs int64
}
