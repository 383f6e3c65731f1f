package health

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingCheck() CheckFunc {
	return func(_ context.Context) error {
		return nil
	}
}

func failingCheck(msg string) CheckFunc {
	return func(_ context.Context) error {
		return errors.New(msg)
	}
}

func TestMonitor_NoChecks(t *testing.T) {
	m := New()
	assert.True(t, m.Healthy())
	assert.Empty(t, m.Failures())
}

func TestMonitor_FailureThreshold(t *testing.T) {
	m := New()
	m.AddCheck("refresh", time.Second, failingCheck("connection refused"))
	c := m.checks[0]
	ctx := context.Background()

	// Two failures stay below the threshold of three.
	c.run(ctx)
	c.run(ctx)
	assert.True(t, m.Healthy())

	changed := c.run(ctx)
	assert.True(t, changed)
	assert.False(t, m.Healthy())
	assert.Equal(t, map[string]string{"refresh": "connection refused"}, m.Failures())
}

func TestMonitor_Recovery(t *testing.T) {
	failing := true
	m := New()
	m.AddCheck("flaky", time.Second, func(_ context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	})
	c := m.checks[0]
	ctx := context.Background()

	c.run(ctx)
	c.run(ctx)
	c.run(ctx)
	assert.False(t, c.isHealthy())

	// One success recovers with the default success threshold.
	failing = false
	assert.True(t, c.run(ctx))
	assert.True(t, c.isHealthy())
	assert.False(t, c.run(ctx), "no change while staying healthy")
}

func TestMonitor_CustomThresholds(t *testing.T) {
	failing := true
	m := New(WithThresholds(1, 2))
	m.AddCheck("strict", 0, func(_ context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	})
	c := m.checks[0]
	ctx := context.Background()

	c.run(ctx)
	assert.False(t, m.Healthy())

	failing = false
	c.run(ctx)
	assert.False(t, m.Healthy(), "needs two consecutive passes")
	c.run(ctx)
	assert.True(t, m.Healthy())
}

func TestMonitor_LastErrorStored(t *testing.T) {
	m := New()
	m.AddCheck("backend", time.Second, failingCheck("timeout"))
	c := m.checks[0]

	assert.Nil(t, c.getLastError())
	c.run(context.Background())
	assert.EqualError(t, c.getLastError(), "timeout")
}

func TestMonitor_Timeout(t *testing.T) {
	m := New()
	m.AddCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c := m.checks[0]

	c.run(context.Background())
	assert.ErrorIs(t, c.getLastError(), context.DeadlineExceeded)
}

func TestMonitor_StartRunsImmediatelyAndPeriodically(t *testing.T) {
	var calls atomic.Int32
	m := New()
	m.AddCheck("tick", time.Second, func(_ context.Context) error {
		calls.Add(1)
		return nil
	})

	m.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	m.Stop()
	m.Stop()
	n := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, calls.Load(), "no runs after Stop")

	runs := m.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "tick", runs[0].Name)
	assert.EqualValues(t, n, runs[0].Runs)
}

func TestMonitor_OnChange(t *testing.T) {
	type change struct {
		name    string
		healthy bool
	}
	var (
		mu      sync.Mutex
		changes []change
	)
	m := New(
		WithThresholds(1, 1),
		WithOnChange(func(name string, healthy bool, err error) {
			mu.Lock()
			defer mu.Unlock()
			changes = append(changes, change{name: name, healthy: healthy})
		}),
	)
	m.AddCheck("backend", time.Second, failingCheck("down"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !m.Healthy() }, time.Second, time.Millisecond)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []change{{name: "backend", healthy: false}}, changes)
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := New()
	m.AddCheck("failing", time.Second, failingCheck("err"))
	m.AddCheck("passing", time.Second, passingCheck())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				m.Healthy()
				m.Failures()
				m.Runs()
			}
		}()
	}
	wg.Wait()
	m.Stop()
}
