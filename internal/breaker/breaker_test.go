package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/warden/api/v1"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func succeed(context.Context) error { return nil }
func fail(context.Context) error    { return errBoom }

func newTestBreaker(t *testing.T, cfg Config, clock *fakeClock) *Breaker {
	t.Helper()
	b, err := New("orders/primary", cfg, WithClock(clock.Now))
	require.NoError(t, err)
	return b
}

func testConfig() Config {
	return Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, HalfOpenMaxCalls: 2, CallTimeout: time.Second}
}

// quickRecovery keeps the wall-clock recovery timeout short.
func quickRecovery() Config {
	cfg := testConfig()
	cfg.RecoveryTimeout = 100 * time.Millisecond
	return cfg
}

func trip(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		b.Call(context.Background(), fail)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", DefaultConfig(), true},
		{"zero threshold", Config{FailureThreshold: 0, HalfOpenMaxCalls: 1}, false},
		{"zero half open", Config{FailureThreshold: 1, HalfOpenMaxCalls: 0}, false},
		{"negative recovery", Config{FailureThreshold: 1, HalfOpenMaxCalls: 1, RecoveryTimeout: -time.Second}, false},
		{"negative call timeout", Config{FailureThreshold: 1, HalfOpenMaxCalls: 1, CallTimeout: -time.Second}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBreakerThreshold(t *testing.T) {
	for threshold := 1; threshold <= 6; threshold++ {
		cfg := testConfig()
		cfg.FailureThreshold = threshold
		b := newTestBreaker(t, cfg, newFakeClock())

		for i := 0; i < threshold-1; i++ {
			res := b.Call(context.Background(), fail)
			require.Equal(t, Failure, res.Outcome)
		}
		assert.Equal(t, v1.BreakerClosed, b.State(), "threshold %d: N-1 failures keep it closed", threshold)

		b.Call(context.Background(), fail)
		assert.Equal(t, v1.BreakerOpen, b.State(), "threshold %d: Nth failure opens", threshold)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(t, testConfig(), newFakeClock())

	b.Call(context.Background(), fail)
	b.Call(context.Background(), fail)
	assert.Equal(t, 2, b.Snapshot().FailureCount)

	b.Call(context.Background(), succeed)
	assert.Equal(t, 0, b.Snapshot().FailureCount)

	b.Call(context.Background(), fail)
	b.Call(context.Background(), fail)
	assert.Equal(t, v1.BreakerClosed, b.State())
}

func TestOpenBreakerShortCircuits(t *testing.T) {
	b := newTestBreaker(t, testConfig(), newFakeClock())
	trip(b, 3)

	called := false
	res := b.Call(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.Equal(t, CircuitOpen, res.Outcome)
	assert.ErrorIs(t, res.Error(), ErrCircuitOpen)
}

func TestRecoveryHappensOnCallNotBefore(t *testing.T) {
	cfg := quickRecovery()
	b := newTestBreaker(t, cfg, newFakeClock())
	trip(b, 3)
	assert.Equal(t, 3, b.Snapshot().FailureCount)

	assert.Equal(t, CircuitOpen, b.Call(context.Background(), succeed).Outcome)

	time.Sleep(2 * cfg.RecoveryTimeout)
	// Snapshot never transitions on its own.
	assert.Equal(t, v1.BreakerOpen, b.Snapshot().State)

	res := b.Call(context.Background(), succeed)
	assert.Equal(t, OK, res.Outcome)
	snap := b.Snapshot()
	assert.Equal(t, v1.BreakerHalfOpen, snap.State)
	assert.Equal(t, 1, snap.HalfOpenSuccesses)

	b.Call(context.Background(), succeed)
	snap = b.Snapshot()
	assert.Equal(t, v1.BreakerClosed, snap.State)
	assert.Equal(t, 0, snap.FailureCount)
	assert.Equal(t, 0, snap.HalfOpenSuccesses)
}

func TestHalfOpenSingleFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cfg := quickRecovery()
	cfg.HalfOpenMaxCalls = 5
	b := newTestBreaker(t, cfg, clock)
	trip(b, 3)
	clock.Advance(time.Minute)
	time.Sleep(2 * cfg.RecoveryTimeout)

	for i := 0; i < 4; i++ {
		require.True(t, b.Call(context.Background(), succeed).OK())
	}
	require.Equal(t, v1.BreakerHalfOpen, b.State())

	b.Call(context.Background(), fail)
	snap := b.Snapshot()
	assert.Equal(t, v1.BreakerOpen, snap.State)
	require.NotNil(t, snap.LastFailure)
	assert.True(t, snap.LastFailure.Equal(clock.Now()))
}

func TestHalfOpenLimitsConcurrentTrials(t *testing.T) {
	cfg := quickRecovery()
	cfg.HalfOpenMaxCalls = 1
	b := newTestBreaker(t, cfg, newFakeClock())
	trip(b, 3)
	time.Sleep(2 * cfg.RecoveryTimeout)

	release := make(chan struct{})
	started := make(chan struct{})
	go b.Call(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	res := b.Call(context.Background(), succeed)
	assert.Equal(t, CircuitOpen, res.Outcome)

	close(release)
	require.Eventually(t, func() bool { return b.State() == v1.BreakerClosed }, time.Second, 5*time.Millisecond)
}

func TestCallTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	b := newTestBreaker(t, cfg, newFakeClock())

	res := b.Call(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Equal(t, Timeout, res.Outcome)
	assert.ErrorIs(t, res.Error(), ErrTimeout)
	assert.Equal(t, 1, b.Snapshot().FailureCount)
}

func TestCallTimeoutWithUncooperativeOperation(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	b := newTestBreaker(t, cfg, newFakeClock())

	block := make(chan struct{})
	defer close(block)
	start := time.Now()
	res := b.Call(context.Background(), func(context.Context) error {
		<-block
		return nil
	})
	assert.Equal(t, Timeout, res.Outcome)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPanicCountsAsFailure(t *testing.T) {
	b := newTestBreaker(t, testConfig(), newFakeClock())
	res := b.Call(context.Background(), func(context.Context) error { panic("kaboom") })
	assert.Equal(t, Failure, res.Outcome)
	assert.Contains(t, res.Error().Error(), "kaboom")
}

func TestStateChangeCallback(t *testing.T) {
	cfg := quickRecovery()
	var mu sync.Mutex
	var seen []v1.BreakerState
	b, err := New("billing", cfg, WithStateChange(func(name string, from, to v1.BreakerState) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "billing", name)
		seen = append(seen, to)
	}))
	require.NoError(t, err)

	trip(b, 3)
	time.Sleep(2 * cfg.RecoveryTimeout)
	b.Call(context.Background(), succeed)
	b.Call(context.Background(), succeed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []v1.BreakerState{v1.BreakerOpen, v1.BreakerHalfOpen, v1.BreakerClosed}, seen)
}

func TestSet(t *testing.T) {
	s, err := NewSet(testConfig())
	require.NoError(t, err)

	a := s.Get(Key("orders", "a"))
	assert.Same(t, a, s.Get(Key("orders", "a")))
	s.Get(Key("orders", "b"))
	s.Get(Key("billing", "a"))
	assert.Equal(t, []string{"billing/a", "orders/a", "orders/b"}, s.Keys())

	_, ok := s.Snapshot("missing")
	assert.False(t, ok)

	s.RemovePrefix("orders/")
	assert.Equal(t, []string{"billing/a"}, s.Keys())

	_, err = NewSet(Config{})
	assert.Error(t, err)
}

func TestClosedFailuresMustBeConsecutive(t *testing.T) {
	b := newTestBreaker(t, testConfig(), newFakeClock())
	for i := 0; i < 4; i++ {
		b.Call(context.Background(), fail)
		b.Call(context.Background(), fail)
		b.Call(context.Background(), succeed)
	}
	assert.Equal(t, v1.BreakerClosed, b.State())
	assert.Zero(t, b.Snapshot().FailureCount)
}
