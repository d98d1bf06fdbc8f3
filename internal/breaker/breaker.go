// Package breaker implements the per-dependency circuit breaker.
//
// A Breaker cycles CLOSED → OPEN → HALF_OPEN → CLOSED for its whole lifetime.
// Calls made through Call return a typed Result instead of an error so callers
// can tell a short-circuit or timeout apart from a failure of the operation.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	v1 "github.com/f9-o/warden/api/v1"
)

var (
	// ErrCircuitOpen is reported for calls rejected without running the operation.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTimeout is reported when the operation exceeds the call timeout.
	ErrTimeout = errors.New("circuit breaker call timed out")
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the immutable breaker configuration.
type Config struct {
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"  json:"recovery_timeout"`
	HalfOpenMaxCalls int           `mapstructure:"half_open_max_calls" json:"half_open_max_calls"`
	CallTimeout      time.Duration `mapstructure:"call_timeout"      json:"call_timeout"`
}

// DefaultConfig returns the factory breaker settings.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
		CallTimeout:      10 * time.Second,
	}
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	switch {
	case c.FailureThreshold < 1:
		return fmt.Errorf("failure_threshold must be >= 1, got %d", c.FailureThreshold)
	case c.HalfOpenMaxCalls < 1:
		return fmt.Errorf("half_open_max_calls must be >= 1, got %d", c.HalfOpenMaxCalls)
	case c.RecoveryTimeout < 0:
		return fmt.Errorf("recovery_timeout must not be negative")
	case c.CallTimeout < 0:
		return fmt.Errorf("call_timeout must not be negative")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Result
// ─────────────────────────────────────────────────────────────────────────────

// Outcome classifies a single Call.
type Outcome int

const (
	OK Outcome = iota
	Failure
	CircuitOpen
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Failure:
		return "failure"
	case CircuitOpen:
		return "circuit_open"
	case Timeout:
		return "timeout"
	}
	return "unknown"
}

// Result is the typed outcome of Call. Err carries the operation's own error
// for Failure outcomes.
type Result struct {
	Outcome Outcome
	Err     error
}

// OK reports whether the operation ran and succeeded.
func (r Result) OK() bool { return r.Outcome == OK }

// Error folds the result into an error for callers that treat every non-OK
// outcome as a failed operation.
func (r Result) Error() error {
	switch r.Outcome {
	case OK:
		return nil
	case CircuitOpen:
		return ErrCircuitOpen
	case Timeout:
		return ErrTimeout
	}
	if r.Err == nil {
		return errors.New("operation failed")
	}
	return r.Err
}

// ─────────────────────────────────────────────────────────────────────────────
// Breaker
// ─────────────────────────────────────────────────────────────────────────────

// StateChangeFunc observes breaker transitions. It runs outside the breaker lock.
type StateChangeFunc func(name string, from, to v1.BreakerState)

// Option customises a Breaker.
type Option func(*Breaker)

// WithClock replaces the clock used to stamp LastFailure. Recovery timing
// follows the wall clock.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateChange registers a transition observer.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onChange = fn }
}

type transition struct{ from, to v1.BreakerState }

// Breaker guards calls to one dependency. The state machine is a failsafe-go
// circuit breaker: FailureThreshold consecutive failures open it, it admits
// trial calls once RecoveryTimeout has passed, and HalfOpenMaxCalls successes
// close it again while any half-open failure re-opens it.
type Breaker struct {
	name     string
	cfg      Config
	now      func() time.Time
	onChange StateChangeFunc
	cb       circuitbreaker.CircuitBreaker[any]

	mu                sync.Mutex
	failures          int
	lastFailure       time.Time
	halfOpenSuccesses int
	pending           []transition
}

// New creates a CLOSED breaker.
func New(name string, cfg Config, opts ...Option) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("breaker %q: %w", name, err)
	}
	b := &Breaker{
		name: name,
		cfg:  cfg,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.cb = circuitbreaker.Builder[any]().
		WithFailureThreshold(uint(cfg.FailureThreshold)).
		WithSuccessThreshold(uint(cfg.HalfOpenMaxCalls)).
		WithDelay(cfg.RecoveryTimeout).
		OnStateChanged(b.stateChanged).
		Build()
	return b, nil
}

// Name returns the breaker's identifier.
func (b *Breaker) Name() string { return b.name }

// Call runs op under the breaker. An OPEN breaker whose recovery timeout has
// elapsed moves to HALF_OPEN here, on the call attempt, and admits the call.
func (b *Breaker) Call(ctx context.Context, op func(ctx context.Context) error) Result {
	admitted := b.cb.TryAcquirePermit()
	b.flush()
	if !admitted {
		return Result{Outcome: CircuitOpen, Err: ErrCircuitOpen}
	}

	res := b.run(ctx, op)
	b.record(res.Outcome == OK)
	return res
}

// Snapshot returns the current state without causing any transition.
func (b *Breaker) Snapshot() v1.BreakerSnapshot {
	state := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()
	snap := v1.BreakerSnapshot{
		State:             state,
		FailureCount:      b.failures,
		HalfOpenSuccesses: b.halfOpenSuccesses,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		snap.LastFailure = &t
	}
	return snap
}

// State returns the current state without causing any transition.
func (b *Breaker) State() v1.BreakerState {
	return fromLibrary(b.cb.State())
}

func fromLibrary(s circuitbreaker.State) v1.BreakerState {
	switch s {
	case circuitbreaker.OpenState:
		return v1.BreakerOpen
	case circuitbreaker.HalfOpenState:
		return v1.BreakerHalfOpen
	}
	return v1.BreakerClosed
}

func (b *Breaker) run(ctx context.Context, op func(ctx context.Context) error) Result {
	callCtx := ctx
	cancel := func() {}
	if b.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("operation panicked: %v", r)
			}
		}()
		done <- op(callCtx)
	}()

	select {
	case err := <-done:
		if err == nil {
			return Result{Outcome: OK}
		}
		if b.timedOut(ctx, callCtx) {
			return Result{Outcome: Timeout, Err: err}
		}
		return Result{Outcome: Failure, Err: err}
	case <-callCtx.Done():
		if b.timedOut(ctx, callCtx) {
			return Result{Outcome: Timeout, Err: callCtx.Err()}
		}
		return Result{Outcome: Failure, Err: callCtx.Err()}
	}
}

// timedOut distinguishes our own deadline from cancellation by the caller.
func (b *Breaker) timedOut(parent, callCtx context.Context) bool {
	return errors.Is(callCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil
}

// record hands the result to the state machine, then updates the counters it
// does not expose. Library calls stay outside b.mu because stateChanged runs
// under the library's own lock.
func (b *Breaker) record(success bool) {
	before := b.cb.State()
	if success {
		b.cb.RecordSuccess()
	} else {
		b.cb.RecordFailure()
	}
	after := b.cb.State()

	b.mu.Lock()
	switch {
	case success && before == circuitbreaker.ClosedState:
		b.failures = 0
	case success && before == circuitbreaker.HalfOpenState && after == circuitbreaker.HalfOpenState:
		b.halfOpenSuccesses++
	case !success:
		b.lastFailure = b.now()
		if before == circuitbreaker.ClosedState {
			b.failures++
		}
	}
	b.mu.Unlock()
	b.flush()
}

func (b *Breaker) stateChanged(e circuitbreaker.StateChangedEvent) {
	from, to := fromLibrary(e.OldState), fromLibrary(e.NewState)
	b.mu.Lock()
	defer b.mu.Unlock()
	switch to {
	case v1.BreakerClosed:
		b.failures = 0
		b.halfOpenSuccesses = 0
	case v1.BreakerHalfOpen:
		b.halfOpenSuccesses = 0
	}
	if b.onChange != nil {
		b.pending = append(b.pending, transition{from: from, to: to})
	}
}

// flush reports queued transitions outside every lock.
func (b *Breaker) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	for _, t := range pending {
		b.onChange(b.name, t.from, t.to)
	}
}
