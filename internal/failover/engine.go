// Package failover evaluates failover rules against a service's health history.
package failover

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1 "github.com/f9-o/warden/api/v1"
)

// ErrNoErrorRateSource is returned for high_error_rate rules when no source is wired.
var ErrNoErrorRateSource = errors.New("high_error_rate requires an error-rate source")

// ErrorRateSource reports the fraction of failed requests for a service over
// a trailing window, in [0,1].
type ErrorRateSource interface {
	ErrorRate(ctx context.Context, service string, window time.Duration) (float64, error)
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithErrorRates wires the source used by high_error_rate rules.
func WithErrorRates(src ErrorRateSource) Option {
	return func(e *Engine) { e.rates = src }
}

// Engine decides whether a rule fires. It holds no per-service state.
type Engine struct {
	now   func() time.Time
	rates ErrorRateSource
}

// NewEngine constructs an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate rejects malformed rules before they reach the evaluation loop.
func (e *Engine) Validate(rule v1.FailoverRule) error {
	if !rule.Condition.Valid() {
		return fmt.Errorf("unknown trigger condition %q", rule.Condition)
	}
	if !rule.Action.Valid() {
		return fmt.Errorf("unknown action %q", rule.Action)
	}
	if rule.TimeWindow < 0 || rule.Cooldown < 0 {
		return fmt.Errorf("time_window and cooldown must not be negative")
	}
	if rule.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	switch rule.Condition {
	case v1.ConditionServiceDegraded, v1.ConditionHighErrorRate:
		if rule.Threshold <= 0 || rule.Threshold > 1 {
			return fmt.Errorf("%s threshold must be in (0,1], got %v", rule.Condition, rule.Threshold)
		}
		if rule.TimeWindow == 0 {
			return fmt.Errorf("%s requires a positive time_window", rule.Condition)
		}
	}
	if rule.Condition == v1.ConditionHighErrorRate && e.rates == nil {
		return ErrNoErrorRateSource
	}
	return nil
}

// Evaluate reports whether rule's trigger condition holds for history, which
// must be ordered oldest first.
func (e *Engine) Evaluate(ctx context.Context, rule v1.FailoverRule, history []v1.HealthSample) (bool, error) {
	switch rule.Condition {
	case v1.ConditionServiceFailed:
		return e.serviceFailed(rule, history), nil
	case v1.ConditionServiceDegraded:
		return e.serviceDegraded(rule, history), nil
	case v1.ConditionHighErrorRate:
		return e.highErrorRate(ctx, rule)
	default:
		return false, fmt.Errorf("unknown trigger condition %q", rule.Condition)
	}
}

// serviceFailed fires once the contiguous run of FAILED samples ending at the
// newest sample has lasted at least the rule's window.
func (e *Engine) serviceFailed(rule v1.FailoverRule, history []v1.HealthSample) bool {
	n := len(history)
	if n == 0 || history[n-1].State != v1.StateFailed {
		return false
	}
	start := history[n-1].Timestamp
	for i := n - 1; i >= 0 && history[i].State == v1.StateFailed; i-- {
		start = history[i].Timestamp
	}
	return e.now().Sub(start) >= rule.TimeWindow
}

// serviceDegraded fires when the share of DEGRADED or FAILED samples inside
// the trailing window reaches the threshold. An empty window never fires.
func (e *Engine) serviceDegraded(rule v1.FailoverRule, history []v1.HealthSample) bool {
	now := e.now()
	since := now.Add(-rule.TimeWindow)
	total, bad := 0, 0
	for _, s := range history {
		if s.Timestamp.Before(since) || s.Timestamp.After(now) {
			continue
		}
		total++
		if s.State == v1.StateDegraded || s.State == v1.StateFailed {
			bad++
		}
	}
	if total == 0 {
		return false
	}
	return float64(bad)/float64(total) >= rule.Threshold
}

func (e *Engine) highErrorRate(ctx context.Context, rule v1.FailoverRule) (bool, error) {
	if e.rates == nil {
		return false, ErrNoErrorRateSource
	}
	rate, err := e.rates.ErrorRate(ctx, rule.Service, rule.TimeWindow)
	if err != nil {
		return false, fmt.Errorf("error rate for %q: %w", rule.Service, err)
	}
	return rate >= rule.Threshold, nil
}

// InCooldown reports whether last is recent enough to suppress rule.
func (e *Engine) InCooldown(rule v1.FailoverRule, last *v1.FailoverRecord) bool {
	return e.CooldownRemaining(rule, last) > 0
}

// CooldownRemaining is how long rule stays suppressed by last.
func (e *Engine) CooldownRemaining(rule v1.FailoverRule, last *v1.FailoverRecord) time.Duration {
	if last == nil {
		return 0
	}
	remaining := rule.Cooldown - e.now().Sub(last.Timestamp)
	if remaining < 0 {
		return 0
	}
	return remaining
}
