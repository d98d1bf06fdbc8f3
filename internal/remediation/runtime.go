package remediation

import (
	"context"
	"errors"

	"github.com/f9-o/warden/internal/core/logger"
)

// ErrAtScaleLimit is returned when a scale action cannot move the replica count.
var ErrAtScaleLimit = errors.New("replica count already at scale limit")

// ScaleLimits bounds the replica count a scale action may produce.
// Max 0 means unbounded.
type ScaleLimits struct {
	Min int
	Max int
}

// clamp returns the replica count after applying delta to current, and
// false when the limits leave no room to move.
func (l ScaleLimits) clamp(current, delta int) (int, bool) {
	target := current + delta
	if target < l.Min {
		target = l.Min
	}
	if l.Max > 0 && target > l.Max {
		target = l.Max
	}
	return target, target != current
}

// Runtime restarts and scales the workload behind a service.
type Runtime interface {
	Restart(ctx context.Context, service string) error
	Scale(ctx context.Context, service string, delta int, limits ScaleLimits) error
}

// NoopRuntime logs the action and reports success. It backs deployments that
// only use traffic actions, and dry runs.
type NoopRuntime struct {
	Log *logger.Logger
}

// Restart logs the restart.
func (n NoopRuntime) Restart(_ context.Context, service string) error {
	n.Log.Info("noop restart", "service", service)
	return nil
}

// Scale logs the scale request.
func (n NoopRuntime) Scale(_ context.Context, service string, delta int, limits ScaleLimits) error {
	n.Log.Info("noop scale", "service", service, "delta", delta, "min", limits.Min, "max", limits.Max)
	return nil
}
