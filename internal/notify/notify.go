// Package notify delivers failover records to interested parties.
package notify

import (
	"context"
	"errors"
	"fmt"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
)

// Sink receives every failover record after it has been recorded.
// Errors are reported to the caller, which logs them; they never undo the action.
type Sink interface {
	Notify(ctx context.Context, rec v1.FailoverRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec v1.FailoverRecord) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, rec v1.FailoverRecord) error { return f(ctx, rec) }

// LogSink writes each record to the structured log.
type LogSink struct {
	Log *logger.Logger
}

// Notify logs rec at warn level when the remediation failed.
func (s LogSink) Notify(_ context.Context, rec v1.FailoverRecord) error {
	args := []any{
		"id", rec.ID,
		"service", rec.Service,
		"action", rec.Action,
		"manual", rec.Manual,
	}
	if rec.Success {
		s.Log.Info("failover executed", args...)
		return nil
	}
	s.Log.Warn("failover failed", append(args, "err", rec.Error)...)
	return nil
}

// Multi fans a record out to every sink, in order. A failing or panicking
// sink does not stop the rest; their errors are joined.
type Multi []Sink

// Notify delivers rec to each sink.
func (m Multi) Notify(ctx context.Context, rec v1.FailoverRecord) error {
	var errList []error
	for i, s := range m {
		if s == nil {
			continue
		}
		if err := deliver(ctx, s, rec); err != nil {
			errList = append(errList, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errList...)
}

func deliver(ctx context.Context, s Sink, rec v1.FailoverRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Notify(ctx, rec)
}
