package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/pkg/errs"
)

const notifyTimeout = 10 * time.Second

var errReportedFailure = errors.New("remediation reported failure")

// ManualFailover runs action against service immediately, bypassing rules and
// cooldowns. The attempt is recorded either way; a failed attempt is also
// returned as an error.
func (o *Orchestrator) ManualFailover(ctx context.Context, service string, action v1.Action, params map[string]string) (v1.FailoverRecord, error) {
	const op = "orchestrator.manual_failover"
	if !action.Valid() {
		return v1.FailoverRecord{}, errs.Newf(errs.ErrUnknownAction, op, "unknown action %q", action).
			WithResource(service)
	}
	st, err := o.lookup(service, op)
	if err != nil {
		return v1.FailoverRecord{}, err
	}

	st.evalMu.Lock()
	defer st.evalMu.Unlock()

	o.log.Info("manual failover requested", "service", service, "action", action)
	rec := o.remediate(ctx, st, action, params, nil, true)
	if !rec.Success {
		return rec, errs.Newf(errs.ErrRemediation, op, "%s", rec.Error).WithResource(service)
	}
	return rec, nil
}

// remediate executes action through the service breaker and records the
// outcome. The remediation keeps running when ctx is cancelled; it is bounded
// only by the remediation timeout so a shutdown never leaves it half applied.
func (o *Orchestrator) remediate(ctx context.Context, st *serviceState, action v1.Action, params map[string]string, rule *v1.FailoverRule, manual bool) v1.FailoverRecord {
	o.inflight.Add(1)
	defer o.inflight.Done()

	rec := v1.FailoverRecord{
		ID:        uuid.NewString(),
		Service:   st.name,
		Action:    action,
		Timestamp: o.now(),
		Manual:    manual,
	}
	if rule != nil {
		r := *rule
		rec.Rule = &r
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.RemediationTimeout)
	defer cancel()

	start := time.Now()
	res := st.breaker.Call(rctx, func(ctx context.Context) error {
		ok, err := o.exec.Execute(ctx, action, st.name, params)
		if err != nil {
			return err
		}
		if !ok {
			return errReportedFailure
		}
		return nil
	})
	took := time.Since(start)

	rec.Success = res.OK()
	if err := res.Error(); err != nil {
		rec.Error = err.Error()
	}
	o.record(ctx, st, rec, took)
	return rec
}

// record appends rec to the service's trail, then audits, persists, meters and
// notifies. Failures past the append are logged only.
func (o *Orchestrator) record(ctx context.Context, st *serviceState, rec v1.FailoverRecord, took time.Duration) {
	st.mu.Lock()
	st.records = append(st.records, rec)
	if n := len(st.records); n > maxRecords {
		st.records = append([]v1.FailoverRecord(nil), st.records[n-maxRecords:]...)
	}
	st.mu.Unlock()

	o.log.Audit(rec)
	if o.store != nil {
		if err := o.store.AppendFailover(rec); err != nil {
			o.log.Error("persist failover failed", "service", rec.Service, "id", rec.ID, "err", err)
		}
	}
	if o.metrics != nil {
		o.metrics.ObserveFailover(rec, took)
	}
	o.notify(ctx, rec)
}

func (o *Orchestrator) notify(ctx context.Context, rec v1.FailoverRecord) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("notification panicked", "service", rec.Service, "id", rec.ID, "panic", fmt.Sprint(r))
		}
	}()
	if err := o.sink.Notify(nctx, rec); err != nil {
		o.log.Warn("notification failed", "service", rec.Service, "id", rec.ID, "err", err)
	}
}
