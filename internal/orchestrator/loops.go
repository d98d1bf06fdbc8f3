package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	v1 "github.com/f9-o/warden/api/v1"
)

// ErrAlreadyRunning is returned by Start when the loops are already running.
var ErrAlreadyRunning = errors.New("orchestrator already running")

// Start launches the health loop and the rule loop. Both run once
// immediately and then on their configured intervals until ctx is cancelled
// or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.cancel != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.loops.Add(2)
	go o.loop(loopCtx, "health", o.cfg.HealthInterval, o.CheckHealth)
	go o.loop(loopCtx, "rules", o.cfg.RuleInterval, o.EvaluateRules)

	o.log.Info("orchestrator started",
		"health_interval", o.cfg.HealthInterval,
		"rule_interval", o.cfg.RuleInterval,
		"services", len(o.snapshotServices()),
	)
	return nil
}

// Stop cancels both loops and waits for them and for any in-flight
// remediation to finish. It is safe to call more than once.
func (o *Orchestrator) Stop() {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.cancel == nil {
		return
	}
	o.cancel()
	o.loops.Wait()
	o.inflight.Wait()
	o.cancel = nil
	o.log.Info("orchestrator stopped")
}

func (o *Orchestrator) loop(ctx context.Context, name string, every time.Duration, cycle func(context.Context)) {
	defer o.loops.Done()

	// Cycles are detached from loop cancellation so Stop never interrupts a
	// probe or remediation midway.
	cycleCtx := context.WithoutCancel(ctx)
	run := func() {
		start := time.Now()
		cycle(cycleCtx)
		if o.metrics != nil {
			o.metrics.ObserveCycle(name, time.Since(start))
		}
	}

	run()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// forEachService runs fn for every registered service concurrently. A panic
// in one service is logged and does not affect the others.
func (o *Orchestrator) forEachService(ctx context.Context, phase string, fn func(context.Context, *serviceState)) {
	var g errgroup.Group
	for _, st := range o.snapshotServices() {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					o.log.Error("service cycle panicked",
						"phase", phase,
						"service", st.name,
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
				}
			}()
			fn(ctx, st)
			return nil
		})
	}
	_ = g.Wait()
}

// CheckHealth probes every registered service once and records a sample for each.
func (o *Orchestrator) CheckHealth(ctx context.Context) {
	o.forEachService(ctx, "health", o.checkService)
}

func (o *Orchestrator) checkService(ctx context.Context, st *serviceState) {
	st.mu.Lock()
	eps := append([]v1.ServiceEndpoint(nil), st.endpoints...)
	st.mu.Unlock()

	sample, err := o.agg.CheckService(ctx, st.name, eps)
	if err != nil {
		o.log.Warn("health check failed", "service", st.name, "err", err)
		return
	}

	// The sample and the selection it drives are published together under
	// st.mu so status readers never see an active endpoint the sample marks down.
	st.mu.Lock()
	prev := st.lastSample
	st.lastSample = &sample
	if sample.State == v1.StateHealthy {
		for _, rs := range st.rules {
			rs.failures = 0
			if rs.suspended {
				rs.suspended = false
				o.log.Info("rule resumed", "service", st.name, "condition", rs.rule.Condition, "action", rs.rule.Action)
			}
		}
	}
	restored := sample.State == v1.StateHealthy && o.sel.Restore(st.name)
	_, selected := o.sel.SelectActive(st.name, eps, sample)
	st.mu.Unlock()

	if prev == nil || prev.State != sample.State {
		o.log.Info("service state changed",
			"service", st.name,
			"state", sample.State,
			"healthy", sample.HealthyEndpoints,
			"total", sample.TotalEndpoints,
		)
	}
	if restored {
		o.log.Info("drained endpoints restored", "service", st.name)
	}
	if !selected && !o.sel.InMaintenance(st.name) {
		o.log.Debug("no endpoint available", "service", st.name)
	}
	if o.metrics != nil {
		o.metrics.ObserveSample(st.name, sample)
	}
}

// EvaluateRules runs one rule cycle over every registered service.
func (o *Orchestrator) EvaluateRules(ctx context.Context) {
	o.forEachService(ctx, "rules", o.evaluateService)
}

// evaluateService walks the rules of one service in order. Cooldown is judged
// against the last failover recorded before the cycle began, and the first
// successful remediation ends the cycle for the service.
func (o *Orchestrator) evaluateService(ctx context.Context, st *serviceState) {
	if o.sel.InMaintenance(st.name) {
		o.log.Debug("rules skipped during maintenance", "service", st.name)
		return
	}

	st.evalMu.Lock()
	defer st.evalMu.Unlock()

	st.mu.Lock()
	rules := append([]*ruleState(nil), st.rules...)
	last := st.lastRecord()
	st.mu.Unlock()
	if len(rules) == 0 {
		return
	}

	history := o.agg.History(st.name, 0)
	for _, rs := range rules {
		st.mu.Lock()
		rule, suspended := rs.rule, rs.suspended
		st.mu.Unlock()
		if suspended {
			continue
		}
		if o.engine.InCooldown(rule, last) {
			o.log.Debug("rule in cooldown",
				"service", st.name,
				"action", rule.Action,
				"remaining", o.engine.CooldownRemaining(rule, last),
			)
			continue
		}

		fired, err := o.engine.Evaluate(ctx, rule, history)
		if err != nil {
			o.log.Warn("rule evaluation failed", "service", st.name, "condition", rule.Condition, "err", err)
			continue
		}
		if !fired {
			continue
		}

		o.log.Info("rule triggered", "service", st.name, "condition", rule.Condition, "action", rule.Action)
		rec := o.remediate(ctx, st, rule.Action, rule.Params, &rule, false)

		st.mu.Lock()
		if rec.Success {
			rs.failures = 0
		} else {
			rs.failures++
			if rule.MaxAttempts > 0 && rs.failures >= rule.MaxAttempts && !rs.suspended {
				rs.suspended = true
				o.log.Warn("rule suspended",
					"service", st.name,
					"action", rule.Action,
					"attempts", rs.failures,
				)
			}
		}
		st.mu.Unlock()

		if rec.Success {
			return
		}
	}
}
