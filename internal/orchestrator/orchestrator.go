// Package orchestrator ties health monitoring, rule evaluation and remediation
// together. One Orchestrator owns every per-service breaker, history, rule set
// and audit trail; nothing is kept in package state.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/balancer"
	"github.com/f9-o/warden/internal/breaker"
	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/internal/failover"
	"github.com/f9-o/warden/internal/health"
	"github.com/f9-o/warden/internal/metrics"
	"github.com/f9-o/warden/internal/notify"
	"github.com/f9-o/warden/internal/remediation"
	"github.com/f9-o/warden/pkg/errs"
	"github.com/f9-o/warden/pkg/netutil"
)

// maxRecords bounds the in-memory audit trail per service.
const maxRecords = 1000

// Executor performs a remediation action. *remediation.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, action v1.Action, service string, params map[string]string) (bool, error)
}

// Store persists registrations and failover records. *state.DB satisfies it.
type Store interface {
	SaveService(spec v1.ServiceSpec) error
	SaveRules(service string, rules []v1.FailoverRule) error
	AppendFailover(rec v1.FailoverRecord) error
}

// Source reloads persisted services and records. *state.DB satisfies it.
type Source interface {
	ListServices() ([]v1.ServiceSpec, error)
	ListFailovers(service string, limit int) ([]v1.FailoverRecord, error)
}

// RegistrationListener is told when a service is registered for the first time.
type RegistrationListener interface {
	ServiceRegistered(ctx context.Context, service string)
}

// Config holds the orchestrator's timing and sizing parameters.
type Config struct {
	HealthInterval     time.Duration
	RuleInterval       time.Duration
	RemediationTimeout time.Duration
	HistoryCapacity    int
	DefaultCooldown    time.Duration
	Breaker            breaker.Config
	// EndpointBreakers routes probes through a breaker per endpoint.
	EndpointBreakers bool
}

// DefaultConfig returns the factory settings.
func DefaultConfig() Config {
	return Config{
		HealthInterval:     30 * time.Second,
		RuleInterval:       60 * time.Second,
		RemediationTimeout: 60 * time.Second,
		HistoryCapacity:    health.DefaultHistoryCapacity,
		DefaultCooldown:    5 * time.Minute,
		Breaker:            breaker.DefaultConfig(),
		EndpointBreakers:   true,
	}
}

// Deps are the collaborators of an Orchestrator. Executor is required; every
// other field has a default or is optional.
type Deps struct {
	Executor   Executor
	Prober     health.Prober
	Selector   *balancer.Selector
	Sink       notify.Sink
	Store      Store
	ErrorRates failover.ErrorRateSource
	Metrics    *metrics.Recorder
	Listener   RegistrationListener
	Log        *logger.Logger
	Clock      func() time.Time
}

type ruleState struct {
	rule      v1.FailoverRule
	failures  int // consecutive failed remediations
	suspended bool
}

type serviceState struct {
	name    string
	breaker *breaker.Breaker

	// evalMu serialises rule evaluation and manual failover.
	evalMu sync.Mutex

	mu         sync.Mutex
	endpoints  []v1.ServiceEndpoint
	node       string
	rules      []*ruleState
	records    []v1.FailoverRecord
	lastSample *v1.HealthSample
}

func (st *serviceState) lastRecord() *v1.FailoverRecord {
	if len(st.records) == 0 {
		return nil
	}
	rec := st.records[len(st.records)-1]
	return &rec
}

func (st *serviceState) ruleList() []v1.FailoverRule {
	out := make([]v1.FailoverRule, len(st.rules))
	for i, rs := range st.rules {
		out[i] = rs.rule
	}
	return out
}

// Orchestrator runs the health and rule loops over registered services.
type Orchestrator struct {
	cfg       Config
	agg       *health.Aggregator
	sel       *balancer.Selector
	engine    *failover.Engine
	exec      Executor
	sink      notify.Sink
	store     Store
	metrics   *metrics.Recorder
	listener  RegistrationListener
	endpoints *breaker.Set
	log       *logger.Logger
	now       func() time.Time

	mu       sync.RWMutex
	services map[string]*serviceState

	runMu    sync.Mutex
	cancel   context.CancelFunc
	loops    sync.WaitGroup
	inflight sync.WaitGroup
}

// New validates cfg and wires the orchestrator's components.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Executor == nil {
		return nil, errs.Newf(errs.ErrConfig, "orchestrator.new", "an executor is required")
	}
	if cfg.HealthInterval <= 0 || cfg.RuleInterval <= 0 || cfg.RemediationTimeout <= 0 {
		return nil, errs.Newf(errs.ErrConfig, "orchestrator.new", "loop intervals and remediation timeout must be positive")
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = health.DefaultHistoryCapacity
	}
	if err := cfg.Breaker.Validate(); err != nil {
		return nil, errs.Wrap(err, errs.ErrConfig, "orchestrator.new")
	}

	o := &Orchestrator{
		cfg:      cfg,
		sel:      deps.Selector,
		exec:     deps.Executor,
		sink:     deps.Sink,
		store:    deps.Store,
		metrics:  deps.Metrics,
		listener: deps.Listener,
		log:      deps.Log,
		now:      deps.Clock,
		services: make(map[string]*serviceState),
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sel == nil {
		o.sel = balancer.NewSelector(o.log)
	}
	if o.sink == nil {
		o.sink = notify.LogSink{Log: o.log}
	}
	prober := deps.Prober
	if prober == nil {
		prober = health.NewProbe(o.log)
	}

	aggOpts := []health.Option{
		health.WithCapacity(cfg.HistoryCapacity),
		health.WithClock(o.now),
	}
	if o.metrics != nil {
		aggOpts = append(aggOpts, health.WithObserver(o.metrics.ObserveProbe))
	}
	if cfg.EndpointBreakers {
		set, err := breaker.NewSet(cfg.Breaker, o.breakerOptions()...)
		if err != nil {
			return nil, errs.Wrap(err, errs.ErrConfig, "orchestrator.new")
		}
		o.endpoints = set
		aggOpts = append(aggOpts, health.WithBreakers(set))
	}
	o.agg = health.NewAggregator(prober, o.log, aggOpts...)

	engineOpts := []failover.Option{failover.WithClock(o.now)}
	if deps.ErrorRates != nil {
		engineOpts = append(engineOpts, failover.WithErrorRates(deps.ErrorRates))
	}
	o.engine = failover.NewEngine(engineOpts...)
	return o, nil
}

func (o *Orchestrator) breakerOptions() []breaker.Option {
	return []breaker.Option{
		breaker.WithClock(o.now),
		breaker.WithStateChange(func(name string, from, to v1.BreakerState) {
			o.log.Info("breaker state changed", "breaker", name, "from", from, "to", to)
			if o.metrics != nil {
				o.metrics.ObserveBreaker(name, from, to)
			}
		}),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Registration
// ─────────────────────────────────────────────────────────────────────────────

// RegisterService adds a service or replaces the endpoints of an existing one.
// History, rules, audit trail and the service breaker survive re-registration.
func (o *Orchestrator) RegisterService(name string, endpoints []v1.ServiceEndpoint) error {
	_, err := o.register(v1.ServiceSpec{Name: name, Endpoints: endpoints}, true)
	return err
}

// Apply registers spec and replaces the service's rule set with spec.Rules.
func (o *Orchestrator) Apply(spec v1.ServiceSpec) error {
	return o.apply(spec, true)
}

func (o *Orchestrator) apply(spec v1.ServiceSpec, persist bool) error {
	rules := make([]*ruleState, 0, len(spec.Rules))
	for _, r := range spec.Rules {
		if r.Service == "" {
			r.Service = spec.Name
		}
		if r.Service != spec.Name {
			return errs.Newf(errs.ErrRuleInvalid, "orchestrator.apply", "rule targets %q inside service %q", r.Service, spec.Name).
				WithResource(spec.Name)
		}
		prepared, err := o.prepareRule(r)
		if err != nil {
			return err
		}
		rules = append(rules, &ruleState{rule: prepared})
	}

	st, err := o.register(spec, persist)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.rules = rules
	snapshot := st.ruleList()
	st.mu.Unlock()
	if persist {
		o.persistRules(spec.Name, snapshot)
	}
	return nil
}

func (o *Orchestrator) register(spec v1.ServiceSpec, persist bool) (*serviceState, error) {
	endpoints, err := validateService(spec.Name, spec.Endpoints)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	st, existed := o.services[spec.Name]
	if !existed {
		cfg := o.cfg.Breaker
		cfg.CallTimeout = o.cfg.RemediationTimeout
		b, err := breaker.New(spec.Name, cfg, o.breakerOptions()...)
		if err != nil {
			o.mu.Unlock()
			return nil, errs.Wrap(err, errs.ErrConfig, "orchestrator.register").WithResource(spec.Name)
		}
		st = &serviceState{name: spec.Name, breaker: b}
		o.services[spec.Name] = st
		o.agg.Track(spec.Name)
	}
	o.mu.Unlock()

	st.mu.Lock()
	dropped := droppedEndpoints(st.endpoints, endpoints)
	st.endpoints = endpoints
	st.node = spec.Node
	st.mu.Unlock()

	if o.endpoints != nil {
		for _, ep := range dropped {
			o.endpoints.Remove(breaker.Key(spec.Name, ep))
		}
	}

	if existed {
		o.log.Info("service updated", "service", spec.Name, "endpoints", len(endpoints), "dropped", len(dropped))
	} else {
		o.log.Info("service registered", "service", spec.Name, "endpoints", len(endpoints))
		if o.listener != nil {
			o.listener.ServiceRegistered(context.Background(), spec.Name)
		}
	}

	if persist && o.store != nil {
		if err := o.store.SaveService(v1.ServiceSpec{Name: spec.Name, Endpoints: endpoints, Node: spec.Node}); err != nil {
			o.log.Error("persist service failed", "service", spec.Name, "err", err)
		}
	}
	return st, nil
}

func droppedEndpoints(prev, next []v1.ServiceEndpoint) []string {
	keep := make(map[string]bool, len(next))
	for _, ep := range next {
		keep[ep.Name] = true
	}
	var out []string
	for _, ep := range prev {
		if !keep[ep.Name] {
			out = append(out, ep.Name)
		}
	}
	return out
}

// validateService checks a registration and returns the endpoints with
// defaults applied.
func validateService(name string, endpoints []v1.ServiceEndpoint) ([]v1.ServiceEndpoint, error) {
	const op = "orchestrator.register"
	if !netutil.IsValidServiceName(name) {
		return nil, errs.Newf(errs.ErrValidation, op, "service name %q must be a lowercase DNS label", name).
			WithResource(name)
	}
	if len(endpoints) == 0 {
		return nil, errs.Wrap(health.ErrNoEndpoints, errs.ErrNoEndpoints, op).WithResource(name).
			WithAdvice("register at least one endpoint")
	}

	seen := make(map[string]bool, len(endpoints))
	out := make([]v1.ServiceEndpoint, len(endpoints))
	for i, ep := range endpoints {
		fail := func(format string, args ...any) error {
			return errs.Newf(errs.ErrValidation, op, "endpoint %q: "+format, append([]any{ep.Name}, args...)...).WithResource(name)
		}
		switch {
		case ep.Name == "":
			return nil, errs.Newf(errs.ErrValidation, op, "endpoint %d has no name", i).WithResource(name)
		case seen[ep.Name]:
			return nil, fail("duplicate endpoint name")
		case ep.Address == "":
			return nil, fail("address is required")
		case !ep.Type.Valid():
			return nil, fail("unknown probe type %q", ep.Type)
		case ep.Timeout < 0:
			return nil, fail("timeout must not be negative")
		case ep.Priority < 0:
			return nil, fail("priority must not be negative")
		}
		seen[ep.Name] = true

		if ep.Type == "" {
			ep.Type = v1.ProbeHTTP
		}
		switch ep.Type {
		case v1.ProbeHTTP:
			if err := netutil.ValidateHTTPBase(ep.Address); err != nil {
				return nil, fail("%v", err)
			}
		case v1.ProbeTCP:
			if err := netutil.ValidateHostPort(ep.Address); err != nil {
				return nil, fail("%v", err)
			}
		}
		out[i] = ep
	}
	return out, nil
}

// AddRule appends rule to its service. Rules are evaluated in the order they
// were added. A zero cooldown takes the configured default.
func (o *Orchestrator) AddRule(rule v1.FailoverRule) error {
	st, err := o.lookup(rule.Service, "orchestrator.add_rule")
	if err != nil {
		return err
	}
	rule, err = o.prepareRule(rule)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.rules = append(st.rules, &ruleState{rule: rule})
	snapshot := st.ruleList()
	st.mu.Unlock()

	o.log.Info("rule added",
		"service", rule.Service,
		"condition", rule.Condition,
		"action", rule.Action,
		"rules", len(snapshot),
	)
	o.persistRules(rule.Service, snapshot)
	return nil
}

func (o *Orchestrator) prepareRule(rule v1.FailoverRule) (v1.FailoverRule, error) {
	if rule.Cooldown == 0 {
		rule.Cooldown = o.cfg.DefaultCooldown
	}
	if err := o.engine.Validate(rule); err != nil {
		return rule, errs.Wrap(err, errs.ErrRuleInvalid, "orchestrator.add_rule").WithResource(rule.Service)
	}
	if rule.Action == v1.ActionScaleUp || rule.Action == v1.ActionScaleDown {
		if _, _, err := remediation.ParseScaleParams(rule.Params); err != nil {
			return rule, errs.Wrap(err, errs.ErrRuleInvalid, "orchestrator.add_rule").WithResource(rule.Service)
		}
	}
	if rule.Params != nil {
		params := make(map[string]string, len(rule.Params))
		for k, v := range rule.Params {
			params[k] = v
		}
		rule.Params = params
	}
	return rule, nil
}

func (o *Orchestrator) persistRules(service string, rules []v1.FailoverRule) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveRules(service, rules); err != nil {
		o.log.Error("persist rules failed", "service", service, "err", err)
	}
}

// Restore reloads persisted services, rules and failover records.
// It is meant to run once, before Start.
func (o *Orchestrator) Restore(src Source) error {
	specs, err := src.ListServices()
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := o.apply(spec, false); err != nil {
			o.log.Warn("skipping stored service", "service", spec.Name, "err", err)
			continue
		}
		recs, err := src.ListFailovers(spec.Name, maxRecords)
		if err != nil {
			return err
		}
		st, _ := o.lookup(spec.Name, "orchestrator.restore")
		st.mu.Lock()
		st.records = recs
		st.mu.Unlock()
	}
	o.log.Info("state restored", "services", len(specs))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) lookup(name, op string) (*serviceState, error) {
	o.mu.RLock()
	st, ok := o.services[name]
	o.mu.RUnlock()
	if !ok {
		return nil, errs.Newf(errs.ErrServiceNotFound, op, "service not registered").WithResource(name)
	}
	return st, nil
}

func (o *Orchestrator) snapshotServices() []*serviceState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*serviceState, 0, len(o.services))
	for _, st := range o.services {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Services returns every registered service with its rules, ordered by name.
func (o *Orchestrator) Services() []v1.ServiceSpec {
	states := o.snapshotServices()
	out := make([]v1.ServiceSpec, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		out = append(out, v1.ServiceSpec{
			Name:      st.name,
			Endpoints: append([]v1.ServiceEndpoint(nil), st.endpoints...),
			Rules:     st.ruleList(),
			Node:      st.node,
		})
		st.mu.Unlock()
	}
	return out
}

// Rules returns the rule set of a service in evaluation order.
func (o *Orchestrator) Rules(name string) ([]v1.FailoverRule, error) {
	st, err := o.lookup(name, "orchestrator.rules")
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.ruleList(), nil
}

// Failovers returns the audit trail of a service, oldest first.
func (o *Orchestrator) Failovers(name string) ([]v1.FailoverRecord, error) {
	st, err := o.lookup(name, "orchestrator.failovers")
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]v1.FailoverRecord(nil), st.records...), nil
}

// History returns the health samples of a service inside the trailing window
// (all retained samples when window is 0).
func (o *Orchestrator) History(name string, window time.Duration) ([]v1.HealthSample, error) {
	if _, err := o.lookup(name, "orchestrator.history"); err != nil {
		return nil, err
	}
	return o.agg.History(name, window), nil
}

// SelectActive picks the endpoint that should receive traffic based on the
// latest health sample. The boolean is false when none is available.
func (o *Orchestrator) SelectActive(name string) (v1.ServiceEndpoint, bool, error) {
	st, err := o.lookup(name, "orchestrator.select")
	if err != nil {
		return v1.ServiceEndpoint{}, false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	var sample v1.HealthSample
	if st.lastSample != nil {
		sample = *st.lastSample
	}
	ep, ok := o.sel.SelectActive(name, st.endpoints, sample)
	return ep, ok, nil
}

// EnableMaintenance excludes a service from selection and automatic
// remediation. It reports whether the mode changed.
func (o *Orchestrator) EnableMaintenance(name string) (bool, error) {
	if _, err := o.lookup(name, "orchestrator.maintenance"); err != nil {
		return false, err
	}
	changed := o.sel.EnableMaintenanceMode(name)
	if changed {
		o.log.Info("maintenance enabled", "service", name)
	}
	return changed, nil
}

// DisableMaintenance returns a service to normal operation.
func (o *Orchestrator) DisableMaintenance(name string) (bool, error) {
	if _, err := o.lookup(name, "orchestrator.maintenance"); err != nil {
		return false, err
	}
	changed := o.sel.DisableMaintenanceMode(name)
	if changed {
		o.log.Info("maintenance disabled", "service", name)
	}
	return changed, nil
}

func (o *Orchestrator) String() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return fmt.Sprintf("orchestrator(%d services)", len(o.services))
}
