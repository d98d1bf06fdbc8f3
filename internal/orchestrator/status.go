package orchestrator

import (
	"time"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/breaker"
)

// Status returns a point-in-time report of every registered service.
func (o *Orchestrator) Status() v1.StatusReport {
	report := v1.StatusReport{
		Timestamp: o.now(),
		Services:  make(map[string]v1.ServiceStatus),
	}
	for _, st := range o.snapshotServices() {
		report.Services[st.name] = o.serviceStatus(st)
	}
	return report
}

// Service returns the status of one service.
func (o *Orchestrator) Service(name string) (v1.ServiceStatus, error) {
	st, err := o.lookup(name, "orchestrator.status")
	if err != nil {
		return v1.ServiceStatus{}, err
	}
	return o.serviceStatus(st), nil
}

func (o *Orchestrator) serviceStatus(st *serviceState) v1.ServiceStatus {
	st.mu.Lock()
	eps := append([]v1.ServiceEndpoint(nil), st.endpoints...)
	sample := st.lastSample
	last := st.lastRecord()
	rules, suspended := len(st.rules), 0
	var cooldown time.Duration
	for _, rs := range st.rules {
		if rs.suspended {
			suspended++
		}
		if rs.rule.Cooldown > cooldown {
			cooldown = rs.rule.Cooldown
		}
	}
	maintenance := o.sel.InMaintenance(st.name)
	drained := make(map[string]bool)
	for _, name := range o.sel.Drained(st.name) {
		drained[name] = true
	}
	active, hasActive := o.sel.Active(st.name)
	st.mu.Unlock()

	status := v1.ServiceStatus{
		Name:           st.name,
		State:          v1.StateUnknown,
		TotalEndpoints: len(eps),
		Maintenance:    maintenance,
		Breaker:        st.breaker.Snapshot(),
		Rules:          rules,
		SuspendedRules: suspended,
	}
	if sample != nil {
		status.State = sample.State
		status.HealthyEndpoints = sample.HealthyEndpoints
		ts := sample.Timestamp
		status.LastChecked = &ts
	}

	if hasActive {
		status.ActiveEndpoint = active
	}
	status.Endpoints = make([]v1.EndpointStatus, 0, len(eps))
	for _, ep := range eps {
		es := v1.EndpointStatus{
			Name:     ep.Name,
			Address:  ep.Address,
			Priority: ep.Priority,
			Primary:  ep.Primary,
			Healthy:  sample != nil && sample.EndpointHealthy(ep.Name),
			Active:   hasActive && ep.Name == active,
			Drained:  drained[ep.Name],
		}
		if o.endpoints != nil {
			if snap, ok := o.endpoints.Snapshot(breaker.Key(st.name, ep.Name)); ok {
				es.Breaker = &snap
			}
		}
		status.Endpoints = append(status.Endpoints, es)
	}

	if last != nil {
		status.LastFailover = last
		status.ActiveFailover = o.now().Sub(last.Timestamp) < o.failoverWindow(last, cooldown)
	}
	return status
}

// failoverWindow is how long a failover counts as active: the cooldown of the
// rule that fired it, or for manual failovers the longest cooldown among the
// service's rules (the configured default when it has none).
func (o *Orchestrator) failoverWindow(last *v1.FailoverRecord, longest time.Duration) time.Duration {
	if last.Rule != nil {
		return last.Rule.Cooldown
	}
	if longest > 0 {
		return longest
	}
	return o.cfg.DefaultCooldown
}
