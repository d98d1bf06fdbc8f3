// Package v1 defines the public data types shared across all Warden layers.
package v1

import (
	"fmt"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Status enumerations
// ─────────────────────────────────────────────────────────────────────────────

// HealthState is the aggregate health classification of a service.
type HealthState string

const (
	StateHealthy  HealthState = "healthy"
	StateDegraded HealthState = "degraded"
	StateFailed   HealthState = "failed"
	StateUnknown  HealthState = "unknown"
)

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ProbeType selects how an endpoint is health checked.
type ProbeType string

const (
	ProbeHTTP ProbeType = "http"
	ProbeTCP  ProbeType = "tcp"
	ProbeCmd  ProbeType = "cmd"
)

// Valid reports whether t is a known probe type. The empty type means http.
func (t ProbeType) Valid() bool {
	switch t {
	case "", ProbeHTTP, ProbeTCP, ProbeCmd:
		return true
	}
	return false
}

// TriggerCondition names the health signal a failover rule reacts to.
type TriggerCondition string

const (
	ConditionServiceFailed   TriggerCondition = "service_failed"
	ConditionServiceDegraded TriggerCondition = "service_degraded"
	ConditionHighErrorRate   TriggerCondition = "high_error_rate"
)

// Valid reports whether c is a known trigger condition.
func (c TriggerCondition) Valid() bool {
	switch c {
	case ConditionServiceFailed, ConditionServiceDegraded, ConditionHighErrorRate:
		return true
	}
	return false
}

// Action is the closed set of remediation actions.
type Action string

const (
	ActionRestartService    Action = "restart_service"
	ActionScaleUp           Action = "scale_up"
	ActionScaleDown         Action = "scale_down"
	ActionSwitchTraffic     Action = "switch_traffic"
	ActionEnableMaintenance Action = "enable_maintenance_mode"
)

// Actions lists every remediation action in a stable order.
func Actions() []Action {
	return []Action{
		ActionRestartService,
		ActionScaleUp,
		ActionScaleDown,
		ActionSwitchTraffic,
		ActionEnableMaintenance,
	}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	for _, known := range Actions() {
		if a == known {
			return true
		}
	}
	return false
}

// ParseAction converts a user-supplied string into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Specification types (derived from warden.yaml or the control API)
// ─────────────────────────────────────────────────────────────────────────────

// ServiceEndpoint is one network-addressable instance of a logical service.
// For http probes Address is a base URL, for tcp probes host:port, and for
// cmd probes a shell command.
type ServiceEndpoint struct {
	Name         string        `json:"name"                    yaml:"name"          mapstructure:"name"`
	Address      string        `json:"address"                 yaml:"address"       mapstructure:"address"`
	HealthPath   string        `json:"health_path,omitempty"   yaml:"health_path"   mapstructure:"health_path"`
	Type         ProbeType     `json:"type,omitempty"          yaml:"type"          mapstructure:"type"`
	ExpectedCode int           `json:"expected_code,omitempty" yaml:"expected_code" mapstructure:"expected_code"`
	Timeout      time.Duration `json:"timeout,omitempty"       yaml:"timeout"       mapstructure:"timeout"`
	Primary      bool          `json:"primary"                 yaml:"primary"       mapstructure:"primary"`
	Priority     int           `json:"priority"                yaml:"priority"      mapstructure:"priority"`
}

// FailoverRule maps a trigger condition on a service to a remediation action.
// Threshold is a ratio in (0,1] for service_degraded and high_error_rate.
// MaxAttempts caps consecutive failed remediations; 0 means unlimited.
type FailoverRule struct {
	Service     string            `json:"service"                yaml:"service"      mapstructure:"service"`
	Condition   TriggerCondition  `json:"condition"              yaml:"condition"    mapstructure:"condition"`
	Action      Action            `json:"action"                 yaml:"action"       mapstructure:"action"`
	Threshold   float64           `json:"threshold,omitempty"    yaml:"threshold"    mapstructure:"threshold"`
	TimeWindow  time.Duration     `json:"time_window"            yaml:"time_window"  mapstructure:"time_window"`
	Cooldown    time.Duration     `json:"cooldown"               yaml:"cooldown"     mapstructure:"cooldown"`
	MaxAttempts int               `json:"max_attempts,omitempty" yaml:"max_attempts" mapstructure:"max_attempts"`
	Params      map[string]string `json:"params,omitempty"       yaml:"params"       mapstructure:"params"`
}

// ServiceSpec is the declarative definition of a monitored service.
type ServiceSpec struct {
	Name      string            `json:"name"            yaml:"name"      mapstructure:"name"`
	Endpoints []ServiceEndpoint `json:"endpoints"       yaml:"endpoints" mapstructure:"endpoints"`
	Rules     []FailoverRule    `json:"rules,omitempty" yaml:"rules"     mapstructure:"rules"`
	// Node names the SSH node hosting the service when remediation runs over SSH.
	Node string `json:"node,omitempty" yaml:"node" mapstructure:"node"`
}

// NodeSpec is the declarative definition of a remote node reachable over SSH.
type NodeSpec struct {
	Name       string `json:"name"                  yaml:"name"        mapstructure:"name"`
	Host       string `json:"host"                  yaml:"host"        mapstructure:"host"`
	User       string `json:"user"                  yaml:"user"        mapstructure:"user"`
	Key        string `json:"key"                   yaml:"key"         mapstructure:"key"`
	Port       int    `json:"port"                  yaml:"port"        mapstructure:"port"`
	KnownHosts string `json:"known_hosts,omitempty" yaml:"known_hosts" mapstructure:"known_hosts"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Runtime types
// ─────────────────────────────────────────────────────────────────────────────

// EndpointHealth is the probe outcome for one endpoint within a sample.
type EndpointHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

// HealthSample is one aggregated health observation for a service.
type HealthSample struct {
	Timestamp        time.Time        `json:"timestamp"`
	State            HealthState      `json:"state"`
	HealthyEndpoints int              `json:"healthy_endpoints"`
	TotalEndpoints   int              `json:"total_endpoints"`
	Endpoints        []EndpointHealth `json:"endpoints,omitempty"`
}

// EndpointHealthy reports the probe result for the named endpoint.
func (s HealthSample) EndpointHealthy(name string) bool {
	for _, e := range s.Endpoints {
		if e.Name == name {
			return e.Healthy
		}
	}
	return false
}

// FailoverRecord is an immutable audit entry for one remediation attempt.
type FailoverRecord struct {
	ID        string        `json:"id"`
	Service   string        `json:"service"`
	Action    Action        `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Manual    bool          `json:"manual"`
	Rule      *FailoverRule `json:"rule,omitempty"`
}

// BreakerSnapshot is a read-only view of a circuit breaker.
type BreakerSnapshot struct {
	State             BreakerState `json:"state"`
	FailureCount      int          `json:"failure_count"`
	LastFailure       *time.Time   `json:"last_failure,omitempty"`
	HalfOpenSuccesses int          `json:"half_open_successes,omitempty"`
}

// EndpointStatus describes one endpoint in a status report.
type EndpointStatus struct {
	Name     string           `json:"name"`
	Address  string           `json:"address"`
	Priority int              `json:"priority"`
	Primary  bool             `json:"primary"`
	Healthy  bool             `json:"healthy"`
	Active   bool             `json:"active"`
	Drained  bool             `json:"drained,omitempty"`
	Breaker  *BreakerSnapshot `json:"breaker,omitempty"`
}

// ServiceStatus is the point-in-time view of one service.
type ServiceStatus struct {
	Name             string           `json:"name"`
	State            HealthState      `json:"state"`
	HealthyEndpoints int              `json:"healthy_endpoints"`
	TotalEndpoints   int              `json:"total_endpoints"`
	ActiveEndpoint   string           `json:"active_endpoint,omitempty"`
	Maintenance      bool             `json:"maintenance"`
	Breaker          BreakerSnapshot  `json:"breaker"`
	Endpoints        []EndpointStatus `json:"endpoints"`
	ActiveFailover   bool             `json:"active_failover"`
	LastFailover     *FailoverRecord  `json:"last_failover,omitempty"`
	LastChecked      *time.Time       `json:"last_checked,omitempty"`
	Rules            int              `json:"rules"`
	SuspendedRules   int              `json:"suspended_rules,omitempty"`
}

// StatusReport is the snapshot returned by GET /status.
type StatusReport struct {
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
}
