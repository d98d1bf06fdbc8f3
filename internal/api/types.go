package api

import (
	"fmt"
	"time"

	v1 "github.com/f9-o/warden/api/v1"
)

// Response is the envelope of every API reply except GET /status and /metrics.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// EndpointBody is the wire form of v1.ServiceEndpoint. Timeout is a Go
// duration string such as "5s".
type EndpointBody struct {
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	HealthPath   string       `json:"health_path,omitempty"`
	Type         v1.ProbeType `json:"type,omitempty"`
	ExpectedCode int          `json:"expected_code,omitempty"`
	Timeout      string       `json:"timeout,omitempty"`
	Primary      bool         `json:"primary,omitempty"`
	Priority     int          `json:"priority"`
}

// ServiceBody is the body of POST /services and the items of GET /services.
type ServiceBody struct {
	Name      string         `json:"name"`
	Endpoints []EndpointBody `json:"endpoints"`
	Rules     []RuleBody     `json:"rules,omitempty"`
	Node      string         `json:"node,omitempty"`
}

// RuleBody is the wire form of v1.FailoverRule with duration strings.
type RuleBody struct {
	Service     string              `json:"service,omitempty"`
	Condition   v1.TriggerCondition `json:"condition"`
	Action      v1.Action           `json:"action"`
	Threshold   float64             `json:"threshold,omitempty"`
	TimeWindow  string              `json:"time_window,omitempty"`
	Cooldown    string              `json:"cooldown,omitempty"`
	MaxAttempts int                 `json:"max_attempts,omitempty"`
	Params      map[string]string   `json:"params,omitempty"`
}

// FailoverBody is the body of POST /services/:name/failover.
type FailoverBody struct {
	Action v1.Action         `json:"action"`
	Params map[string]string `json:"params,omitempty"`
}

// ErrorRateBody is the body of PUT /services/:name/error-rate.
type ErrorRateBody struct {
	Rate *float64 `json:"rate"`
}

// MaintenanceReply is returned by the maintenance endpoints.
type MaintenanceReply struct {
	Service     string `json:"service"`
	Maintenance bool   `json:"maintenance"`
	Changed     bool   `json:"changed"`
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// Endpoint converts the body to the domain type.
func (b EndpointBody) Endpoint() (v1.ServiceEndpoint, error) {
	timeout, err := parseDuration("timeout", b.Timeout)
	if err != nil {
		return v1.ServiceEndpoint{}, err
	}
	return v1.ServiceEndpoint{
		Name:         b.Name,
		Address:      b.Address,
		HealthPath:   b.HealthPath,
		Type:         b.Type,
		ExpectedCode: b.ExpectedCode,
		Timeout:      timeout,
		Primary:      b.Primary,
		Priority:     b.Priority,
	}, nil
}

// NewEndpointBody converts a domain endpoint to its wire form.
func NewEndpointBody(ep v1.ServiceEndpoint) EndpointBody {
	return EndpointBody{
		Name:         ep.Name,
		Address:      ep.Address,
		HealthPath:   ep.HealthPath,
		Type:         ep.Type,
		ExpectedCode: ep.ExpectedCode,
		Timeout:      formatDuration(ep.Timeout),
		Primary:      ep.Primary,
		Priority:     ep.Priority,
	}
}

// Rule converts the body to the domain type.
func (b RuleBody) Rule() (v1.FailoverRule, error) {
	window, err := parseDuration("time_window", b.TimeWindow)
	if err != nil {
		return v1.FailoverRule{}, err
	}
	cooldown, err := parseDuration("cooldown", b.Cooldown)
	if err != nil {
		return v1.FailoverRule{}, err
	}
	return v1.FailoverRule{
		Service:     b.Service,
		Condition:   b.Condition,
		Action:      b.Action,
		Threshold:   b.Threshold,
		TimeWindow:  window,
		Cooldown:    cooldown,
		MaxAttempts: b.MaxAttempts,
		Params:      b.Params,
	}, nil
}

// NewRuleBody converts a domain rule to its wire form.
func NewRuleBody(r v1.FailoverRule) RuleBody {
	return RuleBody{
		Service:     r.Service,
		Condition:   r.Condition,
		Action:      r.Action,
		Threshold:   r.Threshold,
		TimeWindow:  formatDuration(r.TimeWindow),
		Cooldown:    formatDuration(r.Cooldown),
		MaxAttempts: r.MaxAttempts,
		Params:      r.Params,
	}
}

// NewServiceBody converts a service spec to its wire form.
func NewServiceBody(spec v1.ServiceSpec) ServiceBody {
	out := ServiceBody{Name: spec.Name, Node: spec.Node}
	for _, ep := range spec.Endpoints {
		out.Endpoints = append(out.Endpoints, NewEndpointBody(ep))
	}
	for _, r := range spec.Rules {
		out.Rules = append(out.Rules, NewRuleBody(r))
	}
	return out
}

// Spec converts the body back to a service spec.
func (b ServiceBody) Spec() (v1.ServiceSpec, error) {
	spec := v1.ServiceSpec{Name: b.Name, Node: b.Node}
	for _, eb := range b.Endpoints {
		ep, err := eb.Endpoint()
		if err != nil {
			return v1.ServiceSpec{}, fmt.Errorf("endpoint %q: %w", eb.Name, err)
		}
		spec.Endpoints = append(spec.Endpoints, ep)
	}
	for _, rb := range b.Rules {
		r, err := rb.Rule()
		if err != nil {
			return v1.ServiceSpec{}, fmt.Errorf("rule %s/%s: %w", rb.Condition, rb.Action, err)
		}
		spec.Rules = append(spec.Rules, r)
	}
	return spec, nil
}
