package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/pkg/netutil"
)

// APIError is a non-2xx reply from the control API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Client talks to a running `warden serve`.
type Client struct {
	base string
	http *http.Client
}

// NewClient targets the API at server, which may be host:port or a URL.
func NewClient(server string, timeout time.Duration) (*Client, error) {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	if err := netutil.ValidateHTTPBase(server); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		base: strings.TrimRight(server, "/"),
		http: &http.Client{Timeout: timeout},
	}, nil
}

// Base returns the API base URL.
func (c *Client) Base() string { return c.base }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// call performs a request and decodes the envelope's data into out. The data
// of an error reply is decoded too when present.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	return nil
}

func servicePath(name string, rest ...string) string {
	p := "/services/" + url.PathEscape(name)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// Healthz checks that the server is up.
func (c *Client) Healthz(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Status fetches the full status report.
func (c *Client) Status(ctx context.Context) (v1.StatusReport, error) {
	var report v1.StatusReport
	resp, err := c.send(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return report, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return report, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return report, fmt.Errorf("decode status: %w", err)
	}
	return report, nil
}

// RegisterService registers or updates a service.
func (c *Client) RegisterService(ctx context.Context, svc ServiceBody) (v1.ServiceStatus, error) {
	var st v1.ServiceStatus
	err := c.call(ctx, http.MethodPost, "/services", svc, &st)
	return st, err
}

// Services lists registered services with their rules.
func (c *Client) Services(ctx context.Context) ([]ServiceBody, error) {
	var out []ServiceBody
	err := c.call(ctx, http.MethodGet, "/services", nil, &out)
	return out, err
}

// Service fetches the status of one service.
func (c *Client) Service(ctx context.Context, name string) (v1.ServiceStatus, error) {
	var st v1.ServiceStatus
	err := c.call(ctx, http.MethodGet, servicePath(name), nil, &st)
	return st, err
}

// AddRule appends a rule to a service.
func (c *Client) AddRule(ctx context.Context, service string, rule RuleBody) (RuleBody, error) {
	var out RuleBody
	err := c.call(ctx, http.MethodPost, servicePath(service, "rules"), rule, &out)
	return out, err
}

// Rules lists the rules of a service in evaluation order.
func (c *Client) Rules(ctx context.Context, service string) ([]RuleBody, error) {
	var out []RuleBody
	err := c.call(ctx, http.MethodGet, servicePath(service, "rules"), nil, &out)
	return out, err
}

// Failover triggers a manual remediation. A failed remediation returns the
// recorded attempt together with the error.
func (c *Client) Failover(ctx context.Context, service string, action v1.Action, params map[string]string) (v1.FailoverRecord, error) {
	var rec v1.FailoverRecord
	err := c.call(ctx, http.MethodPost, servicePath(service, "failover"), FailoverBody{Action: action, Params: params}, &rec)
	return rec, err
}

// Failovers returns the audit trail of a service.
func (c *Client) Failovers(ctx context.Context, service string) ([]v1.FailoverRecord, error) {
	var out []v1.FailoverRecord
	err := c.call(ctx, http.MethodGet, servicePath(service, "failovers"), nil, &out)
	return out, err
}

// History returns health samples inside the trailing window (all when 0).
func (c *Client) History(ctx context.Context, service string, window time.Duration) ([]v1.HealthSample, error) {
	path := servicePath(service, "history")
	if window > 0 {
		path += "?window=" + url.QueryEscape(window.String())
	}
	var out []v1.HealthSample
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// SetMaintenance switches maintenance mode and reports whether it changed.
func (c *Client) SetMaintenance(ctx context.Context, service string, on bool) (bool, error) {
	method := http.MethodPost
	if !on {
		method = http.MethodDelete
	}
	var reply MaintenanceReply
	err := c.call(ctx, method, servicePath(service, "maintenance"), nil, &reply)
	return reply.Changed, err
}

// SetErrorRate feeds the static error-rate source.
func (c *Client) SetErrorRate(ctx context.Context, service string, rate float64) error {
	return c.call(ctx, http.MethodPut, servicePath(service, "error-rate"), ErrorRateBody{Rate: &rate}, nil)
}
