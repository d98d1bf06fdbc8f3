package failover

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"text/template"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/f9-o/warden/internal/core/logger"
)

// StaticErrorRates is an in-memory ErrorRateSource fed by operators or tests.
type StaticErrorRates struct {
	mu    sync.RWMutex
	rates map[string]float64
}

// NewStaticErrorRates constructs an empty source; unknown services report 0.
func NewStaticErrorRates() *StaticErrorRates {
	return &StaticErrorRates{rates: make(map[string]float64)}
}

// Set records the current error rate of a service.
func (s *StaticErrorRates) Set(service string, rate float64) error {
	if rate < 0 || rate > 1 || math.IsNaN(rate) {
		return fmt.Errorf("error rate must be within [0,1], got %v", rate)
	}
	s.mu.Lock()
	s.rates[service] = rate
	s.mu.Unlock()
	return nil
}

// ErrorRate ignores the window; the stored value is the current rate.
func (s *StaticErrorRates) ErrorRate(_ context.Context, service string, _ time.Duration) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rates[service], nil
}

// DefaultErrorRateQuery is the PromQL template used when none is configured.
const DefaultErrorRateQuery = `sum(rate(http_requests_total{service="{{.Service}}",code=~"5.."}[{{.Window}}])) / sum(rate(http_requests_total{service="{{.Service}}"}[{{.Window}}]))`

// PrometheusErrorRate evaluates a PromQL template against a Prometheus server.
type PrometheusErrorRate struct {
	api     promv1.API
	query   *template.Template
	timeout time.Duration
	log     *logger.Logger
}

// NewPrometheusErrorRate connects to the Prometheus HTTP API at address.
// queryTmpl may reference {{.Service}} and {{.Window}}.
func NewPrometheusErrorRate(address, queryTmpl string, timeout time.Duration, log *logger.Logger) (*PrometheusErrorRate, error) {
	if queryTmpl == "" {
		queryTmpl = DefaultErrorRateQuery
	}
	tmpl, err := template.New("error_rate").Parse(queryTmpl)
	if err != nil {
		return nil, fmt.Errorf("parse error-rate query: %w", err)
	}
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("prometheus client: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PrometheusErrorRate{api: promv1.NewAPI(client), query: tmpl, timeout: timeout, log: log}, nil
}

// ErrorRate runs the instant query and clamps the result to [0,1]. An empty
// result or NaN (no traffic) counts as 0.
func (p *PrometheusErrorRate) ErrorRate(ctx context.Context, service string, window time.Duration) (float64, error) {
	var q bytes.Buffer
	err := p.query.Execute(&q, struct {
		Service string
		Window  string
	}{Service: service, Window: model.Duration(window).String()})
	if err != nil {
		return 0, fmt.Errorf("render query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	val, warnings, err := p.api.Query(ctx, q.String(), time.Now())
	if err != nil {
		return 0, fmt.Errorf("prometheus query: %w", err)
	}
	for _, w := range warnings {
		p.log.Warn("prometheus query warning", "service", service, "warning", w)
	}

	var rate float64
	switch v := val.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, nil
		}
		rate = float64(v[0].Value)
	case *model.Scalar:
		rate = float64(v.Value)
	default:
		return 0, fmt.Errorf("unexpected result type %s", val.Type())
	}

	switch {
	case math.IsNaN(rate) || rate < 0:
		return 0, nil
	case rate > 1:
		return 1, nil
	}
	return rate, nil
}
