// Package health probes service endpoints and aggregates per-service health.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
)

// DefaultTimeout is used when an endpoint has no timeout configured.
const DefaultTimeout = 5 * time.Second

// Prober performs a single health check against one endpoint.
// Implementations never return errors: every failure is reported as false.
type Prober interface {
	Check(ctx context.Context, ep v1.ServiceEndpoint) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, ep v1.ServiceEndpoint) bool

// Check calls f.
func (f ProberFunc) Check(ctx context.Context, ep v1.ServiceEndpoint) bool { return f(ctx, ep) }

// checkFunc runs one probe; ctx already carries the endpoint timeout.
type checkFunc func(ctx context.Context, ep v1.ServiceEndpoint) error

// Probe dispatches to the http, tcp or cmd check based on the endpoint type.
type Probe struct {
	log    *logger.Logger
	client *http.Client
	dialer *net.Dialer
	checks map[v1.ProbeType]checkFunc
}

// NewProbe constructs a Probe. HTTP probes share one keep-alive transport.
func NewProbe(log *logger.Logger) *Probe {
	p := &Probe{
		log:    log,
		client: newProbeClient(),
		dialer: &net.Dialer{},
	}
	p.checks = map[v1.ProbeType]checkFunc{
		"":           p.checkHTTP,
		v1.ProbeHTTP: p.checkHTTP,
		v1.ProbeTCP:  p.checkTCP,
		v1.ProbeCmd:  p.checkCmd,
	}
	return p
}

// Check runs one bounded probe. Errors are logged at debug level and folded
// into an unhealthy result.
func (p *Probe) Check(ctx context.Context, ep v1.ServiceEndpoint) (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("probe panicked", "endpoint", ep.Name, "panic", fmt.Sprintf("%v", r))
			healthy = false
		}
	}()

	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	check, ok := p.checks[ep.Type]
	if !ok {
		p.log.Debug("probe skipped", "endpoint", ep.Name, "type", ep.Type)
		return false
	}
	if err := check(ctx, ep); err != nil {
		p.log.Debug("probe unhealthy", "endpoint", ep.Name, "address", ep.Address, "err", err)
		return false
	}
	return true
}
