package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/breaker"
	"github.com/f9-o/warden/internal/core/logger"
)

// ErrNoEndpoints is returned when a service is checked without endpoints.
var ErrNoEndpoints = errors.New("service has no endpoints")

var errUnhealthy = errors.New("endpoint unhealthy")

// Classify maps a healthy/total endpoint count to a health state.
func Classify(healthy, total int) v1.HealthState {
	switch {
	case healthy <= 0:
		return v1.StateFailed
	case healthy < total:
		return v1.StateDegraded
	default:
		return v1.StateHealthy
	}
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithCapacity sets the per-service history capacity.
func WithCapacity(n int) Option {
	return func(a *Aggregator) { a.capacity = n }
}

// WithClock replaces the wall clock used for sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithBreakers routes every probe through a per-endpoint circuit breaker.
// An open breaker reports its endpoint unhealthy without probing it.
func WithBreakers(set *breaker.Set) Option {
	return func(a *Aggregator) { a.breakers = set }
}

// ProbeObserver is told about every endpoint probe result.
type ProbeObserver func(service, endpoint string, healthy bool)

// WithObserver registers fn to receive every probe result.
func WithObserver(fn ProbeObserver) Option {
	return func(a *Aggregator) { a.observe = fn }
}

// Aggregator probes all endpoints of a service and keeps a bounded history
// of aggregate samples per service.
type Aggregator struct {
	prober   Prober
	breakers *breaker.Set
	observe  ProbeObserver
	capacity int
	now      func() time.Time
	log      *logger.Logger

	mu        sync.Mutex
	histories map[string]*History
}

// NewAggregator constructs an Aggregator.
func NewAggregator(prober Prober, log *logger.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		prober:    prober,
		capacity:  DefaultHistoryCapacity,
		now:       time.Now,
		log:       log,
		histories: make(map[string]*History),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CheckService probes every endpoint concurrently, classifies the result and
// appends it to the service history.
func (a *Aggregator) CheckService(ctx context.Context, name string, endpoints []v1.ServiceEndpoint) (v1.HealthSample, error) {
	if len(endpoints) == 0 {
		return v1.HealthSample{}, ErrNoEndpoints
	}

	results := make([]v1.EndpointHealth, len(endpoints))
	var g errgroup.Group
	for i, ep := range endpoints {
		g.Go(func() error {
			results[i] = v1.EndpointHealth{Name: ep.Name, Healthy: a.probe(ctx, name, ep)}
			return nil
		})
	}
	_ = g.Wait()

	healthy := 0
	for _, r := range results {
		if r.Healthy {
			healthy++
		}
		if a.observe != nil {
			a.observe(name, r.Name, r.Healthy)
		}
	}

	sample := v1.HealthSample{
		Timestamp:        a.now(),
		State:            Classify(healthy, len(endpoints)),
		HealthyEndpoints: healthy,
		TotalEndpoints:   len(endpoints),
		Endpoints:        results,
	}
	sample = a.history(name).Append(sample)

	a.log.Debug("health sample",
		"service", name,
		"state", sample.State,
		"healthy", healthy,
		"total", len(endpoints),
	)
	return sample, nil
}

func (a *Aggregator) probe(ctx context.Context, service string, ep v1.ServiceEndpoint) bool {
	if a.breakers == nil {
		return a.prober.Check(ctx, ep)
	}
	res := a.breakers.Get(breaker.Key(service, ep.Name)).Call(ctx, func(ctx context.Context) error {
		if !a.prober.Check(ctx, ep) {
			return errUnhealthy
		}
		return nil
	})
	if res.Outcome == breaker.CircuitOpen {
		a.log.Debug("probe skipped, breaker open", "service", service, "endpoint", ep.Name)
	}
	return res.OK()
}

// History returns the service's samples oldest first. A positive window
// restricts the result to samples inside the trailing window.
func (a *Aggregator) History(name string, window time.Duration) []v1.HealthSample {
	h := a.lookup(name)
	if h == nil {
		return nil
	}
	var since time.Time
	if window > 0 {
		since = a.now().Add(-window)
	}
	return h.Samples(since)
}

// Latest returns the most recent sample for a service.
func (a *Aggregator) Latest(name string) (v1.HealthSample, bool) {
	h := a.lookup(name)
	if h == nil {
		return v1.HealthSample{}, false
	}
	return h.Latest()
}

// Track ensures an empty history exists for a service.
func (a *Aggregator) Track(name string) {
	a.history(name)
}

// Forget drops a service's history.
func (a *Aggregator) Forget(name string) {
	a.mu.Lock()
	delete(a.histories, name)
	a.mu.Unlock()
}

func (a *Aggregator) lookup(name string) *History {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.histories[name]
}

func (a *Aggregator) history(name string) *History {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.histories[name]
	if !ok {
		h = NewHistory(a.capacity)
		a.histories[name] = h
	}
	return h
}
