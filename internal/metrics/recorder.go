// Package metrics exposes Warden's health, breaker and failover metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/f9-o/warden/api/v1"
)

const namespace = "warden"

// Recorder owns a private registry so several orchestrators (and tests) never
// collide on registration.
type Recorder struct {
	registry *prometheus.Registry

	probes             *prometheus.CounterVec
	serviceState       *prometheus.GaugeVec
	healthyEndpoints   *prometheus.GaugeVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	failovers          *prometheus.CounterVec
	remediationSeconds *prometheus.HistogramVec
	cycleSeconds       *prometheus.HistogramVec
}

// NewRecorder creates and registers every metric.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_total",
			Help:      "Endpoint health probes by result.",
		}, []string{"service", "endpoint", "result"}),
		serviceState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_state",
			Help:      "1 for the service's current health state, 0 for the others.",
		}, []string{"service", "state"}),
		healthyEndpoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "healthy_endpoints",
			Help:      "Healthy endpoints in the latest sample.",
		}, []string{"service"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half_open, 2 open.",
		}, []string{"breaker"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"breaker", "from", "to"}),
		failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failovers_total",
			Help:      "Remediation attempts by action, result and trigger.",
		}, []string{"service", "action", "result", "trigger"}),
		remediationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remediation_duration_seconds",
			Help:      "Time spent executing a remediation action.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"action"}),
		cycleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of health and rule evaluation cycles.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"loop"}),
	}
	reg.MustRegister(
		r.probes,
		r.serviceState,
		r.healthyEndpoints,
		r.breakerState,
		r.breakerTransitions,
		r.failovers,
		r.remediationSeconds,
		r.cycleSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveProbe counts one endpoint probe.
func (r *Recorder) ObserveProbe(service, endpoint string, healthy bool) {
	r.probes.WithLabelValues(service, endpoint, result(healthy)).Inc()
}

// ObserveSample records the aggregate state of a service.
func (r *Recorder) ObserveSample(service string, s v1.HealthSample) {
	for _, st := range []v1.HealthState{v1.StateHealthy, v1.StateDegraded, v1.StateFailed} {
		val := 0.0
		if s.State == st {
			val = 1
		}
		r.serviceState.WithLabelValues(service, string(st)).Set(val)
	}
	r.healthyEndpoints.WithLabelValues(service).Set(float64(s.HealthyEndpoints))
}

// ObserveBreaker records a breaker transition.
func (r *Recorder) ObserveBreaker(name string, from, to v1.BreakerState) {
	r.breakerState.WithLabelValues(name).Set(breakerValue(to))
	r.breakerTransitions.WithLabelValues(name, string(from), string(to)).Inc()
}

// ObserveFailover counts a remediation attempt and its duration.
func (r *Recorder) ObserveFailover(rec v1.FailoverRecord, took time.Duration) {
	trigger := "rule"
	if rec.Manual {
		trigger = "manual"
	}
	r.failovers.WithLabelValues(rec.Service, string(rec.Action), result(rec.Success), trigger).Inc()
	r.remediationSeconds.WithLabelValues(string(rec.Action)).Observe(took.Seconds())
}

// ObserveCycle records the duration of one loop iteration ("health" or "rules").
func (r *Recorder) ObserveCycle(loop string, took time.Duration) {
	r.cycleSeconds.WithLabelValues(loop).Observe(took.Seconds())
}

// ForgetService drops the per-service series of a service.
func (r *Recorder) ForgetService(service string) {
	labels := prometheus.Labels{"service": service}
	r.serviceState.DeletePartialMatch(labels)
	r.healthyEndpoints.DeletePartialMatch(labels)
	r.probes.DeletePartialMatch(labels)
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func breakerValue(s v1.BreakerState) float64 {
	switch s {
	case v1.BreakerHalfOpen:
		return 1
	case v1.BreakerOpen:
		return 2
	}
	return 0
}
