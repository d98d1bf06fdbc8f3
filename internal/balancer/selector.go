// Package balancer picks the active endpoint of a service from its latest
// health sample and tracks services excluded from selection.
package balancer

import (
	"errors"
	"sort"
	"sync"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
)

// ErrNoActiveEndpoint is returned by SwitchTraffic when nothing is serving.
var ErrNoActiveEndpoint = errors.New("no active endpoint to switch away from")

// Selector chooses endpoints deterministically: the lowest priority among
// healthy endpoints, ties broken by registration order.
type Selector struct {
	log *logger.Logger

	mu          sync.RWMutex
	maintenance map[string]bool
	drained     map[string]map[string]bool // service → endpoint names
	active      map[string]string
}

// NewSelector constructs an empty Selector.
func NewSelector(log *logger.Logger) *Selector {
	return &Selector{
		log:         log,
		maintenance: make(map[string]bool),
		drained:     make(map[string]map[string]bool),
		active:      make(map[string]string),
	}
}

// SelectActive returns the preferred healthy endpoint. The boolean is false
// when no endpoint is available, which is a valid selection result.
func (s *Selector) SelectActive(name string, endpoints []v1.ServiceEndpoint, sample v1.HealthSample) (v1.ServiceEndpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maintenance[name] {
		delete(s.active, name)
		return v1.ServiceEndpoint{}, false
	}

	drained := s.drained[name]
	best := -1
	for i, ep := range endpoints {
		if drained[ep.Name] || !sample.EndpointHealthy(ep.Name) {
			continue
		}
		if best < 0 || ep.Priority < endpoints[best].Priority {
			best = i
		}
	}

	if best < 0 {
		if prev, ok := s.active[name]; ok {
			s.log.Warn("no endpoint available", "service", name, "previous", prev)
			delete(s.active, name)
		}
		return v1.ServiceEndpoint{}, false
	}

	chosen := endpoints[best]
	if prev := s.active[name]; prev != chosen.Name {
		s.log.Info("active endpoint changed", "service", name, "from", prev, "to", chosen.Name)
	}
	s.active[name] = chosen.Name
	return chosen, true
}

// Active returns the endpoint chosen by the last selection.
func (s *Selector) Active(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.active[name]
	return ep, ok
}

// EnableMaintenanceMode excludes a service from selection. It reports whether
// the state changed.
func (s *Selector) EnableMaintenanceMode(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maintenance[name] {
		return false
	}
	s.maintenance[name] = true
	delete(s.active, name)
	s.log.Info("maintenance mode enabled", "service", name)
	return true
}

// DisableMaintenanceMode returns a service to selection. It reports whether
// the state changed.
func (s *Selector) DisableMaintenanceMode(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.maintenance[name] {
		return false
	}
	delete(s.maintenance, name)
	s.log.Info("maintenance mode disabled", "service", name)
	return true
}

// InMaintenance reports whether a service is excluded from selection.
func (s *Selector) InMaintenance(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maintenance[name]
}

// SwitchTraffic drains the current active endpoint so the next selection
// falls through to the next best one. Drains last until Restore.
func (s *Selector) SwitchTraffic(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.active[name]
	if !ok {
		return "", ErrNoActiveEndpoint
	}
	if s.drained[name] == nil {
		s.drained[name] = make(map[string]bool)
	}
	s.drained[name][current] = true
	delete(s.active, name)
	s.log.Info("traffic switched away from endpoint", "service", name, "endpoint", current)
	return current, nil
}

// Drained lists the endpoints currently drained for a service, sorted by name.
func (s *Selector) Drained(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.drained[name]))
	for ep := range s.drained[name] {
		out = append(out, ep)
	}
	sort.Strings(out)
	return out
}

// Restore lifts every drain on a service. It reports whether anything changed.
func (s *Selector) Restore(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.drained[name]) == 0 {
		return false
	}
	delete(s.drained, name)
	s.log.Info("drained endpoints restored", "service", name)
	return true
}

// Forget drops all state for a service.
func (s *Selector) Forget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.maintenance, name)
	delete(s.drained, name)
	delete(s.active, name)
}
