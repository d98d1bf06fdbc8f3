package breaker

import (
	"sort"
	"strings"
	"sync"

	v1 "github.com/f9-o/warden/api/v1"
)

// Key builds the breaker key for one endpoint of a service.
func Key(service, endpoint string) string {
	return service + "/" + endpoint
}

// Set lazily creates breakers that share one Config.
type Set struct {
	cfg  Config
	opts []Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewSet validates cfg once for every breaker the set will create.
func NewSet(cfg Config, opts ...Option) (*Set, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Set{cfg: cfg, opts: opts, breakers: make(map[string]*Breaker)}, nil
}

// Get returns the breaker for key, creating it on first use.
func (s *Set) Get(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[key]; ok {
		return b
	}
	// cfg was validated by NewSet.
	b, _ := New(key, s.cfg, s.opts...)
	s.breakers[key] = b
	return b
}

// Snapshot returns the state of an existing breaker.
func (s *Set) Snapshot(key string) (v1.BreakerSnapshot, bool) {
	s.mu.Lock()
	b, ok := s.breakers[key]
	s.mu.Unlock()
	if !ok {
		return v1.BreakerSnapshot{}, false
	}
	return b.Snapshot(), true
}

// Remove drops a breaker; the next Get starts from CLOSED.
func (s *Set) Remove(key string) {
	s.mu.Lock()
	delete(s.breakers, key)
	s.mu.Unlock()
}

// RemovePrefix drops every breaker whose key starts with prefix.
func (s *Set) RemovePrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.breakers {
		if strings.HasPrefix(k, prefix) {
			delete(s.breakers, k)
		}
	}
}

// Keys lists breaker keys in sorted order.
func (s *Set) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.breakers))
	for k := range s.breakers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
