package health

import (
	"sync"
	"time"

	v1 "github.com/f9-o/warden/api/v1"
)

// DefaultHistoryCapacity is the number of samples retained per service.
const DefaultHistoryCapacity = 100

// History is a fixed-capacity ring buffer of health samples. The oldest
// sample is evicted first once the buffer is full.
type History struct {
	mu    sync.RWMutex
	buf   []v1.HealthSample
	start int // index of the oldest sample
	size  int
}

// NewHistory allocates a History. Capacities below 1 use the default.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &History{buf: make([]v1.HealthSample, capacity)}
}

// Append stores s and returns it as stored. Timestamps are kept strictly
// increasing: a sample not later than its predecessor is moved 1ns past it.
func (h *History) Append(s v1.HealthSample) v1.HealthSample {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size > 0 {
		prev := h.buf[(h.start+h.size-1)%len(h.buf)]
		if !s.Timestamp.After(prev.Timestamp) {
			s.Timestamp = prev.Timestamp.Add(time.Nanosecond)
		}
	}

	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = s
		h.size++
		return s
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
	return s
}

// Samples returns samples with Timestamp >= since, oldest first.
// A zero since returns everything.
func (h *History) Samples(since time.Time) []v1.HealthSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]v1.HealthSample, 0, h.size)
	for i := 0; i < h.size; i++ {
		s := h.buf[(h.start+i)%len(h.buf)]
		if !since.IsZero() && s.Timestamp.Before(since) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Latest returns the most recent sample.
func (h *History) Latest() (v1.HealthSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return v1.HealthSample{}, false
	}
	return h.buf[(h.start+h.size-1)%len(h.buf)], true
}

// Len returns the number of stored samples.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap returns the buffer capacity.
func (h *History) Cap() int { return len(h.buf) }
