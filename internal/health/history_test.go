package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/warden/api/v1"
)

func TestHistoryEvictsOldestFirst(t *testing.T) {
	h := NewHistory(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		h.Append(v1.HealthSample{Timestamp: base.Add(time.Duration(i) * time.Second), HealthyEndpoints: i})
	}

	got := h.Samples(time.Time{})
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].HealthyEndpoints, got[1].HealthyEndpoints, got[2].HealthyEndpoints})
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 3, h.Cap())
}

func TestHistoryCapacityPlusOne(t *testing.T) {
	h := NewHistory(DefaultHistoryCapacity)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i <= DefaultHistoryCapacity; i++ {
		h.Append(v1.HealthSample{Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	got := h.Samples(time.Time{})
	assert.Len(t, got, DefaultHistoryCapacity)
	assert.True(t, got[0].Timestamp.Equal(base.Add(time.Second)))
}

func TestHistoryTimestampsStrictlyIncrease(t *testing.T) {
	h := NewHistory(4)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a := h.Append(v1.HealthSample{Timestamp: ts})
	b := h.Append(v1.HealthSample{Timestamp: ts})
	c := h.Append(v1.HealthSample{Timestamp: ts.Add(-time.Second)})

	assert.True(t, b.Timestamp.After(a.Timestamp))
	assert.True(t, c.Timestamp.After(b.Timestamp))
}

func TestHistoryLatestEmpty(t *testing.T) {
	h := NewHistory(0)
	_, ok := h.Latest()
	assert.False(t, ok)
	assert.Equal(t, DefaultHistoryCapacity, h.Cap())
}
