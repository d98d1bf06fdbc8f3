package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/warden/api/v1"
)

type fakeSource struct {
	mu        sync.Mutex
	report    v1.StatusReport
	failovers []string
	maint     map[string]bool
}

func (f *fakeSource) Status(context.Context) (v1.StatusReport, error) {
	return f.report, nil
}

func (f *fakeSource) Failovers(_ context.Context, service string) ([]v1.FailoverRecord, error) {
	return []v1.FailoverRecord{{ID: "a-1", Service: service, Action: v1.ActionRestartService, Success: true, Manual: true}}, nil
}

func (f *fakeSource) Failover(_ context.Context, service string, action v1.Action, _ map[string]string) (v1.FailoverRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failovers = append(f.failovers, service+":"+string(action))
	if service == "broken" {
		return v1.FailoverRecord{}, errors.New("boom")
	}
	return v1.FailoverRecord{ID: "abcd-ef", Service: service, Action: action, Success: true}, nil
}

func (f *fakeSource) SetMaintenance(_ context.Context, service string, on bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maint == nil {
		f.maint = map[string]bool{}
	}
	f.maint[service] = on
	return true, nil
}

func newModel(t *testing.T) (*Model, *fakeSource) {
	t.Helper()
	src := &fakeSource{report: v1.StatusReport{
		Timestamp: time.Now(),
		Services: map[string]v1.ServiceStatus{
			"payments": {Name: "payments", State: v1.StateFailed, TotalEndpoints: 1},
			"orders": {Name: "orders", State: v1.StateHealthy, HealthyEndpoints: 2, TotalEndpoints: 2, ActiveEndpoint: "p1",
				Endpoints: []v1.EndpointStatus{{Name: "p1", Address: "http://p1", Healthy: true, Active: true}}},
		},
	}}
	m := New(Config{Source: src, Server: "http://127.0.0.1:7070", Interval: time.Second})
	m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	m.Update(m.loadStatusCmd()())
	return m, src
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestStatusSortedAndRendered(t *testing.T) {
	m, _ := newModel(t)
	require.Len(t, m.services, 2)
	assert.Equal(t, "orders", m.services[0].Name)

	view := m.View()
	assert.Contains(t, view, "WARDEN")
	assert.Contains(t, view, "orders")
	assert.Contains(t, view, "payments")
}

func TestSelectionSurvivesRefresh(t *testing.T) {
	m, _ := newModel(t)
	m.Update(key("down"))
	assert.Equal(t, 1, m.selected)

	m.Update(m.loadStatusCmd()())
	svc, ok := m.current()
	require.True(t, ok)
	assert.Equal(t, "payments", svc.Name)
}

func TestFailoverRequiresTypedServiceName(t *testing.T) {
	m, src := newModel(t)

	m.Update(key("r"))
	require.NotNil(t, m.modal)

	// Enter without the name keeps the modal open.
	_, cmd := m.Update(key("enter"))
	assert.NotNil(t, m.modal)
	assert.Nil(t, cmd)

	m.Update(key("orders"))
	_, cmd = m.Update(key("enter"))
	assert.Nil(t, m.modal)
	require.NotNil(t, cmd)

	msg := cmd()
	res, ok := msg.(actionMsg)
	require.True(t, ok)
	require.NoError(t, res.err)
	assert.Contains(t, res.text, "restart_service on orders")
	assert.Equal(t, []string{"orders:restart_service"}, src.failovers)
}

func TestEscCancelsModal(t *testing.T) {
	m, src := newModel(t)
	m.Update(key("f"))
	require.NotNil(t, m.modal)
	m.Update(key("esc"))
	assert.Nil(t, m.modal)
	assert.Empty(t, src.failovers)
}

func TestMaintenanceToggle(t *testing.T) {
	m, src := newModel(t)
	_, cmd := m.Update(key("m"))
	require.NotNil(t, cmd)
	res, ok := m.maintenanceCmd("orders", true)().(actionMsg)
	require.True(t, ok)
	assert.NoError(t, res.err)
	assert.True(t, src.maint["orders"])
}

func TestPanelsCycle(t *testing.T) {
	m, _ := newModel(t)
	m.Update(key("tab"))
	assert.Equal(t, PanelEndpoints, m.panel)
	assert.Contains(t, m.View(), "http://p1")

	_, cmd := m.Update(key("tab"))
	assert.Equal(t, PanelFailovers, m.panel)
	require.NotNil(t, cmd)
}

func TestHistoryLoadsTrail(t *testing.T) {
	m, _ := newModel(t)
	m.Update(key("h"))
	msg := m.loadFailoversCmd()()
	m.Update(msg)
	assert.Contains(t, m.trail.View(), "restart_service")
}
