// Package tui defines the Bubble Tea model for Warden's interactive dashboard.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/tui/components"
)

// requestTimeout bounds each call the dashboard makes to the API.
const requestTimeout = 10 * time.Second

// Source is what the dashboard polls and drives. *api.Client satisfies it.
type Source interface {
	Status(ctx context.Context) (v1.StatusReport, error)
	Failovers(ctx context.Context, service string) ([]v1.FailoverRecord, error)
	Failover(ctx context.Context, service string, action v1.Action, params map[string]string) (v1.FailoverRecord, error)
	SetMaintenance(ctx context.Context, service string, on bool) (bool, error)
}

// Config carries dependencies into the TUI app.
type Config struct {
	Source   Source
	Server   string
	Interval time.Duration
}

// ActivePanel identifies which main panel has focus.
type ActivePanel int

const (
	PanelServices ActivePanel = iota
	PanelEndpoints
	PanelFailovers
	panelCount
)

// Model is the root Bubble Tea model (Elm architecture).
type Model struct {
	cfg Config

	width  int
	height int

	panel      ActivePanel
	services   []v1.ServiceStatus
	selected   int
	trail      viewport.Model
	lastUpdate time.Time

	header  components.Header
	sidebar components.Sidebar
	footer  components.Footer
	modal   *components.Modal

	styles Styles
}

type tickMsg time.Time

type statusMsg v1.StatusReport

type failoversMsg struct {
	service string
	records []v1.FailoverRecord
}

// actionMsg reports the outcome of an operator action.
type actionMsg struct {
	text string
	err  error
}

type errMsg struct{ err error }

// New constructs a new TUI Model.
func New(cfg Config) *Model {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	styles := newStyles()
	tv := viewport.New(0, 0)
	tv.Style = styles.Trail

	return &Model{
		cfg:     cfg,
		trail:   tv,
		styles:  styles,
		header:  components.NewHeader(cfg.Server),
		sidebar: components.NewSidebar(),
		footer:  components.NewFooter(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Init
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), m.loadStatusCmd())
}

// ─────────────────────────────────────────────────────────────────────────────
// Update
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.trail.Width = m.width - 24
		m.trail.Height = m.height - 8

	case tea.KeyMsg:
		if m.modal != nil {
			cmd, done := m.modal.HandleKey(msg)
			if done {
				m.modal = nil
			}
			return m, cmd
		}
		cmds = append(cmds, m.handleKey(msg))

	case tickMsg:
		cmds = append(cmds, m.tickCmd(), m.loadStatusCmd())
		if m.panel == PanelFailovers {
			cmds = append(cmds, m.loadFailoversCmd())
		}

	case statusMsg:
		m.setStatus(v1.StatusReport(msg))
		m.footer.SetError(nil)

	case failoversMsg:
		if svc, ok := m.current(); ok && svc.Name == msg.service {
			m.trail.SetContent(components.RenderTrail(msg.records))
			m.trail.GotoBottom()
		}

	case actionMsg:
		if msg.err != nil {
			m.footer.SetError(msg.err)
		} else {
			m.footer.SetNotice(msg.text)
		}
		cmds = append(cmds, m.loadStatusCmd())

	case errMsg:
		m.footer.SetError(msg.err)
	}

	var tvCmd tea.Cmd
	m.trail, tvCmd = m.trail.Update(msg)
	cmds = append(cmds, tvCmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) setStatus(report v1.StatusReport) {
	var keep string
	if svc, ok := m.current(); ok {
		keep = svc.Name
	}

	m.services = m.services[:0]
	for _, st := range report.Services {
		m.services = append(m.services, st)
	}
	sort.Slice(m.services, func(i, j int) bool { return m.services[i].Name < m.services[j].Name })

	m.selected = 0
	for i, st := range m.services {
		if st.Name == keep {
			m.selected = i
		}
	}
	m.lastUpdate = report.Timestamp
	m.header.SetCounts(m.services)
	m.sidebar.SetServices(m.services)
	m.sidebar.Select(m.selected)
}

func (m *Model) current() (v1.ServiceStatus, bool) {
	if m.selected < 0 || m.selected >= len(m.services) {
		return v1.ServiceStatus{}, false
	}
	return m.services[m.selected], true
}

// handleKey processes keyboard input when no modal is open.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	kb := defaultKeymap()

	switch msg.String() {
	case kb.Quit, "ctrl+c":
		return tea.Quit

	case kb.TabNext:
		m.panel = (m.panel + 1) % panelCount
		if m.panel == PanelFailovers {
			return m.loadFailoversCmd()
		}

	case kb.TabPrev:
		m.panel = (m.panel + panelCount - 1) % panelCount
		if m.panel == PanelFailovers {
			return m.loadFailoversCmd()
		}

	case kb.NavDown, "j":
		if m.selected < len(m.services)-1 {
			m.selected++
			m.sidebar.Select(m.selected)
			if m.panel == PanelFailovers {
				return m.loadFailoversCmd()
			}
		}

	case kb.NavUp, "k":
		if m.selected > 0 {
			m.selected--
			m.sidebar.Select(m.selected)
			if m.panel == PanelFailovers {
				return m.loadFailoversCmd()
			}
		}

	case kb.History:
		m.panel = PanelFailovers
		return m.loadFailoversCmd()

	case kb.Help:
		m.modal = components.NewHelpModal(m.styles.Modal, HelpText())

	case kb.Switch:
		m.confirmFailover(v1.ActionSwitchTraffic)

	case kb.Restart:
		m.confirmFailover(v1.ActionRestartService)

	case kb.ScaleUp:
		m.confirmFailover(v1.ActionScaleUp)

	case kb.Maintenance:
		if svc, ok := m.current(); ok {
			return m.maintenanceCmd(svc.Name, !svc.Maintenance)
		}
	}
	return nil
}

func (m *Model) confirmFailover(action v1.Action) {
	svc, ok := m.current()
	if !ok {
		return
	}
	m.modal = components.NewConfirmModal(
		fmt.Sprintf("Run %s on %s?", action, svc.Name),
		fmt.Sprintf("A manual failover bypasses rules and cooldowns.\nType %q to confirm.", svc.Name),
		svc.Name,
		m.styles.Modal,
		func() tea.Cmd { return m.failoverCmd(svc.Name, action) },
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// View
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := m.header.View(m.width)
	sidebar := m.sidebar.View(22, m.height-4)
	mainPanel := m.renderMain()
	footer := m.footer.View(m.width)

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, mainPanel)
	view := lipgloss.JoinVertical(lipgloss.Left, header, body, footer)

	if m.modal != nil {
		view = m.modal.Overlay(view, m.width, m.height)
	}
	return view
}

func (m *Model) renderMain() string {
	mainWidth := m.width - 24

	switch m.panel {
	case PanelServices:
		return components.RenderServicesTable(m.services, m.selected, mainWidth, m.height-6)
	case PanelEndpoints:
		svc, ok := m.current()
		if !ok {
			return components.RenderEmpty("ENDPOINTS", mainWidth, m.height-6)
		}
		return components.RenderEndpoints(svc, mainWidth, m.height-6)
	case PanelFailovers:
		title := m.styles.PanelTitle.Render("FAILOVERS")
		return lipgloss.JoinVertical(lipgloss.Left, title, m.trail.View())
	}
	return ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands (async API calls)
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.cfg.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) loadStatusCmd() tea.Cmd {
	src := m.cfg.Source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		report, err := src.Status(ctx)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg(report)
	}
}

func (m *Model) loadFailoversCmd() tea.Cmd {
	svc, ok := m.current()
	if !ok {
		return nil
	}
	src := m.cfg.Source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		recs, err := src.Failovers(ctx, svc.Name)
		if err != nil {
			return errMsg{err}
		}
		return failoversMsg{service: svc.Name, records: recs}
	}
}

func (m *Model) failoverCmd(service string, action v1.Action) tea.Cmd {
	src := m.cfg.Source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		rec, err := src.Failover(ctx, service, action, nil)
		if err != nil {
			return actionMsg{err: fmt.Errorf("%s on %s: %w", action, service, err)}
		}
		return actionMsg{text: fmt.Sprintf("%s on %s succeeded (%s)", action, service, shortID(rec.ID))}
	}
}

func (m *Model) maintenanceCmd(service string, on bool) tea.Cmd {
	src := m.cfg.Source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if _, err := src.SetMaintenance(ctx, service, on); err != nil {
			return actionMsg{err: err}
		}
		state := "off"
		if on {
			state = "on"
		}
		return actionMsg{text: fmt.Sprintf("maintenance %s for %s", state, service)}
	}
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
