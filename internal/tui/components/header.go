// Package components: TUI sub-components for Warden's dashboard.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/warden/api/v1"
)

// ─────────────────────────────────────────────────────────────────────────────
// Header component
// ─────────────────────────────────────────────────────────────────────────────

// Header renders the top status bar.
type Header struct {
	server   string
	healthy  int
	degraded int
	failed   int
	unknown  int
}

// NewHeader creates a Header for the given API server.
func NewHeader(server string) Header {
	return Header{server: server}
}

// SetCounts tallies services per health state.
func (h *Header) SetCounts(services []v1.ServiceStatus) {
	h.healthy, h.degraded, h.failed, h.unknown = 0, 0, 0, 0
	for _, s := range services {
		switch s.State {
		case v1.StateHealthy:
			h.healthy++
		case v1.StateDegraded:
			h.degraded++
		case v1.StateFailed:
			h.failed++
		default:
			h.unknown++
		}
	}
}

// View renders the header bar. Accepts total terminal width.
func (h *Header) View(width int) string {
	left := fmt.Sprintf(" ◉ WARDEN  %s ", h.server)
	right := fmt.Sprintf(" %d healthy · %d degraded · %d failed ",
		h.healthy, h.degraded, h.failed)
	if h.unknown > 0 {
		right = fmt.Sprintf(" %d unknown ·", h.unknown) + right
	}
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color("#7B8CDE")).
		Foreground(lipgloss.Color("#0D0F18")).
		Bold(true).
		Width(width).
		Render(left + strings.Repeat(" ", gap) + right)
}

// ─────────────────────────────────────────────────────────────────────────────
// Sidebar component
// ─────────────────────────────────────────────────────────────────────────────

// Sidebar renders the service navigator.
type Sidebar struct {
	selected int
	items    []serviceEntry
}

type serviceEntry struct {
	Name  string
	State v1.HealthState
	Maint bool
}

// NewSidebar creates an empty Sidebar.
func NewSidebar() Sidebar { return Sidebar{} }

// SetServices replaces the navigator entries.
func (s *Sidebar) SetServices(services []v1.ServiceStatus) {
	s.items = make([]serviceEntry, len(services))
	for i, svc := range services {
		s.items[i] = serviceEntry{Name: svc.Name, State: svc.State, Maint: svc.Maintenance}
	}
}

// Select moves the highlight.
func (s *Sidebar) Select(i int) { s.selected = i }

// View renders the sidebar.
func (s *Sidebar) View(width, height int) string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7B8CDE")).Bold(true).
		Render("SERVICES")

	content := title + "\n"

	if len(s.items) == 0 {
		content += lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4A5568")).
			Render("  (none)")
	}

	for i, item := range s.items {
		icon := stateIcon(item.State)
		if item.Maint {
			icon = "◌"
		}
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("#E2E8F0")).PaddingLeft(1)
		prefix := "  "
		if i == s.selected {
			prefix = "▶ "
			style = style.Foreground(lipgloss.Color("#56E0C8")).Bold(true)
		}
		content += style.Render(prefix+icon+" "+truncate(item.Name, width-8)) + "\n"
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color("#171A2B")).
		Width(width).Height(height).
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(lipgloss.Color("#4A5568")).
		Padding(1, 1).
		Render(content)
}

// ─────────────────────────────────────────────────────────────────────────────
// Footer component
// ─────────────────────────────────────────────────────────────────────────────

// Footer renders the bottom hint bar, or the latest notice or error.
type Footer struct {
	err    error
	notice string
}

// NewFooter creates a Footer.
func NewFooter() Footer { return Footer{} }

// SetError sets an error message to display. nil clears it.
func (f *Footer) SetError(err error) { f.err = err }

// SetNotice shows the outcome of the last action.
func (f *Footer) SetNotice(s string) {
	f.notice = s
	f.err = nil
}

// View renders the footer.
func (f *Footer) View(width int) string {
	hints := []struct{ key, desc string }{
		{"↑↓", "select"}, {"tab", "panel"}, {"f", "switch"}, {"r", "restart"},
		{"s", "scale"}, {"m", "maintenance"}, {"h", "history"}, {"?", "help"}, {"q", "quit"},
	}

	content := ""
	for _, h := range hints {
		content += lipgloss.NewStyle().Foreground(lipgloss.Color("#7B8CDE")).Bold(true).Render(h.key)
		content += lipgloss.NewStyle().Foreground(lipgloss.Color("#4A5568")).Render(" " + h.desc + "  ")
	}

	switch {
	case f.err != nil:
		content = lipgloss.NewStyle().Foreground(lipgloss.Color("#F56565")).
			Render("Error: " + f.err.Error())
	case f.notice != "":
		content = lipgloss.NewStyle().Foreground(lipgloss.Color("#68D391")).
			Render("✔ " + f.notice)
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color("#171A2B")).
		Width(width).Padding(0, 1).
		Render(content)
}
