// Package components: services table, endpoint detail, and failover trail.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/warden/api/v1"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7B8CDE")).Bold(true).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4A5568")).Bold(true).Padding(0, 1)
	rowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E2E8F0")).Padding(0, 1)
	selStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#171A2B")).
			Foreground(lipgloss.Color("#56E0C8")).Bold(true).Padding(0, 1)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A5568"))
)

// ─────────────────────────────────────────────────────────────────────────────
// Services Table
// ─────────────────────────────────────────────────────────────────────────────

// RenderServicesTable renders the service list table.
func RenderServicesTable(services []v1.ServiceStatus, selected, width, height int) string {
	hdr := headerStyle.Render(
		fmt.Sprintf("  %-18s %-9s %-9s %-16s %-10s %s",
			"NAME", "STATE", "HEALTHY", "ACTIVE", "BREAKER", "RULES"),
	)

	rows := ""
	for i, svc := range services {
		active := svc.ActiveEndpoint
		if active == "" {
			active = "-"
		}
		if svc.Maintenance {
			active = "maintenance"
		}
		rules := fmt.Sprintf("%d", svc.Rules)
		if svc.SuspendedRules > 0 {
			rules += fmt.Sprintf(" (%d susp)", svc.SuspendedRules)
		}
		if svc.ActiveFailover {
			rules += " ⟳"
		}

		line := fmt.Sprintf("%-18s %s %-9s %-16s %s %s",
			truncate(svc.Name, 18),
			pad(healthBadge(svc.State), 9),
			fmt.Sprintf("%d/%d", svc.HealthyEndpoints, svc.TotalEndpoints),
			truncate(active, 16),
			pad(breakerBadge(svc.Breaker.State), 10),
			rules,
		)

		if i == selected {
			rows += selStyle.Render("▶ "+line) + "\n"
		} else {
			rows += rowStyle.Render("  "+line) + "\n"
		}
	}

	if len(services) == 0 {
		rows = mutedStyle.Padding(2, 2).
			Render("No services registered. Run 'warden services register' to add one.")
	}

	return lipgloss.NewStyle().Width(width).Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("SERVICES"), hdr, rows))
}

// RenderEmpty renders a titled placeholder panel.
func RenderEmpty(title string, width, height int) string {
	return lipgloss.NewStyle().Width(width).Height(height).
		Render(titleStyle.Render(title) + "\n\n" + mutedStyle.Padding(1, 2).Render("Nothing selected."))
}

// ─────────────────────────────────────────────────────────────────────────────
// Endpoint detail
// ─────────────────────────────────────────────────────────────────────────────

// RenderEndpoints renders the endpoints of one service in priority order.
func RenderEndpoints(svc v1.ServiceStatus, width, height int) string {
	title := titleStyle.Render("ENDPOINTS · " + svc.Name)
	hdr := headerStyle.Render(fmt.Sprintf("  %-16s %-28s %-4s %-8s %s",
		"NAME", "ADDRESS", "PRI", "PROBE", "BREAKER"))

	rows := ""
	for _, ep := range svc.Endpoints {
		marker := "  "
		if ep.Active {
			marker = "★ "
		}
		probe := lipgloss.NewStyle().Foreground(lipgloss.Color("#68D391")).Render("up")
		if !ep.Healthy {
			probe = lipgloss.NewStyle().Foreground(lipgloss.Color("#F56565")).Render("down")
		}
		brk := "-"
		if ep.Breaker != nil {
			brk = breakerBadge(ep.Breaker.State)
			if ep.Breaker.FailureCount > 0 {
				brk += fmt.Sprintf(" (%d)", ep.Breaker.FailureCount)
			}
		}
		rows += rowStyle.Render(fmt.Sprintf("%s%-16s %-28s %-4d %s %s",
			marker, truncate(ep.Name, 16), truncate(ep.Address, 28), ep.Priority, pad(probe, 8), brk)) + "\n"
	}

	footer := ""
	if svc.LastFailover != nil {
		footer = "\n" + mutedStyle.Padding(0, 1).Render("last failover: "+trailLine(*svc.LastFailover))
	}

	return lipgloss.NewStyle().Width(width).Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, hdr, rows+footer))
}

// ─────────────────────────────────────────────────────────────────────────────
// Failover trail
// ─────────────────────────────────────────────────────────────────────────────

// RenderTrail formats failover records, oldest first, for the trail viewport.
func RenderTrail(records []v1.FailoverRecord) string {
	if len(records) == 0 {
		return mutedStyle.Render("No failovers recorded.")
	}
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(trailLine(rec))
		b.WriteByte('\n')
	}
	return b.String()
}

func trailLine(rec v1.FailoverRecord) string {
	outcome := lipgloss.NewStyle().Foreground(lipgloss.Color("#68D391")).Render("ok  ")
	if !rec.Success {
		outcome = lipgloss.NewStyle().Foreground(lipgloss.Color("#F56565")).Render("FAIL")
	}
	origin := "manual"
	if !rec.Manual && rec.Rule != nil {
		origin = string(rec.Rule.Condition)
	}
	line := fmt.Sprintf("%s %s %-24s %-16s", rec.Timestamp.Local().Format("01-02 15:04:05"), outcome, rec.Action, origin)
	if rec.Error != "" {
		line += " " + rec.Error
	}
	return line
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func stateIcon(state v1.HealthState) string {
	switch state {
	case v1.StateHealthy:
		return "●"
	case v1.StateDegraded:
		return "◐"
	case v1.StateFailed:
		return "○"
	default:
		return "?"
	}
}

func healthBadge(state v1.HealthState) string {
	switch state {
	case v1.StateHealthy:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#68D391")).Render("● OK")
	case v1.StateDegraded:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#ECC94B")).Render("◐ DEG")
	case v1.StateFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F56565")).Render("○ FAIL")
	default:
		return mutedStyle.Render("? UNK")
	}
}

func breakerBadge(state v1.BreakerState) string {
	switch state {
	case v1.BreakerOpen:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F56565")).Render("open")
	case v1.BreakerHalfOpen:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#ECC94B")).Render("half-open")
	default:
		return mutedStyle.Render("closed")
	}
}

// pad right-pads a styled string to a visible width.
func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func truncate(s string, max int) string {
	if max < 2 {
		max = 2
	}
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-1]) + "…"
}
