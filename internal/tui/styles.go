package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/f9-o/warden/pkg/pprint"
)

// Dashboard-only surfaces; the accent colours are shared with the CLI.
var (
	colorBackdrop = lipgloss.Color("#0D0F18")
	colorSurface  = lipgloss.Color("#171A2B")
)

// Styles covers the root model. Components carry their own.
type Styles struct {
	PanelTitle lipgloss.Style
	Trail      lipgloss.Style
	Modal      lipgloss.Style
}

func newStyles() Styles {
	text := lipgloss.NewStyle().Foreground(pprint.ColorText)
	return Styles{
		PanelTitle: pprint.StylePrimary.
			Padding(0, 1).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(pprint.ColorMuted),
		Trail: text.Background(colorBackdrop).Padding(0, 1),
		Modal: text.Background(colorSurface).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(pprint.ColorPrimary).
			Padding(1, 2),
	}
}
