package components

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Modal is a pop-over dialog.
type Modal struct {
	title     string
	body      string
	expect    string
	style     lipgloss.Style
	onConfirm func() tea.Cmd
	input     string
	typ       modalType
}

type modalType int

const (
	modalConfirm modalType = iota
	modalHelp
)

// NewConfirmModal creates a confirmation modal. Enter only confirms once the
// typed input equals expect.
func NewConfirmModal(title, body, expect string, style lipgloss.Style, onConfirm func() tea.Cmd) *Modal {
	return &Modal{
		title:     title,
		body:      body,
		expect:    expect,
		style:     style,
		onConfirm: onConfirm,
		typ:       modalConfirm,
	}
}

// NewHelpModal creates the keyboard help modal.
func NewHelpModal(style lipgloss.Style, body string) *Modal {
	return &Modal{
		title: "Keyboard Shortcuts",
		body:  body,
		style: style,
		typ:   modalHelp,
	}
}

// Input returns what has been typed so far.
func (m *Modal) Input() string { return m.input }

// HandleKey processes a key for the modal. Returns (cmd, done).
func (m *Modal) HandleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		return nil, true
	case tea.KeyEnter:
		if m.typ != modalConfirm {
			return nil, true
		}
		if m.input != m.expect {
			return nil, false
		}
		if m.onConfirm != nil {
			return m.onConfirm(), true
		}
		return nil, true
	case tea.KeyBackspace:
		if m.typ == modalConfirm && len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeyRunes:
		if m.typ == modalConfirm {
			m.input += string(msg.Runes)
		} else if msg.String() == "q" || msg.String() == "?" {
			return nil, true
		}
	}
	return nil, false
}

// Overlay renders the modal centred in place of the background content.
func (m *Modal) Overlay(_ string, width, height int) string {
	content := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ECC94B")).Bold(true).
		Render("⚠  "+m.title) + "\n\n"
	content += m.body

	if m.typ == modalConfirm {
		content += "\n\n  > " + m.input + "█"
		content += "\n\n  [Enter] Confirm   [Esc] Cancel"
	} else {
		content += "\n\n  [Esc] Close"
	}

	box := m.style.Render(content)
	boxWidth := lipgloss.Width(box)
	boxHeight := lipgloss.Height(box)

	topPad := (height - boxHeight) / 2
	leftPad := (width - boxWidth) / 2
	if topPad < 0 {
		topPad = 0
	}
	if leftPad < 0 {
		leftPad = 0
	}

	indent := strings.Repeat(" ", leftPad)
	var b strings.Builder
	b.WriteString(strings.Repeat("\n", topPad))
	for _, l := range strings.Split(box, "\n") {
		b.WriteString(indent + l + "\n")
	}
	return b.String()
}
