// Package pprint formats the Warden CLI's terminal output.
//
// The package-level helpers write through Default, which targets stdout and
// stderr. Tests swap in their own Printer.
package pprint

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorPrimary = lipgloss.Color("#7B8CDE")
	ColorAccent  = lipgloss.Color("#56E0C8")
	ColorSuccess = lipgloss.Color("#48BB78")
	ColorWarning = lipgloss.Color("#F6AD55")
	ColorError   = lipgloss.Color("#FC8181")
	ColorMuted   = lipgloss.Color("#4A5568")
	ColorText    = lipgloss.Color("#E2E8F0")
)

var (
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleAccent  = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	StylePrimary = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	StyleText    = lipgloss.NewStyle().Foreground(ColorText)
	StyleLabel   = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Width(14)
)

const ruleWidth = 60

// Printer writes styled lines to a pair of streams.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// Default is used by the package-level helpers.
var Default = &Printer{Out: os.Stdout, Err: os.Stderr}

func (p *Printer) mark(w io.Writer, icon lipgloss.Style, glyph, format string, args []any) {
	fmt.Fprintln(w, icon.Render(glyph+" ")+StyleText.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Success(format string, args ...any) {
	p.mark(p.Out, StyleSuccess, "✓", format, args)
}

func (p *Printer) Warn(format string, args ...any) {
	p.mark(p.Out, StyleWarning, "⚠", format, args)
}

// Error goes to the error stream.
func (p *Printer) Error(format string, args ...any) {
	p.mark(p.Err, StyleError, "✗", format, args)
}

func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.Out, StyleMuted.Render("  "+fmt.Sprintf(format, args...)))
}

// Header prints title in capitals between two rules.
func (p *Printer) Header(title string) {
	bar := StylePrimary.Render(strings.Repeat("─", ruleWidth))
	fmt.Fprintf(p.Out, "\n%s\n%s\n%s\n", bar, StylePrimary.Render(" ◉ "+strings.ToUpper(title)), bar)
}

// KV prints a fixed-width label followed by value.
func (p *Printer) KV(key, value string) {
	fmt.Fprintln(p.Out, StyleLabel.Render(key)+StyleText.Render(value))
}

func Success(format string, args ...any) { Default.Success(format, args...) }
func Warn(format string, args ...any)    { Default.Warn(format, args...) }
func Error(format string, args ...any)   { Default.Error(format, args...) }
func Info(format string, args ...any)    { Default.Info(format, args...) }
func Header(title string)                { Default.Header(title) }
func KV(key, value string)               { Default.KV(key, value) }

// Table lays out rows under a coloured header. Column widths follow the
// widest visible cell, so styled cells line up.
type Table struct {
	headers []string
	rows    [][]string
	out     io.Writer
}

// NewTable returns a Table that renders to Default.Out.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers, out: Default.Out}
}

// SetOutput redirects the table.
func (t *Table) SetOutput(w io.Writer) { t.out = w }

func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *Table) widths() []int {
	w := make([]int, len(t.headers))
	for i, h := range t.headers {
		w[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(w); i++ {
			w[i] = max(w[i], lipgloss.Width(row[i]))
		}
	}
	return w
}

func joinCells(cells []string, widths []int) string {
	var b strings.Builder
	for i, cell := range cells {
		b.WriteString(cell)
		if i == len(cells)-1 {
			break
		}
		gap := 2
		if i < len(widths) {
			gap = widths[i] + 2 - lipgloss.Width(cell)
		}
		b.WriteString(strings.Repeat(" ", max(gap, 1)))
	}
	return b.String()
}

// String returns the rendered table without surrounding blank lines.
func (t *Table) String() string {
	widths := t.widths()
	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("─", w)
	}

	lines := []string{
		StylePrimary.Render(joinCells(t.headers, widths)),
		StyleMuted.Render(strings.Join(rule, "──")),
	}
	for _, row := range t.rows {
		lines = append(lines, StyleText.Render(joinCells(row, widths)))
	}
	return strings.Join(lines, "\n")
}

func (t *Table) Render() {
	fmt.Fprintf(t.out, "\n%s\n\n", t.String())
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerTick = 80 * time.Millisecond

// Spinner animates a label on one terminal line until stopped.
type Spinner struct {
	label string
	out   io.Writer

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

func NewSpinner(label string) *Spinner {
	return &Spinner{label: label, out: Default.Out}
}

// Start is a no-op on a running spinner.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.spin(s.stop, s.stopped)
}

func (s *Spinner) spin(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(spinnerTick)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame := spinnerFrames[i%len(spinnerFrames)]
			fmt.Fprintf(s.out, "\r%s %s ", StylePrimary.Render(frame), StyleText.Render(s.label))
		}
	}
}

// Stop ends the animation and leaves a ✓ or ✗ line behind.
func (s *Spinner) Stop(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.stopped
	s.stop = nil

	icon := StyleError.Render("✗")
	if success {
		icon = StyleSuccess.Render("✓")
	}
	fmt.Fprintf(s.out, "\r%s %s\n", icon, StyleText.Render(s.label))
}
