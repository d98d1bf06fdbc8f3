package pprint

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAlignsStyledCells(t *testing.T) {
	tbl := NewTable("SERVICE", "STATE")
	tbl.AddRow("orders", StyleSuccess.Render("healthy"))
	tbl.AddRow("billing-api", StyleError.Render("failed"))

	lines := strings.Split(tbl.String(), "\n")
	require.Len(t, lines, 4)
	col := lipgloss.Width(lines[0][:strings.Index(lines[0], "STATE")])
	assert.Equal(t, col, lipgloss.Width(lines[2][:strings.Index(lines[2], "healthy")]))
	assert.Equal(t, col, lipgloss.Width(lines[3][:strings.Index(lines[3], "failed")]))
	assert.Equal(t, len("billing-api")+2, col)
}

func TestTableRenderUsesOutput(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable("A")
	tbl.SetOutput(&buf)
	tbl.AddRow("x", "extra")
	tbl.Render()
	assert.Contains(t, buf.String(), "extra")
}

func TestPrinterStreams(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &Printer{Out: &out, Err: &errOut}
	p.Success("applied %d rules", 3)
	p.Error("boom")
	p.KV("Service", "orders")

	assert.Contains(t, out.String(), "applied 3 rules")
	assert.Contains(t, out.String(), "orders")
	assert.NotContains(t, out.String(), "boom")
	assert.Contains(t, errOut.String(), "boom")
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner("switching")
	s.out = &buf
	s.Start()
	s.Start()
	time.Sleep(3 * spinnerTick)
	s.Stop(true)
	s.Stop(false)

	assert.Equal(t, 1, strings.Count(buf.String(), "✓"))
	assert.NotContains(t, buf.String(), "✗")
}

func TestBannerCarriesVersion(t *testing.T) {
	b := Banner("v1.2.0", "2026-01-01")
	assert.Contains(t, b, "v1.2.0")
	assert.Contains(t, b, "built 2026-01-01")
}
