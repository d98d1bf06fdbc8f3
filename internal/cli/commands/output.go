package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/pkg/pprint"
)

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	return writeJSON(os.Stdout, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stateLabel renders a health state with its icon and colour.
func stateLabel(s v1.HealthState) string {
	switch s {
	case v1.StateHealthy:
		return pprint.StyleSuccess.Render("● healthy")
	case v1.StateDegraded:
		return pprint.StyleWarning.Render("◐ degraded")
	case v1.StateFailed:
		return pprint.StyleError.Render("○ failed")
	default:
		return pprint.StyleMuted.Render("? unknown")
	}
}

func breakerLabel(s v1.BreakerState) string {
	switch s {
	case v1.BreakerOpen:
		return pprint.StyleError.Render("open")
	case v1.BreakerHalfOpen:
		return pprint.StyleWarning.Render("half-open")
	default:
		return pprint.StyleMuted.Render("closed")
	}
}

func outcome(ok bool) string {
	if ok {
		return pprint.StyleSuccess.Render("ok")
	}
	return pprint.StyleError.Render("failed")
}

// fmtDuration formats a duration in human-friendly form.
func fmtDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmtDuration(time.Since(t)) + " ago"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
