// Package tui: keyboard binding configuration.
package tui

// Keymap defines all keyboard shortcuts for the TUI.
type Keymap struct {
	Quit        string
	TabNext     string
	TabPrev     string
	NavUp       string
	NavDown     string
	History     string
	Switch      string
	Restart     string
	ScaleUp     string
	Maintenance string
	Help        string
}

// defaultKeymap returns the default Warden TUI key bindings.
func defaultKeymap() Keymap {
	return Keymap{
		Quit:        "q",
		TabNext:     "tab",
		TabPrev:     "shift+tab",
		NavUp:       "up",
		NavDown:     "down",
		History:     "h",
		Switch:      "f",
		Restart:     "r",
		ScaleUp:     "s",
		Maintenance: "m",
		Help:        "?",
	}
}

// HelpText returns the keyboard shortcut reference displayed in the help modal.
func HelpText() string {
	return `
  NAVIGATION
  ──────────────────────────────────────
  Tab / Shift+Tab    Services · Endpoints · Failovers
  ↑↓  /  j k         Select service
  h                  Failover history

  ACTIONS (confirmed by typing the service name)
  ──────────────────────────────────────
  f                  Switch traffic
  r                  Restart service
  s                  Scale up
  m                  Toggle maintenance mode

  MISC
  ──────────────────────────────────────
  ?                  Toggle this help
  q / Ctrl+C         Quit
`
}
