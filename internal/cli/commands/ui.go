// warden ui: launch the interactive TUI dashboard.
package commands

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/f9-o/warden/internal/tui"
)

func NewUICmd() *cobra.Command {
	var refresh time.Duration

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Launch the interactive TUI dashboard",
		Example: `  warden ui
  warden ui --server http://10.0.0.5:7070 --refresh 5s`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			client, err := rt.Client()
			if err != nil {
				return err
			}
			if err := client.Healthz(cmd.Context()); err != nil {
				return fmt.Errorf("warden server at %s: %w", client.Base(), err)
			}

			app := tui.New(tui.Config{
				Source:   client,
				Server:   client.Base(),
				Interval: refresh,
			})

			p := tea.NewProgram(app,
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&refresh, "refresh", 2*time.Second, "Status polling interval")
	return cmd
}
