// warden history: failover records and health samples of a service.
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/f9-o/warden/pkg/pprint"
)

func NewHistoryCmd() *cobra.Command {
	var (
		samples bool
		window  time.Duration
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history <service>",
		Short: "Show the failover history (or health samples) of a service",
		Args:  cobra.ExactArgs(1),
		Example: `  warden history orders
  warden history orders --samples --window 10m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			client, err := rt.Client()
			if err != nil {
				return err
			}

			if samples {
				hist, err := client.History(cmd.Context(), args[0], window)
				if err != nil {
					return err
				}
				if rt.Flags.JSONOutput {
					return printJSON(hist)
				}
				t := pprint.NewTable("TIME", "STATE", "HEALTHY", "DOWN")
				for _, s := range hist {
					var down []string
					for _, e := range s.Endpoints {
						if !e.Healthy {
							down = append(down, e.Name)
						}
					}
					t.AddRow(s.Timestamp.Local().Format(time.DateTime), stateLabel(s.State),
						fmt.Sprintf("%d/%d", s.HealthyEndpoints, s.TotalEndpoints), joinOrDash(down))
				}
				t.Render()
				return nil
			}

			recs, err := client.Failovers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if limit > 0 && len(recs) > limit {
				recs = recs[len(recs)-limit:]
			}
			if rt.Flags.JSONOutput {
				return printJSON(recs)
			}
			if len(recs) == 0 {
				pprint.Info("No failovers recorded for %q.", args[0])
				return nil
			}
			t := pprint.NewTable("TIME", "ACTION", "TRIGGER", "OUTCOME", "ERROR")
			for _, r := range recs {
				trigger := "manual"
				if !r.Manual && r.Rule != nil {
					trigger = string(r.Rule.Condition)
				}
				t.AddRow(r.Timestamp.Local().Format(time.DateTime), string(r.Action), trigger, outcome(r.Success), dash(r.Error))
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&samples, "samples", false, "Show health samples instead of failovers")
	cmd.Flags().DurationVar(&window, "window", 0, "Only samples newer than this (0 = all retained)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many failovers (0 = all)")
	return cmd
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
