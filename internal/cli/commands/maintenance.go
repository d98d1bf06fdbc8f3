// warden maintenance: take a service out of rotation.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/f9-o/warden/pkg/pprint"
)

func NewMaintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Enable or disable maintenance mode for a service",
		Long: `While a service is in maintenance no endpoint is selected as active and
its failover rules are not evaluated. Health checks keep running.`,
	}
	cmd.AddCommand(
		newMaintenanceToggleCmd("on", true),
		newMaintenanceToggleCmd("off", false),
	)
	return cmd
}

func newMaintenanceToggleCmd(use string, on bool) *cobra.Command {
	short := "Put a service into maintenance mode"
	if !on {
		short = "Return a service to rotation"
	}
	return &cobra.Command{
		Use:   use + " <service>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			client, err := rt.Client()
			if err != nil {
				return err
			}
			changed, err := client.SetMaintenance(cmd.Context(), args[0], on)
			if err != nil {
				return err
			}
			if rt.Flags.JSONOutput {
				return printJSON(map[string]any{"service": args[0], "maintenance": on, "changed": changed})
			}
			switch {
			case !changed:
				pprint.Info("%s: maintenance already %s", args[0], use)
			case on:
				pprint.Warn("%s is in maintenance mode", args[0])
			default:
				pprint.Success("%s is back in rotation", args[0])
			}
			return nil
		},
	}
}
