// warden error-rate: feed the static error-rate source.
package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/f9-o/warden/pkg/pprint"
)

func NewErrorRateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "error-rate <service> <rate>",
		Short: "Report the current error rate of a service (static source only)",
		Long: `Sets the value high_error_rate rules compare against when
error_rate.source is static. The rate is a ratio in [0,1].`,
		Args:    cobra.ExactArgs(2),
		Example: `  warden error-rate orders 0.35`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			rate, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("rate %q: %w", args[1], err)
			}
			client, err := rt.Client()
			if err != nil {
				return err
			}
			if err := client.SetErrorRate(cmd.Context(), args[0], rate); err != nil {
				return err
			}
			if rt.Flags.JSONOutput {
				return printJSON(map[string]any{"service": args[0], "rate": rate})
			}
			pprint.Success("%s error rate set to %.2f%%", args[0], rate*100)
			return nil
		},
	}
}
