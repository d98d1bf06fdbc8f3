// warden failover: trigger a remediation by hand.
package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/api"
	"github.com/f9-o/warden/pkg/pprint"
)

func NewFailoverCmd() *cobra.Command {
	var (
		action v1.Action = v1.ActionSwitchTraffic
		params []string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "failover <service>",
		Short: "Run a remediation action now, bypassing rules and cooldowns",
		Args:  cobra.ExactArgs(1),
		Example: `  warden failover orders
  warden failover orders --action restart_service --yes
  warden failover orders --action scale_up -p step=2 -p max_replicas=6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			service := args[0]

			p, err := parseParams(params)
			if err != nil {
				return err
			}
			if !yes && !rt.Flags.JSONOutput {
				if err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), service,
					fmt.Sprintf("Run %s on %s?", action, service)); err != nil {
					return err
				}
			}

			client, err := rt.Client()
			if err != nil {
				return err
			}

			var spin *pprint.Spinner
			if !rt.Flags.JSONOutput {
				spin = pprint.NewSpinner(fmt.Sprintf("%s on %s", action, service))
				spin.Start()
			}
			rec, err := client.Failover(cmd.Context(), service, action, p)
			if spin != nil {
				spin.Stop(err == nil)
			}

			// A failed remediation still returns its record.
			var apiErr *api.APIError
			if err != nil && !(errors.As(err, &apiErr) && rec.ID != "") {
				return err
			}
			if rt.Flags.JSONOutput {
				if jerr := printJSON(rec); jerr != nil {
					return jerr
				}
				return err
			}
			pprint.KV("Record", rec.ID)
			pprint.KV("Action", string(rec.Action))
			pprint.KV("Outcome", outcome(rec.Success))
			if rec.Error != "" {
				pprint.KV("Error", rec.Error)
			}
			return err
		},
	}

	cmd.Flags().Var((*actionValue)(&action), "action", "Remediation action")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Action parameter key=value (repeatable)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// errAborted is returned when the operator declines a confirmation.
var errAborted = errors.New("aborted")

// confirm asks the operator to type expect before a disruptive action.
func confirm(in io.Reader, out io.Writer, expect, question string) error {
	fmt.Fprintln(out, pprint.StyleWarning.Render("⚠ "+question))
	fmt.Fprintf(out, "  Type %q to confirm: ", expect)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if strings.TrimSpace(line) != expect {
		return errAborted
	}
	return nil
}
