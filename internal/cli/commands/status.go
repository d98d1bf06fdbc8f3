// warden status: show the orchestrator's view of every service.
package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/pkg/pprint"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [service]",
		Short: "Show service health, active endpoints and breaker state",
		Args:  cobra.MaximumNArgs(1),
		Example: `  warden status
  warden status orders --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			client, err := rt.Client()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				st, err := client.Service(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if rt.Flags.JSONOutput {
					return printJSON(st)
				}
				printServiceDetail(st)
				return nil
			}

			report, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if rt.Flags.JSONOutput {
				return printJSON(report)
			}
			printStatusTable(report)
			return nil
		},
	}
}

func printStatusTable(report v1.StatusReport) {
	if len(report.Services) == 0 {
		pprint.Info("No services registered.")
		return
	}
	names := make([]string, 0, len(report.Services))
	for name := range report.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	t := pprint.NewTable("SERVICE", "STATE", "HEALTHY", "ACTIVE", "BREAKER", "RULES", "LAST FAILOVER")
	for _, name := range names {
		st := report.Services[name]
		active := dash(st.ActiveEndpoint)
		if st.Maintenance {
			active = pprint.StyleWarning.Render("maintenance")
		}
		rules := strconv.Itoa(st.Rules)
		if st.SuspendedRules > 0 {
			rules += fmt.Sprintf(" (%d suspended)", st.SuspendedRules)
		}
		last := "-"
		if st.LastFailover != nil {
			last = fmt.Sprintf("%s %s %s", st.LastFailover.Action, outcome(st.LastFailover.Success), ago(st.LastFailover.Timestamp))
		}
		t.AddRow(name, stateLabel(st.State),
			fmt.Sprintf("%d/%d", st.HealthyEndpoints, st.TotalEndpoints),
			active, breakerLabel(st.Breaker.State), rules, last)
	}
	t.Render()
}

func printServiceDetail(st v1.ServiceStatus) {
	pprint.Header(st.Name)
	pprint.KV("State", stateLabel(st.State))
	pprint.KV("Healthy", fmt.Sprintf("%d/%d endpoints", st.HealthyEndpoints, st.TotalEndpoints))
	pprint.KV("Active", dash(st.ActiveEndpoint))
	pprint.KV("Maintenance", strconv.FormatBool(st.Maintenance))
	pprint.KV("Breaker", fmt.Sprintf("%s (%d failures)", breakerLabel(st.Breaker.State), st.Breaker.FailureCount))
	pprint.KV("Rules", fmt.Sprintf("%d (%d suspended)", st.Rules, st.SuspendedRules))
	if st.LastChecked != nil {
		pprint.KV("Checked", ago(*st.LastChecked))
	}
	if st.LastFailover != nil {
		pprint.KV("Failover", fmt.Sprintf("%s %s %s", st.LastFailover.Action, outcome(st.LastFailover.Success), ago(st.LastFailover.Timestamp)))
		if st.ActiveFailover {
			pprint.Warn("a failover is in progress")
		}
	}

	t := pprint.NewTable("ENDPOINT", "ADDRESS", "PRIORITY", "PROBE", "BREAKER", "")
	for _, ep := range st.Endpoints {
		probe := pprint.StyleSuccess.Render("up")
		if !ep.Healthy {
			probe = pprint.StyleError.Render("down")
		}
		brk := "-"
		if ep.Breaker != nil {
			brk = breakerLabel(ep.Breaker.State)
		}
		marker := ""
		if ep.Active {
			marker = pprint.StyleAccent.Render("★ active")
		}
		t.AddRow(ep.Name, ep.Address, strconv.Itoa(ep.Priority), probe, brk, marker)
	}
	t.Render()
}
