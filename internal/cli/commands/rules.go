// warden rules: attach and list failover rules.
package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/api"
	"github.com/f9-o/warden/pkg/pprint"
)

func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage failover rules",
	}
	cmd.AddCommand(newRulesAddCmd(), newRulesLsCmd())
	return cmd
}

func newRulesAddCmd() *cobra.Command {
	var (
		body   api.RuleBody
		params []string
	)

	cmd := &cobra.Command{
		Use:   "add <service>",
		Short: "Add a failover rule to a service",
		Long: `Conditions: service_failed, service_degraded, high_error_rate.
Actions: restart_service, scale_up, scale_down, switch_traffic, enable_maintenance_mode.
service_degraded and high_error_rate need a --threshold in (0,1].`,
		Args: cobra.ExactArgs(1),
		Example: `  warden rules add orders --condition service_failed --action restart_service --window 2m --cooldown 5m
  warden rules add orders --condition service_degraded --action scale_up --threshold 0.5 --window 5m -p max_replicas=6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			client, err := rt.Client()
			if err != nil {
				return err
			}
			body.Service = args[0]
			if body.Params, err = parseParams(params); err != nil {
				return err
			}

			rule, err := client.AddRule(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			if rt.Flags.JSONOutput {
				return printJSON(rule)
			}
			pprint.Success("Rule added to %q: %s → %s (window %s, cooldown %s)",
				args[0], rule.Condition, rule.Action, dash(rule.TimeWindow), dash(rule.Cooldown))
			return nil
		},
	}

	f := cmd.Flags()
	f.Var((*conditionValue)(&body.Condition), "condition", "Trigger condition")
	f.Var((*actionValue)(&body.Action), "action", "Remediation action")
	f.Float64Var(&body.Threshold, "threshold", 0, "Ratio in (0,1] for service_degraded and high_error_rate")
	f.StringVar(&body.TimeWindow, "window", "", "Time window, e.g. 2m")
	f.StringVar(&body.Cooldown, "cooldown", "", "Minimum time between remediations (defaults to monitor.default_cooldown)")
	f.IntVar(&body.MaxAttempts, "max-attempts", 0, "Consecutive failures before the rule is suspended (0 = unlimited)")
	f.StringArrayVarP(&params, "param", "p", nil, "Action parameter key=value (repeatable)")
	_ = cmd.MarkFlagRequired("condition")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func newRulesLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <service>",
		Short: "List the failover rules of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			client, err := rt.Client()
			if err != nil {
				return err
			}
			rules, err := client.Rules(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rt.Flags.JSONOutput {
				return printJSON(rules)
			}
			if len(rules) == 0 {
				pprint.Info("No rules for %q.", args[0])
				return nil
			}
			t := pprint.NewTable("#", "CONDITION", "ACTION", "THRESHOLD", "WINDOW", "COOLDOWN", "MAX", "PARAMS")
			for i, r := range rules {
				threshold := "-"
				if r.Threshold > 0 {
					threshold = strconv.FormatFloat(r.Threshold, 'g', -1, 64)
				}
				maxAttempts := "∞"
				if r.MaxAttempts > 0 {
					maxAttempts = strconv.Itoa(r.MaxAttempts)
				}
				t.AddRow(strconv.Itoa(i+1), string(r.Condition), string(r.Action), threshold,
					dash(r.TimeWindow), dash(r.Cooldown), maxAttempts, formatParams(r.Params))
			}
			t.Render()
			return nil
		},
	}
}

// conditionValue validates --condition as it is parsed.
type conditionValue v1.TriggerCondition

func (c *conditionValue) String() string { return string(*c) }
func (c *conditionValue) Type() string   { return "condition" }
func (c *conditionValue) Set(s string) error {
	cond := v1.TriggerCondition(strings.ToLower(strings.TrimSpace(s)))
	if !cond.Valid() {
		return fmt.Errorf("unknown condition %q", s)
	}
	*c = conditionValue(cond)
	return nil
}

// actionValue validates --action as it is parsed.
type actionValue v1.Action

func (a *actionValue) String() string { return string(*a) }
func (a *actionValue) Type() string   { return "action" }
func (a *actionValue) Set(s string) error {
	act, err := v1.ParseAction(s)
	if err != nil {
		return err
	}
	*a = actionValue(act)
	return nil
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("param %q is not key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return strings.Join(parts, ",")
}
