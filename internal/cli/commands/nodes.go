// warden nodes: inspect the SSH nodes used by the ssh remediation backend.
package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/remote"
	"github.com/f9-o/warden/pkg/pprint"
)

func NewNodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Inspect remediation nodes",
		Long:  "List the nodes declared in warden.yaml and test SSH connectivity to them.",
	}
	cmd.AddCommand(newNodesLsCmd(), newNodesTestCmd())
	return cmd
}

func newNodesLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List configured nodes and the services they host",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			cfg := rt.Config

			hosted := map[string][]string{}
			for _, svc := range cfg.Services {
				if svc.Node != "" {
					hosted[svc.Node] = append(hosted[svc.Node], svc.Name)
				}
			}

			if rt.Flags.JSONOutput {
				return printJSON(cfg.Nodes)
			}
			if len(cfg.Nodes) == 0 {
				pprint.Info("No nodes configured.")
				return nil
			}
			t := pprint.NewTable("NAME", "ADDRESS", "USER", "KEY", "SERVICES")
			for _, n := range cfg.Nodes {
				t.AddRow(n.Name, remote.Address(n), n.User, dash(n.Key), joinOrDash(hosted[n.Name]))
			}
			t.Render()
			return nil
		},
	}
}

func newNodesTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [name...]",
		Short: "Test SSH connectivity to nodes (all when none named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			var nodes []v1.NodeSpec
			if len(args) == 0 {
				nodes = rt.Config.Nodes
			}
			for _, name := range args {
				n := rt.Config.NodeByName(name)
				if n == nil {
					return fmt.Errorf("unknown node %q", name)
				}
				nodes = append(nodes, *n)
			}
			if len(nodes) == 0 {
				pprint.Info("No nodes configured.")
				return nil
			}

			pool := remote.NewPool(rt.Log)
			defer pool.Close()

			failed := 0
			for _, n := range nodes {
				spin := pprint.NewSpinner(fmt.Sprintf("%s (%s@%s)", n.Name, n.User, remote.Address(n)))
				spin.Start()
				out, code, err := pool.Run(cmd.Context(), n, "echo warden-ok && uname -sr")
				ok := err == nil && code == 0
				spin.Stop(ok)
				switch {
				case err != nil:
					failed++
					pprint.Error("%s: %v", n.Name, err)
				case code != 0:
					failed++
					pprint.Error("%s: exit status %s", n.Name, strconv.Itoa(code))
				default:
					pprint.Info("%s", strings.TrimSpace(strings.TrimPrefix(out, "warden-ok")))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d node(s) unreachable", failed, len(nodes))
			}
			return nil
		},
	}
}
