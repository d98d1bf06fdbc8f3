// warden services: register, list and export monitored services.
package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/api"
	"github.com/f9-o/warden/pkg/pprint"
)

func NewServicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "services",
		Aliases: []string{"svc"},
		Short:   "Register and inspect monitored services",
	}
	cmd.AddCommand(
		newServicesRegisterCmd(),
		newServicesLsCmd(),
		newServicesExportCmd(),
	)
	return cmd
}

func newServicesRegisterCmd() *cobra.Command {
	var (
		endpoints []string
		file      string
	)

	cmd := &cobra.Command{
		Use:   "register [name]",
		Short: "Register a service, or replace the endpoints of an existing one",
		Long: `Registers a service with the running server. Endpoints are given as
comma-separated key=value lists; keys are name, address, type, health_path,
expected_code, timeout, priority and primary. With --file the services (and
their rules) are read from a YAML document shaped like the services section
of warden.yaml.`,
		Args: cobra.MaximumNArgs(1),
		Example: `  warden services register orders \
    --endpoint name=p1,address=http://10.0.0.11:8080,health_path=/healthz,priority=1,primary=true \
    --endpoint name=p2,address=http://10.0.0.12:8080,health_path=/healthz,priority=2
  warden services register --file services.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			client, err := rt.Client()
			if err != nil {
				return err
			}

			var specs []v1.ServiceSpec
			switch {
			case file != "":
				if len(args) > 0 || len(endpoints) > 0 {
					return fmt.Errorf("--file cannot be combined with a name or --endpoint")
				}
				if specs, err = readServicesFile(file); err != nil {
					return err
				}
			case len(args) == 1:
				body := api.ServiceBody{Name: args[0]}
				for _, raw := range endpoints {
					ep, err := parseEndpointFlag(raw)
					if err != nil {
						return err
					}
					body.Endpoints = append(body.Endpoints, ep)
				}
				st, err := client.RegisterService(cmd.Context(), body)
				if err != nil {
					return err
				}
				if rt.Flags.JSONOutput {
					return printJSON(st)
				}
				pprint.Success("Service %q registered with %d endpoint(s)", st.Name, st.TotalEndpoints)
				return nil
			default:
				return fmt.Errorf("give a service name with --endpoint flags, or --file")
			}

			for _, spec := range specs {
				body := api.NewServiceBody(spec)
				rules := body.Rules
				body.Rules = nil
				if _, err := client.RegisterService(cmd.Context(), body); err != nil {
					return fmt.Errorf("service %q: %w", spec.Name, err)
				}
				for _, r := range rules {
					r.Service = spec.Name
					if _, err := client.AddRule(cmd.Context(), spec.Name, r); err != nil {
						return fmt.Errorf("service %q rule %s: %w", spec.Name, r.Condition, err)
					}
				}
				pprint.Success("Service %q registered (%d endpoints, %d rules)", spec.Name, len(spec.Endpoints), len(rules))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&endpoints, "endpoint", "e", nil, "Endpoint as key=value pairs (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a services list")
	return cmd
}

func newServicesLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List registered services and their endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			client, err := rt.Client()
			if err != nil {
				return err
			}
			services, err := client.Services(cmd.Context())
			if err != nil {
				return err
			}
			if rt.Flags.JSONOutput {
				return printJSON(services)
			}
			if len(services) == 0 {
				pprint.Info("No services registered.")
				return nil
			}

			t := pprint.NewTable("SERVICE", "ENDPOINT", "TYPE", "ADDRESS", "PRIORITY", "RULES")
			for _, svc := range services {
				for i, ep := range svc.Endpoints {
					name, rules := "", ""
					if i == 0 {
						name, rules = svc.Name, strconv.Itoa(len(svc.Rules))
					}
					typ := string(ep.Type)
					if typ == "" {
						typ = string(v1.ProbeHTTP)
					}
					t.AddRow(name, ep.Name, typ, ep.Address+ep.HealthPath, strconv.Itoa(ep.Priority), rules)
				}
			}
			t.Render()
			return nil
		},
	}
}

func newServicesExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the registered services and rules as warden.yaml",
		Example: `  warden services export > services.yaml
  warden services export -o services.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			client, err := rt.Client()
			if err != nil {
				return err
			}
			bodies, err := client.Services(cmd.Context())
			if err != nil {
				return err
			}
			specs := make([]v1.ServiceSpec, 0, len(bodies))
			for _, b := range bodies {
				spec, err := b.Spec()
				if err != nil {
					return fmt.Errorf("service %q: %w", b.Name, err)
				}
				specs = append(specs, spec)
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return writeServicesYAML(w, specs)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

// servicesDoc is the YAML shape shared by export and register --file.
type servicesDoc struct {
	Services []v1.ServiceSpec `yaml:"services"`
}

func writeServicesYAML(w io.Writer, specs []v1.ServiceSpec) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(servicesDoc{Services: specs}); err != nil {
		return fmt.Errorf("encode services: %w", err)
	}
	return enc.Close()
}

func readServicesFile(path string) ([]v1.ServiceSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeServicesYAML(f)
}

func decodeServicesYAML(r io.Reader) ([]v1.ServiceSpec, error) {
	var doc servicesDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("no services found")
	}
	return doc.Services, nil
}

// parseEndpointFlag parses "name=p1,address=http://h:80,priority=1".
func parseEndpointFlag(raw string) (api.EndpointBody, error) {
	var ep api.EndpointBody
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return ep, fmt.Errorf("endpoint %q: %q is not key=value", raw, pair)
		}
		var err error
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "name":
			ep.Name = v
		case "address", "addr":
			ep.Address = v
		case "type":
			ep.Type = v1.ProbeType(v)
		case "health_path", "path":
			ep.HealthPath = v
		case "expected_code", "code":
			ep.ExpectedCode, err = strconv.Atoi(v)
		case "timeout":
			ep.Timeout = v
		case "priority":
			ep.Priority, err = strconv.Atoi(v)
		case "primary":
			ep.Primary, err = strconv.ParseBool(v)
		default:
			return ep, fmt.Errorf("endpoint %q: unknown key %q", raw, k)
		}
		if err != nil {
			return ep, fmt.Errorf("endpoint %q: %s: %w", raw, k, err)
		}
	}
	if ep.Name == "" || ep.Address == "" {
		return ep, fmt.Errorf("endpoint %q: name and address are required", raw)
	}
	return ep, nil
}
