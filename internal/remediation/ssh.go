package remediation

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/pkg/errs"
)

// Default remote commands. Templates see {{.Service}} and, for scale, {{.Replicas}}.
const (
	DefaultSSHRestart = `docker restart $(docker ps -q --filter label=warden.service={{.Service}})`
	DefaultSSHCount   = `docker ps -q --filter label=warden.service={{.Service}} | wc -l`
	DefaultSSHScale   = `docker compose up -d --no-recreate --scale {{.Service}}={{.Replicas}}`
)

// CommandRunner runs a shell command on a node. *remote.Pool satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, node v1.NodeSpec, cmd string) (string, int, error)
}

// SSHCommands holds the command templates used by SSHRuntime.
type SSHCommands struct {
	Restart string `mapstructure:"restart"`
	Count   string `mapstructure:"count"`
	Scale   string `mapstructure:"scale"`
}

// SSHRuntime remediates services by running commands on the node hosting them.
type SSHRuntime struct {
	runner    CommandRunner
	nodes     map[string]v1.NodeSpec // service → node
	reachable func(node string) bool
	restart   *template.Template
	count     *template.Template
	scale     *template.Template
	log       *logger.Logger
}

// SSHOption customises an SSHRuntime.
type SSHOption func(*SSHRuntime)

// WithReachability short-circuits commands to nodes reported unreachable.
func WithReachability(fn func(node string) bool) SSHOption {
	return func(r *SSHRuntime) { r.reachable = fn }
}

// NewSSHRuntime parses cmds (empty fields use the defaults). nodes maps each
// service name to the node that hosts it.
func NewSSHRuntime(runner CommandRunner, nodes map[string]v1.NodeSpec, cmds SSHCommands, log *logger.Logger, opts ...SSHOption) (*SSHRuntime, error) {
	r := &SSHRuntime{runner: runner, nodes: nodes, log: log}
	var err error
	if r.restart, err = parseCommand("restart", cmds.Restart, DefaultSSHRestart); err != nil {
		return nil, err
	}
	if r.count, err = parseCommand("count", cmds.Count, DefaultSSHCount); err != nil {
		return nil, err
	}
	if r.scale, err = parseCommand("scale", cmds.Scale, DefaultSSHScale); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func parseCommand(name, text, def string) (*template.Template, error) {
	if text == "" {
		text = def
	}
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrConfig, "remediation.ssh").WithResource(name)
	}
	return t, nil
}

// Restart runs the restart command on the service's node.
func (r *SSHRuntime) Restart(ctx context.Context, service string) error {
	_, err := r.run(ctx, service, r.restart, cmdData{Service: service})
	return err
}

// Scale counts the current replicas, clamps the target and runs the scale command.
func (r *SSHRuntime) Scale(ctx context.Context, service string, delta int, limits ScaleLimits) error {
	out, err := r.run(ctx, service, r.count, cmdData{Service: service})
	if err != nil {
		return err
	}
	current, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return errs.Newf(errs.ErrNodeCommand, "remediation.ssh.count", "unexpected replica count %q", strings.TrimSpace(out)).WithResource(service)
	}
	target, ok := limits.clamp(current, delta)
	if !ok {
		return fmt.Errorf("%s: %w (current %d, min %d, max %d)", service, ErrAtScaleLimit, current, limits.Min, limits.Max)
	}
	r.log.Info("scale", "service", service, "current", current, "target", target)
	_, err = r.run(ctx, service, r.scale, cmdData{Service: service, Replicas: target})
	return err
}

type cmdData struct {
	Service  string
	Replicas int
}

func (r *SSHRuntime) run(ctx context.Context, service string, tmpl *template.Template, data cmdData) (string, error) {
	node, ok := r.nodes[service]
	if !ok {
		return "", errs.Newf(errs.ErrNodeNotFound, "remediation.ssh", "no node configured for service").
			WithResource(service).
			WithAdvice("set services[].node in warden.yaml")
	}
	if r.reachable != nil && !r.reachable(node.Name) {
		return "", errs.Newf(errs.ErrNodeConnect, "remediation.ssh", "node is offline").WithResource(node.Name)
	}

	var cmd bytes.Buffer
	if err := tmpl.Execute(&cmd, data); err != nil {
		return "", errs.Wrap(err, errs.ErrConfig, "remediation.ssh."+tmpl.Name())
	}
	r.log.Debug("ssh remediation", "service", service, "node", node.Name, "cmd", cmd.String())

	out, code, err := r.runner.Run(ctx, node, cmd.String())
	if err != nil {
		return out, errs.Newf(errs.ErrNodeCommand, "remediation.ssh."+tmpl.Name(), "exit %d: %v: %s", code, err, strings.TrimSpace(out)).
			WithResource(node.Name)
	}
	return out, nil
}
