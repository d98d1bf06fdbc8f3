package remediation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/pkg/errs"
)

type scriptedRunner struct {
	cmds   []string
	nodes  []string
	output map[string]string
	fail   string
}

func (s *scriptedRunner) Run(_ context.Context, node v1.NodeSpec, cmd string) (string, int, error) {
	s.cmds = append(s.cmds, cmd)
	s.nodes = append(s.nodes, node.Name)
	if s.fail != "" && strings.Contains(cmd, s.fail) {
		return "boom", 1, errors.New("process exited with status 1")
	}
	for prefix, out := range s.output {
		if strings.HasPrefix(cmd, prefix) {
			return out, 0, nil
		}
	}
	return "", 0, nil
}

var edge = map[string]v1.NodeSpec{"orders": {Name: "edge-1", Host: "10.0.0.5", User: "deploy"}}

func TestSSHRestartUsesTemplate(t *testing.T) {
	runner := &scriptedRunner{}
	rt, err := NewSSHRuntime(runner, edge, SSHCommands{Restart: "systemctl restart {{.Service}}"}, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, rt.Restart(context.Background(), "orders"))
	assert.Equal(t, []string{"systemctl restart orders"}, runner.cmds)
	assert.Equal(t, []string{"edge-1"}, runner.nodes)
}

func TestSSHScaleCountsThenScales(t *testing.T) {
	runner := &scriptedRunner{output: map[string]string{"docker ps": "  2\n"}}
	rt, err := NewSSHRuntime(runner, edge, SSHCommands{}, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, rt.Scale(context.Background(), "orders", 1, ScaleLimits{Min: 1, Max: 5}))
	require.Len(t, runner.cmds, 2)
	assert.Equal(t, "docker compose up -d --no-recreate --scale orders=3", runner.cmds[1])

	err = rt.Scale(context.Background(), "orders", -1, ScaleLimits{Min: 2})
	assert.ErrorIs(t, err, ErrAtScaleLimit)
}

func TestSSHErrors(t *testing.T) {
	runner := &scriptedRunner{fail: "restart"}
	rt, err := NewSSHRuntime(runner, edge, SSHCommands{}, logger.Nop())
	require.NoError(t, err)

	err = rt.Restart(context.Background(), "billing")
	assert.True(t, errs.IsCode(err, errs.ErrNodeNotFound))

	err = rt.Restart(context.Background(), "orders")
	assert.True(t, errs.IsCode(err, errs.ErrNodeCommand))

	runner.output = map[string]string{"docker ps": "many"}
	err = rt.Scale(context.Background(), "orders", 1, ScaleLimits{})
	assert.True(t, errs.IsCode(err, errs.ErrNodeCommand))
}

func TestSSHSkipsOfflineNodes(t *testing.T) {
	runner := &scriptedRunner{}
	rt, err := NewSSHRuntime(runner, edge, SSHCommands{}, logger.Nop(),
		WithReachability(func(string) bool { return false }))
	require.NoError(t, err)

	err = rt.Restart(context.Background(), "orders")
	assert.True(t, errs.IsCode(err, errs.ErrNodeConnect))
	assert.Empty(t, runner.cmds)
}

func TestSSHRejectsBadTemplate(t *testing.T) {
	_, err := NewSSHRuntime(&scriptedRunner{}, edge, SSHCommands{Scale: "{{.Service"}, logger.Nop())
	assert.Error(t, err)
}

func TestNoopRuntime(t *testing.T) {
	rt := NoopRuntime{Log: logger.Nop()}
	assert.NoError(t, rt.Restart(context.Background(), "orders"))
	assert.NoError(t, rt.Scale(context.Background(), "orders", 1, ScaleLimits{Min: 1}))
}
