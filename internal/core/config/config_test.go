package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/warden/api/v1"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ProjectFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestLoadTemplate(t *testing.T) {
	isolateHome(t)
	cfg, err := Load(writeConfig(t, DefaultConfigTemplate))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Monitor.HealthInterval)
	assert.Equal(t, 60*time.Second, cfg.Monitor.RuleInterval)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, BackendDocker, cfg.Remediation.Backend)

	svc := cfg.ServiceByName("orders")
	require.NotNil(t, svc)
	require.Len(t, svc.Endpoints, 2)
	assert.Equal(t, 5*time.Second, svc.Endpoints[0].Timeout)
	assert.True(t, svc.Endpoints[0].Primary)
	require.Len(t, svc.Rules, 2)
	assert.Equal(t, v1.ConditionServiceFailed, svc.Rules[0].Condition)
	assert.Equal(t, 2*time.Minute, svc.Rules[0].TimeWindow)
	assert.Equal(t, 3, svc.Rules[0].MaxAttempts)
	assert.InDelta(t, 0.5, svc.Rules[1].Threshold, 1e-9)
	assert.Equal(t, "6", svc.Rules[1].Params["max_replicas"])
}

func TestDefaultsAndPaths(t *testing.T) {
	isolateHome(t)
	cfg, err := Load(writeConfig(t, "version: \"1\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7070", cfg.Server.Addr)
	assert.Equal(t, BackendNone, cfg.Remediation.Backend)
	assert.Equal(t, ErrorRateStatic, cfg.ErrorRate.Source)
	assert.True(t, cfg.Monitor.EndpointBreakers)
	assert.Equal(t, filepath.Join(Home(), "state.db"), cfg.StatePath())
	assert.Equal(t, filepath.Join(Home(), "audit.log"), cfg.AuditPath())

	cfg.Audit.Enabled = false
	assert.Empty(t, cfg.AuditPath())
}

func TestEnvOverrides(t *testing.T) {
	isolateHome(t)
	t.Setenv("WARDEN_SERVER_ADDR", "0.0.0.0:9000")
	t.Setenv("WARDEN_MONITOR_HEALTH_INTERVAL", "5s")

	cfg, err := Load(writeConfig(t, "version: \"1\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Monitor.HealthInterval)
}

func TestNodesAndPathExpansion(t *testing.T) {
	isolateHome(t)
	body := `
remediation:
  backend: ssh
nodes:
  - name: edge-1
    host: 10.0.0.5
    user: deploy
    key: ~/.ssh/id_ed25519
services:
  - name: orders
    node: edge-1
    endpoints:
      - name: p1
        address: 10.0.0.5:8080
        type: tcp
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".ssh/id_ed25519"), cfg.Nodes[0].Key)
	nodes := cfg.ServiceNodes()
	assert.Equal(t, "10.0.0.5", nodes["orders"].Host)
}

func TestValidation(t *testing.T) {
	isolateHome(t)
	tests := map[string]string{
		"bad backend":        "remediation:\n  backend: k8s\n",
		"prometheus no url":  "error_rate:\n  source: prometheus\n",
		"bad service name":   "services:\n  - name: Orders\n    endpoints: [{name: a, address: 'http://x'}]\n",
		"no endpoints":       "services:\n  - name: orders\n",
		"duplicate service":  "services:\n  - name: a\n    endpoints: [{name: a, address: 'http://x'}]\n  - name: a\n    endpoints: [{name: a, address: 'http://x'}]\n",
		"unknown node":       "services:\n  - name: a\n    node: ghost\n    endpoints: [{name: a, address: 'http://x'}]\n",
		"ssh without node":   "remediation:\n  backend: ssh\nservices:\n  - name: a\n    endpoints: [{name: a, address: 'http://x'}]\n",
		"zero threshold":     "breaker:\n  failure_threshold: 0\n",
		"zero interval":      "monitor:\n  health_interval: 0s\n",
		"duplicate node":     "nodes:\n  - {name: n, host: h}\n  - {name: n, host: h}\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolateHome(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
