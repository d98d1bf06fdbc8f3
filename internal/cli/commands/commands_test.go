package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/config"
	"github.com/f9-o/warden/internal/core/logger"
)

const testConfig = `
server:
  addr: 127.0.0.1:0
monitor:
  health_interval: 1h
  rule_interval: 1h
remediation:
  backend: none
state:
  path: %STATE%
services:
  - name: orders
    endpoints:
      - name: p1
        address: http://127.0.0.1:1
        priority: 1
    rules:
      - service: orders
        condition: service_failed
        action: switch_traffic
        time_window: 2m
`

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	body := strings.ReplaceAll(testConfig, "%STATE%", filepath.Join(dir, "state", "warden.db"))
	path := filepath.Join(dir, config.ProjectFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestParseEndpointFlag(t *testing.T) {
	ep, err := parseEndpointFlag("name=p1, address=http://10.0.0.1:8080,path=/healthz,priority=2,primary=true,timeout=3s,code=204")
	require.NoError(t, err)
	assert.Equal(t, "p1", ep.Name)
	assert.Equal(t, "http://10.0.0.1:8080", ep.Address)
	assert.Equal(t, "/healthz", ep.HealthPath)
	assert.Equal(t, 2, ep.Priority)
	assert.True(t, ep.Primary)
	assert.Equal(t, "3s", ep.Timeout)
	assert.Equal(t, 204, ep.ExpectedCode)

	for _, bad := range []string{
		"name=p1",
		"address=http://x",
		"name=p1,address=http://x,priority=high",
		"name=p1,address=http://x,weight=3",
		"name=p1,address",
	} {
		_, err := parseEndpointFlag(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"step=2", "max_replicas=6"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"step": "2", "max_replicas": "6"}, p)
	assert.Equal(t, "max_replicas=6,step=2", formatParams(p))

	_, err = parseParams([]string{"=2"})
	assert.Error(t, err)
	p, err = parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.NoError(t, confirm(strings.NewReader("orders\n"), &out, "orders", "Run it?"))
	assert.Contains(t, out.String(), `Type "orders"`)
	assert.ErrorIs(t, confirm(strings.NewReader("y\n"), &out, "orders", "Run it?"), errAborted)
	assert.ErrorIs(t, confirm(strings.NewReader(""), &out, "orders", "Run it?"), errAborted)
}

func TestServicesYAMLKeepsDurations(t *testing.T) {
	specs := []v1.ServiceSpec{{
		Name:      "orders",
		Endpoints: []v1.ServiceEndpoint{{Name: "p1", Address: "http://10.0.0.1", Timeout: 5 * time.Second, Priority: 1}},
		Rules:     []v1.FailoverRule{{Service: "orders", Condition: v1.ConditionServiceFailed, Action: v1.ActionRestartService, TimeWindow: 2 * time.Minute, Cooldown: 5 * time.Minute}},
	}}
	var buf bytes.Buffer
	require.NoError(t, writeServicesYAML(&buf, specs))
	assert.Contains(t, buf.String(), "time_window: 2m0s")

	got, err := decodeServicesYAML(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, specs[0].Endpoints, got[0].Endpoints)
	require.Len(t, got[0].Rules, 1)
	assert.Equal(t, 2*time.Minute, got[0].Rules[0].TimeWindow)
	assert.Equal(t, 5*time.Minute, got[0].Rules[0].Cooldown)

	_, err = decodeServicesYAML(strings.NewReader("services: []\n"))
	assert.Error(t, err)
	_, err = decodeServicesYAML(strings.NewReader("services:\n  - name: a\n    colour: red\n"))
	assert.Error(t, err)
}

func TestBuildDaemonAppliesConfigAndRestores(t *testing.T) {
	cfg := loadTestConfig(t)

	d, err := buildDaemon(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	require.Len(t, d.orch.Services(), 1)
	rules, err := d.orch.Rules("orders")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, cfg.Monitor.DefaultCooldown, rules[0].Cooldown)

	require.NoError(t, d.orch.RegisterService("billing", []v1.ServiceEndpoint{{Name: "b1", Address: "127.0.0.1:9", Type: v1.ProbeTCP}}))
	d.Close()

	// A second daemon on the same state file sees the API-registered service.
	d, err = buildDaemon(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer d.Close()
	names := []string{}
	for _, s := range d.orch.Services() {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"orders", "billing"}, names)
}

func TestBuildDaemonRejectsBadService(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.State.Enabled = false
	cfg.Services[0].Rules[0].Action = "reboot"

	_, err := buildDaemon(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

// runCmd executes cmd against a daemon served by httptest.
func runCmd(t *testing.T, d *daemon, cfg *config.Config, cmd *cobra.Command, args ...string) error {
	t.Helper()
	srv := httptest.NewServer(d.server.Handler())
	t.Cleanup(srv.Close)

	rt := &Runtime{Config: cfg, Log: logger.Nop(), Flags: GlobalFlags{Server: srv.URL, Timeout: 5 * time.Second, JSONOutput: true}}
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	return cmd.ExecuteContext(NewContext(context.Background(), rt))
}

func TestCommandsDriveTheAPI(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.State.Enabled = false
	d, err := buildDaemon(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, runCmd(t, d, cfg, NewServicesCmd(), "register", "billing",
		"-e", "name=b1,address=127.0.0.1:9,type=tcp,priority=1"))
	_, err = d.orch.Service("billing")
	require.NoError(t, err)

	require.NoError(t, runCmd(t, d, cfg, NewRulesCmd(), "add", "billing",
		"--condition", "service_degraded", "--action", "scale_up", "--threshold", "0.5", "--window", "5m", "-p", "max_replicas=4"))
	rules, err := d.orch.Rules("billing")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "4", rules[0].Params["max_replicas"])

	assert.Error(t, runCmd(t, d, cfg, NewRulesCmd(), "add", "billing", "--condition", "cpu_high", "--action", "scale_up"))

	require.NoError(t, runCmd(t, d, cfg, NewMaintenanceCmd(), "on", "billing"))
	st, err := d.orch.Service("billing")
	require.NoError(t, err)
	assert.True(t, st.Maintenance)

	// --json skips the confirmation prompt.
	require.NoError(t, runCmd(t, d, cfg, NewFailoverCmd(), "orders", "--action", "enable_maintenance_mode"))
	recs, err := d.orch.Failovers("orders")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Manual)

	require.NoError(t, runCmd(t, d, cfg, NewErrorRateCmd(), "orders", "0.3"))
	assert.Error(t, runCmd(t, d, cfg, NewErrorRateCmd(), "orders", "1.5"))

	assert.Error(t, runCmd(t, d, cfg, NewStatusCmd(), "nope"))
}

func TestInitWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	cmd := NewInitCmd()
	cmd.SetArgs([]string{"--path", dir})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(filepath.Join(dir, config.ProjectFile))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigTemplate, string(data))

	cmd = NewInitCmd()
	cmd.SetArgs([]string{"--path", dir})
	assert.Error(t, cmd.Execute())

	_, err = writeTemplate(dir, true)
	assert.NoError(t, err)

	var buf bytes.Buffer
	cmd = NewInitCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--stdout"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, config.DefaultConfigTemplate, buf.String())
}

func TestVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewVersionCmd()
	cmd.Flags().Bool("json", false, "")
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--json"})
	require.NoError(t, cmd.Execute())

	var info versionInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}
