// Package config provides the Warden configuration loader.
// Config is loaded by merging defaults → ~/.warden/config.yaml → warden.yaml → WARDEN_* env vars.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/breaker"
	"github.com/f9-o/warden/pkg/netutil"
)

// ProjectFile is the project manifest discovered upward from the working directory.
const ProjectFile = "warden.yaml"

// Remediation backends.
const (
	BackendNone   = "none"
	BackendDocker = "docker"
	BackendSSH    = "ssh"
)

// Error-rate sources.
const (
	ErrorRateStatic     = "static"
	ErrorRatePrometheus = "prometheus"
)

// Defaults contains factory-default values applied before any config file is loaded.
var Defaults = map[string]any{
	"log.level":                   "info",
	"log.format":                  "text",
	"log.file":                    "",
	"server.addr":                 "127.0.0.1:7070",
	"server.read_timeout":         "10s",
	"server.write_timeout":        "2m",
	"server.failover_interval":    "5s",
	"server.failover_burst":       3,
	"monitor.health_interval":     "30s",
	"monitor.rule_interval":       "60s",
	"monitor.remediation_timeout": "60s",
	"monitor.history_capacity":    100,
	"monitor.default_cooldown":    "5m",
	"monitor.endpoint_breakers":   true,
	"breaker.failure_threshold":   5,
	"breaker.recovery_timeout":    "60s",
	"breaker.half_open_max_calls": 3,
	"breaker.call_timeout":        "10s",
	"state.enabled":               true,
	"state.path":                  "",
	"state.max_failovers":         1000,
	"audit.enabled":               true,
	"audit.path":                  "",
	"plugins.enabled":             false,
	"plugins.dir":                 "",
	"remediation.backend":         BackendNone,
	"remediation.docker_host":     "",
	"error_rate.source":           ErrorRateStatic,
	"error_rate.url":              "",
	"error_rate.query":            "",
	"error_rate.timeout":          "10s",
}

// ─────────────────────────────────────────────────────────────────────────────
// Config types
// ─────────────────────────────────────────────────────────────────────────────

// Config is the fully-decoded configuration.
type Config struct {
	Version     string            `mapstructure:"version"`
	Log         LogConfig         `mapstructure:"log"`
	Server      ServerConfig      `mapstructure:"server"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Breaker     breaker.Config    `mapstructure:"breaker"`
	State       StateConfig       `mapstructure:"state"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Plugins     PluginsConfig     `mapstructure:"plugins"`
	Remediation RemediationConfig `mapstructure:"remediation"`
	ErrorRate   ErrorRateConfig   `mapstructure:"error_rate"`
	Nodes       []v1.NodeSpec     `mapstructure:"nodes"`
	Services    []v1.ServiceSpec  `mapstructure:"services"`
}

// LogConfig controls logging behaviour.
type LogConfig struct {
	Level  string `mapstructure:"level"` // debug | info | warn | error
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"` // json | text
}

// ServerConfig configures the control API listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// FailoverInterval and FailoverBurst rate-limit manual failovers per
	// service. A zero interval disables the limit.
	FailoverInterval time.Duration `mapstructure:"failover_interval"`
	FailoverBurst    int           `mapstructure:"failover_burst"`
}

// MonitorConfig sets the loop periods and remediation bounds.
type MonitorConfig struct {
	HealthInterval     time.Duration `mapstructure:"health_interval"`
	RuleInterval       time.Duration `mapstructure:"rule_interval"`
	RemediationTimeout time.Duration `mapstructure:"remediation_timeout"`
	HistoryCapacity    int           `mapstructure:"history_capacity"`
	DefaultCooldown    time.Duration `mapstructure:"default_cooldown"`
	EndpointBreakers   bool          `mapstructure:"endpoint_breakers"`
}

// StateConfig controls the BoltDB state file.
type StateConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Path         string `mapstructure:"path"`
	MaxFailovers int    `mapstructure:"max_failovers"`
}

// AuditConfig controls the JSON-line audit log.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// PluginsConfig controls shared-object plugin loading.
type PluginsConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Dir     string            `mapstructure:"dir"`
	Config  map[string]string `mapstructure:"config"`
}

// RemediationConfig selects how restart and scale actions are carried out.
type RemediationConfig struct {
	Backend    string      `mapstructure:"backend"` // none | docker | ssh
	DockerHost string      `mapstructure:"docker_host"`
	SSH        SSHCommands `mapstructure:"ssh"`
}

// SSHCommands overrides the remote command templates of the ssh backend.
type SSHCommands struct {
	Restart string `mapstructure:"restart"`
	Count   string `mapstructure:"count"`
	Scale   string `mapstructure:"scale"`
}

// ErrorRateConfig selects the source used by high_error_rate rules.
type ErrorRateConfig struct {
	Source  string        `mapstructure:"source"` // static | prometheus
	URL     string        `mapstructure:"url"`
	Query   string        `mapstructure:"query"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Loader
// ─────────────────────────────────────────────────────────────────────────────

// Load discovers and loads the configuration, walking up directories to find
// warden.yaml, then merging it with the global config and environment variables.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()

	for k, val := range Defaults {
		v.SetDefault(k, val)
	}

	// WARDEN_SERVER_ADDR → server.addr
	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	globalCfg := filepath.Join(Home(), "config.yaml")
	if _, err := os.Stat(globalCfg); err == nil {
		v.SetConfigFile(globalCfg)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	projectCfg := explicitPath
	if projectCfg == "" {
		if path, err := discoverProjectConfig(); err == nil {
			projectCfg = path
		}
	}
	if projectCfg != "" {
		v.SetConfigFile(projectCfg)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read project config %q: %w", projectCfg, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	expandPaths(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// ServiceByName returns the ServiceSpec with the given name, or nil.
func (c *Config) ServiceByName(name string) *v1.ServiceSpec {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return &c.Services[i]
		}
	}
	return nil
}

// NodeByName returns the NodeSpec with the given name, or nil.
func (c *Config) NodeByName(name string) *v1.NodeSpec {
	for i := range c.Nodes {
		if c.Nodes[i].Name == name {
			return &c.Nodes[i]
		}
	}
	return nil
}

// ServiceNodes maps each service that names a node to that node's spec.
func (c *Config) ServiceNodes() map[string]v1.NodeSpec {
	out := make(map[string]v1.NodeSpec)
	for _, svc := range c.Services {
		if svc.Node == "" {
			continue
		}
		if n := c.NodeByName(svc.Node); n != nil {
			out[svc.Name] = *n
		}
	}
	return out
}

// StatePath is the state DB location, defaulting to ~/.warden/state.db.
func (c *Config) StatePath() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	return filepath.Join(Home(), "state.db")
}

// AuditPath is the audit log location, or "" when auditing is disabled.
func (c *Config) AuditPath() string {
	if !c.Audit.Enabled {
		return ""
	}
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	return filepath.Join(Home(), "audit.log")
}

// PluginsDir is the directory scanned for .so plugins.
func (c *Config) PluginsDir() string {
	if c.Plugins.Dir != "" {
		return c.Plugins.Dir
	}
	return filepath.Join(Home(), "plugins")
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// discoverProjectConfig walks up from the CWD looking for warden.yaml.
func discoverProjectConfig() (string, error) {
	start, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := start; ; {
		candidate := filepath.Join(dir, ProjectFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%s not found (searched up from %s)", ProjectFile, start)
}

// expandPaths resolves ~ and ${VAR} in file paths.
func expandPaths(cfg *Config) {
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.State.Path = expandPath(cfg.State.Path)
	cfg.Audit.Path = expandPath(cfg.Audit.Path)
	cfg.Plugins.Dir = expandPath(cfg.Plugins.Dir)
	for i := range cfg.Nodes {
		cfg.Nodes[i].Key = expandPath(cfg.Nodes[i].Key)
		cfg.Nodes[i].KnownHosts = expandPath(cfg.Nodes[i].KnownHosts)
	}
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// validate performs semantic validation on the loaded config. Endpoint and
// rule details are validated again when services are registered.
func validate(cfg *Config) error {
	m := cfg.Monitor
	if m.HealthInterval <= 0 || m.RuleInterval <= 0 || m.RemediationTimeout <= 0 {
		return fmt.Errorf("monitor intervals and remediation_timeout must be positive")
	}
	if m.HistoryCapacity < 1 {
		return fmt.Errorf("monitor.history_capacity must be >= 1")
	}
	if m.DefaultCooldown < 0 {
		return fmt.Errorf("monitor.default_cooldown must not be negative")
	}
	if err := cfg.Breaker.Validate(); err != nil {
		return fmt.Errorf("breaker: %w", err)
	}
	if cfg.Server.FailoverInterval < 0 || cfg.Server.FailoverBurst < 0 {
		return fmt.Errorf("server.failover_interval and server.failover_burst must not be negative")
	}

	switch cfg.Remediation.Backend {
	case BackendNone, BackendDocker, BackendSSH:
	default:
		return fmt.Errorf("remediation.backend must be none, docker or ssh, got %q", cfg.Remediation.Backend)
	}
	switch cfg.ErrorRate.Source {
	case ErrorRateStatic:
	case ErrorRatePrometheus:
		if cfg.ErrorRate.URL == "" {
			return fmt.Errorf("error_rate.url is required for the prometheus source")
		}
	default:
		return fmt.Errorf("error_rate.source must be static or prometheus, got %q", cfg.ErrorRate.Source)
	}

	nodes := map[string]bool{}
	for _, n := range cfg.Nodes {
		if n.Name == "" || n.Host == "" {
			return fmt.Errorf("nodes need a name and a host")
		}
		if nodes[n.Name] {
			return fmt.Errorf("duplicate node name: %q", n.Name)
		}
		nodes[n.Name] = true
	}

	seen := map[string]bool{}
	for _, svc := range cfg.Services {
		if !netutil.IsValidServiceName(svc.Name) {
			return fmt.Errorf("service name %q must be a lowercase DNS label", svc.Name)
		}
		if seen[svc.Name] {
			return fmt.Errorf("duplicate service name: %q", svc.Name)
		}
		seen[svc.Name] = true
		if len(svc.Endpoints) == 0 {
			return fmt.Errorf("service %q: at least one endpoint is required", svc.Name)
		}
		if svc.Node != "" && !nodes[svc.Node] {
			return fmt.Errorf("service %q: unknown node %q", svc.Name, svc.Node)
		}
		if cfg.Remediation.Backend == BackendSSH && svc.Node == "" {
			return fmt.Errorf("service %q: the ssh backend needs a node", svc.Name)
		}
	}
	return nil
}

// Home returns the Warden home directory (~/.warden).
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warden"
	}
	return filepath.Join(home, ".warden")
}

// DefaultConfigTemplate is the content written by `warden init`.
const DefaultConfigTemplate = `# warden.yaml: health-driven failover manifest
version: "1"

server:
  addr: 127.0.0.1:7070

monitor:
  health_interval: 30s
  rule_interval: 60s
  remediation_timeout: 60s
  default_cooldown: 5m

breaker:
  failure_threshold: 5
  recovery_timeout: 60s
  half_open_max_calls: 3
  call_timeout: 10s

remediation:
  backend: docker   # none | docker | ssh

# nodes:
#   - name: prod-01
#     host: 192.168.1.10
#     user: deploy
#     key: ~/.ssh/warden_ed25519
#     known_hosts: ~/.ssh/known_hosts

services:
  - name: orders
    endpoints:
      - name: primary
        address: http://10.0.0.11:8080
        health_path: /healthz
        timeout: 5s
        primary: true
        priority: 1
      - name: standby
        address: http://10.0.0.12:8080
        health_path: /healthz
        timeout: 5s
        priority: 2
    rules:
      - service: orders
        condition: service_failed
        action: restart_service
        time_window: 2m
        cooldown: 5m
        max_attempts: 3
      - service: orders
        condition: service_degraded
        action: scale_up
        threshold: 0.5
        time_window: 5m
        cooldown: 10m
        params:
          max_replicas: "6"
`
