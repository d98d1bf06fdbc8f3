// warden serve: run the failover orchestrator and its control API.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/f9-o/warden/internal/api"
	"github.com/f9-o/warden/internal/balancer"
	"github.com/f9-o/warden/internal/core/config"
	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/internal/core/plugin"
	"github.com/f9-o/warden/internal/core/state"
	"github.com/f9-o/warden/internal/failover"
	"github.com/f9-o/warden/internal/metrics"
	"github.com/f9-o/warden/internal/notify"
	"github.com/f9-o/warden/internal/orchestrator"
	"github.com/f9-o/warden/internal/remediation"
	"github.com/f9-o/warden/internal/remote"
	"github.com/f9-o/warden/pkg/pprint"
)

// AnnotationAudit marks commands that write the failover audit log.
const AnnotationAudit = "warden/audit"

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the health and rule loops and serve the control API",
		Long: `Starts the orchestrator: endpoints are probed every monitor.health_interval,
failover rules are evaluated every monitor.rule_interval, and the control API
listens on server.addr until SIGINT or SIGTERM.`,
		Example: `  warden serve
  warden serve -c ./warden.yaml --debug`,
		Annotations:  map[string]string{AnnotationAudit: "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := buildDaemon(ctx, rt.Config, rt.Log)
			if err != nil {
				return err
			}
			defer d.Close()

			if !rt.Flags.JSONOutput {
				pprint.PrintBannerSmall()
				fmt.Printf("serving %d service(s) on %s\n", len(d.orch.Services()), rt.Config.Server.Addr)
			}
			return d.Run(ctx)
		},
	}
}

// daemon is everything `warden serve` wires together.
type daemon struct {
	log    *logger.Logger
	orch   *orchestrator.Orchestrator
	server *api.Server

	db        *state.DB
	plugins   *plugin.Host
	pool      *remote.Pool
	heartbeat *remote.Heartbeat
	docker    *remediation.DockerRuntime
}

// buildDaemon constructs the orchestrator and API server from cfg. Persisted
// state is restored first, then the services in cfg are applied over it.
func buildDaemon(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *daemon, err error) {
	d := &daemon{log: log}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	recorder := metrics.NewRecorder()
	sel := balancer.NewSelector(log)

	rt, err := d.runtime(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := orchestrator.Deps{
		Executor: remediation.NewExecutor(rt, sel, log),
		Selector: sel,
		Metrics:  recorder,
		Log:      log,
	}

	var apiOpts []api.Option
	switch cfg.ErrorRate.Source {
	case config.ErrorRatePrometheus:
		prom, err := failover.NewPrometheusErrorRate(cfg.ErrorRate.URL, cfg.ErrorRate.Query, cfg.ErrorRate.Timeout, log)
		if err != nil {
			return nil, fmt.Errorf("error-rate source: %w", err)
		}
		deps.ErrorRates = prom
	default:
		static := failover.NewStaticErrorRates()
		deps.ErrorRates = static
		apiOpts = append(apiOpts, api.WithErrorRates(static))
	}

	sinks := notify.Multi{notify.LogSink{Log: log}}
	if cfg.Plugins.Enabled {
		d.plugins = plugin.NewHost(log)
		if err := d.plugins.LoadDir(cfg.PluginsDir(), cfg.Plugins.Config); err != nil {
			log.Warn("plugins not loaded", "dir", cfg.PluginsDir(), "err", err)
		}
		sinks = append(sinks, d.plugins)
		deps.Listener = d.plugins
	}
	deps.Sink = sinks

	if cfg.State.Enabled {
		path := cfg.StatePath()
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		if d.db, err = state.Open(path, cfg.State.MaxFailovers); err != nil {
			return nil, err
		}
		deps.Store = d.db
	}

	d.orch, err = orchestrator.New(orchestrator.Config{
		HealthInterval:     cfg.Monitor.HealthInterval,
		RuleInterval:       cfg.Monitor.RuleInterval,
		RemediationTimeout: cfg.Monitor.RemediationTimeout,
		HistoryCapacity:    cfg.Monitor.HistoryCapacity,
		DefaultCooldown:    cfg.Monitor.DefaultCooldown,
		Breaker:            cfg.Breaker,
		EndpointBreakers:   cfg.Monitor.EndpointBreakers,
	}, deps)
	if err != nil {
		return nil, err
	}

	if d.db != nil {
		if err := d.orch.Restore(d.db); err != nil {
			return nil, fmt.Errorf("restore state: %w", err)
		}
	}
	for _, svc := range cfg.Services {
		if err := d.orch.Apply(svc); err != nil {
			return nil, fmt.Errorf("service %q: %w", svc.Name, err)
		}
	}

	apiOpts = append(apiOpts,
		api.WithMetrics(recorder.Handler()),
		api.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		api.WithFailoverLimit(cfg.Server.FailoverInterval, cfg.Server.FailoverBurst),
	)
	d.server = api.NewServer(cfg.Server.Addr, d.orch, log, apiOpts...)
	return d, nil
}

// runtime selects the backend that restarts and scales services.
func (d *daemon) runtime(ctx context.Context, cfg *config.Config) (remediation.Runtime, error) {
	switch cfg.Remediation.Backend {
	case config.BackendDocker:
		docker, err := remediation.NewDockerRuntime(cfg.Remediation.DockerHost, d.log)
		if err != nil {
			return nil, err
		}
		d.docker = docker
		if err := docker.Ping(ctx); err != nil {
			return nil, err
		}
		return docker, nil

	case config.BackendSSH:
		d.pool = remote.NewPool(d.log)
		d.heartbeat = remote.NewHeartbeat(d.pool, remote.HeartbeatInterval, d.log)
		for _, n := range cfg.Nodes {
			d.heartbeat.Watch(n)
		}
		return remediation.NewSSHRuntime(d.pool, cfg.ServiceNodes(),
			remediation.SSHCommands(cfg.Remediation.SSH), d.log,
			remediation.WithReachability(d.heartbeat.Reachable))

	default:
		return remediation.NoopRuntime{Log: d.log}, nil
	}
}

// Run starts the loops and serves the API until ctx is cancelled.
func (d *daemon) Run(ctx context.Context) error {
	if err := d.orch.Start(ctx); err != nil {
		return err
	}
	defer d.orch.Stop()

	if err := d.server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// Close releases everything buildDaemon opened. Safe on a partial daemon.
func (d *daemon) Close() {
	if d.heartbeat != nil {
		d.heartbeat.Stop()
	}
	if d.pool != nil {
		d.pool.Close()
	}
	if d.docker != nil {
		if err := d.docker.Close(); err != nil {
			d.log.Warn("docker client close", "err", err)
		}
	}
	if d.plugins != nil {
		d.plugins.Shutdown()
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.log.Warn("state db close", "err", err)
		}
	}
}
