package remediation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/pkg/errs"
)

// Container labels that tie replicas to a service.
const (
	LabelService = "warden.service"
	LabelReplica = "warden.replica"
)

// stopTimeout is the grace period, in seconds, given to a container on restart.
const stopTimeout = 10

// containerAPI is the subset of the Docker Engine API the runtime needs.
type containerAPI interface {
	List(ctx context.Context, service string) ([]types.Container, error)
	Inspect(ctx context.Context, id string) (types.ContainerJSON, error)
	Restart(ctx context.Context, id string) error
	Run(ctx context.Context, cfg *containertypes.Config, host *containertypes.HostConfig, name string) (string, error)
	Remove(ctx context.Context, id string) error
}

// DockerRuntime restarts and scales services whose containers carry the
// warden.service label.
type DockerRuntime struct {
	api containerAPI
	log *logger.Logger
}

// NewDockerRuntime connects to the Docker daemon at host, or the environment
// default when host is empty.
func NewDockerRuntime(host string, log *logger.Logger) (*DockerRuntime, error) {
	opts := []dockerclient.Opt{dockerclient.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, dockerclient.WithHost(host))
	} else {
		opts = append(opts, dockerclient.FromEnv)
	}
	dc, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrDockerConnect, "remediation.docker").
			WithAdvice("check that the Docker daemon is running and DOCKER_HOST is correct")
	}
	return &DockerRuntime{api: &engine{dc: dc}, log: log}, nil
}

// Ping verifies daemon connectivity.
func (d *DockerRuntime) Ping(ctx context.Context) error {
	e, ok := d.api.(*engine)
	if !ok {
		return nil
	}
	if _, err := e.dc.Ping(ctx); err != nil {
		return errs.Wrap(err, errs.ErrDockerConnect, "remediation.docker.ping")
	}
	return nil
}

// Close releases the Docker client.
func (d *DockerRuntime) Close() error {
	if e, ok := d.api.(*engine); ok {
		return e.dc.Close()
	}
	return nil
}

// Restart restarts every running replica of service.
func (d *DockerRuntime) Restart(ctx context.Context, service string) error {
	replicas, err := d.replicas(ctx, service)
	if err != nil {
		return err
	}
	if len(replicas) == 0 {
		return errs.Newf(errs.ErrDockerRestart, "remediation.docker.restart", "no running containers").WithResource(service)
	}
	for _, c := range replicas {
		if err := d.api.Restart(ctx, c.ID); err != nil {
			return errs.Wrap(err, errs.ErrDockerRestart, "remediation.docker.restart").WithResource(shortID(c.ID))
		}
		d.log.Info("container restarted", "service", service, "id", shortID(c.ID))
	}
	return nil
}

// Scale adds replicas by cloning the lowest-numbered one, or removes the
// highest-numbered replicas.
func (d *DockerRuntime) Scale(ctx context.Context, service string, delta int, limits ScaleLimits) error {
	replicas, err := d.replicas(ctx, service)
	if err != nil {
		return err
	}
	current := len(replicas)
	target, ok := limits.clamp(current, delta)
	if !ok {
		return fmt.Errorf("%s: %w (current %d, min %d, max %d)", service, ErrAtScaleLimit, current, limits.Min, limits.Max)
	}
	d.log.Info("scale", "service", service, "current", current, "target", target)

	if target < current {
		for _, c := range replicas[target:] {
			if err := d.api.Remove(ctx, c.ID); err != nil {
				return errs.Wrap(err, errs.ErrDockerRemove, "remediation.docker.scale").WithResource(shortID(c.ID))
			}
			d.log.Info("replica removed", "service", service, "id", shortID(c.ID))
		}
		return nil
	}

	if current == 0 {
		return errs.Newf(errs.ErrDockerRun, "remediation.docker.scale", "no running replica to clone").WithResource(service)
	}
	tmpl, err := d.api.Inspect(ctx, replicas[0].ID)
	if err != nil {
		return errs.Wrap(err, errs.ErrDockerInspect, "remediation.docker.scale").WithResource(shortID(replicas[0].ID))
	}
	if tmpl.ContainerJSONBase == nil || tmpl.Config == nil {
		return errs.Newf(errs.ErrDockerInspect, "remediation.docker.scale", "incomplete inspect data").WithResource(shortID(replicas[0].ID))
	}

	next := highestReplica(replicas) + 1
	for i := current; i < target; i++ {
		cfg := *tmpl.Config
		cfg.Hostname = ""
		cfg.Labels = make(map[string]string, len(tmpl.Config.Labels)+2)
		for k, v := range tmpl.Config.Labels {
			cfg.Labels[k] = v
		}
		cfg.Labels[LabelService] = service
		cfg.Labels[LabelReplica] = strconv.Itoa(next)

		var host containertypes.HostConfig
		if tmpl.HostConfig != nil {
			host = *tmpl.HostConfig
		}
		// Published ports belong to the original replica.
		host.PortBindings = nat.PortMap{}

		name := fmt.Sprintf("%s-%d", service, next)
		id, err := d.api.Run(ctx, &cfg, &host, name)
		if err != nil {
			return errs.Wrap(err, errs.ErrDockerRun, "remediation.docker.scale").WithResource(name)
		}
		d.log.Info("replica started", "service", service, "name", name, "id", shortID(id))
		next++
	}
	return nil
}

// replicas lists running containers of service ordered by replica number.
func (d *DockerRuntime) replicas(ctx context.Context, service string) ([]types.Container, error) {
	list, err := d.api.List(ctx, service)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrDockerConnect, "remediation.docker.list").WithResource(service)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return replicaNumber(list[i]) < replicaNumber(list[j])
	})
	return list, nil
}

func replicaNumber(c types.Container) int {
	n, err := strconv.Atoi(c.Labels[LabelReplica])
	if err != nil {
		return 0
	}
	return n
}

func highestReplica(list []types.Container) int {
	highest := len(list)
	for _, c := range list {
		if n := replicaNumber(c); n > highest {
			highest = n
		}
	}
	return highest
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// engine adapts the Docker client to containerAPI.
type engine struct {
	dc *dockerclient.Client
}

func (e *engine) List(ctx context.Context, service string) ([]types.Container, error) {
	f := filters.NewArgs()
	f.Add("label", LabelService+"="+service)
	f.Add("status", "running")
	return e.dc.ContainerList(ctx, containertypes.ListOptions{Filters: f})
}

func (e *engine) Inspect(ctx context.Context, id string) (types.ContainerJSON, error) {
	return e.dc.ContainerInspect(ctx, id)
}

func (e *engine) Restart(ctx context.Context, id string) error {
	timeout := stopTimeout
	return e.dc.ContainerRestart(ctx, id, containertypes.StopOptions{Timeout: &timeout})
}

func (e *engine) Run(ctx context.Context, cfg *containertypes.Config, host *containertypes.HostConfig, name string) (string, error) {
	resp, err := e.dc.ContainerCreate(ctx, cfg, host, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("container create %q: %w", name, err)
	}
	if err := e.dc.ContainerStart(ctx, resp.ID, containertypes.StartOptions{}); err != nil {
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = e.dc.ContainerRemove(rmCtx, resp.ID, containertypes.RemoveOptions{Force: true})
		return "", fmt.Errorf("container start %q: %w", shortID(resp.ID), err)
	}
	return resp.ID, nil
}

func (e *engine) Remove(ctx context.Context, id string) error {
	return e.dc.ContainerRemove(ctx, id, containertypes.RemoveOptions{Force: true})
}
