package remediation

import (
	"context"
	"strconv"

	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/pkg/errs"
)

// Scale parameters accepted in rule and manual failover params.
const (
	ParamStep        = "step"
	ParamMinReplicas = "min_replicas"
	ParamMaxReplicas = "max_replicas"
)

type restartRemedy struct{ rt Runtime }

func (r restartRemedy) Execute(ctx context.Context, req Request) error {
	return r.rt.Restart(ctx, req.Service)
}

type scaleRemedy struct {
	rt        Runtime
	direction int
}

func (r scaleRemedy) Execute(ctx context.Context, req Request) error {
	step, limits, err := ParseScaleParams(req.Params)
	if err != nil {
		return errs.Wrap(err, errs.ErrRemediationParam, "remediation."+string(req.Action)).WithResource(req.Service)
	}
	return r.rt.Scale(ctx, req.Service, r.direction*step, limits)
}

// ParseScaleParams reads step (default 1), min_replicas (default 1) and
// max_replicas (default 0, unbounded) from params.
func ParseScaleParams(params map[string]string) (int, ScaleLimits, error) {
	step, err := intParam(params, ParamStep, 1)
	if err != nil {
		return 0, ScaleLimits{}, err
	}
	minR, err := intParam(params, ParamMinReplicas, 1)
	if err != nil {
		return 0, ScaleLimits{}, err
	}
	maxR, err := intParam(params, ParamMaxReplicas, 0)
	if err != nil {
		return 0, ScaleLimits{}, err
	}
	switch {
	case step < 1:
		return 0, ScaleLimits{}, errs.Newf(errs.ErrRemediationParam, "remediation.params", "%s must be >= 1, got %d", ParamStep, step)
	case minR < 0:
		return 0, ScaleLimits{}, errs.Newf(errs.ErrRemediationParam, "remediation.params", "%s must be >= 0, got %d", ParamMinReplicas, minR)
	case maxR < 0 || (maxR > 0 && maxR < minR):
		return 0, ScaleLimits{}, errs.Newf(errs.ErrRemediationParam, "remediation.params", "%s must be 0 or >= %s", ParamMaxReplicas, ParamMinReplicas)
	}
	return step, ScaleLimits{Min: minR, Max: maxR}, nil
}

func intParam(params map[string]string, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Newf(errs.ErrRemediationParam, "remediation.params", "%s: %q is not an integer", key, raw)
	}
	return n, nil
}

type switchRemedy struct {
	tc  TrafficController
	log *logger.Logger
}

func (r switchRemedy) Execute(_ context.Context, req Request) error {
	drained, err := r.tc.SwitchTraffic(req.Service)
	if err != nil {
		return err
	}
	r.log.Info("traffic switched", "service", req.Service, "drained", drained)
	return nil
}

type maintenanceRemedy struct {
	tc  TrafficController
	log *logger.Logger
}

func (r maintenanceRemedy) Execute(_ context.Context, req Request) error {
	if !r.tc.EnableMaintenanceMode(req.Service) {
		r.log.Debug("service already in maintenance", "service", req.Service)
	}
	return nil
}
