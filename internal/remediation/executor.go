// Package remediation carries out failover actions against the runtime hosting a service.
package remediation

import (
	"context"
	"errors"
	"time"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/pkg/errs"
)

// Request describes one remediation to perform.
type Request struct {
	Service string
	Action  v1.Action
	Params  map[string]string
}

// Remedy performs a single kind of action.
type Remedy interface {
	Execute(ctx context.Context, req Request) error
}

// RemedyFunc adapts a function to Remedy.
type RemedyFunc func(ctx context.Context, req Request) error

// Execute calls f.
func (f RemedyFunc) Execute(ctx context.Context, req Request) error { return f(ctx, req) }

// TrafficController steers traffic between a service's endpoints.
// *balancer.Selector satisfies it.
type TrafficController interface {
	SwitchTraffic(service string) (string, error)
	EnableMaintenanceMode(service string) bool
}

// Executor dispatches each action to its Remedy.
type Executor struct {
	restart     Remedy
	scaleUp     Remedy
	scaleDown   Remedy
	switchOver  Remedy
	maintenance Remedy
	log         *logger.Logger
}

// NewExecutor wires restart and scale actions to rt and traffic actions to tc.
func NewExecutor(rt Runtime, tc TrafficController, log *logger.Logger) *Executor {
	return &Executor{
		restart:     restartRemedy{rt: rt},
		scaleUp:     scaleRemedy{rt: rt, direction: 1},
		scaleDown:   scaleRemedy{rt: rt, direction: -1},
		switchOver:  switchRemedy{tc: tc, log: log},
		maintenance: maintenanceRemedy{tc: tc, log: log},
		log:         log,
	}
}

// remedy selects the implementation for action.
func (e *Executor) remedy(action v1.Action) (Remedy, error) {
	switch action {
	case v1.ActionRestartService:
		return e.restart, nil
	case v1.ActionScaleUp:
		return e.scaleUp, nil
	case v1.ActionScaleDown:
		return e.scaleDown, nil
	case v1.ActionSwitchTraffic:
		return e.switchOver, nil
	case v1.ActionEnableMaintenance:
		return e.maintenance, nil
	default:
		return nil, errs.Newf(errs.ErrUnknownAction, "remediation.execute", "unknown action %q", action).
			WithAdvice("valid actions: restart_service, scale_up, scale_down, switch_traffic, enable_maintenance_mode")
	}
}

// Execute performs action on service and reports whether it succeeded.
func (e *Executor) Execute(ctx context.Context, action v1.Action, service string, params map[string]string) (bool, error) {
	r, err := e.remedy(action)
	if err != nil {
		return false, err
	}

	start := time.Now()
	err = r.Execute(ctx, Request{Service: service, Action: action, Params: params})
	if err != nil {
		e.log.Warn("remediation failed", "service", service, "action", action, "err", err)
		var we *errs.WardenError
		if errors.As(err, &we) {
			return false, err
		}
		return false, errs.Wrap(err, errs.ErrRemediation, "remediation."+string(action)).WithResource(service)
	}
	e.log.Info("remediation succeeded", "service", service, "action", action, "took", time.Since(start))
	return true, nil
}
