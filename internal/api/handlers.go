package api

import (
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/remediation"
	"github.com/f9-o/warden/pkg/errs"
)

func ok(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Response{Code: status, Message: message, Data: data})
}

func (s *Server) healthz(c echo.Context) error {
	return ok(c, http.StatusOK, "ok", map[string]any{"time": time.Now().UTC()})
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.backend.Status())
}

func (s *Server) registerService(c echo.Context) error {
	var body ServiceBody
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if len(body.Rules) > 0 {
		return badRequest("add rules through POST /services/%s/rules", body.Name)
	}
	eps := make([]v1.ServiceEndpoint, 0, len(body.Endpoints))
	for _, b := range body.Endpoints {
		ep, err := b.Endpoint()
		if err != nil {
			return badRequest("endpoint %q: %v", b.Name, err)
		}
		eps = append(eps, ep)
	}
	if err := s.backend.RegisterService(body.Name, eps); err != nil {
		return err
	}
	st, err := s.backend.Service(body.Name)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, "service registered", st)
}

func (s *Server) listServices(c echo.Context) error {
	specs := s.backend.Services()
	out := make([]ServiceBody, 0, len(specs))
	for _, spec := range specs {
		out = append(out, NewServiceBody(spec))
	}
	return ok(c, http.StatusOK, "ok", out)
}

func (s *Server) getService(c echo.Context) error {
	st, err := s.backend.Service(c.Param("name"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "ok", st)
}

func (s *Server) addRule(c echo.Context) error {
	name := c.Param("name")
	var body RuleBody
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if body.Service != "" && body.Service != name {
		return badRequest("rule service %q does not match path %q", body.Service, name)
	}
	body.Service = name
	rule, err := body.Rule()
	if err != nil {
		return badRequest("%v", err)
	}
	if err := s.backend.AddRule(rule); err != nil {
		return err
	}
	rules, err := s.backend.Rules(name)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, "rule added", NewRuleBody(rules[len(rules)-1]))
}

func (s *Server) listRules(c echo.Context) error {
	rules, err := s.backend.Rules(c.Param("name"))
	if err != nil {
		return err
	}
	out := make([]RuleBody, 0, len(rules))
	for _, r := range rules {
		out = append(out, NewRuleBody(r))
	}
	return ok(c, http.StatusOK, "ok", out)
}

func (s *Server) failover(c echo.Context) error {
	name := c.Param("name")
	var body FailoverBody
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if !body.Action.Valid() {
		return badRequest("unknown action %q", body.Action)
	}
	if body.Action == v1.ActionScaleUp || body.Action == v1.ActionScaleDown {
		if _, _, err := remediation.ParseScaleParams(body.Params); err != nil {
			return err
		}
	}
	if _, err := s.backend.Service(name); err != nil {
		return err
	}
	if !s.allowFailover(name) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "manual failover rate limit exceeded for "+name)
	}

	rec, err := s.backend.ManualFailover(c.Request().Context(), name, body.Action, body.Params)
	if err != nil {
		if rec.ID == "" {
			return err
		}
		status, msg := statusOf(err)
		return c.JSON(status, Response{Code: status, Message: msg, Data: rec})
	}
	return ok(c, http.StatusOK, "failover executed", rec)
}

func (s *Server) listFailovers(c echo.Context) error {
	recs, err := s.backend.Failovers(c.Param("name"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "ok", recs)
}

func (s *Server) history(c echo.Context) error {
	window, err := parseDuration("window", c.QueryParam("window"))
	if err != nil {
		return badRequest("%v", err)
	}
	samples, err := s.backend.History(c.Param("name"), window)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "ok", samples)
}

func (s *Server) enableMaintenance(c echo.Context) error {
	name := c.Param("name")
	changed, err := s.backend.EnableMaintenance(name)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "maintenance enabled", MaintenanceReply{Service: name, Maintenance: true, Changed: changed})
}

func (s *Server) disableMaintenance(c echo.Context) error {
	name := c.Param("name")
	changed, err := s.backend.DisableMaintenance(name)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "maintenance disabled", MaintenanceReply{Service: name, Maintenance: false, Changed: changed})
}

func (s *Server) setErrorRate(c echo.Context) error {
	name := c.Param("name")
	if s.rates == nil {
		return errs.Newf(errs.ErrNoErrorRateSrc, "api.error_rate", "error rates are not settable with the configured source").
			WithResource(name)
	}
	if _, err := s.backend.Service(name); err != nil {
		return err
	}
	var body ErrorRateBody
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if body.Rate == nil || math.IsNaN(*body.Rate) {
		return badRequest("rate is required")
	}
	if err := s.rates.Set(name, *body.Rate); err != nil {
		return badRequest("%v", err)
	}
	return ok(c, http.StatusOK, "error rate updated", map[string]any{"service": name, "rate": *body.Rate})
}
