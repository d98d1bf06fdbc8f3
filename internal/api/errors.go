package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/f9-o/warden/pkg/errs"
)

// statusOf maps an error to its HTTP status and client-facing message.
func statusOf(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message)
	}

	msg := err.Error()
	if we := errs.AsWarden(err); we != nil {
		msg = we.UserMessage()
	}
	switch errs.CodeOf(err) {
	case errs.ErrValidation, errs.ErrNoEndpoints, errs.ErrRuleInvalid,
		errs.ErrNoErrorRateSrc, errs.ErrUnknownAction, errs.ErrRemediationParam:
		return http.StatusBadRequest, msg
	case errs.ErrServiceNotFound:
		return http.StatusNotFound, msg
	default:
		return http.StatusInternalServerError, msg
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("api request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, Response{Code: status, Message: msg})
	}
	if err != nil {
		s.log.Warn("write error response", "err", err)
	}
}

func badRequest(format string, args ...any) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}
