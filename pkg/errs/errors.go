// Package errs provides structured, user-friendly errors with machine-parseable codes.
package errs

import (
	"errors"
	"fmt"
)

// ErrorCode is a machine-parseable error identifier.
type ErrorCode string

const (
	// General
	ErrUnknown    ErrorCode = "ERR-000"
	ErrInternal   ErrorCode = "ERR-001"
	ErrConfig     ErrorCode = "ERR-002"
	ErrValidation ErrorCode = "ERR-003"

	// Service errors
	ErrServiceNotFound ErrorCode = "ERR-SVC-001"
	ErrNoEndpoints     ErrorCode = "ERR-SVC-002"
	ErrNoActive        ErrorCode = "ERR-SVC-003"

	// Rule errors
	ErrRuleInvalid    ErrorCode = "ERR-RULE-001"
	ErrNoErrorRateSrc ErrorCode = "ERR-RULE-002"

	// Remediation errors
	ErrRemediation      ErrorCode = "ERR-REM-001"
	ErrUnknownAction    ErrorCode = "ERR-REM-002"
	ErrRemediationParam ErrorCode = "ERR-REM-003"

	// Docker errors
	ErrDockerConnect ErrorCode = "ERR-DOCKER-001"
	ErrDockerRun     ErrorCode = "ERR-DOCKER-003"
	ErrDockerRemove  ErrorCode = "ERR-DOCKER-004"
	ErrDockerInspect ErrorCode = "ERR-DOCKER-005"
	ErrDockerRestart ErrorCode = "ERR-DOCKER-006"

	// Node errors
	ErrNodeNotFound ErrorCode = "ERR-NODE-001"
	ErrNodeConnect  ErrorCode = "ERR-NODE-002"
	ErrNodeCommand  ErrorCode = "ERR-NODE-003"

	// State errors
	ErrStateRead  ErrorCode = "ERR-STATE-001"
	ErrStateWrite ErrorCode = "ERR-STATE-002"
)

// WardenError is the standard structured error type used across all Warden packages.
type WardenError struct {
	Code     ErrorCode // Machine-parseable error code
	Op       string    // Operation chain, e.g., "orchestrator.register"
	Resource string    // Resource identifier (service, endpoint, node)
	Cause    error     // Wrapped upstream error
	Advice   string    // Human-readable remediation hint
}

func (e *WardenError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (%s): %v", e.Code, e.Op, e.Resource, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Op, e.Cause)
}

func (e *WardenError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the formatted user-facing error message with remediation advice.
func (e *WardenError) UserMessage() string {
	msg := fmt.Sprintf("%s: %v", e.Code, e.Cause)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource: %s)", e.Resource)
	}
	if e.Advice != "" {
		msg += fmt.Sprintf("\n  → %s", e.Advice)
	}
	return msg
}

// New creates a new WardenError.
func New(code ErrorCode, op string, cause error) *WardenError {
	return &WardenError{Code: code, Op: op, Cause: cause}
}

// Newf creates a new WardenError with a formatted message as the cause.
func Newf(code ErrorCode, op, format string, args ...any) *WardenError {
	return &WardenError{Code: code, Op: op, Cause: fmt.Errorf(format, args...)}
}

// WithResource sets the resource identifier on a WardenError.
func (e *WardenError) WithResource(name string) *WardenError {
	e.Resource = name
	return e
}

// WithAdvice sets the human-readable remediation hint on a WardenError.
func (e *WardenError) WithAdvice(advice string) *WardenError {
	e.Advice = advice
	return e
}

// Wrap wraps an existing error as a WardenError at a new operation boundary.
func Wrap(err error, code ErrorCode, op string) *WardenError {
	if err == nil {
		return nil
	}
	return &WardenError{Code: code, Op: op, Cause: err}
}

// IsCode reports whether err is a WardenError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var we *WardenError
	if errors.As(err, &we) {
		return we.Code == code
	}
	return false
}

// AsWarden extracts the *WardenError from err, or returns nil.
func AsWarden(err error) *WardenError {
	var we *WardenError
	if errors.As(err, &we) {
		return we
	}
	return nil
}

// CodeOf returns the code of the outermost WardenError in err, or ErrUnknown.
func CodeOf(err error) ErrorCode {
	if we := AsWarden(err); we != nil {
		return we.Code
	}
	return ErrUnknown
}
