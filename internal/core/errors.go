// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps a formatted cause in base.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Predefined errors
var (
	// Rule document errors
	ErrDSLInvalid            = &Error{Code: "DSL_INVALID", Message: "strategy document invalid"}
	ErrDSLUnsupportedVersion = &Error{Code: "DSL_UNSUPPORTED_VERSION", Message: "unsupported schema version"}
	ErrDSLReadFailed         = &Error{Code: "DSL_READ_FAILED", Message: "strategy document unreadable"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// Ensemble errors
	ErrEnsembleWeights = &Error{Code: "ENSEMBLE_WEIGHTS_INVALID", Message: "ensemble weights invalid"}

	// Pipeline errors
	ErrSnapshotOutOfOrder = &Error{Code: "SNAPSHOT_OUT_OF_ORDER", Message: "snapshot older than last accepted"}

	// Sink errors
	ErrSinkFailed = &Error{Code: "SINK_FAILED", Message: "sink delivery failed"}
)
