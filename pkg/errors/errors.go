// Package errors defines the error taxonomy shared by the collector, its
// configuration layer and the stress tooling.
package errors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeUnknown      = "UNKNOWN_ERROR"
	CodeVisitBusy    = "VISIT_BUSY"
	CodeUseAfterDrop = "USE_AFTER_DROP"
	CodeInvariant    = "INVARIANT"
	CodeInvalidInput = "INVALID_INPUT"
	CodeConfigError  = "CONFIG_ERROR"
	CodeStressFailed = "STRESS_FAILED"
)

// AppError carries a stable code next to a human readable message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Newf creates an AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Sentinel instances, comparable through errors.Is.
var (
	// ErrVisitBusy is reported by a payload whose lock could not be taken
	// without blocking. The prober treats it as proof of accessibility.
	ErrVisitBusy    = New(CodeVisitBusy, "payload lock unavailable")
	ErrUseAfterDrop = New(CodeUseAfterDrop, "handle used after drop")
	ErrInvariant    = New(CodeInvariant, "collector invariant violated")
	ErrInvalidInput = New(CodeInvalidInput, "invalid input")
	ErrConfigError  = New(CodeConfigError, "configuration error")
	ErrStressFailed = New(CodeStressFailed, "stress run failed")
)

// IsVisitBusy checks if the error reports an unavailable payload lock.
func IsVisitBusy(err error) bool {
	return errors.Is(err, ErrVisitBusy)
}

// IsUseAfterDrop checks if the error reports use of a dropped handle.
func IsUseAfterDrop(err error) bool {
	return errors.Is(err, ErrUseAfterDrop)
}

// IsInvariant checks if the error reports a collector defect.
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant)
}

// IsConfigError checks if the error is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfigError)
}

// IsStressFailed checks if the error comes from a failed stress run.
func IsStressFailed(err error) bool {
	return errors.Is(err, ErrStressFailed)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
