// Package errors defines coded error types shared by the scanner and its tooling.
package errors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeAllocExhausted     = "ALLOC_EXHAUSTED"
	CodeRecursionDepth     = "RECURSION_DEPTH"
	CodeLayoutNotFinalized = "LAYOUT_NOT_FINALIZED"
	CodeThreadStaticField  = "THREAD_STATIC_FIELD"
	CodeSessionClosed      = "SESSION_CLOSED"
	CodeNotFinalized       = "NOT_FINALIZED"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeParseError         = "PARSE_ERROR"
	CodeConfigError        = "CONFIG_ERROR"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeUploadError        = "UPLOAD_ERROR"
	CodeDownloadError      = "DOWNLOAD_ERROR"
)

// AppError represents an application error with a code and message.
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

// Is reports whether target carries the same code.
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

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances, usable as errors.Is targets.
var (
	ErrAllocExhausted     = New(CodeAllocExhausted, "allocator exhausted")
	ErrRecursionDepth     = New(CodeRecursionDepth, "value type nesting exceeds maximum depth")
	ErrLayoutNotFinalized = New(CodeLayoutNotFinalized, "type layout not finalized")
	ErrThreadStaticField  = New(CodeThreadStaticField, "unexpected thread-static field")
	ErrSessionClosed      = New(CodeSessionClosed, "session closed")
	ErrNotFinalized       = New(CodeNotFinalized, "session has outstanding marks")
	ErrInvalidInput       = New(CodeInvalidInput, "invalid input")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrParseError         = New(CodeParseError, "parse error")
	ErrConfigError        = New(CodeConfigError, "configuration error")
	ErrDatabaseError      = New(CodeDatabaseError, "database error")
	ErrUploadError        = New(CodeUploadError, "upload error")
	ErrDownloadError      = New(CodeDownloadError, "download error")
)

// IsFatal reports whether err is an invariant violation that must abort a scan.
// Continuing after one of these risks under-reporting reachable objects.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRecursionDepth) ||
		errors.Is(err, ErrLayoutNotFinalized) ||
		errors.Is(err, ErrThreadStaticField)
}

// IsAllocExhausted checks if the error is an allocator exhaustion error.
func IsAllocExhausted(err error) bool {
	return errors.Is(err, ErrAllocExhausted)
}

// IsNotFound checks if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
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
