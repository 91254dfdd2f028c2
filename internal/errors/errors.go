// Package errors provides unified error handling with structured error codes.
// Codes are plain strings so they survive logs, the HTTP surface, and tests
// without any generated glue.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for handling and retry decisions.
type Code string

const (
	CodeUnknown       Code = "unknown"
	CodeInternal      Code = "internal"
	CodeInvalidInput  Code = "invalid_input"
	CodeNotFound      Code = "not_found"
	CodeUnavailable   Code = "unavailable"
	CodeTimeout       Code = "timeout"
	CodeCancelled     Code = "cancelled"
	CodeCaptureFailed Code = "capture_failed"
	CodeOCRInit       Code = "ocr_init_failed"
	CodeOCRExtract    Code = "ocr_extract_failed"
	CodeOCRBadImage   Code = "ocr_invalid_image"
	CodeDictLoad      Code = "dict_load_failed"
	CodeConfigInvalid Code = "config_invalid"
	CodeConfigMissing Code = "config_missing"
)

// retryable codes: transient conditions worth another attempt.
var retryable = map[Code]bool{
	CodeUnavailable: true,
	CodeTimeout:     true,
	CodeOCRExtract:  true,
}

// AppError is the base error type with structured code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// CodeOf extracts the code from an error chain, or CodeUnknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error (anywhere in its chain) has a specific code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return retryable[CodeOf(err)]
}
