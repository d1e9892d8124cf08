// Package errors provides coded error definitions for the FieldClock core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a failure class that callers can branch on.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrNotFound ErrorCode = "NOT_FOUND"
	ErrConfig   ErrorCode = "CONFIG_ERROR"

	// Capture pipeline errors (whole-attempt aborts)
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrCapture    ErrorCode = "CAPTURE_ERROR"
	ErrLocation   ErrorCode = "LOCATION_ERROR"

	// Local store errors
	ErrPersist   ErrorCode = "PERSIST_ERROR"
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Synchronization errors (isolated per record)
	ErrUpload       ErrorCode = "UPLOAD_ERROR"
	ErrRemoteInsert ErrorCode = "REMOTE_INSERT_ERROR"
	ErrSyncInFlight ErrorCode = "SYNC_IN_PROGRESS"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
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

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error (or any error it wraps) carries a specific code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or ErrInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
