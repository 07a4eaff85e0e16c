// Package errors provides error code definitions for the sync core.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to API callers.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrStorage         ErrorCode = "STORAGE_ERROR"
	ErrStorageCorrupt  ErrorCode = "STORAGE_CORRUPT"
	ErrStorageNotFound ErrorCode = "STORAGE_KEY_NOT_FOUND"

	// Queue errors
	ErrQueueFull         ErrorCode = "QUEUE_FULL"
	ErrOperationNotFound ErrorCode = "OPERATION_NOT_FOUND"
	ErrInvalidPayload    ErrorCode = "INVALID_PAYLOAD"
	ErrNotRetryable      ErrorCode = "NOT_RETRYABLE"

	// Delivery errors
	ErrDeliveryFailed   ErrorCode = "DELIVERY_FAILED"
	ErrRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"
	ErrRemoteRejected   ErrorCode = "REMOTE_REJECTED"

	// Connectivity errors
	ErrOffline     ErrorCode = "OFFLINE"
	ErrProbeFailed ErrorCode = "PROBE_FAILED"

	// Conflict errors
	ErrConflictInvalid    ErrorCode = "CONFLICT_INVALID"
	ErrConflictUnresolved ErrorCode = "CONFLICT_UNRESOLVED"
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

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the error code of an error, or ErrInternal for
// errors that are not AppErrors.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}
