package errors

import (
	"errors"
	"fmt"
)

// Error codes for every failure class the store and pipeline can surface.
const (
	CodeValidation    = "VALIDATION_FAILED"
	CodeNotFound      = "NOT_FOUND"
	CodeEmptyMessage  = "EMPTY_MESSAGE"
	CodeBusy          = "CONVERSATION_BUSY"
	CodeRateLimited   = "PROVIDER_RATE_LIMITED"
	CodeProvider      = "PROVIDER_FAILED"
	CodePersistence   = "PERSISTENCE_FAILED"
	CodeQuotaExceeded = "STORAGE_QUOTA_EXCEEDED"
	CodeImportFormat  = "IMPORT_FORMAT_INVALID"
)

// AppError represents an application error with a stable code
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As chains
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// NewError creates a new application error
func NewError(code string, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates a new application error preserving the underlying cause
func Wrap(err error, code string, message string) *AppError {
	return &AppError{Code: code, Message: message, cause: err}
}

// NewValidationError reports malformed create/update input
func NewValidationError(message string) *AppError {
	return NewError(CodeValidation, message)
}

// NewNotFoundError reports an operation referencing a nonexistent id
func NewNotFoundError(message string) *AppError {
	return NewError(CodeNotFound, message)
}

// NewEmptyMessageError reports a send with no content after trimming
func NewEmptyMessageError(message string) *AppError {
	return NewError(CodeEmptyMessage, message)
}

// NewBusyError reports a send while another is already in flight
func NewBusyError(message string) *AppError {
	return NewError(CodeBusy, message)
}

// NewRateLimitedError reports provider quota or rate-limit exhaustion
func NewRateLimitedError(message string) *AppError {
	return NewError(CodeRateLimited, message)
}

// NewProviderError reports any other completion-provider failure
func NewProviderError(message string) *AppError {
	return NewError(CodeProvider, message)
}

// NewPersistenceError reports a storage write or read failure
func NewPersistenceError(message string) *AppError {
	return NewError(CodePersistence, message)
}

// NewQuotaExceededError reports a storage write rejected for lack of space
func NewQuotaExceededError(message string) *AppError {
	return NewError(CodeQuotaExceeded, message)
}

// NewImportFormatError reports a malformed import payload
func NewImportFormatError(message string) *AppError {
	return NewError(CodeImportFormat, message)
}

// HasCode checks whether err is (or wraps) an AppError with the given code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// Is checks if the target error is of type AppError with a matching code
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == target.Code
}
