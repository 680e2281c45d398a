package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an error by which pipeline concern produced it.
type ErrorType string

const (
	ErrTypeNetwork       ErrorType = "NETWORK"
	ErrTypeEmptyResult   ErrorType = "EMPTY_RESULT"
	ErrTypeValidation    ErrorType = "VALIDATION"
	ErrTypeNormalization ErrorType = "NORMALIZATION"
	ErrTypeParsing       ErrorType = "PARSING"
	ErrTypeStorage       ErrorType = "STORAGE"
	ErrTypeConfig        ErrorType = "CONFIG"
	ErrTypeNotFound      ErrorType = "NOT_FOUND"
)

// AppError is the application error carried across component boundaries.
// Type drives propagation policy: EMPTY_RESULT is logged and skipped,
// NETWORK aborts the current fetch, NORMALIZATION aborts the whole run.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// As is a convenience re-export of errors.As so callers aliasing this
// package do not need a second errors import.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsType reports whether err (or anything it wraps) is an AppError of the
// given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// NewNetworkError creates an upstream-unreachable / non-2xx error. Fatal
// to the current fetch.
func NewNetworkError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNetwork, message, cause)
}

// NewEmptyResultError marks a query that matched zero records. Non-fatal;
// the pipeline continues with zero records for that query.
func NewEmptyResultError(message string) *AppError {
	return NewAppError(ErrTypeEmptyResult, message, nil)
}

// NewValidationError creates a per-record validation error.
func NewValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNormalizationError marks a configuration gap (no mapping registered
// for a source). Fatal for the run.
func NewNormalizationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNormalization, message, cause)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}
