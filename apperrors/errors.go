package apperrors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Authentication & Session
	ErrCodeNotAuthenticated ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeWrongPassword    ErrorCode = "WRONG_PASSWORD"
	ErrCodeUserBlocked      ErrorCode = "USER_BLOCKED"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"

	// User Management
	ErrCodeUserNotFound ErrorCode = "USER_NOT_FOUND"
	ErrCodeDuplicateID  ErrorCode = "DUPLICATE_ID"
	ErrCodeInvalidID    ErrorCode = "INVALID_ID"

	// Storage
	ErrCodeMalformedStorage   ErrorCode = "MALFORMED_STORAGE"
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrCodeRevisionConflict   ErrorCode = "REVISION_CONFLICT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"

	// Support tickets
	ErrCodeMessageEmpty ErrorCode = "MESSAGE_EMPTY"

	// Tutoring assistant
	ErrCodeAssistantFailed ErrorCode = "ASSISTANT_FAILED"
	ErrCodeAlreadyClaimed  ErrorCode = "ALREADY_CLAIMED"

	// Validation
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"

	// Rate limiting
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Internal Errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	StatusCode int            `json:"-"`
	Internal   error          `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithDetails adds contextual details to the error
func (e *AppError) WithDetails(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithInternal wraps an internal error
func (e *AppError) WithInternal(err error) *AppError {
	e.Internal = err
	return e
}

// WithOperation records which operation produced the error
func (e *AppError) WithOperation(operation string) *AppError {
	return e.WithDetails("operation", operation)
}

// LogFields flattens the error into logger fields
func (e *AppError) LogFields() map[string]any {
	fields := map[string]any{
		"code":   string(e.Code),
		"status": e.StatusCode,
	}
	for k, v := range e.Details {
		fields[k] = v
	}
	if e.Internal != nil {
		fields["internal"] = e.Internal.Error()
	}
	return fields
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// HasCode reports whether err (or anything it wraps) is an AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// FromError converts a standard error to AppError if possible
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			return New(ErrCodeNotFound, "Resource not found", fiber.StatusNotFound)
		case fiber.StatusUnauthorized:
			return NewNotAuthenticated()
		case fiber.StatusForbidden:
			return New(ErrCodeForbidden, "Forbidden", fiber.StatusForbidden)
		case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			return NewValidationError(fiberErr.Message)
		default:
			return New(ErrCodeInternal, fiberErr.Message, fiberErr.Code)
		}
	}

	return NewInternalError("").WithInternal(err)
}
