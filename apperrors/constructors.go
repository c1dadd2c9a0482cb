package apperrors

import (
	"github.com/gofiber/fiber/v2"
)

// Session errors

func NewNotAuthenticated() *AppError {
	return New(ErrCodeNotAuthenticated, "You need to sign in first", fiber.StatusUnauthorized)
}

func NewUserNotFound(id string) *AppError {
	return New(ErrCodeUserNotFound, "No account exists with this ID", fiber.StatusNotFound).
		WithDetails("id", id)
}

func NewWrongPassword(id string) *AppError {
	return New(ErrCodeWrongPassword, "Incorrect password", fiber.StatusUnauthorized).
		WithOperation("login").
		WithDetails("id", id)
}

func NewUserBlocked(id string) *AppError {
	return New(ErrCodeUserBlocked, "This account has been blocked by an administrator", fiber.StatusForbidden).
		WithDetails("id", id)
}

func NewDuplicateID(id string) *AppError {
	return New(ErrCodeDuplicateID, "This ID is already taken", fiber.StatusConflict).
		WithOperation("register").
		WithDetails("id", id)
}

func NewForbidden(action string) *AppError {
	return New(ErrCodeForbidden, "Not authorized to perform action", fiber.StatusForbidden).
		WithDetails("action", action)
}

// Storage errors

func NewMalformedStorage(key string, err error) *AppError {
	return New(ErrCodeMalformedStorage, "Stored value is not valid structured data", fiber.StatusInternalServerError).
		WithDetails("key", key).
		WithInternal(err)
}

func NewStorageUnavailable(operation, key string, err error) *AppError {
	return New(ErrCodeStorageUnavailable, "Storage backend unavailable", fiber.StatusServiceUnavailable).
		WithOperation(operation).
		WithDetails("key", key).
		WithInternal(err)
}

func NewRevisionConflict(key string, attempts int) *AppError {
	return New(ErrCodeRevisionConflict, "The record was changed by someone else, please retry", fiber.StatusConflict).
		WithDetails("key", key).
		WithDetails("attempts", attempts)
}

func NewNotFound(what, id string) *AppError {
	return New(ErrCodeNotFound, what+" not found", fiber.StatusNotFound).
		WithDetails("id", id)
}

// Support errors

func NewMessageEmpty() *AppError {
	return New(ErrCodeMessageEmpty, "Message cannot be empty", fiber.StatusBadRequest)
}

// Assistant errors

// NewAssistantFailed carries the user-facing fallback text shown when the
// tutoring assistant cannot answer.
func NewAssistantFailed(operation string, err error) *AppError {
	return New(ErrCodeAssistantFailed, "The tutor is unavailable right now. Please try again in a moment.", fiber.StatusBadGateway).
		WithOperation(operation).
		WithInternal(err)
}

func NewAlreadyClaimed(day string) *AppError {
	return New(ErrCodeAlreadyClaimed, "Daily reward already claimed today", fiber.StatusConflict).
		WithDetails("day", day)
}

// Validation errors

func NewValidationError(message string) *AppError {
	return New(ErrCodeValidationFailed, message, fiber.StatusBadRequest)
}

func NewBadRequest(message string) *AppError {
	if message == "" {
		message = "Bad request"
	}
	return New(ErrCodeInvalidInput, message, fiber.StatusBadRequest)
}

func NewRateLimitError() *AppError {
	return New(ErrCodeRateLimited, "Too many requests, slow down", fiber.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	if message == "" {
		message = "An internal error occurred"
	}
	return New(ErrCodeInternal, message, fiber.StatusInternalServerError)
}
