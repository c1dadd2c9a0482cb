package utils

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"tutorhub/apperrors"
)

var (
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const (
	maxNameLength = 80
	maxTextLength = 4000
)

// ValidateUserID checks the login handle chosen at registration
func ValidateUserID(id string) *apperrors.AppError {
	if len(id) < 3 {
		return apperrors.NewValidationError("ID must be at least 3 characters long")
	}

	if len(id) > 30 {
		return apperrors.NewValidationError("ID cannot exceed 30 characters")
	}

	if !userIDRegex.MatchString(id) {
		return apperrors.NewValidationError("ID can only contain letters, numbers, underscores, and hyphens")
	}

	return nil
}

func ValidateName(name string) *apperrors.AppError {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.NewValidationError("Name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return apperrors.NewValidationError("Name is too long")
	}
	return nil
}

// ValidateEmail accepts an empty address; email is optional
func ValidateEmail(email string) *apperrors.AppError {
	if email == "" {
		return nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperrors.NewValidationError("Email address is not valid")
	}
	return nil
}

// ValidateMessageText rejects blank and oversized support messages
func ValidateMessageText(text string) *apperrors.AppError {
	if strings.TrimSpace(text) == "" {
		return apperrors.NewMessageEmpty()
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return apperrors.NewValidationError("Message is too long")
	}
	return nil
}
