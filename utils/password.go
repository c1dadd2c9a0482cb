package utils

import (
	"crypto/subtle"
	"strings"

	"tutorhub/apperrors"

	"golang.org/x/crypto/bcrypt"
)

func ValidatePassword(password string) *apperrors.AppError {
	if password == "" {
		return apperrors.NewValidationError("Password is required")
	}
	if len(password) > 72 {
		return apperrors.NewValidationError("Password cannot exceed 72 bytes")
	}
	return nil
}

func HashPassword(password string) (string, *apperrors.AppError) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperrors.NewInternalError("Failed to hash password").WithInternal(err)
	}
	return string(hashed), nil
}

// IsHashed reports whether stored looks like a bcrypt hash
func IsHashed(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

// CheckPassword compares a login attempt with the stored password, which
// is either a bcrypt hash or legacy plaintext
func CheckPassword(stored, given string) bool {
	if IsHashed(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
