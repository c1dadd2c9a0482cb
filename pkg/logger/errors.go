package logger

import (
	"errors"

	"tutorhub/apperrors"
)

// LogAppError logs err on l, expanding AppError details into fields
func (l *Logger) LogAppError(err error, level Level, msg string) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		l.WithFields(appErr.LogFields()).log(level, "%s: %s", msg, appErr.Message)
		return
	}
	l.WithError(err).log(level, "%s", msg)
}
