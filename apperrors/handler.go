package apperrors

import (
	"github.com/gofiber/fiber/v2"
)

// Logger is the subset of the application logger the error handler needs
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// HandlerConfig configures the error handler
type HandlerConfig struct {
	// Logger for error logging
	Logger Logger

	// ShowInternalErrors shows internal error details in responses (dev only)
	ShowInternalErrors bool

	// OnError is called for each error (useful for metrics/monitoring)
	OnError func(c *fiber.Ctx, err *AppError)
}

// Handler creates a Fiber error handler that renders every error as JSON
func Handler(config HandlerConfig) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		appErr := FromError(err)

		if config.Logger != nil {
			logError(config.Logger, c, appErr)
		}

		if config.OnError != nil {
			config.OnError(c, appErr)
		}

		body := fiber.Map{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		if config.ShowInternalErrors && appErr.Internal != nil {
			body["internal"] = appErr.Internal.Error()
		}

		return c.Status(appErr.StatusCode).JSON(fiber.Map{"error": body})
	}
}

func logError(logger Logger, c *fiber.Ctx, err *AppError) {
	// Expected errors (bad credentials, validation) stay at warn level
	if err.StatusCode < 500 {
		logger.Warn("%s %s | %s | Status: %d", c.Method(), c.Path(), err.Error(), err.StatusCode)
		return
	}

	logger.Error("%s %s | %s | Status: %d | IP: %s", c.Method(), c.Path(), err.Error(), err.StatusCode, c.IP())
}
