package server

import (
	"tutorhub/pkg/logger"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
)

// setupLogging writes one access line per request through the
// application logger's rotating writer
func setupLogging(app *fiber.App, log *logger.Logger) {
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
		Output:     log.Writer(),
		Next: func(c *fiber.Ctx) bool {
			// Probes and scrapes would drown the access log
			return c.Path() == "/metrics" || c.Path() == "/health/live"
		},
	}))
}
