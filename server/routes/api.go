package routes

import (
	"github.com/gofiber/fiber/v2"
)

// APIRoutes handles versioned API endpoints
type APIRoutes struct {
	deps Deps
}

func NewAPIRoutes(deps Deps) *APIRoutes {
	return &APIRoutes{deps: deps}
}

func (ar *APIRoutes) Register(app *fiber.App) {
	api := app.Group("/api")
	ar.registerV1Routes(api)
}

func (ar *APIRoutes) registerV1Routes(api fiber.Router) {
	v1 := api.Group("/v1")

	v1.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "operational",
			"version": "1.0.0",
			"backend": ar.deps.Store.Backend().Name(),
		})
	})

	NewPublicRoutes(ar.deps).Register(v1)
	NewAuthRoutes(ar.deps).Register(v1)
	NewAdminRoutes(ar.deps).Register(v1)
}
