package routes

import (
	"tutorhub/server/handlers"

	"github.com/gofiber/fiber/v2"
)

// PublicRoutes need no session
type PublicRoutes struct {
	deps Deps
}

func NewPublicRoutes(deps Deps) *PublicRoutes {
	return &PublicRoutes{deps: deps}
}

func (pr *PublicRoutes) Register(router fiber.Router) {
	authLimit := pr.deps.AuthLimiter
	if authLimit == nil {
		authLimit = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Post("/register", authLimit, handlers.HandleRegister(pr.deps.Sessions))
	router.Post("/login", authLimit, handlers.HandleLogin(pr.deps.Sessions))
	router.Post("/logout", handlers.HandleLogout(pr.deps.Sessions))
	router.Get("/session", handlers.HandleSession(pr.deps.Sessions))

	router.Get("/settings", handlers.HandleGetSettings(pr.deps.Settings))
	router.Get("/content/:kind", handlers.NewContentBoards(pr.deps.Content).HandleList())

	router.Get("/events", handlers.HandleEvents(pr.deps.Notifier, 0))
}
