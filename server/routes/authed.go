package routes

import (
	"tutorhub/server/handlers"
	"tutorhub/server/middleware/auth"

	"github.com/gofiber/fiber/v2"
)

// AuthRoutes require a signed-in, unblocked user
type AuthRoutes struct {
	deps Deps
}

func NewAuthRoutes(deps Deps) *AuthRoutes {
	return &AuthRoutes{deps: deps}
}

func (ar *AuthRoutes) Register(router fiber.Router) {
	requireSession := auth.New(auth.Config{SessionManager: ar.deps.Sessions})

	me := router.Group("/me", requireSession)
	me.Get("", handlers.HandleMe())
	me.Patch("", handlers.HandleUpdateProfile(ar.deps.Sessions))
	me.Put("/password", handlers.HandleChangePassword(ar.deps.Sessions))
	me.Post("/points", handlers.HandleAddPoints(ar.deps.Sessions))
	me.Post("/daily-reward", handlers.HandleClaimDailyReward(ar.deps.Challenges))

	ar.registerSupportRoutes(router.Group("/support", requireSession))
	ar.registerTutorRoutes(router.Group("/tutor", requireSession))
}

func (ar *AuthRoutes) registerSupportRoutes(router fiber.Router) {
	router.Get("", handlers.HandleGetSupport(ar.deps.Tickets))
	router.Post("", handlers.HandleSendSupport(ar.deps.Tickets))
	router.Post("/read", handlers.HandleMarkRead(ar.deps.Tickets))
	router.Get("/unread", handlers.HandleUnread(ar.deps.Tickets))
}

func (ar *AuthRoutes) registerTutorRoutes(router fiber.Router) {
	router.Post("/challenge", handlers.HandleSubmitChallenge(ar.deps.Challenges))
	router.Post("/:op", handlers.HandleTutor(ar.deps.Challenges))
}
