package routes

import (
	"tutorhub/server/handlers"
	"tutorhub/server/middleware/auth"

	"github.com/gofiber/fiber/v2"
)

// AdminRoutes require the administrator token
type AdminRoutes struct {
	deps Deps
}

func NewAdminRoutes(deps Deps) *AdminRoutes {
	return &AdminRoutes{deps: deps}
}

func (ar *AdminRoutes) Register(router fiber.Router) {
	adm := router.Group("/admin", auth.Admin(auth.AdminConfig{Token: ar.deps.AdminToken}))

	adm.Get("/dashboard", handlers.HandleDashboard(ar.deps.Admin))
	adm.Patch("/settings", handlers.HandleUpdateSettings(ar.deps.Admin))

	// Users
	adm.Put("/users", handlers.HandleSaveUsers(ar.deps.Admin))
	adm.Post("/users/:id/block", handlers.HandleSetBlocked(ar.deps.Admin))
	adm.Put("/users/:id/id-card", handlers.HandleUpdateIDCard(ar.deps.Admin))
	adm.Delete("/users/:id", handlers.HandleRemoveUser(ar.deps.Admin))

	// Tickets
	adm.Get("/tickets", handlers.HandleListTickets(ar.deps.Tickets))
	adm.Post("/tickets/rebuild", handlers.HandleRebuildTicketIndex(ar.deps.Tickets))
	adm.Get("/tickets/:id", handlers.HandleGetTicket(ar.deps.Tickets))
	adm.Post("/tickets/:id/reply", handlers.HandleReplyTicket(ar.deps.Admin))
	adm.Delete("/tickets/:id", handlers.HandleDeleteTicket(ar.deps.Tickets))

	// Content
	boards := handlers.NewContentBoards(ar.deps.Content)
	adm.Get("/content/:kind", boards.HandleList())
	adm.Post("/content/:kind", boards.HandleCreate())
	adm.Put("/content/:kind/:id", boards.HandleUpdate())
	adm.Delete("/content/:kind/:id", boards.HandleDelete())
}
