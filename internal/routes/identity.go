package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playarena/arena_ledger/internal/identity"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/middleware"
)

// RegisterIdentityRoutes wires profile endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/me", h.Me)
	owner := middleware.RequireRole(ledger.RoleOwner)
	r.Post("/users", owner, h.Register)
	r.Get("/users/:userId", owner, h.Get)
}
