package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/middleware"
	"github.com/playarena/arena_ledger/internal/payments"
)

// RegisterPaymentRoutes wires the hierarchical deposit endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, g guards) {
	group := r.Group("/payments")
	group.Post("/owner-deposit", middleware.RequireRole(ledger.RoleOwner), g.replay, h.OwnerDeposit)
	group.Post("/organizer-deposit", middleware.RequireRole(ledger.RoleOrganizer), g.optionalReplay, h.OrganizerDeposit)
}
