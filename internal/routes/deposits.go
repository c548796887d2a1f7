package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playarena/arena_ledger/internal/deposits"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/middleware"
)

// RegisterDepositRequestRoutes wires the request/approve workflow.
func RegisterDepositRequestRoutes(r fiber.Router, h *deposits.Handler, g guards) {
	group := r.Group("/deposit-requests")
	group.Post("", middleware.RequireRole(ledger.RoleOrganizer, ledger.RoleUser), g.requestLimit, h.Create)
	group.Get("/incoming", h.Incoming)
	group.Get("/outgoing", h.Outgoing)
	group.Get("/pending-counts", h.PendingCounts)
	group.Get("/:requestId", h.Get)

	resolver := middleware.RequireRole(ledger.RoleOwner, ledger.RoleOrganizer)
	group.Post("/:requestId/approve", resolver, h.Approve)
	group.Post("/:requestId/reject", resolver, h.Reject)
	group.Post("/:requestId/cancel", h.Cancel)
}
