package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playarena/arena_ledger/internal/holds"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/middleware"
)

// RegisterHoldRoutes wires balance hold endpoints. Reads are open to every
// role; mutations are owner operations.
func RegisterHoldRoutes(r fiber.Router, h *holds.Handler) {
	group := r.Group("/holds")
	group.Get("", h.List)
	group.Get("/:holdId", h.Get)

	owner := middleware.RequireRole(ledger.RoleOwner)
	group.Post("", owner, h.Create)
	group.Post("/expire", owner, h.Expire)
	group.Post("/by-reference/release", owner, h.ReleaseByReference)
	group.Post("/by-reference/confirm", owner, h.ConfirmByReference)
	group.Post("/:holdId/release", owner, h.Release)
	group.Post("/:holdId/confirm", owner, h.Confirm)
}
