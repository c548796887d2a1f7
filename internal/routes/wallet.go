package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/middleware"
	"github.com/playarena/arena_ledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, g guards) {
	group := r.Group("/wallet")
	group.Get("/balance", h.Balance)
	group.Get("/transactions", h.Transactions)

	owner := middleware.RequireRole(ledger.RoleOwner)
	group.Post("/credit", owner, g.replay, h.Credit)
	group.Post("/debit", owner, g.replay, h.Debit)
}
