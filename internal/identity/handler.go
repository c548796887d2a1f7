package identity

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/playarena/arena_ledger/internal/apierr"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/middleware"
)

// BalanceReader supplies live balances for profile responses.
type BalanceReader interface {
	Summary(ctx context.Context, userID uuid.UUID) (ledger.BalanceSummary, error)
}

// Handler exposes identity endpoints.
type Handler struct {
	service  *Service
	balances BalanceReader
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, balances BalanceReader) *Handler {
	return &Handler{service: service, balances: balances}
}

type registerRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	profile, err := h.service.Register(c.UserContext(), RegisterInput{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Role:        ledger.Role(req.Role),
	})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(profile)
}

// Get returns any user's profile.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	return h.respond(c, id)
}

// Me returns the actor's profile with live balances.
func (h *Handler) Me(c *fiber.Ctx) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing actor")
	}
	return h.respond(c, actor.ID)
}

func (h *Handler) respond(c *fiber.Ctx, id uuid.UUID) error {
	profile, err := h.service.Profile(c.UserContext(), id)
	if err != nil {
		return apierr.From(err)
	}
	summary, err := h.balances.Summary(c.UserContext(), id)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"profile": profile,
		"balances": fiber.Map{
			"wallet_balance":    summary.Wallet.StringFixed(ledger.CurrencyPlaces),
			"hold_balance":      summary.Hold.StringFixed(ledger.CurrencyPlaces),
			"available_balance": summary.Available.StringFixed(ledger.CurrencyPlaces),
		},
	})
}
