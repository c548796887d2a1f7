package holds

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/playarena/arena_ledger/internal/apierr"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/middleware"
	"github.com/playarena/arena_ledger/internal/wallet"
)

// Handler exposes hold endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a hold handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type holdRequest struct {
	UserID      string     `json:"user_id"`
	Amount      string     `json:"amount"`
	HoldType    string     `json:"hold_type"`
	Reference   string     `json:"reference"`
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type resolveRequest struct {
	Reference       string `json:"reference"`
	Reason          string `json:"reason"`
	TransactionType string `json:"transaction_type"`
	Description     string `json:"description"`
}

type holdResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Amount        string     `json:"amount"`
	HoldType      string     `json:"hold_type"`
	Status        string     `json:"status"`
	Reference     string     `json:"reference"`
	Description   string     `json:"description,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	ReleaseReason string     `json:"release_reason,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newHoldResponse(h ledger.BalanceHold) holdResponse {
	resp := holdResponse{
		ID:            h.ID.String(),
		UserID:        h.UserID.String(),
		Amount:        h.Amount.StringFixed(ledger.CurrencyPlaces),
		HoldType:      string(h.Type),
		Status:        string(h.Status),
		Reference:     h.Reference.String(),
		Description:   h.Description,
		ExpiresAt:     h.ExpiresAt,
		ReleasedAt:    h.ReleasedAt,
		ConfirmedAt:   h.ConfirmedAt,
		ReleaseReason: h.ReleaseReason,
		CreatedAt:     h.CreatedAt,
	}
	if h.TransactionID != nil {
		resp.TransactionID = h.TransactionID.String()
	}
	return resp
}

func confirmationResponse(c Confirmation) fiber.Map {
	return fiber.Map{
		"hold":        newHoldResponse(c.Hold),
		"transaction": wallet.NewTransactionResponse(c.Transaction),
	}
}

// Create places a hold on a user's balance.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req holdRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user_id")
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return apierr.From(err)
	}
	ref, err := ledger.ParseReference(req.Reference)
	if err != nil {
		return apierr.From(err)
	}

	hold, err := h.service.Hold(c.UserContext(), HoldInput{
		UserID:      userID,
		Amount:      amount,
		Type:        ledger.HoldType(req.HoldType),
		Reference:   ref,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(newHoldResponse(hold))
}

// List returns the actor's holds, or any user's for owners.
func (h *Handler) List(c *fiber.Ctx) error {
	userID, err := middleware.ScopedUserID(c)
	if err != nil {
		return err
	}
	status := ledger.HoldStatus(c.Query("status"))
	if status != "" && status != ledger.HoldActive && !status.Terminal() {
		return fiber.NewError(http.StatusBadRequest, "unknown hold status")
	}
	page, err := h.service.List(c.UserContext(), ListQuery{
		UserID: userID,
		Status: status,
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 0),
	})
	if err != nil {
		return apierr.From(err)
	}
	items := make([]holdResponse, 0, len(page.Items))
	for _, hold := range page.Items {
		items = append(items, newHoldResponse(hold))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"items": items,
		"total": page.Total,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

// Get returns one hold. Non-owners may only read their own holds.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("holdId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid hold id")
	}
	hold, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return apierr.From(err)
	}
	if actor, _ := middleware.ActorFrom(c); actor.Role != ledger.RoleOwner && actor.ID != hold.UserID {
		return apierr.From(ledger.ErrHoldNotFound)
	}
	return c.Status(http.StatusOK).JSON(newHoldResponse(hold))
}

// Release releases a hold by id.
func (h *Handler) Release(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("holdId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid hold id")
	}
	var req resolveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apierr.BadRequest(err)
		}
	}
	hold, err := h.service.Release(c.UserContext(), id, req.Reason)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(newHoldResponse(hold))
}

// Confirm confirms a hold by id.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("holdId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid hold id")
	}
	var req resolveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apierr.BadRequest(err)
		}
	}
	res, err := h.service.Confirm(c.UserContext(), id, ledger.TransactionType(req.TransactionType), req.Description)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(confirmationResponse(res))
}

// ReleaseByReference releases the active hold for a reference, if any.
func (h *Handler) ReleaseByReference(c *fiber.Ctx) error {
	req, ref, err := parseResolve(c)
	if err != nil {
		return err
	}
	hold, found, err := h.service.ReleaseByReference(c.UserContext(), ref, req.Reason)
	if err != nil {
		return apierr.From(err)
	}
	if !found {
		return c.Status(http.StatusOK).JSON(fiber.Map{"found": false})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"found": true, "hold": newHoldResponse(hold)})
}

// ConfirmByReference confirms the active hold for a reference, if any.
func (h *Handler) ConfirmByReference(c *fiber.Ctx) error {
	req, ref, err := parseResolve(c)
	if err != nil {
		return err
	}
	res, found, err := h.service.ConfirmByReference(c.UserContext(), ref, ledger.TransactionType(req.TransactionType), req.Description)
	if err != nil {
		return apierr.From(err)
	}
	if !found {
		return c.Status(http.StatusOK).JSON(fiber.Map{"found": false})
	}
	body := confirmationResponse(res)
	body["found"] = true
	return c.Status(http.StatusOK).JSON(body)
}

// Expire runs the expiry sweep immediately.
func (h *Handler) Expire(c *fiber.Ctx) error {
	n, err := h.service.ExpireHolds(c.UserContext())
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"expired": n})
}

func parseResolve(c *fiber.Ctx) (resolveRequest, ledger.Reference, error) {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return req, ledger.Reference{}, apierr.BadRequest(err)
	}
	ref, err := ledger.ParseReference(req.Reference)
	if err != nil || ref.IsZero() {
		return req, ledger.Reference{}, fiber.NewError(http.StatusBadRequest, "invalid reference")
	}
	return req, ref, nil
}
