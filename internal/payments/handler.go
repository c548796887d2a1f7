package payments

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/playarena/arena_ledger/internal/apierr"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/middleware"
	"github.com/playarena/arena_ledger/internal/wallet"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type depositRequest struct {
	RecipientID string `json:"recipient_id"`
	Amount      string `json:"amount"`
	Note        string `json:"note"`
}

func (r depositRequest) parse() (uuid.UUID, error) {
	id, err := uuid.Parse(r.RecipientID)
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, "invalid recipient_id")
	}
	return id, nil
}

// OwnerDeposit credits an organizer from the platform owner.
func (h *Handler) OwnerDeposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	recipient, err := req.parse()
	if err != nil {
		return err
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return apierr.From(err)
	}
	actor, _ := middleware.ActorFrom(c)

	txn, err := h.service.OwnerDepositToOrganizer(c.UserContext(), OwnerDepositInput{
		OwnerID:     actor.ID,
		OrganizerID: recipient,
		Amount:      amount,
		Note:        req.Note,
	})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(wallet.NewTransactionResponse(txn))
}

// OrganizerDeposit transfers funds from the calling organizer to a user.
func (h *Handler) OrganizerDeposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	recipient, err := req.parse()
	if err != nil {
		return err
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return apierr.From(err)
	}
	actor, _ := middleware.ActorFrom(c)

	res, err := h.service.OrganizerDepositToUser(c.UserContext(), OrganizerDepositInput{
		OrganizerID:    actor.ID,
		UserID:         recipient,
		Amount:         amount,
		Note:           req.Note,
		IdempotencyKey: c.Get("Idempotency-Key"),
	})
	status := http.StatusCreated
	if errors.Is(err, ledger.ErrDuplicateTransaction) && res.Replayed() {
		status = http.StatusOK
	} else if err != nil {
		return apierr.From(err)
	}

	return c.Status(status).JSON(fiber.Map{
		"debit":  wallet.NewTransactionResponse(res.Debit),
		"credit": wallet.NewTransactionResponse(res.Credit),
	})
}
