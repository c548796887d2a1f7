package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playarena/arena_ledger/internal/apierr"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type adjustRequest struct {
	UserID      string `json:"user_id"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

// TransactionResponse is the JSON view of a ledger row.
type TransactionResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Amount        string    `json:"amount"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Description   string    `json:"description,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	FromUserID    string    `json:"from_user_id,omitempty"`
	BalanceBefore string    `json:"balance_before"`
	BalanceAfter  string    `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewTransactionResponse renders txn for API responses.
func NewTransactionResponse(txn ledger.WalletTransaction) TransactionResponse {
	resp := TransactionResponse{
		ID:            txn.ID.String(),
		UserID:        txn.UserID.String(),
		Amount:        txn.Amount.StringFixed(ledger.CurrencyPlaces),
		Type:          string(txn.Type),
		Status:        string(txn.Status),
		Description:   txn.Description,
		Reference:     txn.Reference.String(),
		BalanceBefore: txn.BalanceBefore.StringFixed(ledger.CurrencyPlaces),
		BalanceAfter:  txn.BalanceAfter.StringFixed(ledger.CurrencyPlaces),
		CreatedAt:     txn.CreatedAt,
	}
	if txn.FromUserID != nil {
		resp.FromUserID = txn.FromUserID.String()
	}
	return resp
}

// SummaryResponse renders a balance summary.
func SummaryResponse(summary ledger.BalanceSummary) fiber.Map {
	return fiber.Map{
		"user_id":           summary.UserID,
		"wallet_balance":    summary.Wallet.StringFixed(ledger.CurrencyPlaces),
		"hold_balance":      summary.Hold.StringFixed(ledger.CurrencyPlaces),
		"available_balance": summary.Available.StringFixed(ledger.CurrencyPlaces),
		"timestamp":         summary.AsOf,
	}
}

// Balance returns the balance summary of the actor, or of ?user_id for owners.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID, err := middleware.ScopedUserID(c)
	if err != nil {
		return err
	}
	summary, err := h.service.Summary(c.UserContext(), userID)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(SummaryResponse(summary))
}

// Transactions returns a page of ledger rows, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	userID, err := middleware.ScopedUserID(c)
	if err != nil {
		return err
	}
	typ := ledger.TransactionType(c.Query("type"))
	if typ != "" && !typ.Valid() {
		return fiber.NewError(http.StatusBadRequest, "unknown transaction type")
	}
	page, err := h.service.History(c.UserContext(), HistoryQuery{
		UserID: userID,
		Type:   typ,
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 0),
	})
	if err != nil {
		return apierr.From(err)
	}
	items := make([]TransactionResponse, 0, len(page.Items))
	for _, txn := range page.Items {
		items = append(items, NewTransactionResponse(txn))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"items": items,
		"total": page.Total,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

// Credit posts an administrative credit.
func (h *Handler) Credit(c *fiber.Ctx) error {
	adj, err := parseAdjust(c)
	if err != nil {
		return err
	}
	actor, _ := middleware.ActorFrom(c)
	txn, err := h.service.Credit(c.UserContext(), CreditInput{
		UserID:      adj.userID,
		Amount:      adj.amount,
		Type:        adj.typ,
		Description: adj.description,
		FromUserID:  &actor.ID,
		Reference:   adj.reference,
	})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(NewTransactionResponse(txn))
}

// Debit posts an administrative debit.
func (h *Handler) Debit(c *fiber.Ctx) error {
	adj, err := parseAdjust(c)
	if err != nil {
		return err
	}
	txn, err := h.service.Debit(c.UserContext(), DebitInput{
		UserID:      adj.userID,
		Amount:      adj.amount,
		Type:        adj.typ,
		Description: adj.description,
		Reference:   adj.reference,
	})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(NewTransactionResponse(txn))
}

type adjustment struct {
	userID      uuid.UUID
	amount      decimal.Decimal
	typ         ledger.TransactionType
	description string
	reference   ledger.Reference
}

func parseAdjust(c *fiber.Ctx) (adjustment, error) {
	var req adjustRequest
	if err := c.BodyParser(&req); err != nil {
		return adjustment{}, apierr.BadRequest(err)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return adjustment{}, fiber.NewError(http.StatusBadRequest, "invalid user_id")
	}
	typ := ledger.TransactionType(req.Type)
	if typ != "" && !typ.Valid() {
		return adjustment{}, fiber.NewError(http.StatusBadRequest, "unknown transaction type")
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return adjustment{}, apierr.From(err)
	}
	ref, err := ledger.ParseReference(req.Reference)
	if err != nil {
		return adjustment{}, apierr.From(err)
	}
	return adjustment{userID: userID, amount: amount, typ: typ, description: req.Description, reference: ref}, nil
}
