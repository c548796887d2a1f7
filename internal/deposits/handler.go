package deposits

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

// Handler exposes deposit request endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a deposit request handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	TargetID         string `json:"target_id"`
	Amount           string `json:"amount"`
	RequestType      string `json:"request_type"`
	Note             string `json:"note"`
	PaymentProofURL  string `json:"payment_proof_url"`
	PaymentReference string `json:"payment_reference"`
}

type resolveRequest struct {
	Note string `json:"note"`
}

type requestResponse struct {
	ID               string     `json:"id"`
	RequesterID      string     `json:"requester_id"`
	RequesterName    string     `json:"requester_name"`
	TargetID         string     `json:"target_id"`
	TargetName       string     `json:"target_name"`
	Amount           string     `json:"amount"`
	RequestType      string     `json:"request_type"`
	Status           string     `json:"status"`
	RequesterNote    string     `json:"requester_note,omitempty"`
	ResponderNote    string     `json:"responder_note,omitempty"`
	PaymentProofURL  string     `json:"payment_proof_url,omitempty"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	ProcessedBy      string     `json:"processed_by,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	TransactionID    string     `json:"transaction_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func newRequestResponse(r ledger.DepositRequest) requestResponse {
	resp := requestResponse{
		ID:               r.ID.String(),
		RequesterID:      r.RequesterID.String(),
		RequesterName:    r.RequesterName,
		TargetID:         r.TargetID.String(),
		TargetName:       r.TargetName,
		Amount:           r.Amount.StringFixed(ledger.CurrencyPlaces),
		RequestType:      string(r.Type),
		Status:           string(r.Status),
		RequesterNote:    r.RequesterNote,
		ResponderNote:    r.ResponderNote,
		PaymentProofURL:  r.PaymentProofURL,
		PaymentReference: r.PaymentReference,
		ProcessedAt:      r.ProcessedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ProcessedBy != nil {
		resp.ProcessedBy = r.ProcessedBy.String()
	}
	if r.TransactionID != nil {
		resp.TransactionID = r.TransactionID.String()
	}
	return resp
}

func pageResponse(page ledger.Page[ledger.DepositRequest]) fiber.Map {
	items := make([]requestResponse, 0, len(page.Items))
	for _, r := range page.Items {
		items = append(items, newRequestResponse(r))
	}
	return fiber.Map{
		"items": items,
		"total": page.Total,
		"page":  page.Page,
		"limit": page.Limit,
	}
}

// Create files a deposit request from the actor.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequest(err)
	}
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid target_id")
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return apierr.From(err)
	}
	actor, _ := middleware.ActorFrom(c)

	created, err := h.service.Create(c.UserContext(), CreateInput{
		RequesterID:      actor.ID,
		TargetID:         targetID,
		Amount:           amount,
		Type:             ledger.RequestType(req.RequestType),
		Note:             req.Note,
		PaymentProofURL:  req.PaymentProofURL,
		PaymentReference: req.PaymentReference,
	})
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusCreated).JSON(newRequestResponse(created))
}

// Get returns one request the actor is party to.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	actor, _ := middleware.ActorFrom(c)
	req, err := h.service.Get(c.UserContext(), id, actor.ID)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(newRequestResponse(req))
}

// Incoming lists requests addressed to the actor.
func (h *Handler) Incoming(c *fiber.Ctx) error {
	actor, _ := middleware.ActorFrom(c)
	page, err := h.service.ListFor(c.UserContext(), actor.ID, listQuery(c))
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(pageResponse(page))
}

// Outgoing lists requests filed by the actor.
func (h *Handler) Outgoing(c *fiber.Ctx) error {
	actor, _ := middleware.ActorFrom(c)
	page, err := h.service.ListBy(c.UserContext(), actor.ID, listQuery(c))
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(pageResponse(page))
}

// PendingCounts returns the actor's pending incoming and outgoing counts.
func (h *Handler) PendingCounts(c *fiber.Ctx) error {
	actor, _ := middleware.ActorFrom(c)
	counts, err := h.service.PendingCounts(c.UserContext(), actor.ID)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"incoming": counts.Incoming,
		"outgoing": counts.Outgoing,
	})
}

// Approve approves a request addressed to the actor.
func (h *Handler) Approve(c *fiber.Ctx) error {
	id, note, err := parseResolve(c)
	if err != nil {
		return err
	}
	actor, _ := middleware.ActorFrom(c)
	approval, err := h.service.Approve(c.UserContext(), id, actor.ID, note)
	if err != nil {
		return apierr.From(err)
	}
	txns := make([]wallet.TransactionResponse, 0, len(approval.Transactions))
	for _, txn := range approval.Transactions {
		txns = append(txns, wallet.NewTransactionResponse(txn))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"request":      newRequestResponse(approval.Request),
		"transactions": txns,
	})
}

// Reject rejects a request addressed to the actor.
func (h *Handler) Reject(c *fiber.Ctx) error {
	id, note, err := parseResolve(c)
	if err != nil {
		return err
	}
	actor, _ := middleware.ActorFrom(c)
	req, err := h.service.Reject(c.UserContext(), id, actor.ID, note)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(newRequestResponse(req))
}

// Cancel cancels a request the actor filed.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	actor, _ := middleware.ActorFrom(c)
	req, err := h.service.Cancel(c.UserContext(), id, actor.ID)
	if err != nil {
		return apierr.From(err)
	}
	return c.Status(http.StatusOK).JSON(newRequestResponse(req))
}

func requestID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("requestId"))
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, "invalid request id")
	}
	return id, nil
}

func parseResolve(c *fiber.Ctx) (uuid.UUID, string, error) {
	id, err := requestID(c)
	if err != nil {
		return uuid.Nil, "", err
	}
	var req resolveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return uuid.Nil, "", apierr.BadRequest(err)
		}
	}
	return id, req.Note, nil
}

func listQuery(c *fiber.Ctx) Query {
	return Query{
		Status: ledger.RequestStatus(c.Query("status")),
		Type:   ledger.RequestType(c.Query("type")),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 0),
	}
}
