// Package deposits implements the deposit request workflow: a lower-tier user
// asks a higher-tier user for funds and the target approves or rejects it.
package deposits

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/metrics"
	"github.com/playarena/arena_ledger/internal/notification"
)

// Limits bounds deposit requests.
type Limits struct {
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	MaxPending int
	PageSize   int
}

// Service runs the request/approval workflow.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
	logger   *slog.Logger
	limits   Limits
	now      func() time.Time
}

// NewService constructs a deposit request service.
func NewService(store ledger.Store, notifier notification.Notifier, logger *slog.Logger, limits Limits) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logging.Component(logger, "deposits"),
		limits:   limits,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput describes a new deposit request.
type CreateInput struct {
	RequesterID      uuid.UUID
	TargetID         uuid.UUID
	Amount           decimal.Decimal
	Type             ledger.RequestType
	Note             string
	PaymentProofURL  string
	PaymentReference string
}

// Approval is an approved request with the ledger rows it produced.
type Approval struct {
	Request      ledger.DepositRequest
	Transactions []ledger.WalletTransaction
}

// Query selects deposit requests, newest first. Zero fields do not filter.
type Query struct {
	RequesterID uuid.UUID
	TargetID    uuid.UUID
	Status      ledger.RequestStatus
	Type        ledger.RequestType
	Page        int
	Limit       int
}

// Create files a pending request from the requester to the target.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.DepositRequest, error) {
	if err := ledger.ValidateAmount(input.Amount); err != nil {
		return ledger.DepositRequest{}, err
	}
	if input.Amount.LessThan(s.limits.MinAmount) || input.Amount.GreaterThan(s.limits.MaxAmount) {
		return ledger.DepositRequest{}, fmt.Errorf("%w: must be between %s and %s", ledger.ErrAmountOutOfRange,
			s.limits.MinAmount.StringFixed(ledger.CurrencyPlaces), s.limits.MaxAmount.StringFixed(ledger.CurrencyPlaces))
	}
	if !input.Type.Valid() {
		return ledger.DepositRequest{}, fmt.Errorf("%w: unknown request type %q", ledger.ErrInvalidInput, input.Type)
	}
	if input.RequesterID == input.TargetID {
		return ledger.DepositRequest{}, fmt.Errorf("%w: cannot request a deposit from yourself", ledger.ErrInvalidInput)
	}

	var req ledger.DepositRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		users, err := tx.LockUsers(ctx, input.RequesterID, input.TargetID)
		if err != nil {
			return err
		}
		requester, target := users[input.RequesterID], users[input.TargetID]
		wantRequester, wantTarget := input.Type.Roles()
		if requester.Role != wantRequester || target.Role != wantTarget {
			return ledger.ErrRoleMismatch
		}

		pending, err := tx.CountPendingRequests(ctx, requester.ID)
		if err != nil {
			return err
		}
		if s.limits.MaxPending > 0 && pending >= s.limits.MaxPending {
			return ledger.ErrTooManyPendingRequests
		}

		now := s.now()
		req = ledger.DepositRequest{
			ID:               uuid.New(),
			RequesterID:      requester.ID,
			TargetID:         target.ID,
			Amount:           input.Amount,
			Type:             input.Type,
			Status:           ledger.RequestPending,
			RequesterNote:    strings.TrimSpace(input.Note),
			PaymentProofURL:  strings.TrimSpace(input.PaymentProofURL),
			PaymentReference: strings.TrimSpace(input.PaymentReference),
			CreatedAt:        now,
			UpdatedAt:        now,
			RequesterName:    requester.DisplayName,
			TargetName:       target.DisplayName,
		}
		return tx.InsertDepositRequest(ctx, &req)
	})
	if err != nil {
		return ledger.DepositRequest{}, fmt.Errorf("create deposit request: %w", err)
	}

	metrics.RecordDepositRequest(string(req.Status))
	s.logger.Info("deposit request created",
		slog.String("request_id", req.ID.String()),
		slog.String("type", string(req.Type)),
		slog.String("amount", req.Amount.StringFixed(ledger.CurrencyPlaces)))
	s.notify(ctx, notification.KindDepositRequestCreated, req.TargetID, req,
		fmt.Sprintf("%s requested %s", req.RequesterName, req.Amount.StringFixed(ledger.CurrencyPlaces)))
	return req, nil
}

// Approve resolves a pending request and moves the funds. For
// user_to_organizer requests the approving organizer pays; for
// organizer_to_owner requests only the requester is credited.
func (s *Service) Approve(ctx context.Context, requestID, processorID uuid.UUID, note string) (Approval, error) {
	var out Approval
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		req, err := lockPending(ctx, tx, requestID, processorID)
		if err != nil {
			return err
		}
		users, err := tx.LockUsers(ctx, req.RequesterID, processorID)
		if err != nil {
			return err
		}
		requester, processor := users[req.RequesterID], users[processorID]

		now := s.now()
		ref := ledger.DepositRequestRef(req.ID)
		var credit ledger.WalletTransaction
		switch req.Type {
		case ledger.RequestUserToOrganizer:
			debit, err := ledger.Post(ctx, tx, processor, ledger.Entry{
				Amount:      req.Amount.Neg(),
				Type:        ledger.TypeOrganizerDeposit,
				Description: fmt.Sprintf("Deposit request approved for %s", requester.DisplayName),
				Reference:   ref,
			}, now)
			if err != nil {
				return err
			}
			out.Transactions = append(out.Transactions, debit)
			credit, err = ledger.Post(ctx, tx, requester, ledger.Entry{
				Amount:      req.Amount,
				Type:        ledger.TypeOrganizerDeposit,
				Description: fmt.Sprintf("Deposit from %s", processor.DisplayName),
				Reference:   ref,
				FromUserID:  &processor.ID,
			}, now)
			if err != nil {
				return err
			}
		case ledger.RequestOrganizerToOwner:
			credit, err = ledger.Post(ctx, tx, requester, ledger.Entry{
				Amount:      req.Amount,
				Type:        ledger.TypeOwnerDeposit,
				Description: fmt.Sprintf("Deposit from %s", processor.DisplayName),
				Reference:   ref,
				FromUserID:  &processor.ID,
			}, now)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown request type %q", ledger.ErrInvalidInput, req.Type)
		}
		out.Transactions = append(out.Transactions, credit)

		req.Status = ledger.RequestApproved
		req.ResponderNote = strings.TrimSpace(note)
		req.ProcessedBy = &processorID
		req.ProcessedAt = &now
		req.TransactionID = &credit.ID
		req.UpdatedAt = now
		if err := tx.UpdateDepositRequest(ctx, req); err != nil {
			return err
		}
		out.Request = req
		return nil
	})
	if err != nil {
		return Approval{}, fmt.Errorf("approve deposit request: %w", err)
	}

	metrics.RecordDepositRequest(string(ledger.RequestApproved))
	for _, txn := range out.Transactions {
		metrics.RecordTransactions(string(txn.Type))
	}
	s.logger.Info("deposit request approved",
		slog.String("request_id", requestID.String()),
		slog.String("processor_id", processorID.String()))
	s.notify(ctx, notification.KindDepositRequestApproved, out.Request.RequesterID, out.Request,
		fmt.Sprintf("Your request for %s was approved", out.Request.Amount.StringFixed(ledger.CurrencyPlaces)))
	return out, nil
}

// Reject resolves a pending request without moving funds.
func (s *Service) Reject(ctx context.Context, requestID, processorID uuid.UUID, note string) (ledger.DepositRequest, error) {
	var req ledger.DepositRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		req, err = lockPending(ctx, tx, requestID, processorID)
		if err != nil {
			return err
		}
		now := s.now()
		req.Status = ledger.RequestRejected
		req.ResponderNote = strings.TrimSpace(note)
		req.ProcessedBy = &processorID
		req.ProcessedAt = &now
		req.UpdatedAt = now
		return tx.UpdateDepositRequest(ctx, req)
	})
	if err != nil {
		return ledger.DepositRequest{}, fmt.Errorf("reject deposit request: %w", err)
	}

	metrics.RecordDepositRequest(string(req.Status))
	s.logger.Info("deposit request rejected",
		slog.String("request_id", requestID.String()),
		slog.String("processor_id", processorID.String()))
	s.notify(ctx, notification.KindDepositRequestRejected, req.RequesterID, req,
		fmt.Sprintf("Your request for %s was rejected", req.Amount.StringFixed(ledger.CurrencyPlaces)))
	return req, nil
}

// Cancel withdraws a pending request. Only the requester may cancel.
func (s *Service) Cancel(ctx context.Context, requestID, requesterID uuid.UUID) (ledger.DepositRequest, error) {
	var req ledger.DepositRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		req, err = tx.LockDepositRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.RequesterID != requesterID {
			return ledger.ErrNotRequester
		}
		if req.Status != ledger.RequestPending {
			return ledger.ErrAlreadyProcessed
		}
		req.Status = ledger.RequestCancelled
		req.UpdatedAt = s.now()
		return tx.UpdateDepositRequest(ctx, req)
	})
	if err != nil {
		return ledger.DepositRequest{}, fmt.Errorf("cancel deposit request: %w", err)
	}

	metrics.RecordDepositRequest(string(req.Status))
	s.notify(ctx, notification.KindDepositRequestCancelled, req.TargetID, req,
		fmt.Sprintf("%s cancelled a request for %s", req.RequesterName, req.Amount.StringFixed(ledger.CurrencyPlaces)))
	return req, nil
}

// Get returns a request visible to viewer, who must be one of its parties.
func (s *Service) Get(ctx context.Context, id, viewer uuid.UUID) (ledger.DepositRequest, error) {
	req, err := s.store.DepositRequest(ctx, id)
	if err != nil {
		return ledger.DepositRequest{}, err
	}
	if viewer != req.RequesterID && viewer != req.TargetID {
		return ledger.DepositRequest{}, ledger.ErrRequestNotFound
	}
	return req, nil
}

// List returns a page of requests matching q.
func (s *Service) List(ctx context.Context, q Query) (ledger.Page[ledger.DepositRequest], error) {
	if q.Status != "" && !q.Status.Valid() {
		return ledger.Page[ledger.DepositRequest]{}, fmt.Errorf("%w: unknown status %q", ledger.ErrInvalidInput, q.Status)
	}
	if q.Type != "" && !q.Type.Valid() {
		return ledger.Page[ledger.DepositRequest]{}, fmt.Errorf("%w: unknown request type %q", ledger.ErrInvalidInput, q.Type)
	}
	return s.store.DepositRequests(ctx, ledger.RequestFilter{
		RequesterID: q.RequesterID,
		TargetID:    q.TargetID,
		Status:      q.Status,
		Type:        q.Type,
		PageRequest: ledger.PageRequest{Page: q.Page, Limit: q.Limit}.Normalize(s.limits.PageSize),
	})
}

// ListFor returns requests addressed to targetID.
func (s *Service) ListFor(ctx context.Context, targetID uuid.UUID, q Query) (ledger.Page[ledger.DepositRequest], error) {
	q.TargetID = targetID
	q.RequesterID = uuid.Nil
	return s.List(ctx, q)
}

// ListBy returns requests filed by requesterID.
func (s *Service) ListBy(ctx context.Context, requesterID uuid.UUID, q Query) (ledger.Page[ledger.DepositRequest], error) {
	q.RequesterID = requesterID
	q.TargetID = uuid.Nil
	return s.List(ctx, q)
}

// PendingCounts returns how many pending requests the user has to answer
// (incoming) and is waiting on (outgoing).
func (s *Service) PendingCounts(ctx context.Context, userID uuid.UUID) (ledger.PendingCounts, error) {
	return s.store.PendingCounts(ctx, userID)
}

// lockPending locks the request row and checks it can still be resolved by processorID.
func lockPending(ctx context.Context, tx ledger.Tx, requestID, processorID uuid.UUID) (ledger.DepositRequest, error) {
	req, err := tx.LockDepositRequest(ctx, requestID)
	if err != nil {
		return ledger.DepositRequest{}, err
	}
	if req.Status != ledger.RequestPending {
		return ledger.DepositRequest{}, ledger.ErrAlreadyProcessed
	}
	if req.RequesterID == processorID {
		return ledger.DepositRequest{}, ledger.ErrSelfApproval
	}
	if req.TargetID != processorID {
		return ledger.DepositRequest{}, ledger.ErrNotTarget
	}
	return req, nil
}

func (s *Service) notify(ctx context.Context, kind string, to uuid.UUID, req ledger.DepositRequest, body string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: to.String(),
		Body:        body,
		Data: map[string]string{
			"request_id": req.ID.String(),
			"status":     string(req.Status),
		},
	})
}
