// Package holds reserves part of a user's wallet balance until the reservation
// is confirmed into a debit, released, or expired by the periodic sweep.
package holds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/metrics"
	"github.com/playarena/arena_ledger/internal/notification"
)

// Service implements the hold state machine on top of the ledger store.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
	logger   *slog.Logger
	pageSize int
	now      func() time.Time
}

// NewService constructs a hold service.
func NewService(store ledger.Store, notifier notification.Notifier, logger *slog.Logger, pageSize int) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logging.Component(logger, "holds"),
		pageSize: pageSize,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HoldInput describes a new reservation.
type HoldInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Type        ledger.HoldType
	Reference   ledger.Reference
	Description string
	ExpiresAt   *time.Time
}

// Confirmation is the outcome of confirming a hold.
type Confirmation struct {
	Hold        ledger.BalanceHold
	Transaction ledger.WalletTransaction
}

// ListQuery selects holds, newest first.
type ListQuery struct {
	UserID uuid.UUID
	Status ledger.HoldStatus
	Page   int
	Limit  int
}

// Hold reserves amount from the user's available balance. No ledger row is
// written until the hold is confirmed.
func (s *Service) Hold(ctx context.Context, input HoldInput) (ledger.BalanceHold, error) {
	if err := ledger.ValidateAmount(input.Amount); err != nil {
		return ledger.BalanceHold{}, err
	}
	if !input.Type.Valid() {
		return ledger.BalanceHold{}, fmt.Errorf("%w: unknown hold type %q", ledger.ErrInvalidInput, input.Type)
	}
	if input.Reference.IsZero() {
		return ledger.BalanceHold{}, fmt.Errorf("%w: hold requires a reference", ledger.ErrInvalidReference)
	}
	if err := input.Reference.Validate(); err != nil {
		return ledger.BalanceHold{}, err
	}

	now := s.now()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return ledger.BalanceHold{}, fmt.Errorf("%w: hold expiry must be in the future", ledger.ErrInvalidInput)
	}

	var hold ledger.BalanceHold
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		user, err := ledger.LockUser(ctx, tx, input.UserID)
		if err != nil {
			return err
		}
		if user.Available().LessThan(input.Amount) {
			return ledger.ErrInsufficientAvailableBalance
		}

		user.HoldBalance = user.HoldBalance.Add(input.Amount)
		user.UpdatedAt = now
		if err := tx.SaveBalances(ctx, user); err != nil {
			return err
		}

		hold = ledger.BalanceHold{
			ID:          uuid.New(),
			UserID:      user.ID,
			Amount:      input.Amount,
			Type:        input.Type,
			Status:      ledger.HoldActive,
			Reference:   input.Reference,
			Description: input.Description,
			ExpiresAt:   input.ExpiresAt,
			CreatedAt:   now,
		}
		return tx.InsertHold(ctx, &hold)
	})
	if err != nil {
		return ledger.BalanceHold{}, fmt.Errorf("hold: %w", err)
	}

	metrics.RecordHolds(string(ledger.HoldActive), 1)
	s.logger.Info("hold placed",
		slog.String("hold_id", hold.ID.String()),
		slog.String("user_id", hold.UserID.String()),
		slog.String("reference", hold.Reference.String()),
		slog.String("amount", hold.Amount.StringFixed(ledger.CurrencyPlaces)))
	return hold, nil
}

// Release returns a hold's reservation to the available balance.
func (s *Service) Release(ctx context.Context, holdID uuid.UUID, reason string) (ledger.BalanceHold, error) {
	var hold ledger.BalanceHold
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		locked, err := tx.LockHold(ctx, holdID)
		if err != nil {
			return err
		}
		hold, err = s.release(ctx, tx, locked, reason)
		return err
	})
	if err != nil {
		return ledger.BalanceHold{}, fmt.Errorf("release hold: %w", err)
	}
	s.released(ctx, hold)
	return hold, nil
}

// Confirm converts a hold into a debit of the held amount.
func (s *Service) Confirm(ctx context.Context, holdID uuid.UUID, txnType ledger.TransactionType, description string) (Confirmation, error) {
	if txnType == "" {
		txnType = ledger.TypeHoldConfirmed
	}
	if !txnType.Valid() {
		return Confirmation{}, fmt.Errorf("%w: unknown transaction type %q", ledger.ErrInvalidInput, txnType)
	}

	var out Confirmation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		locked, err := tx.LockHold(ctx, holdID)
		if err != nil {
			return err
		}
		out, err = s.confirm(ctx, tx, locked, txnType, description)
		return err
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("confirm hold: %w", err)
	}
	s.confirmed(ctx, out)
	return out, nil
}

// ReleaseByReference releases the active hold for ref. found is false when
// there is no active hold, which is not an error.
func (s *Service) ReleaseByReference(ctx context.Context, ref ledger.Reference, reason string) (hold ledger.BalanceHold, found bool, err error) {
	if err := ref.Validate(); err != nil || ref.IsZero() {
		return ledger.BalanceHold{}, false, ledger.ErrInvalidReference
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		locked, err := tx.LockActiveHoldByReference(ctx, ref)
		if errors.Is(err, ledger.ErrHoldNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		hold, err = s.release(ctx, tx, locked, reason)
		return err
	})
	if err != nil {
		return ledger.BalanceHold{}, false, fmt.Errorf("release hold by reference: %w", err)
	}
	if found {
		s.released(ctx, hold)
	}
	return hold, found, nil
}

// ConfirmByReference confirms the active hold for ref. found is false when
// there is no active hold, which is not an error.
func (s *Service) ConfirmByReference(ctx context.Context, ref ledger.Reference, txnType ledger.TransactionType, description string) (out Confirmation, found bool, err error) {
	if err := ref.Validate(); err != nil || ref.IsZero() {
		return Confirmation{}, false, ledger.ErrInvalidReference
	}
	if txnType == "" {
		txnType = ledger.TypeHoldConfirmed
	}
	if !txnType.Valid() {
		return Confirmation{}, false, fmt.Errorf("%w: unknown transaction type %q", ledger.ErrInvalidInput, txnType)
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		locked, err := tx.LockActiveHoldByReference(ctx, ref)
		if errors.Is(err, ledger.ErrHoldNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		out, err = s.confirm(ctx, tx, locked, txnType, description)
		return err
	})
	if err != nil {
		return Confirmation{}, false, fmt.Errorf("confirm hold by reference: %w", err)
	}
	if found {
		s.confirmed(ctx, out)
	}
	return out, found, nil
}

// ExpireHolds marks every active hold past its expiry as expired and returns
// its reservation. It returns the number of holds processed.
func (s *Service) ExpireHolds(ctx context.Context) (int, error) {
	now := s.now()
	var expired []ledger.BalanceHold
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		holds, err := tx.LockExpiredHolds(ctx, now)
		if err != nil || len(holds) == 0 {
			return err
		}

		owners := make([]uuid.UUID, 0, len(holds))
		for _, h := range holds {
			owners = append(owners, h.UserID)
		}
		users, err := tx.LockUsers(ctx, owners...)
		if err != nil {
			return err
		}

		expired = make([]ledger.BalanceHold, 0, len(holds))
		for _, h := range holds {
			user := users[h.UserID]
			user.HoldBalance = floorZero(user.HoldBalance.Sub(h.Amount))
			user.UpdatedAt = now
			if err := tx.SaveBalances(ctx, user); err != nil {
				return err
			}
			h.Status = ledger.HoldExpired
			h.ReleasedAt = &now
			h.ReleaseReason = "expired"
			if err := tx.UpdateHold(ctx, h); err != nil {
				return err
			}
			expired = append(expired, h)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("expire holds: %w", err)
	}

	metrics.RecordHolds(string(ledger.HoldExpired), len(expired))
	for _, h := range expired {
		s.notify(ctx, notification.KindHoldExpired, h, "Your reservation of %s expired")
	}
	if len(expired) > 0 {
		s.logger.Info("holds expired", slog.Int("count", len(expired)))
	}
	return len(expired), nil
}

// Get returns a hold by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ledger.BalanceHold, error) {
	return s.store.Hold(ctx, id)
}

// List returns a page of holds.
func (s *Service) List(ctx context.Context, q ListQuery) (ledger.Page[ledger.BalanceHold], error) {
	return s.store.Holds(ctx, ledger.HoldFilter{
		UserID:      q.UserID,
		Status:      q.Status,
		PageRequest: ledger.PageRequest{Page: q.Page, Limit: q.Limit}.Normalize(s.pageSize),
	})
}

func (s *Service) release(ctx context.Context, tx ledger.Tx, hold ledger.BalanceHold, reason string) (ledger.BalanceHold, error) {
	if hold.Status != ledger.HoldActive {
		return ledger.BalanceHold{}, ledger.ErrInvalidHoldState
	}
	user, err := ledger.LockUser(ctx, tx, hold.UserID)
	if err != nil {
		return ledger.BalanceHold{}, err
	}

	now := s.now()
	user.HoldBalance = floorZero(user.HoldBalance.Sub(hold.Amount))
	user.UpdatedAt = now
	if err := tx.SaveBalances(ctx, user); err != nil {
		return ledger.BalanceHold{}, err
	}

	hold.Status = ledger.HoldReleased
	hold.ReleasedAt = &now
	hold.ReleaseReason = reason
	if err := tx.UpdateHold(ctx, hold); err != nil {
		return ledger.BalanceHold{}, err
	}
	return hold, nil
}

func (s *Service) confirm(ctx context.Context, tx ledger.Tx, hold ledger.BalanceHold, txnType ledger.TransactionType, description string) (Confirmation, error) {
	if hold.Status != ledger.HoldActive {
		return Confirmation{}, ledger.ErrInvalidHoldState
	}
	user, err := ledger.LockUser(ctx, tx, hold.UserID)
	if err != nil {
		return Confirmation{}, err
	}

	// Drop the reservation first so Post sees the held funds as available.
	now := s.now()
	user.HoldBalance = floorZero(user.HoldBalance.Sub(hold.Amount))
	if description == "" {
		description = hold.Description
	}
	txn, err := ledger.Post(ctx, tx, user, ledger.Entry{
		Amount:      hold.Amount.Neg(),
		Type:        txnType,
		Description: description,
		Reference:   hold.Reference,
	}, now)
	if err != nil {
		return Confirmation{}, err
	}

	hold.Status = ledger.HoldConfirmed
	hold.ConfirmedAt = &now
	hold.TransactionID = &txn.ID
	if err := tx.UpdateHold(ctx, hold); err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Hold: hold, Transaction: txn}, nil
}

func (s *Service) released(ctx context.Context, hold ledger.BalanceHold) {
	metrics.RecordHolds(string(hold.Status), 1)
	s.logger.Info("hold released",
		slog.String("hold_id", hold.ID.String()),
		slog.String("reason", hold.ReleaseReason))
	s.notify(ctx, notification.KindHoldReleased, hold, "Your reservation of %s was released")
}

func (s *Service) confirmed(ctx context.Context, c Confirmation) {
	metrics.RecordHolds(string(ledger.HoldConfirmed), 1)
	metrics.RecordTransactions(string(c.Transaction.Type))
	s.logger.Info("hold confirmed",
		slog.String("hold_id", c.Hold.ID.String()),
		slog.String("transaction_id", c.Transaction.ID.String()))
	s.notify(ctx, notification.KindHoldConfirmed, c.Hold, "Your reservation of %s was charged")
}

func (s *Service) notify(ctx context.Context, kind string, hold ledger.BalanceHold, format string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: hold.UserID.String(),
		Body:        fmt.Sprintf(format, hold.Amount.StringFixed(ledger.CurrencyPlaces)),
		Data: map[string]string{
			"hold_id":   hold.ID.String(),
			"reference": hold.Reference.String(),
		},
	})
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
