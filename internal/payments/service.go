package payments

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

// Service moves funds down the owner -> organizer -> user hierarchy.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a payment service.
func NewService(store ledger.Store, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logging.Component(logger, "payments"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OwnerDepositInput captures an owner crediting an organizer.
type OwnerDepositInput struct {
	OwnerID     uuid.UUID
	OrganizerID uuid.UUID
	Amount      decimal.Decimal
	Note        string
}

// OrganizerDepositInput captures an organizer transferring to a user.
// IdempotencyKey is optional and scoped to the organizer; a repeat with the
// same key moves no money.
type OrganizerDepositInput struct {
	OrganizerID    uuid.UUID
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Note           string
	IdempotencyKey string
}

// TransferResult holds the debit and credit rows of a two-party transfer.
type TransferResult struct {
	Debit  ledger.WalletTransaction
	Credit ledger.WalletTransaction
}

// Replayed reports whether the result carries rows of an earlier transfer.
func (r TransferResult) Replayed() bool {
	return r.Debit.ID != uuid.Nil && r.Credit.ID != uuid.Nil
}

// OwnerDepositToOrganizer credits an organizer on behalf of the platform
// owner. The owner's own balance is not debited.
func (s *Service) OwnerDepositToOrganizer(ctx context.Context, input OwnerDepositInput) (ledger.WalletTransaction, error) {
	if err := ledger.ValidateAmount(input.Amount); err != nil {
		return ledger.WalletTransaction{}, err
	}

	var txn ledger.WalletTransaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		users, err := tx.LockUsers(ctx, input.OwnerID, input.OrganizerID)
		if err != nil {
			return err
		}
		owner, organizer := users[input.OwnerID], users[input.OrganizerID]
		if owner.Role != ledger.RoleOwner || organizer.Role != ledger.RoleOrganizer {
			return ledger.ErrRoleMismatch
		}

		txn, err = ledger.Post(ctx, tx, organizer, ledger.Entry{
			Amount:      input.Amount,
			Type:        ledger.TypeOwnerDeposit,
			Description: describe(input.Note, "Deposit from %s", owner.DisplayName),
			FromUserID:  &owner.ID,
		}, s.now())
		return err
	})
	if err != nil {
		return ledger.WalletTransaction{}, fmt.Errorf("owner deposit: %w", err)
	}

	metrics.RecordTransactions(string(txn.Type))
	s.logger.Info("owner deposit completed",
		slog.String("owner_id", input.OwnerID.String()),
		slog.String("organizer_id", input.OrganizerID.String()),
		slog.String("amount", input.Amount.StringFixed(ledger.CurrencyPlaces)))
	s.notifyReceived(ctx, txn)
	return txn, nil
}

// OrganizerDepositToUser moves amount from the organizer's wallet to the
// user's wallet. Both balances and both ledger rows commit together.
func (s *Service) OrganizerDepositToUser(ctx context.Context, input OrganizerDepositInput) (TransferResult, error) {
	if err := ledger.ValidateAmount(input.Amount); err != nil {
		return TransferResult{}, err
	}
	key := strings.TrimSpace(input.IdempotencyKey)

	var (
		result    TransferResult
		duplicate bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		users, err := tx.LockUsers(ctx, input.OrganizerID, input.UserID)
		if err != nil {
			return err
		}
		organizer, user := users[input.OrganizerID], users[input.UserID]
		if organizer.Role != ledger.RoleOrganizer || user.Role != ledger.RoleUser {
			return ledger.ErrRoleMismatch
		}

		if key != "" {
			existing, err := tx.TransactionsByIdempotencyKey(ctx, organizer.ID, key)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				result = pairFrom(existing, organizer.ID)
				duplicate = true
				return nil
			}
		}

		now := s.now()
		ref := ledger.TransferRef(uuid.New())
		result.Debit, err = ledger.Post(ctx, tx, organizer, ledger.Entry{
			Amount:         input.Amount.Neg(),
			Type:           ledger.TypeOrganizerDeposit,
			Description:    describe(input.Note, "Deposit to %s", user.DisplayName),
			Reference:      ref,
			IdempotencyKey: key,
		}, now)
		if err != nil {
			return err
		}
		result.Credit, err = ledger.Post(ctx, tx, user, ledger.Entry{
			Amount:      input.Amount,
			Type:        ledger.TypeOrganizerDeposit,
			Description: describe(input.Note, "Deposit from %s", organizer.DisplayName),
			Reference:   ref,
			FromUserID:  &organizer.ID,
		}, now)
		return err
	})
	if err != nil {
		return TransferResult{}, fmt.Errorf("organizer deposit: %w", err)
	}
	if duplicate {
		return result, ledger.ErrDuplicateTransaction
	}

	metrics.RecordTransactions(string(result.Debit.Type), string(result.Credit.Type))
	s.logger.Info("organizer deposit completed",
		slog.String("organizer_id", input.OrganizerID.String()),
		slog.String("user_id", input.UserID.String()),
		slog.String("amount", input.Amount.StringFixed(ledger.CurrencyPlaces)))
	s.notifyReceived(ctx, result.Credit)
	return result, nil
}

func (s *Service) notifyReceived(ctx context.Context, txn ledger.WalletTransaction) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindDepositReceived,
		Destination: txn.UserID.String(),
		Body:        fmt.Sprintf("You received %s", txn.Amount.StringFixed(ledger.CurrencyPlaces)),
		Data:        map[string]string{"transaction_id": txn.ID.String()},
	})
}

func pairFrom(rows []ledger.WalletTransaction, organizerID uuid.UUID) TransferResult {
	var out TransferResult
	for _, row := range rows {
		if row.UserID == organizerID && row.Amount.IsNegative() {
			out.Debit = row
		} else {
			out.Credit = row
		}
	}
	return out
}

func describe(note, format, name string) string {
	if note = strings.TrimSpace(note); note != "" {
		return note
	}
	return fmt.Sprintf(format, name)
}
