package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/metrics"
)

// Service exposes single-user wallet operations backed by the ledger store.
type Service struct {
	store    ledger.Store
	logger   *slog.Logger
	pageSize int
	now      func() time.Time
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, logger *slog.Logger, pageSize int) *Service {
	return &Service{
		store:    store,
		logger:   logging.Component(logger, "wallet"),
		pageSize: pageSize,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Credit adds amount to the user's wallet and records the ledger row.
func (s *Service) Credit(ctx context.Context, input CreditInput) (ledger.WalletTransaction, error) {
	if err := ledger.ValidateAmount(input.Amount); err != nil {
		return ledger.WalletTransaction{}, err
	}
	if err := input.Reference.Validate(); err != nil {
		return ledger.WalletTransaction{}, err
	}
	if input.Type == "" {
		input.Type = ledger.TypeDeposit
	}

	return s.post(ctx, input.UserID, ledger.Entry{
		Amount:      input.Amount,
		Type:        input.Type,
		Description: input.Description,
		Reference:   input.Reference,
		FromUserID:  input.FromUserID,
	})
}

// Debit removes amount from the user's wallet. Funds reserved by active
// holds cannot be debited.
func (s *Service) Debit(ctx context.Context, input DebitInput) (ledger.WalletTransaction, error) {
	if err := ledger.ValidateAmount(input.Amount); err != nil {
		return ledger.WalletTransaction{}, err
	}
	if err := input.Reference.Validate(); err != nil {
		return ledger.WalletTransaction{}, err
	}
	if input.Type == "" {
		input.Type = ledger.TypeWithdrawal
	}

	return s.post(ctx, input.UserID, ledger.Entry{
		Amount:      input.Amount.Neg(),
		Type:        input.Type,
		Description: input.Description,
		Reference:   input.Reference,
	})
}

func (s *Service) post(ctx context.Context, userID uuid.UUID, entry ledger.Entry) (ledger.WalletTransaction, error) {
	var txn ledger.WalletTransaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		user, err := ledger.LockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		txn, err = ledger.Post(ctx, tx, user, entry, s.now())
		return err
	})
	if err != nil {
		return ledger.WalletTransaction{}, fmt.Errorf("%s: %w", entry.Type, err)
	}

	metrics.RecordTransactions(string(txn.Type))
	s.logger.Info("wallet posted",
		slog.String("user_id", userID.String()),
		slog.String("type", string(txn.Type)),
		slog.String("amount", txn.Amount.StringFixed(ledger.CurrencyPlaces)),
		slog.String("balance_after", txn.BalanceAfter.StringFixed(ledger.CurrencyPlaces)))
	return txn, nil
}

// Balance returns the user's wallet balance.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.WalletBalance, nil
}

// AvailableBalance returns the wallet balance minus active holds.
func (s *Service) AvailableBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Available(), nil
}

// Summary returns wallet, hold and available balances together.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (ledger.BalanceSummary, error) {
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return ledger.BalanceSummary{}, err
	}
	return user.Summary(s.now()), nil
}

// History returns a page of the user's ledger rows.
func (s *Service) History(ctx context.Context, q HistoryQuery) (ledger.Page[ledger.WalletTransaction], error) {
	if q.Type != "" && !q.Type.Valid() {
		return ledger.Page[ledger.WalletTransaction]{}, fmt.Errorf("%w: unknown transaction type %q", ledger.ErrInvalidInput, q.Type)
	}
	if _, err := s.store.User(ctx, q.UserID); err != nil {
		return ledger.Page[ledger.WalletTransaction]{}, err
	}
	return s.store.Transactions(ctx, ledger.TransactionFilter{
		UserID:      q.UserID,
		Type:        q.Type,
		PageRequest: ledger.PageRequest{Page: q.Page, Limit: q.Limit}.Normalize(s.pageSize),
	})
}
