package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry describes one signed balance change to post against a locked user.
type Entry struct {
	Amount         decimal.Decimal
	Type           TransactionType
	Description    string
	Reference      Reference
	FromUserID     *uuid.UUID
	IdempotencyKey string
}

// Post applies e to user, persists the new balances and appends the matching
// ledger row with the before/after snapshot. The caller must hold the user's
// row lock in tx. user is updated in place so later posts in the same
// transaction see the new balance.
func Post(ctx context.Context, tx Tx, user *User, e Entry, now time.Time) (WalletTransaction, error) {
	if e.Amount.IsZero() {
		return WalletTransaction{}, ErrInvalidAmount
	}
	if !e.Type.Valid() {
		return WalletTransaction{}, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, e.Type)
	}

	before := user.WalletBalance
	after := before.Add(e.Amount)
	if after.IsNegative() {
		return WalletTransaction{}, ErrInsufficientBalance
	}
	if after.LessThan(user.HoldBalance) {
		return WalletTransaction{}, ErrInsufficientAvailableBalance
	}

	user.WalletBalance = after
	user.UpdatedAt = now
	if err := tx.SaveBalances(ctx, user); err != nil {
		return WalletTransaction{}, fmt.Errorf("save balances: %w", err)
	}

	txn := WalletTransaction{
		ID:             uuid.New(),
		UserID:         user.ID,
		Amount:         e.Amount,
		Type:           e.Type,
		Status:         StatusCompleted,
		Description:    e.Description,
		Reference:      e.Reference,
		FromUserID:     e.FromUserID,
		BalanceBefore:  before,
		BalanceAfter:   after,
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := tx.InsertTransaction(ctx, &txn); err != nil {
		return WalletTransaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return txn, nil
}

// LockUser locks a single user row.
func LockUser(ctx context.Context, tx Tx, id uuid.UUID) (*User, error) {
	users, err := tx.LockUsers(ctx, id)
	if err != nil {
		return nil, err
	}
	return users[id], nil
}
