package wallet

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playarena/arena_ledger/internal/ledger"
)

// CreditInput captures data required to credit a wallet.
type CreditInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Type        ledger.TransactionType
	Description string
	FromUserID  *uuid.UUID
	Reference   ledger.Reference
}

// DebitInput captures data required to debit a wallet.
type DebitInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Type        ledger.TransactionType
	Description string
	Reference   ledger.Reference
}

// HistoryQuery selects a page of a user's ledger rows, newest first.
type HistoryQuery struct {
	UserID uuid.UUID
	Type   ledger.TransactionType
	Page   int
	Limit  int
}
