package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedUser is a test helper that creates a user with the given balances when
// using the in-memory store. It returns the user's id.
func SeedUser(s Store, role Role, wallet, hold decimal.Decimal) uuid.UUID {
	mem, ok := s.(*memoryStore)
	if !ok {
		return uuid.Nil
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()

	id := uuid.New()
	now := time.Now().UTC()
	mem.state.users[id] = User{
		ID:            id,
		DisplayName:   string(role) + "-" + id.String()[:8],
		Email:         id.String() + "@example.test",
		Role:          role,
		WalletBalance: wallet,
		HoldBalance:   hold,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return id
}

// Entries is a test helper returning every ledger row of userID in posting
// order from the in-memory store.
func Entries(s Store, userID uuid.UUID) []WalletTransaction {
	mem, ok := s.(*memoryStore)
	if !ok {
		return nil
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()

	var out []WalletTransaction
	for _, txn := range mem.state.transactions {
		if txn.UserID == userID {
			out = append(out, txn)
		}
	}
	return out
}

// TransactionCount is a test helper returning the total number of ledger rows.
func TransactionCount(s Store) int {
	mem, ok := s.(*memoryStore)
	if !ok {
		return 0
	}
	mem.mu.Lock()
	defer mem.mu.Unlock()
	return len(mem.state.transactions)
}
