package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/playarena/arena_ledger/internal/ledger"
)

// Profile is the non-monetary part of a platform user. Balances are never
// part of a profile so cached profiles cannot go stale on money.
type Profile struct {
	ID          uuid.UUID   `json:"id"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email"`
	Role        ledger.Role `json:"role"`
	CreatedAt   time.Time   `json:"created_at"`
}

// RegisterInput captures the data required to register a user.
type RegisterInput struct {
	DisplayName string      `validate:"required,max=100"`
	Email       string      `validate:"required,email,max=254"`
	Role        ledger.Role `validate:"oneof=owner organizer user"`
}

func profileOf(u ledger.User) Profile {
	return Profile{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}
