package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/playarena/arena_ledger/internal/ledger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service manages user profiles.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates a user with empty balances.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Profile, error) {
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := validate.Struct(input); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return Profile{}, fmt.Errorf("%w: %s failed %q", ledger.ErrInvalidInput, strings.ToLower(fields[0].Field()), fields[0].Tag())
		}
		return Profile{}, fmt.Errorf("%w: %v", ledger.ErrInvalidInput, err)
	}

	profile := Profile{
		ID:          uuid.New(),
		DisplayName: input.DisplayName,
		Email:       input.Email,
		Role:        input.Role,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Profile returns the profile of id.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (Profile, error) {
	return s.repo.FindByID(ctx, id)
}
