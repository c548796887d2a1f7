package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/playarena/arena_ledger/internal/ledger"
)

const profileKeyPrefix = "profile:v1:"

// Repository persists user profiles.
type Repository interface {
	Create(ctx context.Context, profile Profile) error
	FindByID(ctx context.Context, id uuid.UUID) (Profile, error)
}

// StoreRepository keeps profiles in the ledger's users table, the same rows
// that carry the balances.
type StoreRepository struct {
	store ledger.Store
}

// NewStoreRepository builds a repository over the ledger store.
func NewStoreRepository(store ledger.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// Create inserts a new user with zero balances.
func (r *StoreRepository) Create(ctx context.Context, profile Profile) error {
	return r.store.CreateUser(ctx, ledger.User{
		ID:            profile.ID,
		DisplayName:   profile.DisplayName,
		Email:         profile.Email,
		Role:          profile.Role,
		WalletBalance: decimal.Zero,
		HoldBalance:   decimal.Zero,
		CreatedAt:     profile.CreatedAt,
		UpdatedAt:     profile.CreatedAt,
	})
}

// FindByID fetches a profile.
func (r *StoreRepository) FindByID(ctx context.Context, id uuid.UUID) (Profile, error) {
	user, err := r.store.User(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return profileOf(user), nil
}

// CachedRepository is a Redis read-through cache in front of another
// repository. Cache failures fall back to the underlying repository.
type CachedRepository struct {
	next   Repository
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedRepository wraps next with a profile cache.
func NewCachedRepository(next Repository, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRepository {
	return &CachedRepository{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Create writes through and primes the cache.
func (r *CachedRepository) Create(ctx context.Context, profile Profile) error {
	if err := r.next.Create(ctx, profile); err != nil {
		return err
	}
	r.store(ctx, profile)
	return nil
}

// FindByID serves from the cache when possible.
func (r *CachedRepository) FindByID(ctx context.Context, id uuid.UUID) (Profile, error) {
	key := profileKeyPrefix + id.String()
	cached, err := r.cache.Get(ctx, key).Bytes()
	if err == nil {
		var profile Profile
		if err := json.Unmarshal(cached, &profile); err == nil {
			return profile, nil
		}
		r.logger.Warn("discarding undecodable cached profile", slog.String("user_id", id.String()))
	} else if !errors.Is(err, redis.Nil) {
		r.logger.Warn("profile cache lookup failed", slog.String("user_id", id.String()), slog.Any("error", err))
	}

	profile, err := r.next.FindByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	r.store(ctx, profile)
	return profile, nil
}

func (r *CachedRepository) store(ctx context.Context, profile Profile) {
	payload, err := json.Marshal(profile)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, profileKeyPrefix+profile.ID.String(), payload, r.ttl).Err(); err != nil {
		r.logger.Warn("profile cache write failed", slog.String("user_id", profile.ID.String()), slog.Any("error", err))
	}
}
