package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/playarena/arena_ledger/internal/ledger"
)

// ErrInvalidToken is returned for tokens that fail verification or carry
// unusable claims.
var ErrInvalidToken = errors.New("invalid token")

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role ledger.Role
}

// Claims is the JWT payload issued by the platform's auth service.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 actor tokens.
type Tokens struct {
	secret []byte
	issuer string
}

// NewTokens builds a token codec for the shared secret.
func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer}
}

// Sign issues a token for actor valid for ttl.
func (t *Tokens) Sign(actor Actor, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies token and returns the actor it names.
func (t *Tokens) Parse(token string) (Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	role := ledger.Role(claims.Role)
	if !role.Valid() {
		return Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return Actor{ID: id, Role: role}, nil
}
