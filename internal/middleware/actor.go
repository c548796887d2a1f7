package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/playarena/arena_ledger/internal/auth"
	"github.com/playarena/arena_ledger/internal/ledger"
)

const actorLocal = "actor"

// Actor verifies the bearer token and stores the resolved actor on the context.
func Actor(tokens *auth.Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		actor, err := tokens.Parse(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(actorLocal, actor)
		return c.Next()
	}
}

// ActorFrom returns the actor resolved by Actor.
func ActorFrom(c *fiber.Ctx) (auth.Actor, bool) {
	actor, ok := c.Locals(actorLocal).(auth.Actor)
	return actor, ok
}

// RequireRole rejects actors whose role is not in roles.
func RequireRole(roles ...ledger.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFrom(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "missing actor")
		}
		for _, role := range roles {
			if actor.Role == role {
				return c.Next()
			}
		}
		return fiber.NewError(http.StatusForbidden, "role not permitted")
	}
}

// ScopedUserID returns the user a read request is about: the user_id query
// parameter when the actor is an owner, otherwise the actor itself.
func ScopedUserID(c *fiber.Ctx) (uuid.UUID, error) {
	actor, ok := ActorFrom(c)
	if !ok {
		return uuid.Nil, fiber.NewError(http.StatusUnauthorized, "missing actor")
	}
	raw := c.Query("user_id")
	if raw == "" {
		return actor.ID, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, "invalid user_id")
	}
	if id != actor.ID && actor.Role != ledger.RoleOwner {
		return uuid.Nil, fiber.NewError(http.StatusForbidden, "cannot view another user")
	}
	return id, nil
}
