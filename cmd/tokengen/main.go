// Command tokengen mints bearer tokens for operators and integration tests.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/playarena/arena_ledger/internal/auth"
	"github.com/playarena/arena_ledger/internal/ledger"
)

func main() {
	_ = godotenv.Load()

	var (
		userID = flag.String("user", "", "user id (uuid) to issue the token for")
		role   = flag.String("role", string(ledger.RoleUser), "role claim: owner, organizer or user")
		ttl    = flag.Duration("ttl", time.Hour, "token lifetime")
		issuer = flag.String("issuer", envOr("APP_NAME", "ArenaLedger"), "issuer claim")
	)
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fail("JWT_SECRET must be set")
	}
	id, err := uuid.Parse(*userID)
	if err != nil {
		fail("invalid -user: %v", err)
	}
	r := ledger.Role(*role)
	if !r.Valid() {
		fail("invalid -role %q", *role)
	}

	token, err := auth.NewTokens(secret, *issuer).Sign(auth.Actor{ID: id, Role: r}, *ttl)
	if err != nil {
		fail("sign token: %v", err)
	}
	fmt.Println(token)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
