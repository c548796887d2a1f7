package infra

import (
	"context"
	"io"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestMigrationSourceHasPairedMigrations(t *testing.T) {
	src, err := MigrationSource()
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	for {
		up, _, err := src.ReadUp(version)
		if err != nil {
			t.Fatalf("read up %d: %v", version, err)
		}
		body, _ := io.ReadAll(up)
		up.Close()
		if len(body) == 0 {
			t.Fatalf("empty up migration %d", version)
		}
		down, _, err := src.ReadDown(version)
		if err != nil {
			t.Fatalf("read down %d: %v", version, err)
		}
		down.Close()

		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
	}
}

func TestSchemaCarriesLedgerConstraints(t *testing.T) {
	raw, err := migrationFiles.ReadFile("migrations/0001_ledger.up.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	schema := string(raw)
	for _, name := range []string{"users_email_key", "wallet_transactions_idempotency_key", "balance_holds_active_reference"} {
		if !strings.Contains(schema, name) {
			t.Fatalf("schema is missing %s", name)
		}
	}
}

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/arena": "pgx5://u:p@db:5432/arena",
		"postgresql://db/arena":        "pgx5://db/arena",
		"pgx5://db/arena":              "pgx5://db/arena",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	client.Close()

	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatal("expected empty url to fail")
	}
}

func TestNewPostgresPoolRejectsBadURL(t *testing.T) {
	if _, err := NewPostgresPool(context.Background(), ""); err == nil {
		t.Fatal("expected empty url to fail")
	}
	if _, err := NewPostgresPool(context.Background(), "postgres://%zz"); err == nil {
		t.Fatal("expected malformed url to fail")
	}
}
