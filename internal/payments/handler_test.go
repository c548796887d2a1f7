package payments

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/playarena/arena_ledger/internal/auth"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/middleware"
)

func newTestApp(store ledger.Store, tokens *auth.Tokens) *fiber.App {
	h := NewHandler(NewService(store, nil, logging.Discard()))
	app := fiber.New()
	app.Post("/owner-deposit", middleware.Actor(tokens), middleware.RequireRole(ledger.RoleOwner), h.OwnerDeposit)
	app.Post("/organizer-deposit", middleware.Actor(tokens), middleware.RequireRole(ledger.RoleOrganizer), h.OrganizerDeposit)
	return app
}

func send(t *testing.T, app *fiber.App, path, token, key, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func TestHandlerOwnerDeposit(t *testing.T) {
	store := ledger.NewInMemory()
	tokens := auth.NewTokens("secret", "")
	app := newTestApp(store, tokens)

	owner := ledger.SeedUser(store, ledger.RoleOwner, decimal.Zero, decimal.Zero)
	organizer := ledger.SeedUser(store, ledger.RoleOrganizer, decimal.Zero, decimal.Zero)
	token, _ := tokens.Sign(auth.Actor{ID: owner, Role: ledger.RoleOwner}, time.Minute)

	status, body := send(t, app, "/owner-deposit", token, "", `{"recipient_id":"`+organizer.String()+`","amount":"500"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", status, body)
	}
	if body["amount"] != "500.00" || body["balance_after"] != "500.00" {
		t.Fatalf("unexpected body %v", body)
	}

	status, _ = send(t, app, "/owner-deposit", token, "", `{"recipient_id":"`+organizer.String()+`","amount":"-1"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for negative amount, got %d", status)
	}
}

func TestHandlerOrganizerDepositErrors(t *testing.T) {
	store := ledger.NewInMemory()
	tokens := auth.NewTokens("secret", "")
	app := newTestApp(store, tokens)

	organizer := ledger.SeedUser(store, ledger.RoleOrganizer, amt("10"), decimal.Zero)
	player := ledger.SeedUser(store, ledger.RoleUser, decimal.Zero, decimal.Zero)
	token, _ := tokens.Sign(auth.Actor{ID: organizer, Role: ledger.RoleOrganizer}, time.Minute)

	status, _ := send(t, app, "/organizer-deposit", token, "k", `{"recipient_id":"`+player.String()+`","amount":"20"}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	status, _ = send(t, app, "/organizer-deposit", token, "k", `{"recipient_id":"`+uuid.NewString()+`","amount":"1"}`)
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}

	status, _ = send(t, app, "/organizer-deposit", token, "ok", `{"recipient_id":"`+player.String()+`","amount":"4"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	status, body := send(t, app, "/organizer-deposit", token, "ok", `{"recipient_id":"`+player.String()+`","amount":"4"}`)
	if status != fiber.StatusOK || body["credit"] == nil {
		t.Fatalf("expected replayed 200, got %d (%v)", status, body)
	}
}

func TestHandlerOrganizerDepositSharedKeyAcrossOrganizers(t *testing.T) {
	store := ledger.NewInMemory()
	tokens := auth.NewTokens("secret", "")
	app := newTestApp(store, tokens)

	first := ledger.SeedUser(store, ledger.RoleOrganizer, amt("1000"), decimal.Zero)
	second := ledger.SeedUser(store, ledger.RoleOrganizer, amt("1000"), decimal.Zero)
	player := ledger.SeedUser(store, ledger.RoleUser, decimal.Zero, decimal.Zero)
	firstToken, _ := tokens.Sign(auth.Actor{ID: first, Role: ledger.RoleOrganizer}, time.Minute)
	secondToken, _ := tokens.Sign(auth.Actor{ID: second, Role: ledger.RoleOrganizer}, time.Minute)

	body := `{"recipient_id":"` + player.String() + `","amount":"100"}`
	if status, _ := send(t, app, "/organizer-deposit", firstToken, "k1", body); status != fiber.StatusCreated {
		t.Fatalf("first organizer: expected 201, got %d", status)
	}
	status, resp := send(t, app, "/organizer-deposit", secondToken, "k1", body)
	if status != fiber.StatusCreated {
		t.Fatalf("second organizer: expected 201, got %d (%v)", status, resp)
	}
	credit, _ := resp["credit"].(map[string]any)
	if credit["balance_after"] != "200.00" {
		t.Fatalf("expected second credit to land, got %v", resp)
	}
}
