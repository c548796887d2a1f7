package holds

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/playarena/arena_ledger/internal/auth"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/middleware"
)

func newHoldApp(svc *Service, tokens *auth.Tokens) *fiber.App {
	h := NewHandler(svc)
	app := fiber.New()
	group := app.Group("/holds", middleware.Actor(tokens))
	owner := middleware.RequireRole(ledger.RoleOwner)
	group.Get("", h.List)
	group.Get("/:holdId", h.Get)
	group.Post("", owner, h.Create)
	group.Post("/by-reference/release", owner, h.ReleaseByReference)
	group.Post("/by-reference/confirm", owner, h.ConfirmByReference)
	group.Post("/:holdId/release", owner, h.Release)
	group.Post("/:holdId/confirm", owner, h.Confirm)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func TestHandlerHoldLifecycle(t *testing.T) {
	svc, store := newTestService()
	tokens := auth.NewTokens("holds-secret", "")
	app := newHoldApp(svc, tokens)

	owner := ledger.SeedUser(store, ledger.RoleOwner, decimal.Zero, decimal.Zero)
	player := ledger.SeedUser(store, ledger.RoleUser, amt("100"), decimal.Zero)
	other := ledger.SeedUser(store, ledger.RoleUser, amt("100"), decimal.Zero)
	ownerToken, _ := tokens.Sign(auth.Actor{ID: owner, Role: ledger.RoleOwner}, time.Minute)
	playerToken, _ := tokens.Sign(auth.Actor{ID: player, Role: ledger.RoleUser}, time.Minute)
	otherToken, _ := tokens.Sign(auth.Actor{ID: other, Role: ledger.RoleUser}, time.Minute)

	create := func(amount, ref string) string {
		return `{"user_id":"` + player.String() + `","amount":"` + amount + `","hold_type":"waitlist_entry_fee","reference":"` + ref + `"}`
	}

	status, body := doJSON(t, app, fiber.MethodPost, "/holds", ownerToken, create("30", "waitlist_entry_w1"))
	if status != fiber.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%v)", status, body)
	}
	if body["status"] != "active" || body["amount"] != "30.00" || body["reference"] != "waitlist_entry_w1" {
		t.Fatalf("unexpected hold %v", body)
	}
	holdID, _ := body["id"].(string)

	if status, _ := doJSON(t, app, fiber.MethodPost, "/holds", ownerToken, create("5", "bogus_1")); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for unknown reference kind, got %d", status)
	}
	if status, _ := doJSON(t, app, fiber.MethodPost, "/holds", ownerToken, create("5", "")); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for missing reference, got %d", status)
	}
	if status, _ := doJSON(t, app, fiber.MethodPost, "/holds", ownerToken, create("5", "waitlist_entry_w1")); status != fiber.StatusConflict {
		t.Fatalf("expected 409 for second active hold on a reference, got %d", status)
	}
	if status, _ := doJSON(t, app, fiber.MethodPost, "/holds", playerToken, create("5", "waitlist_entry_w9")); status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for non-owner create, got %d", status)
	}

	if status, _ := doJSON(t, app, fiber.MethodGet, "/holds/"+holdID, playerToken, ""); status != fiber.StatusOK {
		t.Fatalf("expected holder to read own hold, got %d", status)
	}
	if status, _ := doJSON(t, app, fiber.MethodGet, "/holds/"+holdID, otherToken, ""); status != fiber.StatusNotFound {
		t.Fatalf("expected foreign hold to be hidden, got %d", status)
	}

	status, body = doJSON(t, app, fiber.MethodGet, "/holds?status=active", playerToken, "")
	if status != fiber.StatusOK || body["total"] != float64(1) {
		t.Fatalf("unexpected active list %d %v", status, body)
	}
	if status, _ := doJSON(t, app, fiber.MethodGet, "/holds?status=pending", playerToken, ""); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", status)
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/holds/by-reference/release", ownerToken, `{"reference":"waitlist_entry_none"}`)
	if status != fiber.StatusOK || body["found"] != false {
		t.Fatalf("expected found=false, got %d %v", status, body)
	}
	if status, _ := doJSON(t, app, fiber.MethodPost, "/holds/by-reference/release", ownerToken, `{}`); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without reference, got %d", status)
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/holds/"+holdID+"/confirm", ownerToken, "")
	if status != fiber.StatusOK {
		t.Fatalf("confirm without body: expected 200, got %d (%v)", status, body)
	}
	txn, _ := body["transaction"].(map[string]any)
	if txn["amount"] != "-30.00" || txn["type"] != string(ledger.TypeHoldConfirmed) {
		t.Fatalf("unexpected confirmation %v", body)
	}
	if status, _ := doJSON(t, app, fiber.MethodPost, "/holds/"+holdID+"/release", ownerToken, ""); status != fiber.StatusConflict {
		t.Fatalf("expected 409 releasing a confirmed hold, got %d", status)
	}

	if status, _ := doJSON(t, app, fiber.MethodPost, "/holds", ownerToken, create("20", "waitlist_entry_w2")); status != fiber.StatusCreated {
		t.Fatalf("second hold: expected 201, got %d", status)
	}
	status, body = doJSON(t, app, fiber.MethodPost, "/holds/by-reference/release", ownerToken, `{"reference":"waitlist_entry_w2","reason":"left waitlist"}`)
	hold, _ := body["hold"].(map[string]any)
	if status != fiber.StatusOK || body["found"] != true || hold["status"] != "released" || hold["release_reason"] != "left waitlist" {
		t.Fatalf("unexpected by-reference release %d %v", status, body)
	}

	wallet, held := userBalances(t, store, player)
	if !wallet.Equal(amt("70")) || !held.IsZero() {
		t.Fatalf("expected wallet 70 hold 0, got %s/%s", wallet, held)
	}
}
