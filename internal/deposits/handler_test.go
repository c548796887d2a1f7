package deposits

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/playarena/arena_ledger/internal/auth"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/middleware"
)

func TestHandlerRequestLifecycle(t *testing.T) {
	store := ledger.NewInMemory()
	tokens := auth.NewTokens("secret", "")
	h := NewHandler(NewService(store, nil, logging.Discard(), testLimits()))

	app := fiber.New()
	api := app.Group("/deposit-requests", middleware.Actor(tokens))
	api.Post("/", h.Create)
	api.Get("/pending-counts", h.PendingCounts)
	api.Post("/:requestId/approve", h.Approve)

	organizer := ledger.SeedUser(store, ledger.RoleOrganizer, amt("1000"), decimal.Zero)
	player := ledger.SeedUser(store, ledger.RoleUser, decimal.Zero, decimal.Zero)
	playerToken, _ := tokens.Sign(auth.Actor{ID: player, Role: ledger.RoleUser}, time.Minute)
	organizerToken, _ := tokens.Sign(auth.Actor{ID: organizer, Role: ledger.RoleOrganizer}, time.Minute)

	do := func(method, path, token, body string) (int, map[string]any) {
		t.Helper()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
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

	status, body := do(fiber.MethodPost, "/deposit-requests", playerToken,
		`{"target_id":"`+organizer.String()+`","amount":"50","request_type":"user_to_organizer"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 below minimum, got %d (%v)", status, body)
	}

	status, body = do(fiber.MethodPost, "/deposit-requests", playerToken,
		`{"target_id":"`+organizer.String()+`","amount":"300","request_type":"user_to_organizer"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", status, body)
	}
	id, _ := body["id"].(string)

	status, body = do(fiber.MethodGet, "/deposit-requests/pending-counts", organizerToken, "")
	if status != fiber.StatusOK || body["incoming"] != float64(1) {
		t.Fatalf("unexpected pending counts %d %v", status, body)
	}

	status, _ = do(fiber.MethodPost, "/deposit-requests/"+id+"/approve", playerToken, "")
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for self approval, got %d", status)
	}
	status, body = do(fiber.MethodPost, "/deposit-requests/"+id+"/approve", organizerToken, `{"note":"ok"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	if txns, _ := body["transactions"].([]any); len(txns) != 2 {
		t.Fatalf("expected two transactions, got %v", body["transactions"])
	}
	status, _ = do(fiber.MethodPost, "/deposit-requests/"+id+"/approve", organizerToken, "")
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409 on second approval, got %d", status)
	}
}
