package server

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/playarena/arena_ledger/internal/config"
	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/routes"
)

func TestErrorHandlerRendersJSON(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Get("/teapot", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("connection reset")
	})

	cases := map[string]struct {
		status  int
		message string
	}{
		"/teapot": {fiber.StatusTeapot, "short and stout"},
		"/boom":   {fiber.StatusInternalServerError, "internal error"},
	}
	for path, want := range cases {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		var body map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if resp.StatusCode != want.status || body["error"] != want.message {
			t.Fatalf("%s: unexpected %d %v", path, resp.StatusCode, body)
		}
	}
}

func TestNewServesRoutes(t *testing.T) {
	deps := routes.Deps{
		Cfg:    config.Config{AppName: "ArenaLedger", AppEnv: "development", JWTSecret: "s", IdempotencyTTL: time.Minute},
		Logger: logging.Discard(),
	}
	services, err := routes.NewServices(deps)
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	srv, err := New(deps, services)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	resp, err := srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/wallet/balance", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
