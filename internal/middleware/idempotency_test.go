package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/playarena/arena_ledger/internal/auth"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int32, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	logger := logging.Discard()
	var calls int32
	app.Use(func(c *fiber.Ctx) error {
		if id := c.Get("X-Test-Actor"); id != "" {
			c.Locals(actorLocal, auth.Actor{ID: uuid.MustParse(id), Role: ledger.RoleOrganizer})
		}
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logger))
	app.Post("/resource", func(c *fiber.Ctx) error {
		atomic.AddInt32(&calls, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": atomic.LoadInt32(&calls)})
	})
	app.Post("/failing", func(c *fiber.Ctx) error {
		atomic.AddInt32(&calls, 1)
		return fiber.NewError(fiber.StatusUnprocessableEntity, "insufficient balance")
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &calls, cleanup
}

func post(t *testing.T, app *fiber.App, path, key, actor string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	if actor != "" {
		req.Header.Set("X-Test-Actor", actor)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _, cleanup := setupTestApp(t)
	defer cleanup()

	if status, _ := post(t, app, "/resource", "", ""); status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	status, payload := post(t, app, "/resource", "abc123", "")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking handler again.
	status, cachedPayload := post(t, app, "/resource", "abc123", "")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("expected handler to run once, ran %d times", atomic.LoadInt32(calls))
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedPerActor(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "shared", uuid.NewString())
	post(t, app, "/resource", "shared", uuid.NewString())
	if atomic.LoadInt32(calls) != 2 {
		t.Fatalf("expected distinct actors to both execute, got %d calls", atomic.LoadInt32(calls))
	}
}

func TestIdempotencyFreesKeyOnFailure(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		if status, _ := post(t, app, "/failing", "retry-me", ""); status != fiber.StatusUnprocessableEntity {
			t.Fatalf("attempt %d: expected 422 got %d", i, status)
		}
	}
	if atomic.LoadInt32(calls) != 2 {
		t.Fatalf("expected failed attempt to be retryable, got %d calls", atomic.LoadInt32(calls))
	}
}

func TestOptionalIdempotencyPassesWithoutHeader(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	var calls int32
	app := fiber.New()
	app.Post("/transfer", OptionalIdempotency(cache, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		atomic.AddInt32(&calls, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": atomic.LoadInt32(&calls)})
	})

	for i := 0; i < 2; i++ {
		if status, _ := post(t, app, "/transfer", "", ""); status != fiber.StatusCreated {
			t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
		}
	}
	_, first := post(t, app, "/transfer", "k1", "")
	_, second := post(t, app, "/transfer", "k1", "")
	if first != second || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected keyed retry to replay, calls=%d first=%s second=%s", calls, first, second)
	}
}

func TestIdempotencyRejectsKeyReuseAcrossRoutes(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	if status, _ := post(t, app, "/resource", "once", ""); status != fiber.StatusCreated {
		t.Fatalf("expected 201 got %d", status)
	}
	if status, _ := post(t, app, "/failing", "once", ""); status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for reused key, got %d", status)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("expected reused key not to reach the handler, got %d calls", atomic.LoadInt32(calls))
	}
}
