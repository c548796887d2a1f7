package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/playarena/arena_ledger/internal/auth"
	"github.com/playarena/arena_ledger/internal/config"
	"github.com/playarena/arena_ledger/internal/deposits"
	"github.com/playarena/arena_ledger/internal/holds"
	"github.com/playarena/arena_ledger/internal/identity"
	"github.com/playarena/arena_ledger/internal/ledger"
	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/middleware"
	"github.com/playarena/arena_ledger/internal/notification"
	"github.com/playarena/arena_ledger/internal/payments"
	"github.com/playarena/arena_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
}

// Services holds the domain services behind the HTTP API.
type Services struct {
	Store    ledger.Store
	Wallet   *wallet.Service
	Payments *payments.Service
	Holds    *holds.Service
	Deposits *deposits.Service
	Identity *identity.Service
}

// NewServices builds the domain services. Without a database the in-memory
// store is used, which is only allowed in development.
func NewServices(d Deps) (Services, error) {
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		if !d.Cfg.IsDev() {
			return Services{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		store = ledger.NewInMemory()
	}

	var profiles identity.Repository = identity.NewStoreRepository(store)
	if d.Cache != nil {
		profiles = identity.NewCachedRepository(profiles, d.Cache, d.Cfg.ProfileCacheTTL, logging.Component(d.Logger, "profile_cache"))
	}

	limits := d.Cfg.Ledger
	return Services{
		Store:    store,
		Wallet:   wallet.NewService(store, d.Logger, limits.DefaultPageSize),
		Payments: payments.NewService(store, d.Notifier, d.Logger),
		Holds:    holds.NewService(store, d.Notifier, d.Logger, limits.DefaultPageSize),
		Deposits: deposits.NewService(store, d.Notifier, d.Logger, deposits.Limits{
			MinAmount:  limits.DepositMin,
			MaxAmount:  limits.DepositMax,
			MaxPending: limits.MaxPendingRequests,
			PageSize:   limits.DefaultPageSize,
		}),
		Identity: identity.NewService(profiles),
	}, nil
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps, s Services) error {
	if !d.Cfg.IsDev() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(logging.Component(d.Logger, "http")))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	tokens := auth.NewTokens(d.Cfg.JWTSecret, d.Cfg.AppName)
	protected := api.Group("", middleware.Actor(tokens))

	guard := guards{
		replay:         noop,
		optionalReplay: noop,
		requestLimit:   middleware.RateLimit(d.Cache, "deposit_requests", d.Cfg.RequestRateLimit),
	}
	if d.Cache != nil {
		replayLogger := logging.Component(d.Logger, "idempotency")
		guard.replay = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, replayLogger)
		guard.optionalReplay = middleware.OptionalIdempotency(d.Cache, d.Cfg.IdempotencyTTL, replayLogger)
	}

	RegisterIdentityRoutes(protected, identity.NewHandler(s.Identity, s.Wallet))
	RegisterWalletRoutes(protected, wallet.NewHandler(s.Wallet), guard)
	RegisterPaymentRoutes(protected, payments.NewHandler(s.Payments), guard)
	RegisterHoldRoutes(protected, holds.NewHandler(s.Holds))
	RegisterDepositRequestRoutes(protected, deposits.NewHandler(s.Deposits), guard)

	return nil
}

// guards are the Redis-backed middlewares applied to money-moving routes.
type guards struct {
	replay         fiber.Handler
	optionalReplay fiber.Handler
	requestLimit   fiber.Handler
}

func noop(c *fiber.Ctx) error {
	return c.Next()
}
