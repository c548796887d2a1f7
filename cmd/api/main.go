package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/playarena/arena_ledger/internal/config"
	"github.com/playarena/arena_ledger/internal/infra"
	"github.com/playarena/arena_ledger/internal/logging"
	"github.com/playarena/arena_ledger/internal/notification"
	"github.com/playarena/arena_ledger/internal/routes"
	"github.com/playarena/arena_ledger/internal/scheduler"
	"github.com/playarena/arena_ledger/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	if cfg.RunMigrations {
		if err := infra.Migrate(cfg.DatabaseURL, logging.Component(logger, "migrate")); err != nil {
			logger.Error("apply migrations", "error", err)
			os.Exit(1)
		}
	}

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	notifier := notification.NewAsync(notification.Fanout{
		notification.NewLoggerNotifier(logging.Component(logger, "notifications")),
		notification.NewRedisNotifier(cache),
	}, logging.Component(logger, "notifications"))

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger, Notifier: notifier}
	services, err := routes.NewServices(deps)
	if err != nil {
		logger.Error("build services", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(deps, services)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	sweeper, err := scheduler.NewSweeper(services.Holds, cache, logger, cfg.HoldSweepSchedule)
	if err != nil {
		logger.Error("build hold sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.Start()

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := sweeper.Stop(shutdownCtx); err != nil {
		logger.Warn("hold sweeper did not stop in time", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	notifier.Wait()

	logger.Info("server exited cleanly")
}
