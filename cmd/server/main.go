package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/stakegame/internal/api"
	"github.com/mcoot/stakegame/internal/config"
	"github.com/mcoot/stakegame/internal/factory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := factory.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to release resources", slog.String("error", err.Error()))
		}
	}()

	logger.Info("application created",
		slog.String("storage", cfg.StorageType),
		slog.Any("settlement_sinks", cfg.SettlementSinks),
		slog.Duration("commit_timeout", cfg.CommitTimeout),
		slog.Duration("reveal_timeout", cfg.RevealTimeout),
	)

	// Deadlines that were running when the process last stopped
	if _, err := app.MatchController.RestoreTimers(ctx); err != nil {
		return err
	}
	if err := app.Sweeper.Start(ctx); err != nil {
		return err
	}

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, admin routes are disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Logger:          logger,
		AuthService:     app.AuthService,
		RoomController:  app.RoomController,
		MatchController: app.MatchController,
		Ledger:          app.Ledger,
		Coordinator:     app.Coordinator,
		AdminToken:      cfg.AdminToken,
	})

	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = cfg.Port
	server := api.NewServer(router, serverConfig, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		// Ends open event streams so the server can drain
		app.Coordinator.Close()
		return server.Shutdown(context.Background())
	})

	return g.Wait()
}
