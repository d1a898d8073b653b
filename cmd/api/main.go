package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/slotbook/internal/auth"
	"github.com/Guizzs26/slotbook/internal/availability"
	"github.com/Guizzs26/slotbook/internal/booking"
	"github.com/Guizzs26/slotbook/internal/clock"
	"github.com/Guizzs26/slotbook/internal/config"
	"github.com/Guizzs26/slotbook/internal/db"
	"github.com/Guizzs26/slotbook/internal/outbox"
	"github.com/Guizzs26/slotbook/internal/token"
	"github.com/Guizzs26/slotbook/internal/transport/httpapi"
	"github.com/Guizzs26/slotbook/migrations"
	"github.com/Guizzs26/slotbook/pkg/infra"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		logger.Error("CRITICAL: JWT_SECRET environment variable is missing")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("Fatal error connecting to Postgres", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

	if cfg.MigrateOnStart {
		if err := migrate(ctx, postgres, logger); err != nil {
			logger.Error("Fatal error applying migrations", "error", err)
			os.Exit(1)
		}
	}

	clk := clock.NewSystem()
	engine := availability.NewEngine(postgres, clk, logger)
	tokens := token.NewService(postgres, clk, logger, cfg.TokenPepper)
	bookings := booking.NewService(postgres, engine, tokens, outbox.NewWriter(postgres, logger), clk, logger,
		booking.WithPhoneRegion(cfg.PhoneDefaultRegion),
	)

	srv := httpapi.NewServer(httpapi.Deps{
		Bookings: bookings,
		Slots:    engine,
		Tokens:   tokens,
		Outbox:   outbox.NewOperator(postgres, clk, logger),
		Store:    postgres,
		Auth:     auth.NewAuthenticator(cfg.JWTSecret),
		Limiter:  httpapi.AllowAll{},
		Logger:   logger,
	})

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go infra.StartObservabilityServer(ctx, cfg.MetricsAddr, "API", logger)

	go func() {
		logger.Info("🚀 API listening", "addr", cfg.HTTPAddr, "pid", os.Getpid())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("👋 Shutting down API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("✅ Shutdown complete")
}

func migrate(ctx context.Context, repo *db.PostgresRepository, logger *slog.Logger) error {
	m, err := db.NewMigrator(repo.Pool(), migrations.FS, logger)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}
