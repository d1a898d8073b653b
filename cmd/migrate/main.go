package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Guizzs26/slotbook/internal/config"
	"github.com/Guizzs26/slotbook/internal/db"
	"github.com/Guizzs26/slotbook/migrations"
	"github.com/Guizzs26/slotbook/pkg/infra"
)

const usage = "usage: migrate [up|down|status]"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, cmd); err != nil {
		logger.Error("Migration command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd string) error {
	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer postgres.Close()

	m, err := db.NewMigrator(postgres.Pool(), migrations.FS, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	switch cmd {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "status":
		v, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("current version: %d\n", v)
		return nil
	default:
		return fmt.Errorf("unknown command %q; %s", cmd, usage)
	}
}
