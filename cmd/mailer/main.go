package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/slotbook/internal/broker"
	"github.com/Guizzs26/slotbook/internal/config"
	"github.com/Guizzs26/slotbook/internal/mailer"
	"github.com/Guizzs26/slotbook/internal/outbox"
	"github.com/Guizzs26/slotbook/pkg/infra"
)

// mailer drains the mail exchange the relay publishes to when MAIL_TRANSPORT=amqp
// and hands each email to SMTP, or to the log when no SMTP server is configured.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sender outbox.Transport = mailer.NewLogTransport(logger)
	if cfg.SMTPAddr != "" {
		smtp, err := mailer.NewSMTPTransport(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
		if err != nil {
			logger.Error("CRITICAL: invalid SMTP configuration", "error", err)
			os.Exit(1)
		}
		sender = smtp
	}

	logger.Info("🔥 Mailer initializing...", "exchange", cfg.MailExchange, "smtp", cfg.SMTPAddr != "")

	go infra.StartObservabilityServer(ctx, cfg.MetricsAddr, "MAILER", logger)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		select {
		case <-ctx.Done():
			logger.Info("🛑 Shutdown signal received")
			return
		default:
			consumer, err := broker.NewMailConsumer(cfg.RabbitMQURL, cfg.MailExchange, sender, logger)
			if err != nil {
				wait := connBackoff.Next()
				logger.Error("RabbitMQ connection failed, retrying...",
					"wait_duration", wait,
					"error", err,
				)

				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
					continue
				}
			}

			connBackoff.Reset()
			logger.Info("✅ Connected to Broker. Listening for emails...")

			if err := consumer.Listen(ctx); err != nil {
				logger.Error("⚠️ Consumer connection lost", "error", err)
			}

			consumer.Close()
		}
	}
}
