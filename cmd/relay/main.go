package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/slotbook/internal/broker"
	"github.com/Guizzs26/slotbook/internal/clock"
	"github.com/Guizzs26/slotbook/internal/config"
	"github.com/Guizzs26/slotbook/internal/db"
	"github.com/Guizzs26/slotbook/internal/mailer"
	"github.com/Guizzs26/slotbook/internal/outbox"
	"github.com/Guizzs26/slotbook/internal/reminder"
	"github.com/Guizzs26/slotbook/internal/render"
	"github.com/Guizzs26/slotbook/pkg/infra"
	"github.com/Guizzs26/slotbook/pkg/metrics"
)

type relay struct {
	cfg       *config.Config
	repo      *db.PostgresRepository
	clock     clock.Clock
	logger    *slog.Logger
	reminders *reminder.Generator
	renderer  *render.Renderer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		slog.Error("Fatal error connecting to Postgres", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

	clk := clock.NewSystem()
	r := &relay{
		cfg:       cfg,
		repo:      postgres,
		clock:     clk,
		logger:    logger,
		reminders: reminder.NewGenerator(postgres, outbox.NewWriter(postgres, logger), clk, logger),
		renderer:  render.New(),
	}

	go infra.StartObservabilityServer(ctx, cfg.MetricsAddr, "RELAY", logger)

	maintenanceDone := make(chan struct{})
	go runMaintenance(ctx, outbox.NewOperator(postgres, clk, logger), cfg, maintenanceDone)

	slog.Info("🚀 Outbox relay started", "pid", os.Getpid(), "transport", cfg.MailTransport)

	r.runMainLoop(ctx, maintenanceDone)
}

func (r *relay) newDispatcher(t outbox.Transport) *outbox.Dispatcher {
	return outbox.NewDispatcher(r.repo, r.renderer, t, r.clock, r.logger,
		outbox.WithSendTimeout(r.cfg.SendTimeout()),
		outbox.WithClaimLease(r.cfg.ClaimLease()),
		outbox.WithManageURL(r.cfg.PublicBaseURL),
	)
}

// directTransport builds the transports that need no connection lifecycle
func (r *relay) directTransport() (outbox.Transport, error) {
	switch r.cfg.MailTransport {
	case config.TransportSMTP:
		return mailer.NewSMTPTransport(r.cfg.SMTPAddr, r.cfg.SMTPFrom, r.cfg.SMTPUsername, r.cfg.SMTPPassword)
	case config.TransportLog:
		return mailer.NewLogTransport(r.logger), nil
	}
	return nil, fmt.Errorf("transport %q has no direct sender", r.cfg.MailTransport)
}

func (r *relay) runMainLoop(ctx context.Context, maintenanceDone chan struct{}) {
	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)
	useBroker := r.cfg.MailTransport == config.TransportAMQP

	var publisher *broker.MailPublisher
	var dispatcher *outbox.Dispatcher

	if !useBroker {
		t, err := r.directTransport()
		if err != nil {
			slog.Error("Fatal error building mail transport", "error", err)
			return
		}
		dispatcher = r.newDispatcher(t)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("👋 Shutting down main loop...")
			if publisher != nil {
				publisher.Close()
			}
			<-maintenanceDone
			slog.Info("✅ Shutdown complete")
			return
		default:
			// 1. Lifecycle: the broker link must be up before anything is claimed
			if useBroker && (publisher == nil || !publisher.IsHealthy()) {
				if publisher != nil {
					publisher.Close()
					metrics.BrokerReconnections.Inc()
				}

				p, err := broker.NewMailPublisher(r.cfg.RabbitMQURL, r.cfg.MailExchange, r.logger)
				if err != nil {
					wait := backoff.Next()
					slog.Error("RabbitMQ link failure, retrying", "wait", wait, "error", err)

					select {
					case <-time.After(wait):
						continue
					case <-ctx.Done():
						continue
					}
				}

				slog.Info("RabbitMQ link established 🚀")
				publisher = p
				backoff.Reset()
				dispatcher = r.newDispatcher(publisher)
			}

			// 2. Reminders are enqueued before the batch so a due reminder goes out in the same tick
			if n, err := r.reminders.Run(ctx); err != nil {
				slog.Error("Reminder sweep finished with errors", "generated", n, "error", err)
			}

			// 3. Execution
			stats, err := dispatcher.ProcessNextBatch(ctx, r.cfg.BatchSize)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				wait := backoff.Next()
				slog.Error("Batch processing error", "retry_in", wait, "error", err)

				select {
				case <-time.After(wait):
					continue
				case <-ctx.Done():
					continue
				}
			}

			backoff.Reset()

			// A full batch means there is more backlog; go again without sleeping
			if stats.Claimed >= r.cfg.BatchSize {
				continue
			}

			select {
			case <-time.After(r.cfg.PollInterval()):
			case <-ctx.Done():
			}
		}
	}
}

func runMaintenance(ctx context.Context, op *outbox.Operator, cfg *config.Config, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(cfg.MaintenanceInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Info("🧹 Janitor: Starting outbox housekeeping")

			if err := op.RefreshGauges(ctx); err != nil {
				slog.Error("Janitor: Failed to refresh outbox gauges", "error", err)
			}

			purged, err := op.PurgeSent(ctx, cfg.OutboxRetention())
			if err != nil {
				slog.Error("Janitor: Failed to purge sent rows", "error", err)
			} else if purged > 0 {
				slog.Info("Janitor: Purged delivered rows", "count", purged)
			}

		case <-ctx.Done():
			slog.Info("🛑 Janitor: Stopping maintenance goroutine")
			return
		}
	}
}
