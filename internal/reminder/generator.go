package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/slotbook/internal/calendar"
	"github.com/Guizzs26/slotbook/internal/clock"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/outbox"
	"github.com/Guizzs26/slotbook/pkg/metrics"
	"github.com/google/uuid"
)

type Repository interface {
	ListReminderShops(ctx context.Context) ([]models.Shop, error)
	// ListBookingsWithin returns confirmed bookings starting in [from, to)
	ListBookingsWithin(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]models.BookingContext, error)
}

type EventWriter interface {
	Enqueue(ctx context.Context, entry models.OutboxEntry) (bool, error)
}

// Generator materialises day-ahead reminders. It is safe to run as often as the
// relay ticks: the idempotency key pins one reminder per booking and local date.
type Generator struct {
	repo   Repository
	events EventWriter
	clock  clock.Clock
	logger *slog.Logger
}

func NewGenerator(r Repository, e EventWriter, clk clock.Clock, l *slog.Logger) *Generator {
	return &Generator{repo: r, events: e, clock: clk, logger: l}
}

// Run generates reminders for every shop whose send time has passed today.
// A failing shop does not stop the others; all failures are joined in the result.
func (g *Generator) Run(ctx context.Context) (int, error) {
	shops, err := g.repo.ListReminderShops(ctx)
	if err != nil {
		return 0, fmt.Errorf("list reminder shops: %w", err)
	}

	now := g.clock.Now()
	var (
		total int
		errs  []error
	)
	for _, shop := range shops {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := g.RunShop(ctx, shop, now)
		total += n
		if err != nil {
			g.logger.Error("Reminder generation failed", "shop_id", shop.ID, "error", err)
			errs = append(errs, fmt.Errorf("shop %s: %w", shop.ID, err))
		}
	}

	if total > 0 {
		g.logger.Info("Reminders generated", "count", total, "shops", len(shops))
	}
	return total, errors.Join(errs...)
}

// RunShop handles one shop and returns how many new rows were inserted
func (g *Generator) RunShop(ctx context.Context, shop models.Shop, now time.Time) (int, error) {
	loc, err := calendar.LoadLocation(shop.Timezone)
	if err != nil {
		return 0, err
	}
	if !Due(shop, now, loc) {
		return 0, nil
	}

	tomorrow := calendar.Today(now, loc).AddDays(1)
	day := tomorrow.Bounds(loc)

	bookings, err := g.repo.ListBookingsWithin(ctx, shop.ID, day.Start, day.End)
	if err != nil {
		return 0, fmt.Errorf("list bookings: %w", err)
	}

	inserted := 0
	for _, bc := range bookings {
		b := bc.Booking
		if b.Status != models.BookingConfirmed || !day.Contains(calendar.Interval{Start: b.StartAt, End: b.EndAt}) {
			continue
		}

		payload := outbox.PayloadFor(bc)
		payload.ReminderDate = tomorrow.String()
		entry, err := outbox.NewEntry(models.EventReminderNextDay, outbox.ReminderKey(b.ID, tomorrow.String()), b, payload, now)
		if err != nil {
			return inserted, err
		}
		ok, err := g.events.Enqueue(ctx, entry)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
			metrics.RemindersGenerated.Inc()
		}
	}
	return inserted, nil
}

// Due reports whether the shop's local send time has passed today
func Due(shop models.Shop, now time.Time, loc *time.Location) bool {
	minute := shop.ReminderSendMinute
	if minute < 0 || minute >= calendar.MinutesPerDay {
		minute = models.DefaultReminderSendMinute
	}
	return calendar.MinuteOfDay(now, loc) >= minute
}
