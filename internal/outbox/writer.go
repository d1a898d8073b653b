package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
)

// Repository defines the contract for outbox persistence
type Repository interface {
	InsertOutbox(ctx context.Context, entry models.OutboxEntry) (bool, error)
	CancelPendingOutbox(ctx context.Context, bookingID uuid.UUID, eventType models.EventType, at time.Time) (int64, error)
	FetchAndClaim(ctx context.Context, now time.Time, batchSize int, lease time.Duration) ([]models.OutboxEntry, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time, errLog string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, errLog string, at time.Time) error
	ReleaseClaims(ctx context.Context, ids []uuid.UUID, at time.Time) error
	GetOutbox(ctx context.Context, id uuid.UUID) (*models.OutboxEntry, error)
	ResetForRetry(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	CountOutboxByStatus(ctx context.Context) (map[models.OutboxStatus]int, error)
	PurgeSent(ctx context.Context, before time.Time) (int64, error)
	GetBookingContext(ctx context.Context, bookingID uuid.UUID) (models.BookingContext, error)
}

// Writer is the producer side used by the booking lifecycle and the reminder generator.
// Calls join the caller's transaction when the context carries one.
type Writer struct {
	repo   Repository
	logger *slog.Logger
}

func NewWriter(r Repository, l *slog.Logger) *Writer {
	return &Writer{repo: r, logger: l}
}

// Enqueue inserts entry unless its idempotency key already exists.
// A duplicate key is not an error: inserted is false.
func (w *Writer) Enqueue(ctx context.Context, entry models.OutboxEntry) (bool, error) {
	inserted, err := w.repo.InsertOutbox(ctx, entry)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", entry.EventType, err)
	}
	if !inserted {
		w.logger.Debug("Outbox entry already exists", "idempotency_key", entry.IdempotencyKey)
	}
	return inserted, nil
}

// CancelPendingReminders retires reminder rows that still point at the old booking time
func (w *Writer) CancelPendingReminders(ctx context.Context, bookingID uuid.UUID, at time.Time) (int64, error) {
	n, err := w.repo.CancelPendingOutbox(ctx, bookingID, models.EventReminderNextDay, at)
	if err != nil {
		return 0, fmt.Errorf("cancel pending reminders: %w", err)
	}
	if n > 0 {
		w.logger.Info("Cancelled stale reminders", "booking_id", bookingID, "count", n)
	}
	return n, nil
}

// NewEntry builds a pending row due immediately
func NewEntry(eventType models.EventType, key string, b models.Booking, payload models.EventPayload, now time.Time) (models.OutboxEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.OutboxEntry{}, fmt.Errorf("marshal payload: %w", err)
	}
	return models.OutboxEntry{
		ID:             uuid.New(),
		ShopID:         b.ShopID,
		BookingID:      b.ID,
		EventType:      eventType,
		Payload:        raw,
		IdempotencyKey: key,
		Status:         models.OutboxPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// PayloadFor snapshots a booking context into an event payload
func PayloadFor(bc models.BookingContext) models.EventPayload {
	p := models.EventPayload{
		BookingID:    bc.Booking.ID,
		ShopName:     bc.Shop.Name,
		Timezone:     bc.Shop.Timezone,
		StaffName:    bc.Staff.Name,
		ServiceName:  bc.Service.Name,
		CustomerName: bc.Customer.Name,
		StartAt:      bc.Booking.StartAt,
		EndAt:        bc.Booking.EndAt,
	}
	if bc.Customer.Email != nil {
		p.CustomerEmail = *bc.Customer.Email
	}
	return p
}
