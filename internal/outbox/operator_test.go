package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Guizzs26/slotbook/internal/clock"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/testutil"
	"github.com/google/uuid"
)

func TestOperator_Retry(t *testing.T) {
	f := newFixture(t, email("ana@example.com"))
	now := t0.Add(3 * time.Hour)
	op := NewOperator(f.store, clock.NewFixed(now), testutil.Logger())

	put := func(status models.OutboxStatus) models.OutboxEntry {
		e := f.enqueue(t, models.EventBookingConfirmed, uuid.NewString(), models.EventPayload{}, t0)
		e.Status = status
		if status == models.OutboxFailed {
			e.AttemptCount = DefaultMaxAttempts
			msg := "smtp unavailable"
			e.LastError = &msg
		}
		f.store.PutOutbox(e)
		return e
	}

	t.Run("failed row is queued with a fresh budget", func(t *testing.T) {
		e := put(models.OutboxFailed)

		res, err := op.Retry(context.Background(), f.booking.ShopID, e.ID)
		if err != nil || res != RetryQueued {
			t.Fatalf("expected queued, got %q (%v)", res, err)
		}
		row, _ := f.store.GetOutbox(context.Background(), e.ID)
		if row.Status != models.OutboxPending || row.AttemptCount != 0 || !row.NextAttemptAt.Equal(now) {
			t.Fatalf("unexpected row after retry: %+v", row)
		}
		if row.LastError != nil {
			t.Fatalf("expected last error cleared, got %q", *row.LastError)
		}

		res, err = op.Retry(context.Background(), f.booking.ShopID, e.ID)
		if err != nil || res != RetryAlreadyPending {
			t.Fatalf("second retry should be a no-op, got %q (%v)", res, err)
		}
	})

	t.Run("sent row is left alone", func(t *testing.T) {
		e := put(models.OutboxSent)
		res, err := op.Retry(context.Background(), f.booking.ShopID, e.ID)
		if err != nil || res != RetryAlreadySent {
			t.Fatalf("expected already_sent, got %q (%v)", res, err)
		}
	})

	t.Run("cancelled row is not retriable", func(t *testing.T) {
		e := put(models.OutboxCancelled)
		if _, err := op.Retry(context.Background(), f.booking.ShopID, e.ID); !errors.Is(err, models.ErrOutboxNotRetriable) {
			t.Fatalf("expected ErrOutboxNotRetriable, got %v", err)
		}
	})

	t.Run("other shops cannot see the row", func(t *testing.T) {
		e := put(models.OutboxFailed)
		if _, err := op.Retry(context.Background(), uuid.New(), e.ID); !errors.Is(err, models.ErrOutboxNotFound) {
			t.Fatalf("expected ErrOutboxNotFound, got %v", err)
		}
		if _, err := op.Retry(context.Background(), f.booking.ShopID, uuid.New()); !errors.Is(err, models.ErrOutboxNotFound) {
			t.Fatalf("expected ErrOutboxNotFound for unknown id, got %v", err)
		}
	})
}

func TestOperator_Housekeeping(t *testing.T) {
	f := newFixture(t, email("ana@example.com"))
	now := t0.Add(30 * 24 * time.Hour)
	op := NewOperator(f.store, clock.NewFixed(now), testutil.Logger())

	old := f.enqueue(t, models.EventBookingConfirmed, "old", models.EventPayload{}, t0)
	old.Status = models.OutboxSent
	sentAt := t0.Add(time.Minute)
	old.SentAt = &sentAt
	f.store.PutOutbox(old)

	recent := f.enqueue(t, models.EventBookingUpdated, "recent", models.EventPayload{}, now)
	recent.Status = models.OutboxSent
	recentAt := now.Add(-time.Hour)
	recent.SentAt = &recentAt
	f.store.PutOutbox(recent)

	f.enqueue(t, models.EventReminderNextDay, "pending", models.EventPayload{}, now)

	if err := op.RefreshGauges(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	n, err := op.PurgeSent(context.Background(), 7*24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged, got %d (%v)", n, err)
	}
	if got := len(f.store.OutboxEntries()); got != 2 {
		t.Fatalf("expected 2 rows left, got %d", got)
	}
}
