package db_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Guizzs26/slotbook/internal/availability"
	"github.com/Guizzs26/slotbook/internal/booking"
	"github.com/Guizzs26/slotbook/internal/clock"
	"github.com/Guizzs26/slotbook/internal/db"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/outbox"
	"github.com/Guizzs26/slotbook/internal/testutil"
	"github.com/Guizzs26/slotbook/internal/token"
	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, opts testutil.ShopOptions) (*db.PostgresRepository, testutil.ShopFixture) {
	t.Helper()
	ctx := context.Background()
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)
	fx := testutil.InsertShop(t, ctx, pool, opts)
	return db.NewFromPool(pool, testutil.Logger()), fx
}

func insertCustomer(t *testing.T, repo *db.PostgresRepository, shopID uuid.UUID, phone string) models.Customer {
	t.Helper()
	c, err := repo.UpsertCustomer(context.Background(), models.Customer{ShopID: shopID, Name: "Ana", Phone: phone})
	if err != nil {
		t.Fatalf("upsert customer: %v", err)
	}
	return c
}

func newBooking(fx testutil.ShopFixture, customerID uuid.UUID, start time.Time, status models.BookingStatus) models.Booking {
	return models.Booking{
		ID:         uuid.New(),
		ShopID:     fx.Shop.ID,
		StaffID:    fx.Staff[0].ID,
		ServiceID:  fx.Service.ID,
		CustomerID: customerID,
		StartAt:    start,
		EndAt:      start.Add(30 * time.Minute),
		Status:     status,
		Source:     models.SourceCustomer,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
}

func TestExclusionConstraint(t *testing.T) {
	repo, fx := setup(t, testutil.ShopOptions{})
	ctx := context.Background()
	c := insertCustomer(t, repo, fx.Shop.ID, "+16502530000")
	start := fx.At(2026, 3, 10, 9, 0)

	if err := repo.CreateBooking(ctx, newBooking(fx, c.ID, start, models.BookingConfirmed)); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	err := repo.CreateBooking(ctx, newBooking(fx, c.ID, start.Add(15*time.Minute), models.BookingConfirmed))
	if !errors.Is(err, models.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken for overlap, got %v", err)
	}

	if err := repo.CreateBooking(ctx, newBooking(fx, c.ID, start.Add(30*time.Minute), models.BookingConfirmed)); err != nil {
		t.Fatalf("expected adjacent booking to succeed, got %v", err)
	}

	if err := repo.CreateBooking(ctx, newBooking(fx, c.ID, start, models.BookingCancelledByShop)); err != nil {
		t.Fatalf("expected cancelled row to be exempt, got %v", err)
	}
}

func TestConcurrentCreate(t *testing.T) {
	repo, fx := setup(t, testutil.ShopOptions{})
	clk := clock.NewFixed(testNow)
	logger := testutil.Logger()

	svc := booking.NewService(
		repo,
		availability.NewEngine(repo, clk, logger),
		token.NewService(repo, clk, logger, "pepper"),
		outbox.NewWriter(repo, logger),
		clk,
		logger,
	)
	start := fx.At(2026, 3, 10, 10, 0)

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		taken   int
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), booking.CreateInput{
				ShopID:    fx.Shop.ID,
				StaffID:   fx.Staff[0].ID,
				ServiceID: fx.Service.ID,
				StartAt:   start,
				Customer: booking.CustomerInput{
					Name:  "Racer",
					Phone: []string{"+16502530000", "+442079460958"}[i%2],
				},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, models.ErrSlotTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 || taken != workers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", workers-1, success, taken)
	}

	bookings, err := repo.ListConfirmedBookings(context.Background(), fx.Staff[0].ID, start.Add(-time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("list bookings: %v", err)
	}
	if len(bookings) != 1 {
		t.Fatalf("expected 1 confirmed booking, got %d", len(bookings))
	}
}

func TestOutboxRepository(t *testing.T) {
	repo, fx := setup(t, testutil.ShopOptions{})
	ctx := context.Background()
	c := insertCustomer(t, repo, fx.Shop.ID, "+16502530000")
	b := newBooking(fx, c.ID, fx.At(2026, 3, 10, 9, 0), models.BookingConfirmed)
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatalf("create booking: %v", err)
	}

	payload, _ := json.Marshal(models.EventPayload{BookingID: b.ID})
	entry := models.OutboxEntry{
		ID:             uuid.New(),
		ShopID:         b.ShopID,
		BookingID:      b.ID,
		EventType:      models.EventBookingConfirmed,
		Payload:        payload,
		IdempotencyKey: outbox.ConfirmedKey(b.ID),
		NextAttemptAt:  testNow,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}

	t.Run("duplicate key is absorbed", func(t *testing.T) {
		inserted, err := repo.InsertOutbox(ctx, entry)
		if err != nil || !inserted {
			t.Fatalf("expected insert, got %v (%v)", inserted, err)
		}
		dup := entry
		dup.ID = uuid.New()
		err = repo.WithTx(ctx, func(txCtx context.Context) error {
			inserted, err := repo.InsertOutbox(txCtx, dup)
			if err != nil {
				return err
			}
			if inserted {
				t.Errorf("expected duplicate not inserted")
			}
			// The transaction must still be usable after the absorbed conflict
			_, err = repo.GetOutbox(txCtx, entry.ID)
			return err
		})
		if err != nil {
			t.Fatalf("expected transaction to commit, got %v", err)
		}
	})

	t.Run("claims are exclusive until released", func(t *testing.T) {
		first, err := repo.FetchAndClaim(ctx, testNow, 10, 5*time.Minute)
		if err != nil || len(first) != 1 {
			t.Fatalf("expected one claimed row, got %d (%v)", len(first), err)
		}
		second, err := repo.FetchAndClaim(ctx, testNow, 10, 5*time.Minute)
		if err != nil || len(second) != 0 {
			t.Fatalf("expected claimed row to be invisible, got %d (%v)", len(second), err)
		}

		if err := repo.ReleaseClaims(ctx, []uuid.UUID{entry.ID}, testNow); err != nil {
			t.Fatalf("release: %v", err)
		}
		again, err := repo.FetchAndClaim(ctx, testNow, 10, 5*time.Minute)
		if err != nil || len(again) != 1 {
			t.Fatalf("expected released row claimable, got %d (%v)", len(again), err)
		}
	})

	t.Run("failed rows can be reset once", func(t *testing.T) {
		if err := repo.MarkFailed(ctx, entry.ID, 5, "smtp down", testNow); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		ok, err := repo.ResetForRetry(ctx, entry.ID, testNow)
		if err != nil || !ok {
			t.Fatalf("expected reset, got %v (%v)", ok, err)
		}
		ok, err = repo.ResetForRetry(ctx, entry.ID, testNow)
		if err != nil || ok {
			t.Fatalf("expected second reset to be a no-op, got %v (%v)", ok, err)
		}

		got, err := repo.GetOutbox(ctx, entry.ID)
		if err != nil || got == nil {
			t.Fatalf("get outbox: %v", err)
		}
		if got.Status != models.OutboxPending || got.AttemptCount != 0 {
			t.Fatalf("unexpected row after reset: %+v", got)
		}
		if got.LastError != nil {
			t.Fatalf("expected last_error cleared, got %q", *got.LastError)
		}
	})

	t.Run("pending reminders are cancelled by booking", func(t *testing.T) {
		reminder, _ := outbox.NewEntry(models.EventReminderNextDay, outbox.ReminderKey(b.ID, "2026-03-10"), b, models.EventPayload{}, testNow)
		if _, err := repo.InsertOutbox(ctx, reminder); err != nil {
			t.Fatalf("insert reminder: %v", err)
		}
		n, err := repo.CancelPendingOutbox(ctx, b.ID, models.EventReminderNextDay, testNow)
		if err != nil || n != 1 {
			t.Fatalf("expected 1 cancelled reminder, got %d (%v)", n, err)
		}

		ok, err := repo.MarkSent(ctx, reminder.ID, testNow)
		if err != nil || ok {
			t.Fatalf("expected cancelled row to stay cancelled, got %v (%v)", ok, err)
		}
		got, _ := repo.GetOutbox(ctx, reminder.ID)
		if got.Status != models.OutboxCancelled {
			t.Fatalf("expected cancelled, got %s", got.Status)
		}
	})

	t.Run("claims come back in due order", func(t *testing.T) {
		later, _ := outbox.NewEntry(models.EventBookingUpdated, outbox.UpdatedKey(b.ID, testNow), b, models.EventPayload{}, testNow)
		later.NextAttemptAt = testNow.Add(2 * time.Minute)
		sooner, _ := outbox.NewEntry(models.EventBookingUpdated, outbox.UpdatedKey(b.ID, testNow.Add(time.Hour)), b, models.EventPayload{}, testNow.Add(time.Minute))
		sooner.NextAttemptAt = testNow.Add(time.Minute)
		for _, e := range []models.OutboxEntry{later, sooner} {
			if _, err := repo.InsertOutbox(ctx, e); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		claimed, err := repo.FetchAndClaim(ctx, testNow.Add(10*time.Minute), 10, 5*time.Minute)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		var order []uuid.UUID
		for _, e := range claimed {
			if e.ID == later.ID || e.ID == sooner.ID {
				order = append(order, e.ID)
			}
		}
		if len(order) != 2 || order[0] != sooner.ID {
			t.Fatalf("expected the earlier due row first, got %v", order)
		}
	})
}

func TestTokenRepository(t *testing.T) {
	repo, fx := setup(t, testutil.ShopOptions{})
	ctx := context.Background()
	c := insertCustomer(t, repo, fx.Shop.ID, "+16502530000")
	b := newBooking(fx, c.ID, fx.At(2026, 3, 10, 9, 0), models.BookingConfirmed)
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatalf("create booking: %v", err)
	}

	svc := token.NewService(repo, clock.NewFixed(testNow), testutil.Logger(), "pepper")
	raw, err := svc.Issue(ctx, b.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	bc, err := svc.Resolve(ctx, raw)
	if err != nil || bc == nil {
		t.Fatalf("expected booking context, got %v (%v)", bc, err)
	}
	if bc.Booking.ID != b.ID || bc.Customer.Phone != "+16502530000" || bc.Shop.Timezone != fx.Shop.Timezone {
		t.Fatalf("unexpected booking context: %+v", bc)
	}

	if err := svc.Revoke(ctx, b.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if bc, _ := svc.Resolve(ctx, raw); bc != nil {
		t.Fatalf("expected revoked token not to resolve")
	}
}
