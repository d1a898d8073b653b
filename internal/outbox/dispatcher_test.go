package outbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/testutil"
	"github.com/google/uuid"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeRenderer struct{}

func (fakeRenderer) Render(t models.EventType, p models.EventPayload, b models.Branding) (models.EmailMessage, error) {
	return models.EmailMessage{To: p.CustomerEmail, Subject: string(t) + " " + p.ShopName, Text: p.ManageURL}, nil
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []models.EmailMessage
	err  error
	hook func()
}

func (f *fakeTransport) Send(ctx context.Context, msg models.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

var t0 = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *testutil.MemStore
	booking models.Booking
}

func newFixture(t *testing.T, email *string) fixture {
	t.Helper()
	store := testutil.NewMemStore()
	fx := testutil.SeedShop(store, testutil.ShopOptions{})
	customer := models.Customer{ID: uuid.New(), ShopID: fx.Shop.ID, Name: "Ana", Phone: "+16502530000", Email: email}
	store.PutCustomer(customer)
	b := models.Booking{
		ID:         uuid.New(),
		ShopID:     fx.Shop.ID,
		StaffID:    fx.Staff[0].ID,
		ServiceID:  fx.Service.ID,
		CustomerID: customer.ID,
		StartAt:    fx.At(2026, 3, 10, 9, 0),
		EndAt:      fx.At(2026, 3, 10, 9, 30),
		Status:     models.BookingConfirmed,
	}
	store.PutBooking(b)
	return fixture{store: store, booking: b}
}

func (f fixture) enqueue(t *testing.T, eventType models.EventType, key string, payload models.EventPayload, at time.Time) models.OutboxEntry {
	t.Helper()
	e, err := NewEntry(eventType, key, f.booking, payload, at)
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	f.store.PutOutbox(e)
	return e
}

func email(s string) *string { return &s }

func TestDispatcher_Sends(t *testing.T) {
	f := newFixture(t, email("ana@example.com"))
	e := f.enqueue(t, models.EventBookingConfirmed, ConfirmedKey(f.booking.ID), models.EventPayload{ManageToken: "tok"}, t0)
	f.enqueue(t, models.EventBookingUpdated, "later", models.EventPayload{}, t0.Add(time.Hour))

	tr := &fakeTransport{}
	d := NewDispatcher(f.store, fakeRenderer{}, tr, &stepClock{now: t0}, testutil.Logger(), WithManageURL("https://book.example.com/"))

	stats, err := d.ProcessNextBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stats.Claimed != 1 || stats.Sent != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(tr.sent))
	}
	msg := tr.sent[0]
	if msg.To != "ana@example.com" || msg.EntryID != e.ID || msg.Text != "https://book.example.com/manage/tok" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	got, _ := f.store.GetOutbox(context.Background(), e.ID)
	if got.Status != models.OutboxSent || got.SentAt == nil {
		t.Fatalf("expected sent row, got %+v", got)
	}
}

func TestDispatcher_BackoffSchedule(t *testing.T) {
	f := newFixture(t, email("ana@example.com"))
	e := f.enqueue(t, models.EventBookingConfirmed, ConfirmedKey(f.booking.ID), models.EventPayload{}, t0)

	clk := &stepClock{now: t0}
	tr := &fakeTransport{err: errors.New("smtp unavailable")}
	d := NewDispatcher(f.store, fakeRenderer{}, tr, clk, testutil.Logger())

	var gaps []time.Duration
	for attempt := 1; attempt <= DefaultMaxAttempts; attempt++ {
		if _, err := d.ProcessNextBatch(context.Background(), 10); err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		row, _ := f.store.GetOutbox(context.Background(), e.ID)
		if row.AttemptCount != attempt {
			t.Fatalf("expected attempt count %d, got %d", attempt, row.AttemptCount)
		}
		if attempt < DefaultMaxAttempts {
			if row.Status != models.OutboxPending {
				t.Fatalf("attempt %d: expected pending, got %s", attempt, row.Status)
			}
			gaps = append(gaps, row.NextAttemptAt.Sub(clk.Now()))
			clk.Set(row.NextAttemptAt)
			continue
		}
		if row.Status != models.OutboxFailed {
			t.Fatalf("expected failed at attempt %d, got %s", attempt, row.Status)
		}
		if row.LastError == nil || !strings.Contains(*row.LastError, "smtp unavailable") {
			t.Fatalf("expected last error recorded, got %v", row.LastError)
		}
	}

	want := []time.Duration{5 * time.Minute, 30 * time.Minute, 2 * time.Hour, 12 * time.Hour}
	for i := range want {
		if gaps[i] != want[i] {
			t.Fatalf("expected gaps %v, got %v", want, gaps)
		}
	}

	clk.Set(clk.Now().Add(48 * time.Hour))
	stats, _ := d.ProcessNextBatch(context.Background(), 10)
	if stats.Claimed != 0 {
		t.Fatalf("failed rows must not be claimed again")
	}
}

func TestDispatcher_PermanentFailures(t *testing.T) {
	t.Run("missing recipient", func(t *testing.T) {
		f := newFixture(t, nil)
		e := f.enqueue(t, models.EventBookingConfirmed, ConfirmedKey(f.booking.ID), models.EventPayload{}, t0)
		tr := &fakeTransport{}
		d := NewDispatcher(f.store, fakeRenderer{}, tr, &stepClock{now: t0}, testutil.Logger())

		if _, err := d.ProcessNextBatch(context.Background(), 10); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		row, _ := f.store.GetOutbox(context.Background(), e.ID)
		if row.Status != models.OutboxFailed || row.AttemptCount != 1 {
			t.Fatalf("expected failed after one attempt, got %s/%d", row.Status, row.AttemptCount)
		}
		if !strings.Contains(*row.LastError, "missing recipient") {
			t.Fatalf("unexpected last error %q", *row.LastError)
		}
		if len(tr.sent) != 0 {
			t.Fatalf("nothing should be sent")
		}
	})

	t.Run("transport rejection", func(t *testing.T) {
		f := newFixture(t, email("ana@example.com"))
		e := f.enqueue(t, models.EventBookingConfirmed, ConfirmedKey(f.booking.ID), models.EventPayload{}, t0)
		tr := &fakeTransport{err: Permanent(errors.New("mailbox does not exist"))}
		d := NewDispatcher(f.store, fakeRenderer{}, tr, &stepClock{now: t0}, testutil.Logger())

		stats, _ := d.ProcessNextBatch(context.Background(), 10)
		if stats.Failed != 1 {
			t.Fatalf("expected 1 failed, got %+v", stats)
		}
		row, _ := f.store.GetOutbox(context.Background(), e.ID)
		if row.Status != models.OutboxFailed {
			t.Fatalf("expected failed, got %s", row.Status)
		}
	})

	t.Run("booking gone", func(t *testing.T) {
		f := newFixture(t, email("ana@example.com"))
		e := f.enqueue(t, models.EventBookingConfirmed, ConfirmedKey(f.booking.ID), models.EventPayload{}, t0)
		f.store.DeleteBooking(f.booking.ID)
		d := NewDispatcher(f.store, fakeRenderer{}, &fakeTransport{}, &stepClock{now: t0}, testutil.Logger())

		d.ProcessNextBatch(context.Background(), 10)
		row, _ := f.store.GetOutbox(context.Background(), e.ID)
		if row.Status != models.OutboxFailed {
			t.Fatalf("expected failed, got %s", row.Status)
		}
	})

	t.Run("long errors are truncated", func(t *testing.T) {
		f := newFixture(t, email("ana@example.com"))
		e := f.enqueue(t, models.EventBookingConfirmed, ConfirmedKey(f.booking.ID), models.EventPayload{}, t0)
		tr := &fakeTransport{err: errors.New(strings.Repeat("é", 2000))}
		d := NewDispatcher(f.store, fakeRenderer{}, tr, &stepClock{now: t0}, testutil.Logger())

		d.ProcessNextBatch(context.Background(), 10)
		row, _ := f.store.GetOutbox(context.Background(), e.ID)
		if n := len([]rune(*row.LastError)); n != MaxErrorLength {
			t.Fatalf("expected %d runes, got %d", MaxErrorLength, n)
		}
	})
}

func TestDispatcher_CancelledReminders(t *testing.T) {
	t.Run("cancelled while sending stays cancelled", func(t *testing.T) {
		f := newFixture(t, email("ana@example.com"))
		e := f.enqueue(t, models.EventReminderNextDay, ReminderKey(f.booking.ID, "2026-03-10"), models.EventPayload{}, t0)
		w := NewWriter(f.store, testutil.Logger())
		tr := &fakeTransport{hook: func() {
			if _, err := w.CancelPendingReminders(context.Background(), f.booking.ID, t0); err != nil {
				t.Errorf("cancel reminders: %v", err)
			}
		}}
		d := NewDispatcher(f.store, fakeRenderer{}, tr, &stepClock{now: t0}, testutil.Logger())

		stats, err := d.ProcessNextBatch(context.Background(), 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if stats.Skipped != 1 || stats.Sent != 0 {
			t.Fatalf("expected 1 skipped, got %+v", stats)
		}
		row, _ := f.store.GetOutbox(context.Background(), e.ID)
		if row.Status != models.OutboxCancelled || row.SentAt != nil {
			t.Fatalf("expected cancelled row untouched, got %s", row.Status)
		}
	})

	t.Run("reminder for a cancelled booking is not sent", func(t *testing.T) {
		f := newFixture(t, email("ana@example.com"))
		e := f.enqueue(t, models.EventReminderNextDay, ReminderKey(f.booking.ID, "2026-03-10"), models.EventPayload{}, t0)
		cancelled := f.booking
		cancelled.Status = models.BookingCancelledByCustomer
		f.store.PutBooking(cancelled)
		tr := &fakeTransport{}
		d := NewDispatcher(f.store, fakeRenderer{}, tr, &stepClock{now: t0}, testutil.Logger())

		stats, err := d.ProcessNextBatch(context.Background(), 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if stats.Skipped != 1 || len(tr.sent) != 0 {
			t.Fatalf("expected reminder dropped without sending, got %+v and %d sent", stats, len(tr.sent))
		}
		row, _ := f.store.GetOutbox(context.Background(), e.ID)
		if row.Status != models.OutboxCancelled || row.AttemptCount != 0 {
			t.Fatalf("expected cancelled without an attempt, got %s/%d", row.Status, row.AttemptCount)
		}
	})
}

func TestDispatcher_ReleasesOnShutdown(t *testing.T) {
	f := newFixture(t, email("ana@example.com"))
	for i := range 3 {
		f.enqueue(t, models.EventBookingConfirmed, ConfirmedKey(f.booking.ID)+string(rune('a'+i)), models.EventPayload{}, t0.Add(time.Duration(i)*time.Second))
	}

	ctx, cancel := context.WithCancel(context.Background())
	tr := &fakeTransport{hook: cancel}
	clk := &stepClock{now: t0.Add(time.Minute)}
	d := NewDispatcher(f.store, fakeRenderer{}, tr, clk, testutil.Logger())

	stats, err := d.ProcessNextBatch(ctx, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats.Sent != 1 || stats.Released != 2 {
		t.Fatalf("expected 1 sent and 2 released, got %+v", stats)
	}

	for _, e := range f.store.OutboxEntries() {
		if e.Status == models.OutboxPending && !e.NextAttemptAt.Equal(clk.Now()) {
			t.Fatalf("released row should be due now, got %v", e.NextAttemptAt)
		}
	}
}

func TestWriter(t *testing.T) {
	f := newFixture(t, email("ana@example.com"))
	w := NewWriter(f.store, testutil.Logger())

	e1, _ := NewEntry(models.EventReminderNextDay, ReminderKey(f.booking.ID, "2026-03-10"), f.booking, models.EventPayload{}, t0)
	e2, _ := NewEntry(models.EventReminderNextDay, ReminderKey(f.booking.ID, "2026-03-10"), f.booking, models.EventPayload{}, t0)

	if ok, err := w.Enqueue(context.Background(), e1); err != nil || !ok {
		t.Fatalf("expected insert, got %v (%v)", ok, err)
	}
	if ok, err := w.Enqueue(context.Background(), e2); err != nil || ok {
		t.Fatalf("expected duplicate absorbed, got %v (%v)", ok, err)
	}

	n, err := w.CancelPendingReminders(context.Background(), f.booking.ID, t0)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 cancelled, got %d (%v)", n, err)
	}
}
