package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Guizzs26/slotbook/internal/clock"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/pkg/metrics"
	"github.com/google/uuid"
)

// Renderer turns an event into an email. It must be a pure function of its inputs
// so a retry renders the same message.
type Renderer interface {
	Render(eventType models.EventType, payload models.EventPayload, branding models.Branding) (models.EmailMessage, error)
}

// Transport delivers a rendered email
type Transport interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

const (
	defaultSendTimeout = 15 * time.Second
	defaultClaimLease  = 5 * time.Minute
)

// BatchStats summarises one sweep
type BatchStats struct {
	Claimed  int
	Sent     int
	Retried  int
	Failed   int
	Released int
	// Skipped counts rows cancelled by business logic while claimed
	Skipped int
}

// Dispatcher moves due rows from the outbox to the transport
type Dispatcher struct {
	repo        Repository
	renderer    Renderer
	transport   Transport
	clock       clock.Clock
	logger      *slog.Logger
	policy      Policy
	sendTimeout time.Duration
	claimLease  time.Duration
	manageURL   string
}

type DispatcherOption func(*Dispatcher)

func WithPolicy(p Policy) DispatcherOption {
	return func(d *Dispatcher) {
		if p.MaxAttempts > 0 && len(p.Schedule) > 0 {
			d.policy = p
		}
	}
}

// WithSendTimeout bounds each transport call so one stuck send cannot hold up the batch
func WithSendTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

// WithClaimLease sets how long a claimed row stays invisible to other sweeps
func WithClaimLease(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.claimLease = t
		}
	}
}

// WithManageURL sets the public prefix customers use to manage a booking
func WithManageURL(base string) DispatcherOption {
	return func(d *Dispatcher) {
		d.manageURL = strings.TrimRight(base, "/")
	}
}

func NewDispatcher(r Repository, rd Renderer, t Transport, clk clock.Clock, l *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		repo:        r,
		renderer:    rd,
		transport:   t,
		clock:       clk,
		logger:      l,
		policy:      DefaultPolicy(),
		sendTimeout: defaultSendTimeout,
		claimLease:  defaultClaimLease,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessNextBatch claims due rows and delivers them one by one.
// On shutdown the rows not yet attempted are released so the next sweep picks them up at once.
func (d *Dispatcher) ProcessNextBatch(ctx context.Context, batchSize int) (BatchStats, error) {
	start := time.Now()
	var stats BatchStats

	entries, err := d.repo.FetchAndClaim(ctx, d.clock.Now(), batchSize, d.claimLease)
	if err != nil {
		return stats, fmt.Errorf("fetch failure: %w", err)
	}
	if len(entries) == 0 {
		return stats, nil
	}
	stats.Claimed = len(entries)

	metrics.BatchSize.Observe(float64(len(entries)))

	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
		d.logger.Info("Batch cycle telemetry",
			"claimed", stats.Claimed,
			"sent", stats.Sent,
			"retried", stats.Retried,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
			"released", stats.Released,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	for i, e := range entries {
		select {
		case <-ctx.Done():
			d.logger.Warn("Shutdown signal received. Releasing remaining rows.")
			stats.Released = d.release(entries[i:])
			return stats, ctx.Err()
		default:
		}

		outcome, err := d.deliver(ctx, e)
		if err != nil {
			// Bookkeeping failed: the row keeps its claim and becomes due again when the lease ends
			d.logger.Error("Failed to record delivery outcome", "entry_id", e.ID, "error", err)
			continue
		}
		switch outcome {
		case models.OutboxSent:
			stats.Sent++
		case models.OutboxFailed:
			stats.Failed++
		case models.OutboxCancelled:
			stats.Skipped++
		default:
			stats.Retried++
		}
	}

	return stats, nil
}

func (d *Dispatcher) deliver(ctx context.Context, e models.OutboxEntry) (models.OutboxStatus, error) {
	l := d.logger.With("entry_id", e.ID, "booking_id", e.BookingID, "event_type", e.EventType)

	msg, err := d.prepare(ctx, e)
	if errors.Is(err, errStaleReminder) {
		return d.dropStale(ctx, l, e)
	}
	if err != nil {
		return d.recordFailure(ctx, l, e, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	sendStart := time.Now()
	err = d.transport.Send(sendCtx, msg)
	cancel()
	if err != nil {
		metrics.SendDuration.WithLabelValues("error").Observe(time.Since(sendStart).Seconds())
		return d.recordFailure(ctx, l, e, err)
	}
	metrics.SendDuration.WithLabelValues("ok").Observe(time.Since(sendStart).Seconds())

	marked, err := d.repo.MarkSent(ctx, e.ID, d.clock.Now())
	if err != nil {
		l.Error("Message sent but failed to update status in DB", "error", err)
		return "", fmt.Errorf("db checkpoint failure: %w", err)
	}
	if !marked {
		// Cancelled by a reschedule or cancel during the send; the row keeps that state
		metrics.OutboxDeliveries.WithLabelValues("cancelled", string(e.EventType)).Inc()
		l.Warn("Row left pending while sending, status kept")
		return models.OutboxCancelled, nil
	}

	metrics.OutboxDeliveries.WithLabelValues("sent", string(e.EventType)).Inc()
	l.Info("Notification sent")
	return models.OutboxSent, nil
}

// prepare enriches the stored payload with current shop, customer and booking data and renders it
func (d *Dispatcher) prepare(ctx context.Context, e models.OutboxEntry) (models.EmailMessage, error) {
	bc, err := d.repo.GetBookingContext(ctx, e.BookingID)
	if err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			return models.EmailMessage{}, Permanent(err)
		}
		return models.EmailMessage{}, fmt.Errorf("load booking context: %w", err)
	}

	var payload models.EventPayload
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return models.EmailMessage{}, Permanent(fmt.Errorf("decode payload: %w", err))
		}
	}
	if e.EventType == models.EventReminderNextDay && bc.Booking.Status != models.BookingConfirmed {
		return models.EmailMessage{}, errStaleReminder
	}
	payload = d.enrich(payload, bc, e.EventType)

	if payload.CustomerEmail == "" {
		return models.EmailMessage{}, Permanent(errMissingRecipient)
	}

	msg, err := d.renderer.Render(e.EventType, payload, bc.Shop.Branding)
	if err != nil {
		return models.EmailMessage{}, fmt.Errorf("render: %w", err)
	}
	msg.EventType = e.EventType
	msg.EntryID = e.ID
	return msg, nil
}

func (d *Dispatcher) enrich(p models.EventPayload, bc models.BookingContext, t models.EventType) models.EventPayload {
	current := PayloadFor(bc)

	p.BookingID = current.BookingID
	p.ShopName = current.ShopName
	if bc.Shop.Branding.ShopName != "" {
		p.ShopName = bc.Shop.Branding.ShopName
	}
	p.Timezone = current.Timezone
	p.StaffName = current.StaffName
	p.ServiceName = current.ServiceName
	p.CustomerName = current.CustomerName
	p.CustomerEmail = current.CustomerEmail

	// A reminder always describes the booking as it is now
	if t == models.EventReminderNextDay || p.StartAt.IsZero() {
		p.StartAt = current.StartAt
		p.EndAt = current.EndAt
	}
	if p.ManageToken != "" && d.manageURL != "" {
		p.ManageURL = d.manageURL + "/manage/" + p.ManageToken
	}
	return p
}

func (d *Dispatcher) recordFailure(ctx context.Context, l *slog.Logger, e models.OutboxEntry, cause error) (models.OutboxStatus, error) {
	attempts := e.AttemptCount + 1
	errLog := TruncateError(cause.Error())
	now := d.clock.Now()

	if IsPermanent(cause) || d.policy.Exhausted(attempts) {
		if err := d.repo.MarkFailed(ctx, e.ID, attempts, errLog, now); err != nil {
			return "", fmt.Errorf("mark failed: %w", err)
		}
		metrics.OutboxDeliveries.WithLabelValues("failed", string(e.EventType)).Inc()
		l.Error("Notification failed permanently", "attempts", attempts, "error", cause)
		return models.OutboxFailed, nil
	}

	next := d.policy.Next(attempts, now)
	if err := d.repo.MarkRetry(ctx, e.ID, attempts, next, errLog); err != nil {
		return "", fmt.Errorf("mark retry: %w", err)
	}
	metrics.OutboxDeliveries.WithLabelValues("retry", string(e.EventType)).Inc()
	l.Warn("Notification failed, will retry", "attempts", attempts, "next_attempt_at", next, "error", cause)
	return models.OutboxPending, nil
}

// dropStale cancels the reminders of a booking that stopped being confirmed after they were claimed
func (d *Dispatcher) dropStale(ctx context.Context, l *slog.Logger, e models.OutboxEntry) (models.OutboxStatus, error) {
	if _, err := d.repo.CancelPendingOutbox(ctx, e.BookingID, models.EventReminderNextDay, d.clock.Now()); err != nil {
		return "", fmt.Errorf("cancel stale reminder: %w", err)
	}
	metrics.OutboxDeliveries.WithLabelValues("cancelled", string(e.EventType)).Inc()
	l.Info("Reminder dropped, booking no longer confirmed")
	return models.OutboxCancelled, nil
}

func (d *Dispatcher) release(remaining []models.OutboxEntry) int {
	ids := make([]uuid.UUID, 0, len(remaining))
	for _, e := range remaining {
		ids = append(ids, e.ID)
		metrics.OutboxDeliveries.WithLabelValues("released", string(e.EventType)).Inc()
	}

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.repo.ReleaseClaims(cleanupCtx, ids, d.clock.Now()); err != nil {
		d.logger.Error("CRITICAL: Failed to release claimed rows during shutdown", "error", err, "count", len(ids))
		return 0
	}
	return len(ids)
}
