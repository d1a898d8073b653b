package booking

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

// Repository is the storage the lifecycle runs on. CreateBooking and UpdateBookingTime
// must return models.ErrSlotTaken when the store's overlap exclusion rejects the row;
// that guarantee lives in storage, not in this package.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetShop(ctx context.Context, id uuid.UUID) (models.Shop, error)
	GetStaff(ctx context.Context, id uuid.UUID) (*models.Staff, error)
	GetService(ctx context.Context, id uuid.UUID) (*models.Service, error)
	GetWorkingHours(ctx context.Context, staffID uuid.UUID, day time.Weekday) (*models.WorkingHours, error)
	HasBlockOverlap(ctx context.Context, staffID uuid.UUID, from, to time.Time) (bool, error)
	CreateBlock(ctx context.Context, b models.Block) (models.Block, error)
	UpsertCustomer(ctx context.Context, c models.Customer) (models.Customer, error)
	CreateBooking(ctx context.Context, b models.Booking) error
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (models.Booking, error)
	UpdateBookingTime(ctx context.Context, id uuid.UUID, start, end, at time.Time) error
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, status models.BookingStatus, at time.Time) error
	GetBookingContext(ctx context.Context, id uuid.UUID) (models.BookingContext, error)
}

// StaffPicker assigns a staff member to an "any staff" booking
type StaffPicker interface {
	PickStaff(ctx context.Context, shopID, serviceID uuid.UUID, start time.Time) (models.Staff, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, bookingID uuid.UUID) (string, error)
}

type EventWriter interface {
	Enqueue(ctx context.Context, entry models.OutboxEntry) (bool, error)
	CancelPendingReminders(ctx context.Context, bookingID uuid.UUID, at time.Time) (int64, error)
}

type Service struct {
	repo        Repository
	picker      StaffPicker
	tokens      TokenIssuer
	events      EventWriter
	clock       clock.Clock
	logger      *slog.Logger
	phoneRegion string
}

const defaultPhoneRegion = "US"

type Option func(*Service)

// WithPhoneRegion sets the region used for phone numbers typed without a country code
func WithPhoneRegion(region string) Option {
	return func(s *Service) {
		if region != "" {
			s.phoneRegion = region
		}
	}
}

func NewService(r Repository, p StaffPicker, t TokenIssuer, e EventWriter, clk clock.Clock, l *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:        r,
		picker:      p,
		tokens:      t,
		events:      e,
		clock:       clk,
		logger:      l,
		phoneRegion: defaultPhoneRegion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	ShopID uuid.UUID
	// StaffID uuid.Nil lets the shop assign the first free staff member
	StaffID   uuid.UUID
	ServiceID uuid.UUID
	StartAt   time.Time
	Source    models.BookingSource
	Customer  CustomerInput
}

type CreateResult struct {
	Booking     models.Booking
	ManageToken string
}

// Create books a slot. Booking row, manage token and confirmation event commit together.
// Concurrent creators for the same staff and overlapping time get exactly one winner;
// the others receive models.ErrSlotTaken.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	res, err := s.create(ctx, in)
	metrics.BookingOperations.WithLabelValues("create", resultLabel(err)).Inc()
	return res, err
}

func (s *Service) create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if in.Source == "" {
		in.Source = models.SourceCustomer
	}
	if in.Source != models.SourceCustomer && in.Source != models.SourceWalkIn {
		return CreateResult{}, models.ErrInvalidActor
	}

	shop, loc, err := s.loadShop(ctx, in.ShopID)
	if err != nil {
		return CreateResult{}, err
	}
	svc, err := s.loadService(ctx, shop.ID, in.ServiceID)
	if err != nil {
		return CreateResult{}, err
	}
	if !calendar.OnGrid(in.StartAt, loc) {
		return CreateResult{}, models.ErrOffGrid
	}
	customer, err := s.normalizeCustomer(in.Customer)
	if err != nil {
		return CreateResult{}, err
	}
	customer.ShopID = shop.ID

	var staff models.Staff
	if in.StaffID == uuid.Nil {
		staff, err = s.picker.PickStaff(ctx, shop.ID, svc.ID, in.StartAt.UTC())
		if err != nil {
			return CreateResult{}, err
		}
	} else {
		st, err := s.loadStaff(ctx, shop.ID, in.StaffID)
		if err != nil {
			return CreateResult{}, err
		}
		staff = *st
	}

	now := s.clock.Now()
	start := in.StartAt.UTC()
	slot := calendar.Interval{Start: start, End: start.Add(svc.Duration())}

	if in.Source == models.SourceCustomer {
		if err := s.checkCustomerSlot(ctx, loc, staff.ID, slot, now); err != nil {
			return CreateResult{}, err
		}
	}

	var result CreateResult
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		blocked, err := s.repo.HasBlockOverlap(txCtx, staff.ID, slot.Start, slot.End)
		if err != nil {
			return fmt.Errorf("check blocks: %w", err)
		}
		if blocked {
			return models.ErrBlocked
		}

		saved, err := s.repo.UpsertCustomer(txCtx, customer)
		if err != nil {
			return fmt.Errorf("upsert customer: %w", err)
		}

		b := models.Booking{
			ID:         uuid.New(),
			ShopID:     shop.ID,
			StaffID:    staff.ID,
			ServiceID:  svc.ID,
			CustomerID: saved.ID,
			StartAt:    slot.Start,
			EndAt:      slot.End,
			Status:     models.BookingConfirmed,
			Source:     in.Source,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.repo.CreateBooking(txCtx, b); err != nil {
			return err
		}

		raw, err := s.tokens.Issue(txCtx, b.ID)
		if err != nil {
			return err
		}

		payload := outbox.PayloadFor(models.BookingContext{Booking: b, Shop: shop, Staff: staff, Service: *svc, Customer: saved})
		payload.ManageToken = raw
		entry, err := outbox.NewEntry(models.EventBookingConfirmed, outbox.ConfirmedKey(b.ID), b, payload, now)
		if err != nil {
			return err
		}
		if _, err := s.events.Enqueue(txCtx, entry); err != nil {
			return err
		}

		result = CreateResult{Booking: b, ManageToken: raw}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}

	s.logger.Info("Booking created",
		"booking_id", result.Booking.ID,
		"shop_id", shop.ID,
		"staff_id", staff.ID,
		"start_at", result.Booking.StartAt,
		"source", in.Source,
	)
	return result, nil
}

type RescheduleInput struct {
	BookingID uuid.UUID
	// ShopID scopes the call: customers pass the shop resolved from their token, owners their own shop
	ShopID  uuid.UUID
	StartAt time.Time
	Actor   models.Actor
}

// Reschedule moves a confirmed booking. Moving it to the start it already has is a no-op.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (models.Booking, error) {
	b, noop, err := s.reschedule(ctx, in)
	label := resultLabel(err)
	if noop {
		label = "noop"
	}
	metrics.BookingOperations.WithLabelValues("reschedule", label).Inc()
	return b, err
}

func (s *Service) reschedule(ctx context.Context, in RescheduleInput) (models.Booking, bool, error) {
	if !in.Actor.Valid() {
		return models.Booking{}, false, models.ErrInvalidActor
	}

	var (
		result models.Booking
		noop   bool
	)
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		b, err := s.repo.GetBookingForUpdate(txCtx, in.BookingID)
		if err != nil {
			return err
		}
		if b.ShopID != in.ShopID {
			return models.ErrBookingNotFound
		}
		if b.Status != models.BookingConfirmed {
			return models.ErrNotReschedulable
		}

		shop, err := s.repo.GetShop(txCtx, b.ShopID)
		if err != nil {
			return err
		}
		loc, err := calendar.LoadLocation(shop.Timezone)
		if err != nil {
			return err
		}
		if !calendar.OnGrid(in.StartAt, loc) {
			return models.ErrOffGrid
		}
		svc, err := s.repo.GetService(txCtx, b.ServiceID)
		if err != nil {
			return fmt.Errorf("load service: %w", err)
		}
		if svc == nil || svc.DurationMinutes <= 0 {
			return models.ErrInvalidService
		}

		now := s.clock.Now()
		start := in.StartAt.UTC()
		slot := calendar.Interval{Start: start, End: start.Add(svc.Duration())}

		if slot.Start.Equal(b.StartAt) && slot.End.Equal(b.EndAt) {
			result, noop = b, true
			return nil
		}

		if in.Actor == models.ActorCustomer {
			if err := s.checkCustomerSlot(txCtx, loc, b.StaffID, slot, now); err != nil {
				return err
			}
		}

		blocked, err := s.repo.HasBlockOverlap(txCtx, b.StaffID, slot.Start, slot.End)
		if err != nil {
			return fmt.Errorf("check blocks: %w", err)
		}
		if blocked {
			return models.ErrBlocked
		}

		previous := b.StartAt
		if err := s.repo.UpdateBookingTime(txCtx, b.ID, slot.Start, slot.End, now); err != nil {
			return err
		}
		b.StartAt, b.EndAt, b.UpdatedAt = slot.Start, slot.End, now

		if _, err := s.events.CancelPendingReminders(txCtx, b.ID, now); err != nil {
			return err
		}

		bc, err := s.repo.GetBookingContext(txCtx, b.ID)
		if err != nil {
			return fmt.Errorf("load booking context: %w", err)
		}
		payload := outbox.PayloadFor(bc)
		payload.PreviousStartAt = &previous
		entry, err := outbox.NewEntry(models.EventBookingUpdated, outbox.UpdatedKey(b.ID, slot.Start), b, payload, now)
		if err != nil {
			return err
		}
		if _, err := s.events.Enqueue(txCtx, entry); err != nil {
			return err
		}

		result = b
		return nil
	})
	if err != nil {
		return models.Booking{}, false, err
	}

	if !noop {
		s.logger.Info("Booking rescheduled", "booking_id", result.ID, "start_at", result.StartAt, "actor", in.Actor)
	}
	return result, noop, nil
}

type CancelInput struct {
	BookingID uuid.UUID
	ShopID    uuid.UUID
	Actor     models.Actor
}

// Cancel moves a booking to its terminal cancelled status. Cancelling an already
// cancelled booking returns the current status and changes nothing.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (models.BookingStatus, error) {
	if !in.Actor.Valid() {
		metrics.BookingOperations.WithLabelValues("cancel", "invalid").Inc()
		return "", models.ErrInvalidActor
	}

	var (
		status models.BookingStatus
		noop   bool
	)
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		b, err := s.repo.GetBookingForUpdate(txCtx, in.BookingID)
		if err != nil {
			return err
		}
		if b.ShopID != in.ShopID {
			return models.ErrBookingNotFound
		}
		if b.Status.IsCancelled() {
			status, noop = b.Status, true
			return nil
		}

		now := s.clock.Now()
		status = in.Actor.CancelledStatus()
		if err := s.repo.UpdateBookingStatus(txCtx, b.ID, status, now); err != nil {
			return err
		}
		b.Status, b.UpdatedAt = status, now

		if _, err := s.events.CancelPendingReminders(txCtx, b.ID, now); err != nil {
			return err
		}

		bc, err := s.repo.GetBookingContext(txCtx, b.ID)
		if err != nil {
			return fmt.Errorf("load booking context: %w", err)
		}
		payload := outbox.PayloadFor(bc)
		payload.CancelledBy = in.Actor
		entry, err := outbox.NewEntry(models.EventBookingCancelled, outbox.CancelledKey(b.ID, in.Actor), b, payload, now)
		if err != nil {
			return err
		}
		_, err = s.events.Enqueue(txCtx, entry)
		return err
	})

	label := resultLabel(err)
	if noop {
		label = "noop"
	}
	metrics.BookingOperations.WithLabelValues("cancel", label).Inc()
	if err != nil {
		return "", err
	}

	if !noop {
		s.logger.Info("Booking cancelled", "booking_id", in.BookingID, "status", status, "actor", in.Actor)
	}
	return status, nil
}

// checkCustomerSlot applies the rules walk-ins skip: the slot must be in the future
// and inside the staff member's working hours for that local day
func (s *Service) checkCustomerSlot(ctx context.Context, loc *time.Location, staffID uuid.UUID, slot calendar.Interval, now time.Time) error {
	if !slot.Start.After(now) {
		return models.ErrPastSlot
	}

	date := calendar.DateOf(slot.Start.In(loc))
	hours, err := s.repo.GetWorkingHours(ctx, staffID, date.Weekday())
	if err != nil {
		return fmt.Errorf("load working hours: %w", err)
	}
	if hours == nil {
		return models.ErrOutsideHours
	}
	working := calendar.Interval{
		Start: date.At(loc, hours.StartMinute),
		End:   date.At(loc, hours.EndMinute),
	}
	if !working.Contains(slot) {
		return models.ErrOutsideHours
	}
	return nil
}

func (s *Service) loadShop(ctx context.Context, id uuid.UUID) (models.Shop, *time.Location, error) {
	shop, err := s.repo.GetShop(ctx, id)
	if err != nil {
		return models.Shop{}, nil, err
	}
	if !shop.Active {
		return models.Shop{}, nil, models.ErrShopInactive
	}
	loc, err := calendar.LoadLocation(shop.Timezone)
	if err != nil {
		return models.Shop{}, nil, err
	}
	return shop, loc, nil
}

func (s *Service) loadService(ctx context.Context, shopID, id uuid.UUID) (*models.Service, error) {
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	if svc == nil || svc.ShopID != shopID || !svc.Active || svc.DurationMinutes <= 0 {
		return nil, models.ErrInvalidService
	}
	return svc, nil
}

func (s *Service) loadStaff(ctx context.Context, shopID, id uuid.UUID) (*models.Staff, error) {
	st, err := s.repo.GetStaff(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	if st == nil || st.ShopID != shopID || !st.Active {
		return nil, models.ErrInvalidStaff
	}
	return st, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, models.ErrBlocked):
		return "blocked"
	case models.KindOf(err) == models.KindInternal:
		return "error"
	default:
		return "invalid"
	}
}
