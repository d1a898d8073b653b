package availability

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Guizzs26/slotbook/internal/calendar"
	"github.com/Guizzs26/slotbook/internal/clock"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
)

// Store is the read side the engine needs. Every query hits current data; nothing is cached.
type Store interface {
	GetShop(ctx context.Context, id uuid.UUID) (models.Shop, error)
	GetStaff(ctx context.Context, id uuid.UUID) (*models.Staff, error)
	GetService(ctx context.Context, id uuid.UUID) (*models.Service, error)
	ListActiveStaff(ctx context.Context, shopID uuid.UUID) ([]models.Staff, error)
	GetWorkingHours(ctx context.Context, staffID uuid.UUID, day time.Weekday) (*models.WorkingHours, error)
	ListBlocks(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Block, error)
	ListConfirmedBookings(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Booking, error)
}

type Engine struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

func NewEngine(s Store, clk clock.Clock, l *slog.Logger) *Engine {
	return &Engine{store: s, clock: clk, logger: l}
}

// Query selects one staff member, or any active staff when StaffID is uuid.Nil
type Query struct {
	ShopID    uuid.UUID
	StaffID   uuid.UUID
	ServiceID uuid.UUID
	Date      calendar.LocalDate
}

func (q Query) AnyStaff() bool {
	return q.StaffID == uuid.Nil
}

// GetSlots returns the ordered bookable starts for the query.
// Bad references are errors; an empty result means nothing is free.
func (e *Engine) GetSlots(ctx context.Context, q Query) ([]time.Time, error) {
	if q.Date.IsZero() {
		return nil, models.ErrInvalidDate
	}

	shop, loc, err := e.loadShop(ctx, q.ShopID)
	if err != nil {
		return nil, err
	}
	svc, err := e.loadService(ctx, shop.ID, q.ServiceID)
	if err != nil {
		return nil, err
	}

	if !q.AnyStaff() {
		staff, err := e.loadStaff(ctx, shop.ID, q.StaffID)
		if err != nil {
			return nil, err
		}
		return e.staffSlots(ctx, loc, *staff, *svc, q.Date)
	}

	staff, err := e.orderedStaff(ctx, shop.ID)
	if err != nil {
		return nil, err
	}

	lists := make([][]time.Time, 0, len(staff))
	for _, st := range staff {
		slots, err := e.staffSlots(ctx, loc, st, *svc, q.Date)
		if err != nil {
			return nil, err
		}
		lists = append(lists, slots)
	}
	return MergeSlots(lists...), nil
}

// PickStaff resolves an "any staff" booking: active staff are tried in (created_at, id)
// order and the first one offering start wins. The choice depends on the current
// staff set and is not stable when staff are added or deactivated.
func (e *Engine) PickStaff(ctx context.Context, shopID, serviceID uuid.UUID, start time.Time) (models.Staff, error) {
	shop, loc, err := e.loadShop(ctx, shopID)
	if err != nil {
		return models.Staff{}, err
	}
	svc, err := e.loadService(ctx, shop.ID, serviceID)
	if err != nil {
		return models.Staff{}, err
	}
	staff, err := e.orderedStaff(ctx, shop.ID)
	if err != nil {
		return models.Staff{}, err
	}

	date := calendar.DateOf(start.In(loc))
	for _, st := range staff {
		slots, err := e.staffSlots(ctx, loc, st, *svc, date)
		if err != nil {
			return models.Staff{}, err
		}
		if containsInstant(slots, start) {
			e.logger.Debug("Assigned staff for any-staff booking", "staff_id", st.ID, "start_at", start)
			return st, nil
		}
	}
	return models.Staff{}, models.ErrSlotTaken
}

func (e *Engine) staffSlots(ctx context.Context, loc *time.Location, staff models.Staff, svc models.Service, date calendar.LocalDate) ([]time.Time, error) {
	hours, err := e.store.GetWorkingHours(ctx, staff.ID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	if hours == nil {
		return nil, nil
	}

	// Bookings may run past midnight, so the window spans the whole local day
	day := date.Bounds(loc)
	busy, err := e.busy(ctx, staff.ID, day)
	if err != nil {
		return nil, err
	}

	return ComputeSlots(SlotInput{
		Location: loc,
		Date:     date,
		Hours:    hours,
		Duration: svc.Duration(),
		Busy:     busy,
		Now:      e.clock.Now(),
	}), nil
}

func (e *Engine) busy(ctx context.Context, staffID uuid.UUID, day calendar.Interval) ([]calendar.Interval, error) {
	blocks, err := e.store.ListBlocks(ctx, staffID, day.Start, day.End)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	bookings, err := e.store.ListConfirmedBookings(ctx, staffID, day.Start, day.End)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	busy := make([]calendar.Interval, 0, len(blocks)+len(bookings))
	for _, b := range blocks {
		busy = append(busy, calendar.Interval{Start: b.StartAt, End: b.EndAt})
	}
	for _, b := range bookings {
		busy = append(busy, calendar.Interval{Start: b.StartAt, End: b.EndAt})
	}
	return busy, nil
}

func (e *Engine) orderedStaff(ctx context.Context, shopID uuid.UUID) ([]models.Staff, error) {
	staff, err := e.store.ListActiveStaff(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	slices.SortStableFunc(staff, func(a, b models.Staff) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return staff, nil
}

func (e *Engine) loadShop(ctx context.Context, id uuid.UUID) (models.Shop, *time.Location, error) {
	shop, err := e.store.GetShop(ctx, id)
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

func (e *Engine) loadService(ctx context.Context, shopID, id uuid.UUID) (*models.Service, error) {
	svc, err := e.store.GetService(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	if svc == nil || svc.ShopID != shopID || !svc.Active || svc.DurationMinutes <= 0 {
		return nil, models.ErrInvalidService
	}
	return svc, nil
}

func (e *Engine) loadStaff(ctx context.Context, shopID, id uuid.UUID) (*models.Staff, error) {
	staff, err := e.store.GetStaff(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	if staff == nil || staff.ShopID != shopID || !staff.Active {
		return nil, models.ErrInvalidStaff
	}
	return staff, nil
}
