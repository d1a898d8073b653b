package testutil

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Guizzs26/slotbook/internal/calendar"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
)

type txKey struct{}

type hoursKey struct {
	staffID uuid.UUID
	day     time.Weekday
}

type memState struct {
	shops     map[uuid.UUID]models.Shop
	staff     map[uuid.UUID]models.Staff
	services  map[uuid.UUID]models.Service
	hours     map[hoursKey]models.WorkingHours
	blocks    map[uuid.UUID]models.Block
	customers map[uuid.UUID]models.Customer
	bookings  map[uuid.UUID]models.Booking
	tokens    map[uuid.UUID]models.ManageToken
	outbox    map[uuid.UUID]models.OutboxEntry
}

func (s memState) clone() memState {
	return memState{
		shops:     maps.Clone(s.shops),
		staff:     maps.Clone(s.staff),
		services:  maps.Clone(s.services),
		hours:     maps.Clone(s.hours),
		blocks:    maps.Clone(s.blocks),
		customers: maps.Clone(s.customers),
		bookings:  maps.Clone(s.bookings),
		tokens:    maps.Clone(s.tokens),
		outbox:    maps.Clone(s.outbox),
	}
}

// MemStore is an in-memory stand-in for the Postgres repository. Transactions are
// serialised by one mutex and roll back by restoring a snapshot. Confirmed bookings
// of a staff member may not overlap, matching the database exclusion constraint.
type MemStore struct {
	mu    sync.Mutex
	state memState
}

func NewMemStore() *MemStore {
	return &MemStore{state: memState{
		shops:     map[uuid.UUID]models.Shop{},
		staff:     map[uuid.UUID]models.Staff{},
		services:  map[uuid.UUID]models.Service{},
		hours:     map[hoursKey]models.WorkingHours{},
		blocks:    map[uuid.UUID]models.Block{},
		customers: map[uuid.UUID]models.Customer{},
		bookings:  map[uuid.UUID]models.Booking{},
		tokens:    map[uuid.UUID]models.ManageToken{},
		outbox:    map[uuid.UUID]models.OutboxEntry{},
	}}
}

// lock is a no-op inside WithTx, which already holds the mutex
func (m *MemStore) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// Seeding

func (m *MemStore) AddShop(s models.Shop) {
	defer m.lock(context.Background())()
	m.state.shops[s.ID] = s
}

func (m *MemStore) AddStaff(s models.Staff) {
	defer m.lock(context.Background())()
	m.state.staff[s.ID] = s
}

func (m *MemStore) AddService(s models.Service) {
	defer m.lock(context.Background())()
	m.state.services[s.ID] = s
}

func (m *MemStore) AddWorkingHours(h models.WorkingHours) {
	defer m.lock(context.Background())()
	m.state.hours[hoursKey{h.StaffID, time.Weekday(h.DayOfWeek)}] = h
}

func (m *MemStore) AddBlock(b models.Block) {
	defer m.lock(context.Background())()
	m.state.blocks[b.ID] = b
}

// PutBooking stores b without the overlap check, for arranging test state
func (m *MemStore) PutBooking(b models.Booking) {
	defer m.lock(context.Background())()
	m.state.bookings[b.ID] = b
}

func (m *MemStore) PutCustomer(c models.Customer) {
	defer m.lock(context.Background())()
	m.state.customers[c.ID] = c
}

func (m *MemStore) PutOutbox(e models.OutboxEntry) {
	defer m.lock(context.Background())()
	m.state.outbox[e.ID] = e
}

func (m *MemStore) DeleteBooking(id uuid.UUID) {
	defer m.lock(context.Background())()
	delete(m.state.bookings, id)
}

// Inspection

func (m *MemStore) Bookings() []models.Booking {
	defer m.lock(context.Background())()
	out := slices.Collect(maps.Values(m.state.bookings))
	slices.SortFunc(out, func(a, b models.Booking) int { return a.StartAt.Compare(b.StartAt) })
	return out
}

func (m *MemStore) Booking(id uuid.UUID) (models.Booking, bool) {
	defer m.lock(context.Background())()
	b, ok := m.state.bookings[id]
	return b, ok
}

func (m *MemStore) Customers() []models.Customer {
	defer m.lock(context.Background())()
	return slices.Collect(maps.Values(m.state.customers))
}

func (m *MemStore) Token(bookingID uuid.UUID) (models.ManageToken, bool) {
	defer m.lock(context.Background())()
	t, ok := m.state.tokens[bookingID]
	return t, ok
}

// OutboxEntries returns rows in creation order
func (m *MemStore) OutboxEntries() []models.OutboxEntry {
	defer m.lock(context.Background())()
	out := slices.Collect(maps.Values(m.state.outbox))
	slices.SortFunc(out, func(a, b models.OutboxEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.IdempotencyKey, b.IdempotencyKey)
	})
	return out
}

func (m *MemStore) OutboxByKey(key string) (models.OutboxEntry, bool) {
	defer m.lock(context.Background())()
	for _, e := range m.state.outbox {
		if e.IdempotencyKey == key {
			return e, true
		}
	}
	return models.OutboxEntry{}, false
}

func (m *MemStore) Ping(ctx context.Context) error { return nil }

// Catalog

func (m *MemStore) GetShop(ctx context.Context, id uuid.UUID) (models.Shop, error) {
	defer m.lock(ctx)()
	s, ok := m.state.shops[id]
	if !ok {
		return models.Shop{}, models.ErrShopNotFound
	}
	return s, nil
}

func (m *MemStore) GetStaff(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	defer m.lock(ctx)()
	s, ok := m.state.staff[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemStore) GetService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	defer m.lock(ctx)()
	s, ok := m.state.services[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemStore) ListActiveStaff(ctx context.Context, shopID uuid.UUID) ([]models.Staff, error) {
	defer m.lock(ctx)()
	var out []models.Staff
	for _, s := range m.state.staff {
		if s.ShopID == shopID && s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemStore) GetWorkingHours(ctx context.Context, staffID uuid.UUID, day time.Weekday) (*models.WorkingHours, error) {
	defer m.lock(ctx)()
	h, ok := m.state.hours[hoursKey{staffID, day}]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (m *MemStore) ListBlocks(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Block, error) {
	defer m.lock(ctx)()
	window := calendar.Interval{Start: from, End: to}
	var out []models.Block
	for _, b := range m.state.blocks {
		if b.StaffID == staffID && window.Overlaps(calendar.Interval{Start: b.StartAt, End: b.EndAt}) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemStore) CreateBlock(ctx context.Context, b models.Block) (models.Block, error) {
	defer m.lock(ctx)()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.state.blocks[b.ID] = b
	return b, nil
}

func (m *MemStore) HasBlockOverlap(ctx context.Context, staffID uuid.UUID, from, to time.Time) (bool, error) {
	blocks, err := m.ListBlocks(ctx, staffID, from, to)
	return len(blocks) > 0, err
}

func (m *MemStore) ListConfirmedBookings(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	defer m.lock(ctx)()
	window := calendar.Interval{Start: from, End: to}
	var out []models.Booking
	for _, b := range m.state.bookings {
		if b.StaffID == staffID && b.Status == models.BookingConfirmed &&
			window.Overlaps(calendar.Interval{Start: b.StartAt, End: b.EndAt}) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Bookings

// UpsertCustomer keys customers by (shop, phone). An existing row takes the new
// name, and the new email when one is given.
func (m *MemStore) UpsertCustomer(ctx context.Context, c models.Customer) (models.Customer, error) {
	defer m.lock(ctx)()
	for id, existing := range m.state.customers {
		if existing.ShopID == c.ShopID && existing.Phone == c.Phone {
			existing.Name = c.Name
			if c.Email != nil {
				existing.Email = c.Email
			}
			m.state.customers[id] = existing
			return existing, nil
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.state.customers[c.ID] = c
	return c, nil
}

func (m *MemStore) CreateBooking(ctx context.Context, b models.Booking) error {
	defer m.lock(ctx)()
	if b.Status == models.BookingConfirmed && m.conflicts(b) {
		return models.ErrSlotTaken
	}
	m.state.bookings[b.ID] = b
	return nil
}

func (m *MemStore) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (models.Booking, error) {
	defer m.lock(ctx)()
	b, ok := m.state.bookings[id]
	if !ok {
		return models.Booking{}, models.ErrBookingNotFound
	}
	return b, nil
}

func (m *MemStore) UpdateBookingTime(ctx context.Context, id uuid.UUID, start, end, at time.Time) error {
	defer m.lock(ctx)()
	b, ok := m.state.bookings[id]
	if !ok {
		return models.ErrBookingNotFound
	}
	b.StartAt, b.EndAt, b.UpdatedAt = start, end, at
	if b.Status == models.BookingConfirmed && m.conflicts(b) {
		return models.ErrSlotTaken
	}
	m.state.bookings[id] = b
	return nil
}

func (m *MemStore) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status models.BookingStatus, at time.Time) error {
	defer m.lock(ctx)()
	b, ok := m.state.bookings[id]
	if !ok {
		return models.ErrBookingNotFound
	}
	b.Status, b.UpdatedAt = status, at
	m.state.bookings[id] = b
	return nil
}

func (m *MemStore) GetBookingContext(ctx context.Context, id uuid.UUID) (models.BookingContext, error) {
	defer m.lock(ctx)()
	b, ok := m.state.bookings[id]
	if !ok {
		return models.BookingContext{}, models.ErrBookingNotFound
	}
	return m.contextFor(b), nil
}

func (m *MemStore) contextFor(b models.Booking) models.BookingContext {
	return models.BookingContext{
		Booking:  b,
		Shop:     m.state.shops[b.ShopID],
		Staff:    m.state.staff[b.StaffID],
		Service:  m.state.services[b.ServiceID],
		Customer: m.state.customers[b.CustomerID],
	}
}

func (m *MemStore) conflicts(b models.Booking) bool {
	slot := calendar.Interval{Start: b.StartAt, End: b.EndAt}
	for _, other := range m.state.bookings {
		if other.ID == b.ID || other.StaffID != b.StaffID || other.Status != models.BookingConfirmed {
			continue
		}
		if slot.Overlaps(calendar.Interval{Start: other.StartAt, End: other.EndAt}) {
			return true
		}
	}
	return false
}

// Reminders

func (m *MemStore) ListReminderShops(ctx context.Context) ([]models.Shop, error) {
	defer m.lock(ctx)()
	var out []models.Shop
	for _, s := range m.state.shops {
		if s.Active && s.RemindersEnabled {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b models.Shop) int { return cmp.Compare(a.ID.String(), b.ID.String()) })
	return out, nil
}

func (m *MemStore) ListBookingsWithin(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]models.BookingContext, error) {
	defer m.lock(ctx)()
	var out []models.BookingContext
	for _, b := range m.state.bookings {
		if b.ShopID != shopID || b.Status != models.BookingConfirmed {
			continue
		}
		if b.StartAt.Before(from) || !b.StartAt.Before(to) {
			continue
		}
		out = append(out, m.contextFor(b))
	}
	slices.SortFunc(out, func(a, b models.BookingContext) int { return a.Booking.StartAt.Compare(b.Booking.StartAt) })
	return out, nil
}

// Tokens

func (m *MemStore) UpsertToken(ctx context.Context, t models.ManageToken) error {
	defer m.lock(ctx)()
	m.state.tokens[t.BookingID] = t
	return nil
}

func (m *MemStore) FindTokenByHash(ctx context.Context, hash string) (*models.ManageToken, error) {
	defer m.lock(ctx)()
	for _, t := range m.state.tokens {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MemStore) RevokeToken(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	defer m.lock(ctx)()
	t, ok := m.state.tokens[bookingID]
	if !ok || t.RevokedAt != nil {
		return nil
	}
	t.RevokedAt = &at
	m.state.tokens[bookingID] = t
	return nil
}

// Outbox

func (m *MemStore) InsertOutbox(ctx context.Context, e models.OutboxEntry) (bool, error) {
	defer m.lock(ctx)()
	for _, existing := range m.state.outbox {
		if existing.IdempotencyKey == e.IdempotencyKey {
			return false, nil
		}
	}
	m.state.outbox[e.ID] = e
	return true, nil
}

func (m *MemStore) CancelPendingOutbox(ctx context.Context, bookingID uuid.UUID, eventType models.EventType, at time.Time) (int64, error) {
	defer m.lock(ctx)()
	var n int64
	for id, e := range m.state.outbox {
		if e.BookingID == bookingID && e.EventType == eventType && e.Status == models.OutboxPending {
			e.Status, e.UpdatedAt = models.OutboxCancelled, at
			m.state.outbox[id] = e
			n++
		}
	}
	return n, nil
}

func (m *MemStore) FetchAndClaim(ctx context.Context, now time.Time, batchSize int, lease time.Duration) ([]models.OutboxEntry, error) {
	defer m.lock(ctx)()
	var due []models.OutboxEntry
	for _, e := range m.state.outbox {
		if e.Status == models.OutboxPending && !e.NextAttemptAt.After(now) {
			due = append(due, e)
		}
	}
	slices.SortFunc(due, func(a, b models.OutboxEntry) int {
		if c := a.NextAttemptAt.Compare(b.NextAttemptAt); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if len(due) > batchSize {
		due = due[:batchSize]
	}
	for _, e := range due {
		claimed := e
		claimed.NextAttemptAt = now.Add(lease)
		m.state.outbox[e.ID] = claimed
	}
	return due, nil
}

func (m *MemStore) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	defer m.lock(ctx)()
	e, ok := m.state.outbox[id]
	if !ok || e.Status != models.OutboxPending {
		return false, nil
	}
	e.Status, e.SentAt, e.UpdatedAt = models.OutboxSent, &at, at
	m.state.outbox[id] = e
	return true, nil
}

func (m *MemStore) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time, errLog string) error {
	return m.updatePending(ctx, id, func(e *models.OutboxEntry) {
		e.AttemptCount, e.NextAttemptAt, e.LastError = attempts, next, &errLog
	})
}

func (m *MemStore) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, errLog string, at time.Time) error {
	return m.updatePending(ctx, id, func(e *models.OutboxEntry) {
		e.Status, e.AttemptCount, e.LastError, e.UpdatedAt = models.OutboxFailed, attempts, &errLog, at
	})
}

func (m *MemStore) ReleaseClaims(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	defer m.lock(ctx)()
	for _, id := range ids {
		e, ok := m.state.outbox[id]
		if !ok || e.Status != models.OutboxPending {
			continue
		}
		e.NextAttemptAt = at
		m.state.outbox[id] = e
	}
	return nil
}

func (m *MemStore) GetOutbox(ctx context.Context, id uuid.UUID) (*models.OutboxEntry, error) {
	defer m.lock(ctx)()
	e, ok := m.state.outbox[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemStore) ResetForRetry(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	defer m.lock(ctx)()
	e, ok := m.state.outbox[id]
	if !ok || e.Status != models.OutboxFailed {
		return false, nil
	}
	e.Status, e.AttemptCount, e.NextAttemptAt, e.LastError, e.UpdatedAt = models.OutboxPending, 0, at, nil, at
	m.state.outbox[id] = e
	return true, nil
}

func (m *MemStore) CountOutboxByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	defer m.lock(ctx)()
	counts := map[models.OutboxStatus]int{}
	for _, e := range m.state.outbox {
		counts[e.Status]++
	}
	return counts, nil
}

func (m *MemStore) PurgeSent(ctx context.Context, before time.Time) (int64, error) {
	defer m.lock(ctx)()
	var n int64
	for id, e := range m.state.outbox {
		if e.Status == models.OutboxSent && e.SentAt != nil && e.SentAt.Before(before) {
			delete(m.state.outbox, id)
			n++
		}
	}
	return n, nil
}

// updatePending mirrors the status = 'pending' guard of the delivery updates
func (m *MemStore) updatePending(ctx context.Context, id uuid.UUID, fn func(*models.OutboxEntry)) error {
	defer m.lock(ctx)()
	e, ok := m.state.outbox[id]
	if !ok || e.Status != models.OutboxPending {
		return nil
	}
	fn(&e)
	m.state.outbox[id] = e
	return nil
}
