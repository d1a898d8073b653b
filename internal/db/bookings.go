package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func errSlotTaken(err error) error {
	return fmt.Errorf("%w: %v", models.ErrSlotTaken, err)
}

// UpsertCustomer keys customers by (shop, phone). An existing row takes the new
// name, and the new email when one is given.
func (r *PostgresRepository) UpsertCustomer(ctx context.Context, c models.Customer) (models.Customer, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.q(ctx).QueryRow(ctx, `
		INSERT INTO customers (id, shop_id, name, phone, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (shop_id, phone) DO UPDATE
		SET name = EXCLUDED.name,
		    email = COALESCE(EXCLUDED.email, customers.email),
		    updated_at = NOW()
		RETURNING id, shop_id, name, phone, email`,
		c.ID, c.ShopID, c.Name, c.Phone, c.Email,
	).Scan(&c.ID, &c.ShopID, &c.Name, &c.Phone, &c.Email)
	if err != nil {
		return models.Customer{}, fmt.Errorf("upsert customer: %w", err)
	}
	return c, nil
}

// CreateBooking inserts b. The bookings_no_overlap constraint rejects a confirmed
// row overlapping another confirmed row of the same staff; that surfaces as ErrSlotTaken.
func (r *PostgresRepository) CreateBooking(ctx context.Context, b models.Booking) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO bookings (id, shop_id, staff_id, service_id, customer_id, start_at, end_at, status, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.ShopID, b.StaffID, b.ServiceID, b.CustomerID, b.StartAt, b.EndAt,
		string(b.Status), string(b.Source), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return errSlotTaken(err)
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

const bookingColumns = `id, shop_id, staff_id, service_id, customer_id, start_at, end_at, status, source, created_at, updated_at`

func scanBooking(row pgx.Row) (models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.ShopID, &b.StaffID, &b.ServiceID, &b.CustomerID, &b.StartAt, &b.EndAt, &b.Status, &b.Source, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// GetBookingForUpdate locks the row until the surrounding transaction ends
func (r *PostgresRepository) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (models.Booking, error) {
	b, err := scanBooking(r.q(ctx).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Booking{}, models.ErrBookingNotFound
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) ListConfirmedBookings(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE staff_id = $1 AND status = 'confirmed'
		  AND tstzrange(start_at, end_at, '[)') && tstzrange($2, $3, '[)')
		ORDER BY start_at`, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateBookingTime(ctx context.Context, id uuid.UUID, start, end, at time.Time) error {
	tag, err := r.q(ctx).Exec(ctx, `
		UPDATE bookings SET start_at = $2, end_at = $3, updated_at = $4 WHERE id = $1`,
		id, start, end, at)
	if err != nil {
		if isExclusionViolation(err) {
			return errSlotTaken(err)
		}
		return fmt.Errorf("update booking time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status models.BookingStatus, at time.Time) error {
	tag, err := r.q(ctx).Exec(ctx, `
		UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), at)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

const bookingContextQuery = `
	SELECT b.id, b.shop_id, b.staff_id, b.service_id, b.customer_id, b.start_at, b.end_at, b.status, b.source, b.created_at, b.updated_at,
	       s.id, s.name, s.timezone, s.active, s.reminders_enabled, s.reminder_send_minute, s.branding, s.created_at,
	       st.id, st.shop_id, st.name, st.active, st.created_at,
	       sv.id, sv.shop_id, sv.name, sv.duration_minutes, sv.active,
	       c.id, c.shop_id, c.name, c.phone, c.email
	FROM bookings b
	JOIN shops s ON s.id = b.shop_id
	JOIN staff st ON st.id = b.staff_id
	JOIN services sv ON sv.id = b.service_id
	JOIN customers c ON c.id = b.customer_id`

func scanBookingContext(row pgx.Row) (models.BookingContext, error) {
	var (
		bc       models.BookingContext
		branding []byte
	)
	b, s, st, sv, c := &bc.Booking, &bc.Shop, &bc.Staff, &bc.Service, &bc.Customer
	err := row.Scan(
		&b.ID, &b.ShopID, &b.StaffID, &b.ServiceID, &b.CustomerID, &b.StartAt, &b.EndAt, &b.Status, &b.Source, &b.CreatedAt, &b.UpdatedAt,
		&s.ID, &s.Name, &s.Timezone, &s.Active, &s.RemindersEnabled, &s.ReminderSendMinute, &branding, &s.CreatedAt,
		&st.ID, &st.ShopID, &st.Name, &st.Active, &st.CreatedAt,
		&sv.ID, &sv.ShopID, &sv.Name, &sv.DurationMinutes, &sv.Active,
		&c.ID, &c.ShopID, &c.Name, &c.Phone, &c.Email,
	)
	if err != nil {
		return models.BookingContext{}, err
	}
	if s.Branding, err = decodeBranding(branding); err != nil {
		return models.BookingContext{}, err
	}
	return bc, nil
}

func (r *PostgresRepository) GetBookingContext(ctx context.Context, id uuid.UUID) (models.BookingContext, error) {
	bc, err := scanBookingContext(r.q(ctx).QueryRow(ctx, bookingContextQuery+` WHERE b.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BookingContext{}, models.ErrBookingNotFound
	}
	if err != nil {
		return models.BookingContext{}, fmt.Errorf("get booking context: %w", err)
	}
	return bc, nil
}

// ListBookingsWithin returns confirmed bookings of a shop starting in [from, to)
func (r *PostgresRepository) ListBookingsWithin(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]models.BookingContext, error) {
	rows, err := r.q(ctx).Query(ctx, bookingContextQuery+`
		WHERE b.shop_id = $1 AND b.status = 'confirmed' AND b.start_at >= $2 AND b.start_at < $3
		ORDER BY b.start_at`, shopID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings within: %w", err)
	}
	defer rows.Close()

	var out []models.BookingContext
	for rows.Next() {
		bc, err := scanBookingContext(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking context: %w", err)
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}
