package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const shopColumns = `id, name, timezone, active, reminders_enabled, reminder_send_minute, branding, created_at`

func scanShop(row pgx.Row) (models.Shop, error) {
	var (
		s        models.Shop
		branding []byte
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Timezone, &s.Active, &s.RemindersEnabled, &s.ReminderSendMinute, &branding, &s.CreatedAt); err != nil {
		return models.Shop{}, err
	}
	b, err := decodeBranding(branding)
	if err != nil {
		return models.Shop{}, fmt.Errorf("shop %s: %w", s.ID, err)
	}
	s.Branding = b
	return s, nil
}

// decodeBranding keeps only the known branding fields
func decodeBranding(raw []byte) (models.Branding, error) {
	var b models.Branding
	if len(raw) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return models.Branding{}, fmt.Errorf("decode branding: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) GetShop(ctx context.Context, id uuid.UUID) (models.Shop, error) {
	s, err := scanShop(r.q(ctx).QueryRow(ctx, `SELECT `+shopColumns+` FROM shops WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Shop{}, models.ErrShopNotFound
	}
	if err != nil {
		return models.Shop{}, fmt.Errorf("get shop: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListReminderShops(ctx context.Context) ([]models.Shop, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT `+shopColumns+` FROM shops WHERE active AND reminders_enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list reminder shops: %w", err)
	}
	defer rows.Close()

	var shops []models.Shop
	for rows.Next() {
		s, err := scanShop(rows)
		if err != nil {
			return nil, err
		}
		shops = append(shops, s)
	}
	return shops, rows.Err()
}

func (r *PostgresRepository) GetStaff(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	var s models.Staff
	err := r.q(ctx).QueryRow(ctx,
		`SELECT id, shop_id, name, active, created_at FROM staff WHERE id = $1`, id,
	).Scan(&s.ID, &s.ShopID, &s.Name, &s.Active, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) ListActiveStaff(ctx context.Context, shopID uuid.UUID) ([]models.Staff, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, shop_id, name, active, created_at
		FROM staff
		WHERE shop_id = $1 AND active
		ORDER BY created_at, id`, shopID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var out []models.Staff
	for rows.Next() {
		var s models.Staff
		if err := rows.Scan(&s.ID, &s.ShopID, &s.Name, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetService(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var s models.Service
	err := r.q(ctx).QueryRow(ctx,
		`SELECT id, shop_id, name, duration_minutes, active FROM services WHERE id = $1`, id,
	).Scan(&s.ID, &s.ShopID, &s.Name, &s.DurationMinutes, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) GetWorkingHours(ctx context.Context, staffID uuid.UUID, day time.Weekday) (*models.WorkingHours, error) {
	var h models.WorkingHours
	err := r.q(ctx).QueryRow(ctx, `
		SELECT shop_id, staff_id, day_of_week, start_minute, end_minute
		FROM working_hours
		WHERE staff_id = $1 AND day_of_week = $2`, staffID, int(day),
	).Scan(&h.ShopID, &h.StaffID, &h.DayOfWeek, &h.StartMinute, &h.EndMinute)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get working hours: %w", err)
	}
	return &h, nil
}

func (r *PostgresRepository) ListBlocks(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]models.Block, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, shop_id, staff_id, start_at, end_at, note
		FROM blocks
		WHERE staff_id = $1 AND tstzrange(start_at, end_at, '[)') && tstzrange($2, $3, '[)')
		ORDER BY start_at`, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var out []models.Block
	for rows.Next() {
		var b models.Block
		if err := rows.Scan(&b.ID, &b.ShopID, &b.StaffID, &b.StartAt, &b.EndAt, &b.Note); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) HasBlockOverlap(ctx context.Context, staffID uuid.UUID, from, to time.Time) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE staff_id = $1 AND tstzrange(start_at, end_at, '[)') && tstzrange($2, $3, '[)')
		)`, staffID, from, to,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check block overlap: %w", err)
	}
	return exists, nil
}

// CreateBlock stores time excluded from availability
func (r *PostgresRepository) CreateBlock(ctx context.Context, b models.Block) (models.Block, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO blocks (id, shop_id, staff_id, start_at, end_at, note)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.ShopID, b.StaffID, b.StartAt, b.EndAt, b.Note)
	if err != nil {
		return models.Block{}, fmt.Errorf("insert block: %w", err)
	}
	return b, nil
}
