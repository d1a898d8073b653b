package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const outboxColumns = `id, shop_id, booking_id, event_type, payload, idempotency_key, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at`

func scanOutbox(row pgx.Row) (models.OutboxEntry, error) {
	var (
		e       models.OutboxEntry
		payload []byte
	)
	err := row.Scan(&e.ID, &e.ShopID, &e.BookingID, &e.EventType, &payload, &e.IdempotencyKey, &e.Status,
		&e.AttemptCount, &e.NextAttemptAt, &e.LastError, &e.SentAt, &e.CreatedAt, &e.UpdatedAt)
	e.Payload = payload
	return e, err
}

// InsertOutbox inserts e unless its idempotency key exists. A duplicate key reports
// inserted=false without an error and leaves a surrounding transaction usable.
func (r *PostgresRepository) InsertOutbox(ctx context.Context, e models.OutboxEntry) (bool, error) {
	tag, err := r.q(ctx).Exec(ctx, `
		INSERT INTO outbox_entries (id, shop_id, booking_id, event_type, payload, idempotency_key, status, attempt_count, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		e.ID, e.ShopID, e.BookingID, string(e.EventType), []byte(e.Payload), e.IdempotencyKey,
		string(models.OutboxPending), e.NextAttemptAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert outbox: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) CancelPendingOutbox(ctx context.Context, bookingID uuid.UUID, eventType models.EventType, at time.Time) (int64, error) {
	tag, err := r.q(ctx).Exec(ctx, `
		UPDATE outbox_entries
		SET status = 'cancelled', updated_at = $3
		WHERE booking_id = $1 AND event_type = $2 AND status = 'pending'`,
		bookingID, string(eventType), at)
	if err != nil {
		return 0, fmt.Errorf("cancel pending outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FetchAndClaim locks up to batchSize due rows, skipping rows other relays hold,
// and pushes their next_attempt_at out by lease so no other sweep sees them while
// this one delivers. The returned entries carry their original attempt counts.
func (r *PostgresRepository) FetchAndClaim(ctx context.Context, now time.Time, batchSize int, lease time.Duration) ([]models.OutboxEntry, error) {
	rows, err := r.q(ctx).Query(ctx, `
		UPDATE outbox_entries o
		SET next_attempt_at = $2
		FROM (
			SELECT id FROM outbox_entries
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at, created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		) due
		WHERE o.id = due.id
		RETURNING o.id, o.shop_id, o.booking_id, o.event_type, o.payload, o.idempotency_key, o.status,
		          o.attempt_count, o.next_attempt_at, o.last_error, o.sent_at, o.created_at, o.updated_at`,
		now, now.Add(lease), batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b models.OutboxEntry) int {
		if c := a.NextAttemptAt.Compare(b.NextAttemptAt); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return entries, nil
}

// MarkSent reports false when the row left pending while it was being sent
func (r *PostgresRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.q(ctx).Exec(ctx, `
		UPDATE outbox_entries
		SET status = 'sent', sent_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time, errLog string) error {
	_, err := r.q(ctx).Exec(ctx, `
		UPDATE outbox_entries
		SET attempt_count = $2, next_attempt_at = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, attempts, next, errLog)
	return err
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, errLog string, at time.Time) error {
	_, err := r.q(ctx).Exec(ctx, `
		UPDATE outbox_entries
		SET status = 'failed', attempt_count = $2, last_error = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending'`, id, attempts, errLog, at)
	return err
}

// ReleaseClaims makes claimed rows due again at once
func (r *PostgresRepository) ReleaseClaims(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.q(ctx).Exec(ctx, `
		UPDATE outbox_entries
		SET next_attempt_at = $2
		WHERE id = ANY($1) AND status = 'pending'`, ids, at)
	return err
}

func (r *PostgresRepository) GetOutbox(ctx context.Context, id uuid.UUID) (*models.OutboxEntry, error) {
	e, err := scanOutbox(r.q(ctx).QueryRow(ctx, `SELECT `+outboxColumns+` FROM outbox_entries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if isInvalidUUID(err) {
			return nil, models.ErrInvalidID
		}
		return nil, fmt.Errorf("get outbox: %w", err)
	}
	return &e, nil
}

// ResetForRetry moves a failed row back to pending with a fresh attempt budget and no error.
// It reports false when the row was not failed.
func (r *PostgresRepository) ResetForRetry(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.q(ctx).Exec(ctx, `
		UPDATE outbox_entries
		SET status = 'pending', attempt_count = 0, next_attempt_at = $2, last_error = NULL, updated_at = $2
		WHERE id = $1 AND status = 'failed'`, id, at)
	if err != nil {
		return false, fmt.Errorf("reset outbox: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) CountOutboxByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	rows, err := r.q(ctx).Query(ctx, `SELECT status, COUNT(*) FROM outbox_entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outbox: %w", err)
	}
	defer rows.Close()

	counts := map[models.OutboxStatus]int{}
	for rows.Next() {
		var (
			status models.OutboxStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan outbox count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *PostgresRepository) PurgeSent(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q(ctx).Exec(ctx, `DELETE FROM outbox_entries WHERE status = 'sent' AND sent_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge sent: %w", err)
	}
	return tag.RowsAffected(), nil
}
