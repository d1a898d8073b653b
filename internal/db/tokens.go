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

// UpsertToken stores the hash for a booking, replacing any earlier token
func (r *PostgresRepository) UpsertToken(ctx context.Context, t models.ManageToken) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO manage_tokens (booking_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (booking_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at,
		    revoked_at = NULL`,
		t.BookingID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindTokenByHash(ctx context.Context, hash string) (*models.ManageToken, error) {
	var t models.ManageToken
	err := r.q(ctx).QueryRow(ctx, `
		SELECT booking_id, token_hash, expires_at, revoked_at, created_at
		FROM manage_tokens WHERE token_hash = $1`, hash,
	).Scan(&t.BookingID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) RevokeToken(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	_, err := r.q(ctx).Exec(ctx, `
		UPDATE manage_tokens SET revoked_at = $2 WHERE booking_id = $1 AND revoked_at IS NULL`,
		bookingID, at)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
