// Package token issues and resolves manage tokens: bearer credentials that let a
// customer reschedule or cancel one booking without an account.
//
// Only SHA-256(raw + pepper) is stored. Issuing again for the same booking replaces
// the stored hash, so an older raw token stops resolving; links already sent in
// earlier emails are not otherwise invalidated unless the token is revoked.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/slotbook/internal/clock"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
)

const (
	DefaultTTL = 90 * 24 * time.Hour
	rawBytes   = 32
)

type Repository interface {
	UpsertToken(ctx context.Context, t models.ManageToken) error
	FindTokenByHash(ctx context.Context, hash string) (*models.ManageToken, error)
	RevokeToken(ctx context.Context, bookingID uuid.UUID, at time.Time) error
	GetBookingContext(ctx context.Context, bookingID uuid.UUID) (models.BookingContext, error)
}

type Service struct {
	repo   Repository
	clock  clock.Clock
	logger *slog.Logger
	pepper []byte
	ttl    time.Duration
}

type Option func(*Service)

func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func NewService(r Repository, clk clock.Clock, l *slog.Logger, pepper string, opts ...Option) *Service {
	s := &Service{
		repo:   r,
		clock:  clk,
		logger: l,
		pepper: []byte(pepper),
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a fresh token for the booking and returns the raw value.
// It joins the caller's transaction when ctx carries one.
func (s *Service) Issue(ctx context.Context, bookingID uuid.UUID) (string, error) {
	buf := make([]byte, rawBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)

	now := s.clock.Now()
	err := s.repo.UpsertToken(ctx, models.ManageToken{
		BookingID: bookingID,
		TokenHash: s.hash(raw),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return raw, nil
}

// Resolve returns the booking the token manages, or nil when the token is unknown,
// revoked or expired. The failure reason is deliberately not reported.
func (s *Service) Resolve(ctx context.Context, raw string) (*models.BookingContext, error) {
	hash := s.hash(raw)

	stored, err := s.repo.FindTokenByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}

	candidate := ""
	if stored != nil {
		candidate = stored.TokenHash
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) != 1 {
		return nil, nil
	}
	if stored.RevokedAt != nil || !s.clock.Now().Before(stored.ExpiresAt) {
		return nil, nil
	}

	bc, err := s.repo.GetBookingContext(ctx, stored.BookingID)
	if err != nil {
		if errors.Is(err, models.ErrBookingNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	return &bc, nil
}

func (s *Service) Revoke(ctx context.Context, bookingID uuid.UUID) error {
	if err := s.repo.RevokeToken(ctx, bookingID, s.clock.Now()); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.Info("Manage token revoked", "booking_id", bookingID)
	return nil
}

func (s *Service) hash(raw string) string {
	h := sha256.New()
	h.Write([]byte(raw))
	h.Write(s.pepper)
	return hex.EncodeToString(h.Sum(nil))
}
