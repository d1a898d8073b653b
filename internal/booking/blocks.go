package booking

import (
	"context"
	"strings"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
)

type BlockInput struct {
	ShopID  uuid.UUID
	StaffID uuid.UUID
	StartAt time.Time
	EndAt   time.Time
	Note    string
}

// AddBlock removes time from a staff member's availability. Bookings already
// confirmed inside the block are kept; only new creates and reschedules are refused.
func (s *Service) AddBlock(ctx context.Context, in BlockInput) (models.Block, error) {
	if !in.EndAt.After(in.StartAt) {
		return models.Block{}, models.ErrInvalidInterval
	}
	if _, _, err := s.loadShop(ctx, in.ShopID); err != nil {
		return models.Block{}, err
	}
	if _, err := s.loadStaff(ctx, in.ShopID, in.StaffID); err != nil {
		return models.Block{}, err
	}

	b := models.Block{
		ID:      uuid.New(),
		ShopID:  in.ShopID,
		StaffID: in.StaffID,
		StartAt: in.StartAt.UTC(),
		EndAt:   in.EndAt.UTC(),
	}
	if note := strings.TrimSpace(in.Note); note != "" {
		b.Note = &note
	}

	created, err := s.repo.CreateBlock(ctx, b)
	if err != nil {
		return models.Block{}, err
	}
	s.logger.Info("Block added", "block_id", created.ID, "staff_id", created.StaffID, "start_at", created.StartAt, "end_at", created.EndAt)
	return created, nil
}
