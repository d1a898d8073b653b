package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/testutil"
	"github.com/google/uuid"
)

func TestAddBlock(t *testing.T) {
	h := newHarness(t, testutil.ShopOptions{})
	start := h.fx.At(2026, 3, 10, 10, 0)

	block, err := h.service.AddBlock(context.Background(), BlockInput{
		ShopID:  h.fx.Shop.ID,
		StaffID: h.fx.Staff[0].ID,
		StartAt: start,
		EndAt:   start.Add(time.Hour),
		Note:    " lunch ",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if block.Note == nil || *block.Note != "lunch" {
		t.Fatalf("expected trimmed note, got %v", block.Note)
	}

	_, err = h.service.Create(context.Background(), h.input(h.fx.Staff[0].ID, start.Add(30*time.Minute)))
	if !errors.Is(err, models.ErrBlocked) {
		t.Fatalf("expected ErrBlocked inside the new block, got %v", err)
	}

	tests := []struct {
		name string
		in   BlockInput
		want error
	}{
		{"empty interval", BlockInput{ShopID: h.fx.Shop.ID, StaffID: h.fx.Staff[0].ID, StartAt: start, EndAt: start}, models.ErrInvalidInterval},
		{"foreign staff", BlockInput{ShopID: h.fx.Shop.ID, StaffID: uuid.New(), StartAt: start, EndAt: start.Add(time.Hour)}, models.ErrInvalidStaff},
		{"unknown shop", BlockInput{ShopID: uuid.New(), StaffID: h.fx.Staff[0].ID, StartAt: start, EndAt: start.Add(time.Hour)}, models.ErrShopNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.service.AddBlock(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
