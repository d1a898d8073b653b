package token

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/Guizzs26/slotbook/internal/clock"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/testutil"
	"github.com/google/uuid"
)

func setup(t *testing.T, now time.Time) (*testutil.MemStore, models.Booking) {
	t.Helper()
	store := testutil.NewMemStore()
	fx := testutil.SeedShop(store, testutil.ShopOptions{})
	c := models.Customer{ID: uuid.New(), ShopID: fx.Shop.ID, Name: "Ana", Phone: "+16502530000"}
	store.PutCustomer(c)
	b := models.Booking{
		ID:         uuid.New(),
		ShopID:     fx.Shop.ID,
		StaffID:    fx.Staff[0].ID,
		ServiceID:  fx.Service.ID,
		CustomerID: c.ID,
		StartAt:    now.Add(24 * time.Hour),
		EndAt:      now.Add(24*time.Hour + 30*time.Minute),
		Status:     models.BookingConfirmed,
	}
	store.PutBooking(b)
	return store, b
}

func TestIssueAndResolve(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	store, b := setup(t, now)
	svc := NewService(store, clock.NewFixed(now), testutil.Logger(), "pepper")
	ctx := context.Background()

	raw, err := svc.Issue(ctx, b.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(decoded) != rawBytes {
		t.Fatalf("expected %d random bytes in url-safe base64, got %q", rawBytes, raw)
	}

	stored, ok := store.Token(b.ID)
	if !ok {
		t.Fatal("expected a stored token")
	}
	if stored.TokenHash == raw || len(stored.TokenHash) != 64 {
		t.Fatalf("expected a hex sha-256 hash, got %q", stored.TokenHash)
	}
	if !stored.ExpiresAt.Equal(now.Add(DefaultTTL)) {
		t.Fatalf("unexpected expiry %v", stored.ExpiresAt)
	}

	bc, err := svc.Resolve(ctx, raw)
	if err != nil || bc == nil {
		t.Fatalf("expected the booking, got %v (%v)", bc, err)
	}
	if bc.Booking.ID != b.ID || bc.Customer.Name != "Ana" {
		t.Fatalf("unexpected context: %+v", bc)
	}
}

func TestResolve_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		store, _ := setup(t, now)
		svc := NewService(store, clock.NewFixed(now), testutil.Logger(), "pepper")
		if bc, err := svc.Resolve(ctx, "not-a-token"); err != nil || bc != nil {
			t.Fatalf("expected nil, got %v (%v)", bc, err)
		}
	})

	t.Run("different pepper", func(t *testing.T) {
		store, b := setup(t, now)
		raw, _ := NewService(store, clock.NewFixed(now), testutil.Logger(), "pepper").Issue(ctx, b.ID)
		other := NewService(store, clock.NewFixed(now), testutil.Logger(), "rotated")
		if bc, _ := other.Resolve(ctx, raw); bc != nil {
			t.Fatal("token must not resolve under another pepper")
		}
	})

	t.Run("expired", func(t *testing.T) {
		store, b := setup(t, now)
		raw, _ := NewService(store, clock.NewFixed(now), testutil.Logger(), "pepper", WithTTL(time.Hour)).Issue(ctx, b.ID)
		later := NewService(store, clock.NewFixed(now.Add(time.Hour)), testutil.Logger(), "pepper")
		if bc, _ := later.Resolve(ctx, raw); bc != nil {
			t.Fatal("token must expire at its expiry instant")
		}
	})

	t.Run("revoked", func(t *testing.T) {
		store, b := setup(t, now)
		svc := NewService(store, clock.NewFixed(now), testutil.Logger(), "pepper")
		raw, _ := svc.Issue(ctx, b.ID)
		if err := svc.Revoke(ctx, b.ID); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		if bc, _ := svc.Resolve(ctx, raw); bc != nil {
			t.Fatal("revoked token must not resolve")
		}
	})

	t.Run("reissue replaces the old token", func(t *testing.T) {
		store, b := setup(t, now)
		svc := NewService(store, clock.NewFixed(now), testutil.Logger(), "pepper")
		first, _ := svc.Issue(ctx, b.ID)
		second, _ := svc.Issue(ctx, b.ID)
		if first == second {
			t.Fatal("tokens must be random")
		}
		if bc, _ := svc.Resolve(ctx, first); bc != nil {
			t.Fatal("old token must stop resolving")
		}
		if bc, _ := svc.Resolve(ctx, second); bc == nil {
			t.Fatal("new token must resolve")
		}
	})

	t.Run("booking deleted", func(t *testing.T) {
		store, b := setup(t, now)
		svc := NewService(store, clock.NewFixed(now), testutil.Logger(), "pepper")
		raw, _ := svc.Issue(ctx, b.ID)
		store.DeleteBooking(b.ID)
		if bc, err := svc.Resolve(ctx, raw); err != nil || bc != nil {
			t.Fatalf("expected nil without error, got %v (%v)", bc, err)
		}
	})
}
