package testutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
)

// ShopFixture is a seeded shop with staff working the same hours every day
type ShopFixture struct {
	Shop     models.Shop
	Staff    []models.Staff
	Service  models.Service
	Location *time.Location
}

type ShopOptions struct {
	Timezone        string
	StaffCount      int
	StartMinute     int
	EndMinute       int
	DurationMinutes int
}

func (o ShopOptions) withDefaults() ShopOptions {
	if o.Timezone == "" {
		o.Timezone = "America/New_York"
	}
	if o.StaffCount == 0 {
		o.StaffCount = 1
	}
	if o.StartMinute == 0 && o.EndMinute == 0 {
		o.StartMinute, o.EndMinute = 9*60, 12*60
	}
	if o.DurationMinutes == 0 {
		o.DurationMinutes = 30
	}
	return o
}

// SeedShop creates an active shop with reminders enabled. Staff are created one
// minute apart so their "any staff" order is staff[0], staff[1], ...
func SeedShop(m *MemStore, opts ShopOptions) ShopFixture {
	opts = opts.withDefaults()
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		panic(fmt.Sprintf("testutil: load location %q: %v", opts.Timezone, err))
	}

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	shop := models.Shop{
		ID:                 uuid.New(),
		Name:               "Fade Factory",
		Timezone:           opts.Timezone,
		Active:             true,
		RemindersEnabled:   true,
		ReminderSendMinute: models.DefaultReminderSendMinute,
		CreatedAt:          created,
	}
	m.AddShop(shop)

	svc := models.Service{
		ID:              uuid.New(),
		ShopID:          shop.ID,
		Name:            "Haircut",
		DurationMinutes: opts.DurationMinutes,
		Active:          true,
	}
	m.AddService(svc)

	fx := ShopFixture{Shop: shop, Service: svc, Location: loc}
	for i := range opts.StaffCount {
		st := models.Staff{
			ID:        uuid.New(),
			ShopID:    shop.ID,
			Name:      fmt.Sprintf("Barber %d", i+1),
			Active:    true,
			CreatedAt: created.Add(time.Duration(i) * time.Minute),
		}
		m.AddStaff(st)
		for day := range 7 {
			m.AddWorkingHours(models.WorkingHours{
				ShopID:      shop.ID,
				StaffID:     st.ID,
				DayOfWeek:   day,
				StartMinute: opts.StartMinute,
				EndMinute:   opts.EndMinute,
			})
		}
		fx.Staff = append(fx.Staff, st)
	}
	return fx
}

// At returns the shop-local instant for the given wall clock
func (f ShopFixture) At(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, f.Location).UTC()
}

// Logger discards output
func Logger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
