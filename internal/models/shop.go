package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultReminderSendMinute is 18:00 shop-local
const DefaultReminderSendMinute = 18 * 60

// Shop is the tenant. Everything else hangs off a shop id.
type Shop struct {
	ID                 uuid.UUID `db:"id"`
	Name               string    `db:"name"`
	Timezone           string    `db:"timezone"`
	Active             bool      `db:"active"`
	RemindersEnabled   bool      `db:"reminders_enabled"`
	ReminderSendMinute int       `db:"reminder_send_minute"`
	Branding           Branding  `db:"branding"`
	CreatedAt          time.Time `db:"created_at"`
}

type Staff struct {
	ID        uuid.UUID `db:"id"`
	ShopID    uuid.UUID `db:"shop_id"`
	Name      string    `db:"name"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

type Service struct {
	ID              uuid.UUID `db:"id"`
	ShopID          uuid.UUID `db:"shop_id"`
	Name            string    `db:"name"`
	DurationMinutes int       `db:"duration_minutes"`
	Active          bool      `db:"active"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// WorkingHours holds one interval per staff and weekday, in minutes from local midnight
type WorkingHours struct {
	ShopID      uuid.UUID `db:"shop_id"`
	StaffID     uuid.UUID `db:"staff_id"`
	DayOfWeek   int       `db:"day_of_week"` // 0 = Sunday
	StartMinute int       `db:"start_minute"`
	EndMinute   int       `db:"end_minute"`
}

// Block is manually excluded time for a staff member
type Block struct {
	ID      uuid.UUID `db:"id"`
	ShopID  uuid.UUID `db:"shop_id"`
	StaffID uuid.UUID `db:"staff_id"`
	StartAt time.Time `db:"start_at"`
	EndAt   time.Time `db:"end_at"`
	Note    *string   `db:"note"`
}

type Customer struct {
	ID     uuid.UUID `db:"id"`
	ShopID uuid.UUID `db:"shop_id"`
	Name   string    `db:"name"`
	Phone  string    `db:"phone"` // E.164
	Email  *string   `db:"email"`
}
