package outbox

import (
	"fmt"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
)

// Idempotency keys identify one logical event occurrence. A producer that retries
// gets the same key and the unique index swallows the duplicate.

func ConfirmedKey(bookingID uuid.UUID) string {
	return fmt.Sprintf("booking:%s:confirmed", bookingID)
}

// UpdatedKey is unique per target start, so repeating the same reschedule does not notify twice
func UpdatedKey(bookingID uuid.UUID, newStart time.Time) string {
	return fmt.Sprintf("booking:%s:updated:%s", bookingID, newStart.UTC().Format(time.RFC3339))
}

func CancelledKey(bookingID uuid.UUID, actor models.Actor) string {
	return fmt.Sprintf("booking:%s:cancelled_by_%s", bookingID, actor)
}

// ReminderKey carries the shop-local date the reminder is for
func ReminderKey(bookingID uuid.UUID, localDate string) string {
	return fmt.Sprintf("booking:%s:reminder_next_day:%s", bookingID, localDate)
}
