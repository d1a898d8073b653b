package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBookingConfirmed EventType = "BOOKING_CONFIRMED"
	EventBookingUpdated   EventType = "BOOKING_UPDATED"
	EventBookingCancelled EventType = "BOOKING_CANCELLED"
	EventReminderNextDay  EventType = "REMINDER_NEXT_DAY"
)

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxSent      OutboxStatus = "sent"
	OutboxFailed    OutboxStatus = "failed"
	OutboxCancelled OutboxStatus = "cancelled"
)

type OutboxEntry struct {
	ID             uuid.UUID       `db:"id"`
	ShopID         uuid.UUID       `db:"shop_id"`
	BookingID      uuid.UUID       `db:"booking_id"`
	EventType      EventType       `db:"event_type"`
	Payload        json.RawMessage `db:"payload"`
	IdempotencyKey string          `db:"idempotency_key"`
	Status         OutboxStatus    `db:"status"`
	AttemptCount   int             `db:"attempt_count"`
	NextAttemptAt  time.Time       `db:"next_attempt_at"`
	LastError      *string         `db:"last_error"`
	SentAt         *time.Time      `db:"sent_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// EventPayload is what producers store and what the renderer consumes.
// Delivery refreshes the shop, customer and service fields from current data before rendering.
type EventPayload struct {
	BookingID       uuid.UUID  `json:"booking_id"`
	ShopName        string     `json:"shop_name"`
	Timezone        string     `json:"timezone"`
	StaffName       string     `json:"staff_name"`
	ServiceName     string     `json:"service_name"`
	CustomerName    string     `json:"customer_name"`
	CustomerEmail   string     `json:"customer_email,omitempty"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           time.Time  `json:"end_at"`
	PreviousStartAt *time.Time `json:"previous_start_at,omitempty"`
	CancelledBy     Actor      `json:"cancelled_by,omitempty"`
	ReminderDate    string     `json:"reminder_date,omitempty"`
	ManageToken     string     `json:"manage_token,omitempty"`
	ManageURL       string     `json:"manage_url,omitempty"`
}

// EmailMessage is the rendered output handed to the transport
type EmailMessage struct {
	To        string    `json:"to"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html"`
	Text      string    `json:"text"`
	EventType EventType `json:"event_type"`
	EntryID   uuid.UUID `json:"entry_id"`
}
