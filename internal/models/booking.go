package models

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingConfirmed           BookingStatus = "confirmed"
	BookingCancelledByCustomer BookingStatus = "cancelled_by_customer"
	BookingCancelledByShop     BookingStatus = "cancelled_by_shop"
)

func (s BookingStatus) IsCancelled() bool {
	return s == BookingCancelledByCustomer || s == BookingCancelledByShop
}

type BookingSource string

const (
	SourceCustomer BookingSource = "customer"
	SourceWalkIn   BookingSource = "walk_in"
)

// Actor identifies who drives a reschedule or a cancellation
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorShop     Actor = "shop"
)

// CancelledStatus returns the terminal status an actor's cancellation produces
func (a Actor) CancelledStatus() BookingStatus {
	if a == ActorShop {
		return BookingCancelledByShop
	}
	return BookingCancelledByCustomer
}

func (a Actor) Valid() bool {
	return a == ActorCustomer || a == ActorShop
}

type Booking struct {
	ID         uuid.UUID     `db:"id"`
	ShopID     uuid.UUID     `db:"shop_id"`
	StaffID    uuid.UUID     `db:"staff_id"`
	ServiceID  uuid.UUID     `db:"service_id"`
	CustomerID uuid.UUID     `db:"customer_id"`
	StartAt    time.Time     `db:"start_at"`
	EndAt      time.Time     `db:"end_at"`
	Status     BookingStatus `db:"status"`
	Source     BookingSource `db:"source"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

// ManageToken stores only the hash; the raw token never reaches the database
type ManageToken struct {
	BookingID uuid.UUID  `db:"booking_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// BookingContext is a booking joined with everything needed to show or notify it
type BookingContext struct {
	Booking  Booking
	Shop     Shop
	Staff    Staff
	Service  Service
	Customer Customer
}
