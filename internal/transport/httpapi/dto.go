package httpapi

import (
	"time"

	"github.com/Guizzs26/slotbook/internal/booking"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/google/uuid"
)

type customerRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
	Email string `json:"email"`
}

func (r customerRequest) input() booking.CustomerInput {
	return booking.CustomerInput{Name: r.Name, Phone: r.Phone, Email: r.Email}
}

type createBookingRequest struct {
	StaffID   uuid.UUID       `json:"staff_id"`
	ServiceID uuid.UUID       `json:"service_id" binding:"required"`
	StartAt   time.Time       `json:"start_at" binding:"required"`
	Customer  customerRequest `json:"customer"`
}

type rescheduleRequest struct {
	StartAt time.Time `json:"start_at" binding:"required"`
}

type blockRequest struct {
	StaffID uuid.UUID `json:"staff_id" binding:"required"`
	StartAt time.Time `json:"start_at" binding:"required"`
	EndAt   time.Time `json:"end_at" binding:"required"`
	Note    string    `json:"note"`
}

type slotResponse struct {
	StartAt time.Time `json:"start_at"`
	Local   string    `json:"local"`
}

type bookingResponse struct {
	ID        uuid.UUID            `json:"id"`
	ShopID    uuid.UUID            `json:"shop_id"`
	StaffID   uuid.UUID            `json:"staff_id"`
	ServiceID uuid.UUID            `json:"service_id"`
	StartAt   time.Time            `json:"start_at"`
	EndAt     time.Time            `json:"end_at"`
	Status    models.BookingStatus `json:"status"`
	Source    models.BookingSource `json:"source"`
}

func toBookingResponse(b models.Booking) bookingResponse {
	return bookingResponse{
		ID:        b.ID,
		ShopID:    b.ShopID,
		StaffID:   b.StaffID,
		ServiceID: b.ServiceID,
		StartAt:   b.StartAt.UTC(),
		EndAt:     b.EndAt.UTC(),
		Status:    b.Status,
		Source:    b.Source,
	}
}

type createBookingResponse struct {
	Booking     bookingResponse `json:"booking"`
	ManageToken string          `json:"manage_token"`
}

// managedBookingResponse is what a customer sees behind a manage link.
// Contact details are left out; the link is a bearer credential.
type managedBookingResponse struct {
	Booking     bookingResponse `json:"booking"`
	ShopName    string          `json:"shop_name"`
	Timezone    string          `json:"timezone"`
	StaffName   string          `json:"staff_name"`
	ServiceName string          `json:"service_name"`
}

func toManagedResponse(bc models.BookingContext) managedBookingResponse {
	name := bc.Shop.Name
	if bc.Shop.Branding.ShopName != "" {
		name = bc.Shop.Branding.ShopName
	}
	return managedBookingResponse{
		Booking:     toBookingResponse(bc.Booking),
		ShopName:    name,
		Timezone:    bc.Shop.Timezone,
		StaffName:   bc.Staff.Name,
		ServiceName: bc.Service.Name,
	}
}

type blockResponse struct {
	ID      uuid.UUID `json:"id"`
	StaffID uuid.UUID `json:"staff_id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	Note    *string   `json:"note,omitempty"`
}
