package httpapi

import (
	"net/http"

	"github.com/Guizzs26/slotbook/internal/availability"
	"github.com/Guizzs26/slotbook/internal/booking"
	"github.com/Guizzs26/slotbook/internal/calendar"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GET /v1/shops/:shopID/slots?service_id=&date=YYYY-MM-DD[&staff_id=]
func (s *Server) getSlots(c *gin.Context) {
	shopID, ok := uuidParam(c, "shopID")
	if !ok {
		return
	}
	serviceID, err := uuid.Parse(c.Query("service_id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	staffID := uuid.Nil
	if raw := c.Query("staff_id"); raw != "" {
		if staffID, err = uuid.Parse(raw); err != nil {
			badRequest(c, err)
			return
		}
	}
	date, err := calendar.ParseLocalDate(c.Query("date"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	slots, err := s.Slots.GetSlots(c.Request.Context(), availability.Query{
		ShopID:    shopID,
		StaffID:   staffID,
		ServiceID: serviceID,
		Date:      date,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	shop, err := s.Store.GetShop(c.Request.Context(), shopID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	loc, err := calendar.LoadLocation(shop.Timezone)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]slotResponse, 0, len(slots))
	for _, t := range slots {
		out = append(out, slotResponse{StartAt: t.UTC(), Local: t.In(loc).Format("15:04")})
	}
	c.JSON(http.StatusOK, gin.H{
		"date":     date.String(),
		"timezone": shop.Timezone,
		"slots":    out,
	})
}

// POST /v1/shops/:shopID/bookings
func (s *Server) createBooking(c *gin.Context) {
	s.create(c, models.SourceCustomer)
}

func (s *Server) create(c *gin.Context, source models.BookingSource) {
	shopID, ok := uuidParam(c, "shopID")
	if !ok {
		return
	}
	var in createBookingRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.Bookings.Create(c.Request.Context(), booking.CreateInput{
		ShopID:    shopID,
		StaffID:   in.StaffID,
		ServiceID: in.ServiceID,
		StartAt:   in.StartAt,
		Source:    source,
		Customer:  in.Customer.input(),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createBookingResponse{
		Booking:     toBookingResponse(res.Booking),
		ManageToken: res.ManageToken,
	})
}

// resolve loads the booking behind a manage link, answering invalidLink on any failure mode
func (s *Server) resolve(c *gin.Context) (*models.BookingContext, bool) {
	bc, err := s.Tokens.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	if bc == nil {
		invalidLink(c)
		return nil, false
	}
	return bc, true
}

// GET /v1/manage/:token
func (s *Server) getManaged(c *gin.Context) {
	bc, ok := s.resolve(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toManagedResponse(*bc))
}

// POST /v1/manage/:token/reschedule
func (s *Server) rescheduleManaged(c *gin.Context) {
	var in rescheduleRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	bc, ok := s.resolve(c)
	if !ok {
		return
	}

	b, err := s.Bookings.Reschedule(c.Request.Context(), booking.RescheduleInput{
		BookingID: bc.Booking.ID,
		ShopID:    bc.Shop.ID,
		StartAt:   in.StartAt,
		Actor:     models.ActorCustomer,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

// POST /v1/manage/:token/cancel
func (s *Server) cancelManaged(c *gin.Context) {
	bc, ok := s.resolve(c)
	if !ok {
		return
	}

	status, err := s.Bookings.Cancel(c.Request.Context(), booking.CancelInput{
		BookingID: bc.Booking.ID,
		ShopID:    bc.Shop.ID,
		Actor:     models.ActorCustomer,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": bc.Booking.ID, "status": status})
}
