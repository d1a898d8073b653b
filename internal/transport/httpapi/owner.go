package httpapi

import (
	"net/http"

	"github.com/Guizzs26/slotbook/internal/booking"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/gin-gonic/gin"
)

// POST /v1/owner/shops/:shopID/bookings
// Walk-ins may be booked outside working hours and in the past.
func (s *Server) ownerCreateBooking(c *gin.Context) {
	s.create(c, models.SourceWalkIn)
}

func (s *Server) ownerReschedule(c *gin.Context) {
	shopID, ok := uuidParam(c, "shopID")
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "bookingID")
	if !ok {
		return
	}
	var in rescheduleRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	b, err := s.Bookings.Reschedule(c.Request.Context(), booking.RescheduleInput{
		BookingID: bookingID,
		ShopID:    shopID,
		StartAt:   in.StartAt,
		Actor:     models.ActorShop,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (s *Server) ownerCancel(c *gin.Context) {
	shopID, ok := uuidParam(c, "shopID")
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "bookingID")
	if !ok {
		return
	}

	status, err := s.Bookings.Cancel(c.Request.Context(), booking.CancelInput{
		BookingID: bookingID,
		ShopID:    shopID,
		Actor:     models.ActorShop,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": bookingID, "status": status})
}

// POST /v1/owner/shops/:shopID/bookings/:bookingID/revoke-token
func (s *Server) ownerRevokeToken(c *gin.Context) {
	shopID, ok := uuidParam(c, "shopID")
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "bookingID")
	if !ok {
		return
	}

	bc, err := s.Store.GetBookingContext(c.Request.Context(), bookingID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if bc.Shop.ID != shopID {
		s.writeError(c, models.ErrBookingNotFound)
		return
	}
	if err := s.Tokens.Revoke(c.Request.Context(), bookingID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ownerAddBlock(c *gin.Context) {
	shopID, ok := uuidParam(c, "shopID")
	if !ok {
		return
	}
	var in blockRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	b, err := s.Bookings.AddBlock(c.Request.Context(), booking.BlockInput{
		ShopID:  shopID,
		StaffID: in.StaffID,
		StartAt: in.StartAt,
		EndAt:   in.EndAt,
		Note:    in.Note,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, blockResponse{ID: b.ID, StaffID: b.StaffID, StartAt: b.StartAt, EndAt: b.EndAt, Note: b.Note})
}

// POST /v1/owner/shops/:shopID/outbox/:entryID/retry
func (s *Server) ownerRetryOutbox(c *gin.Context) {
	shopID, ok := uuidParam(c, "shopID")
	if !ok {
		return
	}
	entryID, ok := uuidParam(c, "entryID")
	if !ok {
		return
	}

	res, err := s.Outbox.Retry(c.Request.Context(), shopID, entryID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": entryID, "result": res})
}
