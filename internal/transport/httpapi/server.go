// Package httpapi exposes the booking engine over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Guizzs26/slotbook/internal/auth"
	"github.com/Guizzs26/slotbook/internal/availability"
	"github.com/Guizzs26/slotbook/internal/booking"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/outbox"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Bookings interface {
	Create(ctx context.Context, in booking.CreateInput) (booking.CreateResult, error)
	Reschedule(ctx context.Context, in booking.RescheduleInput) (models.Booking, error)
	Cancel(ctx context.Context, in booking.CancelInput) (models.BookingStatus, error)
	AddBlock(ctx context.Context, in booking.BlockInput) (models.Block, error)
}

type Slots interface {
	GetSlots(ctx context.Context, q availability.Query) ([]time.Time, error)
}

type Tokens interface {
	Resolve(ctx context.Context, raw string) (*models.BookingContext, error)
	Revoke(ctx context.Context, bookingID uuid.UUID) error
}

type Outbox interface {
	Retry(ctx context.Context, shopID, id uuid.UUID) (outbox.RetryResult, error)
}

// Store is the read access handlers need outside the core operations
type Store interface {
	GetShop(ctx context.Context, id uuid.UUID) (models.Shop, error)
	GetBookingContext(ctx context.Context, id uuid.UUID) (models.BookingContext, error)
	Ping(ctx context.Context) error
}

// Limiter is consulted before any core call. Rate limiting itself lives outside this service.
type Limiter interface {
	Allow(c *gin.Context) bool
}

type AllowAll struct{}

func (AllowAll) Allow(*gin.Context) bool { return true }

type Deps struct {
	Bookings Bookings
	Slots    Slots
	Tokens   Tokens
	Outbox   Outbox
	Store    Store
	Auth     *auth.Authenticator
	Limiter  Limiter
	Logger   *slog.Logger
}

type Server struct {
	Deps
}

func NewServer(d Deps) *Server {
	if d.Limiter == nil {
		d.Limiter = AllowAll{}
	}
	return &Server{Deps: d}
}

// Router wires every route. Customer routes are public; owner routes need a JWT
// whose shop_ids include the shop in the path.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	public := v1.Group("", s.rateLimit())
	{
		public.GET("/shops/:shopID/slots", s.getSlots)
		public.POST("/shops/:shopID/bookings", s.createBooking)

		public.GET("/manage/:token", s.getManaged)
		public.POST("/manage/:token/reschedule", s.rescheduleManaged)
		public.POST("/manage/:token/cancel", s.cancelManaged)
	}

	owner := v1.Group("/owner/shops/:shopID", s.Auth.Middleware(), auth.RequireShop("shopID"))
	{
		owner.POST("/bookings", s.ownerCreateBooking)
		owner.POST("/bookings/:bookingID/reschedule", s.ownerReschedule)
		owner.POST("/bookings/:bookingID/cancel", s.ownerCancel)
		owner.POST("/bookings/:bookingID/revoke-token", s.ownerRevokeToken)
		owner.POST("/blocks", s.ownerAddBlock)
		owner.POST("/outbox/:entryID/retry", s.ownerRetryOutbox)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Limiter.Allow(c) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Info("HTTP request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// errorCodes are the machine-readable codes clients branch on
var errorCodes = []struct {
	err  error
	code string
}{
	{models.ErrSlotTaken, "slot_taken"},
	{models.ErrBlocked, "blocked"},
	{models.ErrNotReschedulable, "not_reschedulable"},
	{models.ErrOutboxNotRetriable, "not_retriable"},
	{models.ErrInvalidPhone, "invalid_phone"},
	{models.ErrInvalidEmail, "invalid_email"},
	{models.ErrInvalidName, "invalid_name"},
	{models.ErrInvalidStaff, "invalid_staff"},
	{models.ErrInvalidService, "invalid_service"},
	{models.ErrShopInactive, "shop_inactive"},
	{models.ErrInvalidDate, "invalid_date"},
	{models.ErrInvalidTimezone, "invalid_timezone"},
	{models.ErrInvalidActor, "invalid_actor"},
	{models.ErrInvalidID, "invalid_id"},
	{models.ErrInvalidInterval, "invalid_interval"},
	{models.ErrOffGrid, "off_grid"},
	{models.ErrOutsideHours, "outside_hours"},
	{models.ErrPastSlot, "past_slot"},
	{models.ErrShopNotFound, "shop_not_found"},
	{models.ErrBookingNotFound, "booking_not_found"},
	{models.ErrOutboxNotFound, "outbox_entry_not_found"},
}

func codeOf(err error) string {
	code, _ := match(err)
	return code
}

func match(err error) (string, error) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code, ec.err
		}
	}
	return "internal", nil
}

// writeError maps the error kind to a status. Internal details never reach the client.
func (s *Server) writeError(c *gin.Context, err error) {
	switch models.KindOf(err) {
	case models.KindValidation:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": codeOf(err), "message": err.Error()})
	case models.KindConflict:
		// Conflicts may wrap storage errors; only the sentinel text is exposed
		code, sentinel := match(err)
		msg := "conflict"
		if sentinel != nil {
			msg = sentinel.Error()
		}
		s.Logger.Debug("Request conflict", "route", c.FullPath(), "error", err)
		c.JSON(http.StatusConflict, gin.H{"error": code, "message": msg})
	case models.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": codeOf(err)})
	default:
		s.Logger.Error("Request failed", "route", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
}

// invalidLink is the single answer for unknown, revoked and expired manage tokens
func invalidLink(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "invalid_or_expired_link", "message": "This link is invalid or has expired."})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id", "message": name + " is not a valid id"})
		return uuid.Nil, false
	}
	return id, true
}
