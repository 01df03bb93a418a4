package handlers

import (
	"context"
	"net/http"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BookingAPI is the booking state machine as seen by HTTP
type BookingAPI interface {
	CreateBooking(ctx context.Context, explorerID uuid.UUID, req *models.CreateBookingRequest, client services.ClientInfo) (*models.BookingResponse, error)
	GetBooking(ctx context.Context, actor services.Actor, bookingID uuid.UUID) (*models.Booking, error)
	StartCheckout(ctx context.Context, actor services.Actor, bookingID uuid.UUID, req *models.StartCheckoutRequest, client services.ClientInfo) (*models.CheckoutResult, error)
	UpdateStatusByOrganizer(ctx context.Context, actor services.Actor, bookingID uuid.UUID, status models.BookingStatus) (*models.Booking, error)
	CancelByExplorer(ctx context.Context, explorerID, bookingID uuid.UUID) (*models.Booking, error)
}

// AvailabilityReader reports remaining spots for a session
type AvailabilityReader interface {
	SessionAvailability(ctx context.Context, sessionID uuid.UUID) (*models.SessionAvailability, error)
}

// BookingHandler handles booking-related HTTP requests
type BookingHandler struct {
	bookings  BookingAPI
	inventory AvailabilityReader
	logger    *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingAPI, inventory AvailabilityReader, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, inventory: inventory, logger: logger}
}

// CreateBooking handles POST /api/v1/bookings
// @Summary Create a booking
// @Description Reserve spots on a session. When a provider is given the checkout is started in the same call.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.BookingResponse
// @Failure 400 {object} ErrorResponse "Invalid guests or malformed body"
// @Failure 404 {object} ErrorResponse "Experience or session not found"
// @Failure 409 {object} map[string]interface{} "Capacity exceeded"
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.bookings.CreateBooking(c.Request.Context(), actor.UserID, &req, clientInfo(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetBooking handles GET /api/v1/bookings/:id
// @Summary Get a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 404 {object} ErrorResponse "Booking not found"
// @Router /api/v1/bookings/{id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), actor, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// StartCheckout handles POST /api/v1/bookings/:id/checkout
// @Summary Start or retry checkout
// @Description Opens a checkout session at the provider. A retry supersedes the previous open payment.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body models.StartCheckoutRequest true "Provider"
// @Success 200 {object} models.CheckoutResult
// @Failure 409 {object} ErrorResponse "Booking is not pending"
// @Failure 500 {object} ErrorResponse "Provider not configured"
// @Failure 502 {object} ErrorResponse "Provider unreachable"
// @Router /api/v1/bookings/{id}/checkout [post]
func (h *BookingHandler) StartCheckout(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req models.StartCheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.bookings.StartCheckout(c.Request.Context(), actor, bookingID, &req, clientInfo(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
// @Summary Cancel a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 404 {object} ErrorResponse "Booking not found"
// @Failure 409 {object} ErrorResponse "Booking cannot be cancelled"
// @Router /api/v1/bookings/{id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.CancelByExplorer(c.Request.Context(), actor.UserID, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// UpdateStatus handles PATCH /api/v1/organizer/bookings/status
// @Summary Confirm or cancel a booking as organizer
// @Tags Organizer
// @Accept json
// @Produce json
// @Param request body models.UpdateBookingStatusRequest true "Booking and target status"
// @Success 200 {object} models.Booking
// @Failure 400 {object} ErrorResponse "Invalid status"
// @Failure 404 {object} ErrorResponse "Booking not found"
// @Failure 409 {object} ErrorResponse "Illegal transition"
// @Router /api/v1/organizer/bookings/status [patch]
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.UpdateBookingStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.BookingID == uuid.Nil {
		respondError(c, h.logger, models.NewValidationError("bookingId", "is required"))
		return
	}

	booking, err := h.bookings.UpdateStatusByOrganizer(c.Request.Context(), actor, req.BookingID, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GetSessionAvailability handles GET /api/v1/sessions/:id/availability
// @Summary Remaining spots on a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionAvailability
// @Failure 404 {object} ErrorResponse "Session not found"
// @Router /api/v1/sessions/{id}/availability [get]
func (h *BookingHandler) GetSessionAvailability(c *gin.Context) {
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	availability, err := h.inventory.SessionAvailability(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}
