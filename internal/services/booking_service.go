package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/experiencehub/booking-engine/internal/metrics"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxStatusRetries bounds how often a status change re-reads a booking that
// changed underneath it
const maxStatusRetries = 3

// expireBatchSize is how many lapsed holds one sweep statement cancels
const expireBatchSize = 100

// BookingServiceConfig holds the reservation hold settings
type BookingServiceConfig struct {
	HoldTTL         time.Duration // How long a PENDING booking claims capacity (default 20 min)
	SweepGrace      time.Duration // Extra time given to in-flight payments before the sweeper cancels
	DefaultCurrency string        // Used when an experience has none
}

// DefaultBookingConfig returns default configuration
func DefaultBookingConfig() BookingServiceConfig {
	return BookingServiceConfig{
		HoldTTL:         20 * time.Minute,
		SweepGrace:      5 * time.Minute,
		DefaultCurrency: "MAD",
	}
}

// CheckoutStarter opens a provider checkout for a booking
type CheckoutStarter interface {
	StartCheckout(ctx context.Context, booking *models.Booking, provider models.PaymentProvider, customerEmail string, client ClientInfo) (*models.CheckoutResult, error)
}

// BookingService owns the booking state machine
type BookingService struct {
	bookings    BookingStore
	experiences ExperienceStore
	payments    PaymentStore
	inventory   *InventoryService
	checkout    CheckoutStarter
	confirmer   Confirmer
	notifier    Notifier
	config      BookingServiceConfig
	logger      *logrus.Logger
	now         Clock
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookings BookingStore,
	experiences ExperienceStore,
	payments PaymentStore,
	inventory *InventoryService,
	checkout CheckoutStarter,
	confirmer Confirmer,
	notifier Notifier,
	config BookingServiceConfig,
	logger *logrus.Logger,
	now Clock,
) *BookingService {
	if now == nil {
		now = time.Now
	}
	if config.HoldTTL <= 0 {
		config.HoldTTL = DefaultBookingConfig().HoldTTL
	}
	return &BookingService{
		bookings:    bookings,
		experiences: experiences,
		payments:    payments,
		inventory:   inventory,
		checkout:    checkout,
		confirmer:   confirmer,
		notifier:    notifier,
		config:      config,
		logger:      logger,
		now:         now,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking reserves guest slots on a session for the explorer. When a
// provider is named, a checkout is opened right away; a checkout failure
// leaves the PENDING booking in place and is reported in the response.
func (s *BookingService) CreateBooking(ctx context.Context, explorerID uuid.UUID, req *models.CreateBookingRequest, client ClientInfo) (*models.BookingResponse, error) {
	if req.Guests <= 0 {
		return nil, models.NewValidationError("guests", "must be a positive integer")
	}
	if req.ExperienceID == uuid.Nil {
		return nil, models.NewValidationError("experienceId", "is required")
	}
	if req.SessionID == uuid.Nil {
		return nil, models.NewValidationError("sessionId", "is required")
	}

	exp, err := s.experiences.GetExperience(ctx, req.ExperienceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get experience: %w", err)
	}
	if exp == nil || exp.Status != models.ExperienceStatusPublished {
		return nil, &models.NotFoundError{Resource: "experience", ID: req.ExperienceID.String()}
	}

	session, err := s.experiences.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil || session.ExperienceID != exp.ID {
		return nil, &models.NotFoundError{Resource: "session", ID: req.SessionID.String()}
	}

	now := s.now()
	expiresAt := now.Add(s.config.HoldTTL)
	currency := strings.ToUpper(exp.Currency)
	if currency == "" {
		currency = s.config.DefaultCurrency
	}

	booking := &models.Booking{
		ID:           uuid.New(),
		SessionID:    session.ID,
		ExperienceID: exp.ID,
		ExplorerID:   explorerID,
		Guests:       req.Guests,
		Status:       models.BookingStatusPending,
		TotalPrice:   session.TotalPrice(exp, req.Guests),
		Currency:     currency,
		Notes:        req.Notes,
		ExpiresAt:    &expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	log := s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"session_id": session.ID,
		"user_id":    explorerID,
		"guests":     req.Guests,
	})

	if err := s.inventory.Reserve(ctx, booking); err != nil {
		var capErr *models.CapacityExceededError
		if errors.As(err, &capErr) {
			metrics.IncCapacityRejection()
			metrics.IncBookingCreated("rejected")
			log.WithField("available", capErr.Available).Info("Booking rejected: capacity exceeded")
		}
		return nil, err
	}
	metrics.IncBookingCreated(string(booking.Status))
	log.Info("Booking created")

	s.notify(ctx, exp.OrganizerID, booking, models.EventBookingCreated, models.PriorityNormal,
		"New booking",
		fmt.Sprintf("%d guest(s) reserved %s.", booking.Guests, exp.Title),
		fmt.Sprintf("/organizer/bookings/%s", booking.ID))

	resp := &models.BookingResponse{
		ID:              booking.ID,
		Status:          booking.Status,
		Guests:          booking.Guests,
		TotalPrice:      booking.TotalPrice,
		Currency:        booking.Currency,
		SessionStartsAt: session.StartsAt,
		ExpiresAt:       booking.ExpiresAt,
	}

	if req.Provider != nil {
		email := ""
		if req.CustomerEmail != nil {
			email = *req.CustomerEmail
		}
		result, err := s.checkout.StartCheckout(ctx, booking, *req.Provider, email, client)
		if err != nil {
			msg := err.Error()
			resp.CheckoutError = &msg
			log.WithError(err).Warn("Booking created but checkout failed")
		} else {
			resp.CheckoutURL = &result.RedirectURL
			resp.PaymentStatus = &result.Status
		}
	}

	return resp, nil
}

// ============================================================================
// READ
// ============================================================================

// GetBooking returns a booking visible to the actor: its explorer, the
// organizer of its experience, or an admin
func (s *BookingService) GetBooking(ctx context.Context, actor Actor, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	if actor.IsAdmin() || booking.ExplorerID == actor.UserID {
		return booking, nil
	}
	if actor.HasRole(models.RoleOrganizer) {
		owned, err := s.ownsExperience(ctx, actor.UserID, booking.ExperienceID)
		if err != nil {
			return nil, err
		}
		if owned {
			return booking, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
}

// StartCheckout opens or retries a checkout on the explorer's pending booking
func (s *BookingService) StartCheckout(ctx context.Context, actor Actor, bookingID uuid.UUID, req *models.StartCheckoutRequest, client ClientInfo) (*models.CheckoutResult, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil || (booking.ExplorerID != actor.UserID && !actor.IsAdmin()) {
		return nil, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	email := ""
	if req.CustomerEmail != nil {
		email = *req.CustomerEmail
	}
	return s.checkout.StartCheckout(ctx, booking, req.Provider, email, client)
}

// ============================================================================
// STATUS CHANGES
// ============================================================================

// UpdateStatusByOrganizer confirms or cancels a booking of the organizer's
// experience. Requesting the current status is a no-op.
func (s *BookingService) UpdateStatusByOrganizer(ctx context.Context, actor Actor, bookingID uuid.UUID, status models.BookingStatus) (*models.Booking, error) {
	if status != models.BookingStatusConfirmed && status != models.BookingStatusCancelled {
		return nil, models.NewValidationError("status", "must be CONFIRMED or CANCELLED")
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	if !actor.IsAdmin() {
		owned, err := s.ownsExperience(ctx, actor.UserID, booking.ExperienceID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
		}
	}

	return s.transition(ctx, booking, status, OriginOrganizer)
}

// CancelByExplorer cancels the explorer's own PENDING booking. Cancelling a
// cancelled booking is a no-op; a confirmed booking can only be cancelled by
// its organizer.
func (s *BookingService) CancelByExplorer(ctx context.Context, explorerID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil || booking.ExplorerID != explorerID {
		return nil, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	return s.transition(ctx, booking, models.BookingStatusCancelled, OriginExplorer)
}

// transition applies a conditional status update, re-reading the booking when
// a concurrent writer got there first
func (s *BookingService) transition(ctx context.Context, booking *models.Booking, to models.BookingStatus, origin string) (*models.Booking, error) {
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"to":         to,
		"origin":     origin,
	})

	for attempt := 0; attempt < maxStatusRetries; attempt++ {
		if booking.Status == to {
			return booking, nil
		}
		if err := models.CheckTransition(booking.Status, to); err != nil {
			return nil, err
		}
		if origin == OriginExplorer && booking.Status != models.BookingStatusPending {
			return nil, &models.IllegalTransitionError{From: booking.Status, To: to, Reason: "confirmed bookings can only be cancelled by the organizer"}
		}
		if to == models.BookingStatusConfirmed && booking.IsExpired(s.now()) {
			return nil, &models.IllegalTransitionError{From: booking.Status, To: to, Reason: "reservation hold has expired"}
		}

		from := booking.Status
		updated, err := s.bookings.UpdateStatus(ctx, booking.ID, from, to, s.now())
		if err != nil {
			return nil, err
		}
		if !updated {
			log.WithField("attempt", attempt+1).Debug("Booking changed concurrently, re-reading")
			booking, err = s.bookings.GetByID(ctx, booking.ID)
			if err != nil {
				return nil, err
			}
			if booking == nil {
				return nil, &models.NotFoundError{Resource: "booking"}
			}
			continue
		}

		log.WithField("from", from).Info("Booking status updated")
		s.afterTransition(ctx, booking, to, origin)

		fresh, err := s.bookings.GetByID(ctx, booking.ID)
		if err != nil || fresh == nil {
			booking.Status = to
			booking.ExpiresAt = nil
			return booking, nil
		}
		return fresh, nil
	}
	return nil, fmt.Errorf("booking %s is being modified concurrently, try again", booking.ID)
}

func (s *BookingService) afterTransition(ctx context.Context, booking *models.Booking, to models.BookingStatus, origin string) {
	switch to {
	case models.BookingStatusConfirmed:
		if _, err := s.confirmer.RunBookingConfirmationSideEffects(ctx, booking.ID, origin); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Confirmation side effects failed")
		}

	case models.BookingStatusCancelled:
		cancelled, err := s.payments.CancelOpenForBooking(ctx, booking.ID, "booking_cancelled", s.now())
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to cancel open payments")
		} else if cancelled > 0 {
			if err := s.bookings.UpdatePaymentStatus(ctx, booking.ID, models.PaymentStatusCancelled, s.now()); err != nil {
				s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to mirror payment status")
			}
		}

		message := "Your booking has been cancelled."
		if origin == OriginOrganizer {
			message = "Your booking has been cancelled by the organizer."
		}
		s.notify(ctx, booking.ExplorerID, booking, models.EventBookingCancelled, models.PriorityHigh,
			"Booking cancelled", message, fmt.Sprintf("/bookings/%s", booking.ID))
	}
}

// ExpireStale cancels PENDING bookings whose hold lapsed more than the sweep
// grace ago, along with their open payments. Rows are never deleted.
func (s *BookingService) ExpireStale(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.config.SweepGrace)
	total := 0

	for {
		expired, err := s.bookings.ExpireStale(ctx, cutoff, now, expireBatchSize)
		if err != nil {
			return total, err
		}
		for i := range expired {
			b := &expired[i]
			if _, err := s.payments.CancelOpenForBooking(ctx, b.ID, "expired", now); err != nil {
				s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to cancel payments of expired booking")
			}
			s.notify(ctx, b.ExplorerID, b, models.EventBookingCancelled, models.PriorityNormal,
				"Reservation expired",
				"Your reservation expired before payment was completed.",
				fmt.Sprintf("/bookings/%s", b.ID))
		}
		total += len(expired)
		if len(expired) < expireBatchSize {
			break
		}
	}

	if total > 0 {
		metrics.AddBookingsExpired(total)
		s.logger.WithField("count", total).Info("Expired stale bookings")
	}
	return total, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingService) ownsExperience(ctx context.Context, organizerID, experienceID uuid.UUID) (bool, error) {
	exp, err := s.experiences.GetExperience(ctx, experienceID)
	if err != nil {
		return false, err
	}
	return exp != nil && exp.OrganizerID == organizerID, nil
}

func (s *BookingService) notify(ctx context.Context, userID uuid.UUID, b *models.Booking, eventType models.NotificationEventType, priority models.NotificationPriority, title, message, href string) {
	_, err := s.notifier.CreateNotification(ctx, CreateNotificationInput{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Priority:  priority,
		EventType: eventType,
		Channels:  models.AllChannels,
		Href:      &href,
		Metadata: map[string]interface{}{
			"bookingId": b.ID.String(),
			"sessionId": b.SessionID.String(),
			"guests":    b.Guests,
		},
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": b.ID,
			"event_type": eventType,
		}).Warn("Failed to create booking notification")
	}
}
