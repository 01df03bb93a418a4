package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Confirmation origins
const (
	OriginPayment   = "payment"
	OriginOrganizer = "organizer"
	OriginExplorer  = "explorer"
)

// TicketIssuer issues the voucher of a confirmed booking
type TicketIssuer interface {
	Issue(ctx context.Context, b *models.Booking) (*models.Ticket, error)
}

// SnowflakeTicketIssuer stores one ticket per booking with a snowflake code
type SnowflakeTicketIssuer struct {
	tickets TicketStore
	node    *snowflake.Node
	now     Clock
}

// NewSnowflakeTicketIssuer creates an issuer for the given snowflake node id (0-1023)
func NewSnowflakeTicketIssuer(tickets TicketStore, nodeID int64, now Clock) (*SnowflakeTicketIssuer, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket code generator: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &SnowflakeTicketIssuer{tickets: tickets, node: node, now: now}, nil
}

// Issue creates the booking's ticket, or returns the existing one
func (i *SnowflakeTicketIssuer) Issue(ctx context.Context, b *models.Booking) (*models.Ticket, error) {
	t := &models.Ticket{
		ID:        uuid.New(),
		BookingID: b.ID,
		Code:      "TKT-" + i.node.Generate().Base32(),
		Guests:    b.Guests,
		IssuedAt:  i.now(),
	}
	created, err := i.tickets.CreateIfAbsent(ctx, t)
	if err != nil {
		return nil, err
	}
	if created {
		return t, nil
	}
	return i.tickets.GetByBookingID(ctx, b.ID)
}

// ConfirmationService runs the once-per-booking work that follows a confirmation
type ConfirmationService struct {
	bookings BookingStore
	tickets  TicketIssuer
	notifier Notifier
	logger   *logrus.Logger
	now      Clock
}

// NewConfirmationService creates a new confirmation service
func NewConfirmationService(bookings BookingStore, tickets TicketIssuer, notifier Notifier, logger *logrus.Logger, now Clock) *ConfirmationService {
	if now == nil {
		now = time.Now
	}
	return &ConfirmationService{
		bookings: bookings,
		tickets:  tickets,
		notifier: notifier,
		logger:   logger,
		now:      now,
	}
}

// RunBookingConfirmationSideEffects issues the ticket and notifies the
// explorer. Every call for a CONFIRMED booking makes sure the ticket exists;
// only the first one sends the notification, and it reports whether this
// call did. Ticket and notification failures are logged and never returned.
func (s *ConfirmationService) RunBookingConfirmationSideEffects(ctx context.Context, bookingID uuid.UUID, origin string) (bool, error) {
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"origin":     origin,
	})

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return false, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return false, &models.NotFoundError{Resource: "booking", ID: bookingID.String()}
	}
	if booking.Status != models.BookingStatusConfirmed {
		log.WithField("status", booking.Status).Debug("Booking not confirmed, skipping side effects")
		return false, nil
	}

	// issuing is idempotent per booking, so a failed issue is retried by
	// the next call even after the claim below is taken
	ticket, err := s.tickets.Issue(ctx, booking)
	if err != nil {
		log.WithError(err).Error("Failed to issue ticket")
	} else if ticket != nil {
		log = log.WithField("ticket_code", ticket.Code)
	}

	claimed, err := s.bookings.ClaimSideEffects(ctx, bookingID, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to claim side effects: %w", err)
	}
	if !claimed {
		log.Debug("Confirmation side effects already recorded")
		return false, nil
	}

	href := fmt.Sprintf("/bookings/%s", booking.ID)
	metadata := map[string]interface{}{
		"bookingId": booking.ID.String(),
		"sessionId": booking.SessionID.String(),
		"guests":    booking.Guests,
		"origin":    origin,
	}
	if ticket != nil {
		metadata["ticketCode"] = ticket.Code
	}

	_, err = s.notifier.CreateNotification(ctx, CreateNotificationInput{
		UserID:    booking.ExplorerID,
		Title:     "Booking confirmed",
		Message:   fmt.Sprintf("Your booking for %d guest(s) is confirmed.", booking.Guests),
		Priority:  models.PriorityHigh,
		EventType: models.EventBookingConfirmed,
		Channels:  models.AllChannels,
		Href:      &href,
		Metadata:  metadata,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create confirmation notification")
	}

	log.Info("Booking confirmation side effects completed")
	return true, nil
}
