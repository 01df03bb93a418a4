package services

import (
	"context"
	"fmt"
	"time"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
)

// InventoryService answers capacity questions for sessions
type InventoryService struct {
	bookings    BookingStore
	experiences ExperienceStore
	now         Clock
}

// NewInventoryService creates a new inventory service
func NewInventoryService(bookings BookingStore, experiences ExperienceStore, now Clock) *InventoryService {
	if now == nil {
		now = time.Now
	}
	return &InventoryService{bookings: bookings, experiences: experiences, now: now}
}

// ReservedGuests sums guests of the session's bookings in the given statuses.
// Lapsed PENDING holds never count.
func (s *InventoryService) ReservedGuests(ctx context.Context, sessionID uuid.UUID, statuses []models.BookingStatus) (int, error) {
	if len(statuses) == 0 {
		statuses = models.CapacityHoldingStatuses
	}
	return s.bookings.ReservedGuests(ctx, sessionID, statuses, s.now())
}

// AvailableSpots returns the ledger view of a session
func (s *InventoryService) AvailableSpots(ctx context.Context, session *models.Session) (*models.SessionAvailability, error) {
	reserved, err := s.ReservedGuests(ctx, session.ID, models.CapacityHoldingStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to compute reserved guests: %w", err)
	}
	return &models.SessionAvailability{
		SessionID:      session.ID,
		Capacity:       session.Capacity,
		ReservedGuests: reserved,
		AvailableSpots: models.AvailableSpots(session.Capacity, reserved),
	}, nil
}

// SessionAvailability loads the session and returns its ledger view
func (s *InventoryService) SessionAvailability(ctx context.Context, sessionID uuid.UUID) (*models.SessionAvailability, error) {
	session, err := s.experiences.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, &models.NotFoundError{Resource: "session", ID: sessionID.String()}
	}
	return s.AvailableSpots(ctx, session)
}

// Reserve inserts the booking only if the session still has room for it.
// The check and the insert run as one unit in the store.
func (s *InventoryService) Reserve(ctx context.Context, b *models.Booking) error {
	return s.bookings.CreateWithinCapacity(ctx, b, s.now())
}
