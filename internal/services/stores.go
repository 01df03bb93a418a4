package services

import (
	"context"
	"time"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
)

// Clock returns the current time; time.Now in production
type Clock func() time.Time

// ============================================================================
// STORAGE PORTS
// Implemented by the repositories in internal/database.
// ============================================================================

// BookingStore persists bookings and owns the capacity-checked writes
type BookingStore interface {
	ReservedGuests(ctx context.Context, sessionID uuid.UUID, statuses []models.BookingStatus, now time.Time) (int, error)
	CreateWithinCapacity(ctx context.Context, b *models.Booking, now time.Time) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, now time.Time) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus, now time.Time) error
	ConfirmPaid(ctx context.Context, id uuid.UUID, now time.Time) (models.ConfirmationOutcome, error)
	ExpireStale(ctx context.Context, cutoff, now time.Time, limit int) ([]models.Booking, error)
	ClaimSideEffects(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// ExperienceStore reads experiences and sessions
type ExperienceStore interface {
	GetExperience(ctx context.Context, id uuid.UUID) (*models.Experience, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// PaymentStore persists payment attempts
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Payment, error)
	GetLatestForBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	SetCheckoutCreated(ctx context.Context, id uuid.UUID, providerPaymentID string, status models.PaymentStatus, now time.Time) error
	MarkSucceeded(ctx context.Context, id uuid.UUID, providerPaymentID string, now time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, errorCode, errorMessage string, now time.Time) (bool, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	RecordRefund(ctx context.Context, id uuid.UUID, amount float64, now time.Time) (bool, error)
	CancelOpenForBooking(ctx context.Context, bookingID uuid.UUID, reason string, now time.Time) (int64, error)
}

// GatewayConfigStore reads stored provider configuration
type GatewayConfigStore interface {
	GetEnabled(ctx context.Context, provider models.PaymentProvider) (*models.PaymentGatewayConfig, error)
}

// NotificationStore persists notifications and preferences
type NotificationStore interface {
	EnsurePreference(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error)
	SavePreference(ctx context.Context, p *models.NotificationPreference) error
	Create(ctx context.Context, n *models.Notification) error
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error)
}

// UserStore reads account records
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TicketStore persists issued tickets
type TicketStore interface {
	CreateIfAbsent(ctx context.Context, t *models.Ticket) (bool, error)
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Ticket, error)
}

// PaymentAuditStore appends payment audit rows
type PaymentAuditStore interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// ============================================================================
// CALLERS
// ============================================================================

// Actor is the authenticated caller of a service operation
type Actor struct {
	UserID uuid.UUID
	Roles  []string
}

// HasRole checks if the actor carries a role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor is an admin
func (a Actor) IsAdmin() bool {
	return a.HasRole(models.RoleAdmin)
}

// ClientInfo describes the HTTP client behind a request, for the audit trail
type ClientInfo struct {
	IP        string
	UserAgent string
}
