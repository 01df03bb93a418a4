package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// CapacityHoldingStatuses are the statuses counted by the inventory ledger
var CapacityHoldingStatuses = []BookingStatus{BookingStatusPending, BookingStatusConfirmed}

// Valid reports whether s is a known booking status
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// Booking is an explorer's claim on guest slots of a session
type Booking struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	SessionID     uuid.UUID      `json:"session_id" db:"session_id"`
	ExperienceID  uuid.UUID      `json:"experience_id" db:"experience_id"`
	ExplorerID    uuid.UUID      `json:"explorer_id" db:"explorer_id"`
	Guests        int            `json:"guests" db:"guests"`
	Status        BookingStatus  `json:"status" db:"status"`
	PaymentStatus *PaymentStatus `json:"payment_status,omitempty" db:"payment_status"`
	TotalPrice    float64        `json:"total_price" db:"total_price"`
	Currency      string         `json:"currency" db:"currency"`
	Notes         *string        `json:"notes,omitempty" db:"notes"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty" db:"expires_at"`
	SideEffectsAt *time.Time     `json:"-" db:"side_effects_at"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether a PENDING hold has lapsed at now
func (b *Booking) IsExpired(now time.Time) bool {
	return b.Status == BookingStatusPending && b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// HoldsCapacity reports whether the booking counts toward reserved guests at now
func (b *Booking) HoldsCapacity(now time.Time) bool {
	switch b.Status {
	case BookingStatusConfirmed:
		return true
	case BookingStatusPending:
		return !b.IsExpired(now)
	}
	return false
}

// PaidByAnotherAttempt reports whether the booking is already confirmed and
// paid, so a newly succeeded payment attempt charged the payer twice
func (b *Booking) PaidByAnotherAttempt() bool {
	return b != nil && b.Status == BookingStatusConfirmed &&
		b.PaymentStatus != nil && *b.PaymentStatus == PaymentStatusSucceeded
}

// CheckTransition validates a move of the booking state machine.
// Moving to the current status is allowed and treated as a no-op by callers.
func CheckTransition(from, to BookingStatus) error {
	if from == to {
		return nil
	}
	switch from {
	case BookingStatusPending:
		if to == BookingStatusConfirmed || to == BookingStatusCancelled {
			return nil
		}
	case BookingStatusConfirmed:
		if to == BookingStatusCancelled {
			return nil
		}
	case BookingStatusCancelled:
		if to == BookingStatusConfirmed {
			return &IllegalTransitionError{From: from, To: to, Reason: "cancelled bookings cannot be reconfirmed"}
		}
		return &IllegalTransitionError{From: from, To: to, Reason: "cancelled bookings are final"}
	}
	return &IllegalTransitionError{From: from, To: to, Reason: "transition not allowed"}
}

// CreateBookingRequest is the explorer's reservation request
type CreateBookingRequest struct {
	ExperienceID  uuid.UUID        `json:"experienceId"`
	SessionID     uuid.UUID        `json:"sessionId"`
	Guests        int              `json:"guests"`
	Notes         *string          `json:"notes,omitempty"`
	Provider      *PaymentProvider `json:"provider,omitempty"`
	CustomerEmail *string          `json:"customerEmail,omitempty"`
}

// BookingResponse is returned after creating a booking
type BookingResponse struct {
	ID              uuid.UUID      `json:"id"`
	Status          BookingStatus  `json:"status"`
	PaymentStatus   *PaymentStatus `json:"paymentStatus,omitempty"`
	Guests          int            `json:"guests"`
	TotalPrice      float64        `json:"totalPrice"`
	Currency        string         `json:"currency"`
	SessionStartsAt time.Time      `json:"sessionStartsAt"`
	ExpiresAt       *time.Time     `json:"expiresAt,omitempty"`
	CheckoutURL     *string        `json:"checkoutUrl,omitempty"`
	CheckoutError   *string        `json:"checkoutError,omitempty"`
}

// UpdateBookingStatusRequest is the organizer's manual status change
type UpdateBookingStatusRequest struct {
	BookingID uuid.UUID     `json:"bookingId"`
	Status    BookingStatus `json:"status" binding:"required"`
}

// StartCheckoutRequest starts or retries a checkout for a pending booking
type StartCheckoutRequest struct {
	Provider      PaymentProvider `json:"provider" binding:"required"`
	CustomerEmail *string         `json:"customerEmail,omitempty"`
}

// ConfirmationOutcome is the result of applying a successful payment to a booking
type ConfirmationOutcome string

const (
	// ConfirmationApplied means the booking moved PENDING -> CONFIRMED
	ConfirmationApplied ConfirmationOutcome = "CONFIRMED"
	// ConfirmationAlreadyConfirmed means the booking was already CONFIRMED
	ConfirmationAlreadyConfirmed ConfirmationOutcome = "ALREADY_CONFIRMED"
	// ConfirmationRejected means the booking was cancelled, or expired and lost its capacity
	ConfirmationRejected ConfirmationOutcome = "REJECTED"
)
