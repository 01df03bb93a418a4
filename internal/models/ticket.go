package models

import (
	"time"

	"github.com/google/uuid"
)

// Ticket is the voucher issued once per confirmed booking
type Ticket struct {
	ID        uuid.UUID `json:"id" db:"id"`
	BookingID uuid.UUID `json:"booking_id" db:"booking_id"`
	Code      string    `json:"code" db:"code"`
	Guests    int       `json:"guests" db:"guests"`
	IssuedAt  time.Time `json:"issued_at" db:"issued_at"`
}
