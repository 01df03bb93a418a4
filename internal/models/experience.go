package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ExperienceStatus represents the publication state of an experience
type ExperienceStatus string

const (
	ExperienceStatusDraft     ExperienceStatus = "DRAFT"
	ExperienceStatusPublished ExperienceStatus = "PUBLISHED"
	ExperienceStatusArchived  ExperienceStatus = "ARCHIVED"
)

// Experience is a bookable product published by an organizer
type Experience struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	OrganizerID uuid.UUID        `json:"organizer_id" db:"organizer_id"`
	Title       string           `json:"title" db:"title"`
	Price       float64          `json:"price" db:"price"`
	Currency    string           `json:"currency" db:"currency"`
	Status      ExperienceStatus `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// Session is a scheduled, capacity-bounded instance of an experience
type Session struct {
	ID              uuid.UUID `json:"id" db:"id"`
	ExperienceID    uuid.UUID `json:"experience_id" db:"experience_id"`
	StartsAt        time.Time `json:"starts_at" db:"starts_at"`
	DurationMinutes *int      `json:"duration_minutes,omitempty" db:"duration_minutes"`
	PriceOverride   *float64  `json:"price_override,omitempty" db:"price_override"`
	Capacity        int       `json:"capacity" db:"capacity"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// UnitPrice returns the per-guest price for the session
func (s *Session) UnitPrice(exp *Experience) float64 {
	if s.PriceOverride != nil {
		return *s.PriceOverride
	}
	return exp.Price
}

// TotalPrice computes guests × unit price, rounded to cents
func (s *Session) TotalPrice(exp *Experience, guests int) float64 {
	return RoundMoney(float64(guests) * s.UnitPrice(exp))
}

// RoundMoney rounds an amount to two decimals
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// SessionAvailability is the ledger view of one session
type SessionAvailability struct {
	SessionID      uuid.UUID `json:"session_id"`
	Capacity       int       `json:"capacity"`
	ReservedGuests int       `json:"reserved_guests"`
	AvailableSpots int       `json:"available_spots"`
}

// AvailableSpots returns capacity minus reserved, floored at zero
func AvailableSpots(capacity, reserved int) int {
	if reserved >= capacity {
		return 0
	}
	return capacity - reserved
}
