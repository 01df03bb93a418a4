package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
)

// TicketRepository stores issued tickets, at most one per booking
type TicketRepository struct {
	db DB
}

// NewTicketRepository creates a new TicketRepository
func NewTicketRepository(db DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// CreateIfAbsent inserts the ticket unless the booking already has one.
// It returns true when a new row was written.
func (r *TicketRepository) CreateIfAbsent(ctx context.Context, t *models.Ticket) (bool, error) {
	query := `
		INSERT INTO tickets (id, booking_id, code, guests, issued_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (booking_id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, t.ID, t.BookingID, t.Code, t.Guests, t.IssuedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create ticket: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// GetByBookingID returns the booking's ticket or nil
func (r *TicketRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Ticket, error) {
	var t models.Ticket
	err := r.db.GetContext(ctx, &t,
		`SELECT id, booking_id, code, guests, issued_at FROM tickets WHERE booking_id = $1`, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &t, nil
}
