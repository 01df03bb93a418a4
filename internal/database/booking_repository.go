package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const bookingColumns = `id, session_id, experience_id, explorer_id, guests, status, payment_status,
	total_price, currency, notes, expires_at, side_effects_at, created_at, updated_at`

// A PENDING booking whose hold has lapsed no longer counts toward the session
const reservedGuestsQuery = `
	SELECT COALESCE(SUM(guests), 0)
	FROM bookings
	WHERE session_id = $1
	  AND status = ANY($2)
	  AND (status <> 'PENDING' OR expires_at > $3)`

// BookingRepository handles booking database operations
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// INVENTORY LEDGER
// ============================================================================

// ReservedGuests sums guests of bookings on the session in the given statuses
func (r *BookingRepository) ReservedGuests(ctx context.Context, sessionID uuid.UUID, statuses []models.BookingStatus, now time.Time) (int, error) {
	return reservedGuests(ctx, r.db, sessionID, statuses, now)
}

func reservedGuests(ctx context.Context, q sqlx.QueryerContext, sessionID uuid.UUID, statuses []models.BookingStatus, now time.Time) (int, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	var reserved int
	if err := sqlx.GetContext(ctx, q, &reserved, reservedGuestsQuery, sessionID, pq.Array(names), now); err != nil {
		return 0, fmt.Errorf("failed to sum reserved guests: %w", err)
	}
	return reserved, nil
}

// lockSessionCapacity takes the session row lock that serializes capacity checks
func lockSessionCapacity(ctx context.Context, tx *sqlx.Tx, sessionID uuid.UUID) (int, error) {
	var capacity int
	err := tx.GetContext(ctx, &capacity, `SELECT capacity FROM sessions WHERE id = $1 FOR UPDATE`, sessionID)
	if err == sql.ErrNoRows {
		return 0, &models.NotFoundError{Resource: "session", ID: sessionID.String()}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock session: %w", err)
	}
	return capacity, nil
}

// CreateWithinCapacity inserts the booking only if the session still has room.
// The capacity read and the insert run in one transaction under the session
// row lock, so concurrent requests for the same session are serialized.
func (r *BookingRepository) CreateWithinCapacity(ctx context.Context, b *models.Booking, now time.Time) error {
	return WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		capacity, err := lockSessionCapacity(ctx, tx, b.SessionID)
		if err != nil {
			return err
		}

		reserved, err := reservedGuests(ctx, tx, b.SessionID, models.CapacityHoldingStatuses, now)
		if err != nil {
			return err
		}

		available := models.AvailableSpots(capacity, reserved)
		if b.Guests > available {
			return &models.CapacityExceededError{
				SessionID: b.SessionID.String(),
				Requested: b.Guests,
				Available: available,
			}
		}

		query := `
			INSERT INTO bookings (
				id, session_id, experience_id, explorer_id, guests, status, payment_status,
				total_price, currency, notes, expires_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
		_, err = tx.ExecContext(ctx, query,
			b.ID, b.SessionID, b.ExperienceID, b.ExplorerID, b.Guests, b.Status, b.PaymentStatus,
			b.TotalPrice, b.Currency, b.Notes, b.ExpiresAt, b.CreatedAt, b.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	})
}

// ============================================================================
// READS
// ============================================================================

// GetByID returns the booking or nil when it does not exist
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// ============================================================================
// STATE TRANSITIONS
// ============================================================================

// UpdateStatus moves the booking from one status to another. It returns false
// when the booking was no longer in the expected status.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, now time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $3, expires_at = NULL, updated_at = $4
		WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, now)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// UpdatePaymentStatus mirrors the payment status onto the booking
func (r *BookingRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET payment_status = $2, updated_at = $3 WHERE id = $1`,
		id, status, now)
	if err != nil {
		return fmt.Errorf("failed to update booking payment status: %w", err)
	}
	return nil
}

// ConfirmPaid applies a successful payment to the booking.
//
// A CONFIRMED booking stays confirmed. A CANCELLED booking is never revived.
// A PENDING booking is confirmed; if its hold already lapsed it is confirmed only
// when the session still has room, otherwise it is cancelled.
func (r *BookingRepository) ConfirmPaid(ctx context.Context, id uuid.UUID, now time.Time) (models.ConfirmationOutcome, error) {
	var outcome models.ConfirmationOutcome

	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var b models.Booking
		err := tx.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
		if err == sql.ErrNoRows {
			return &models.NotFoundError{Resource: "booking", ID: id.String()}
		}
		if err != nil {
			return fmt.Errorf("failed to lock booking: %w", err)
		}

		switch b.Status {
		case models.BookingStatusCancelled:
			outcome = models.ConfirmationRejected
			return nil
		case models.BookingStatusConfirmed:
			outcome = models.ConfirmationAlreadyConfirmed
			_, err := tx.ExecContext(ctx,
				`UPDATE bookings SET payment_status = 'SUCCEEDED', updated_at = $2 WHERE id = $1`, id, now)
			if err != nil {
				return fmt.Errorf("failed to update booking payment status: %w", err)
			}
			return nil
		}

		if b.IsExpired(now) {
			capacity, err := lockSessionCapacity(ctx, tx, b.SessionID)
			if err != nil {
				return err
			}
			// the lapsed booking is already excluded from the sum
			reserved, err := reservedGuests(ctx, tx, b.SessionID, models.CapacityHoldingStatuses, now)
			if err != nil {
				return err
			}
			if b.Guests > models.AvailableSpots(capacity, reserved) {
				_, err := tx.ExecContext(ctx,
					`UPDATE bookings SET status = 'CANCELLED', expires_at = NULL, updated_at = $2 WHERE id = $1`, id, now)
				if err != nil {
					return fmt.Errorf("failed to cancel lapsed booking: %w", err)
				}
				outcome = models.ConfirmationRejected
				return nil
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = 'CONFIRMED', payment_status = 'SUCCEEDED', expires_at = NULL, updated_at = $2
			WHERE id = $1`, id, now)
		if err != nil {
			return fmt.Errorf("failed to confirm booking: %w", err)
		}
		outcome = models.ConfirmationApplied
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// ExpireStale cancels PENDING bookings whose hold ended before cutoff and
// returns them. Rows locked by a concurrent confirmation are skipped.
func (r *BookingRepository) ExpireStale(ctx context.Context, cutoff, now time.Time, limit int) ([]models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'CANCELLED',
		    payment_status = CASE WHEN payment_status IS NULL THEN NULL ELSE 'CANCELLED' END,
		    expires_at = NULL,
		    updated_at = $2
		WHERE id IN (
			SELECT id FROM bookings
			WHERE status = 'PENDING' AND expires_at < $1
			ORDER BY expires_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + bookingColumns

	var expired []models.Booking
	if err := r.db.SelectContext(ctx, &expired, query, cutoff, now, limit); err != nil {
		return nil, fmt.Errorf("failed to expire bookings: %w", err)
	}
	return expired, nil
}

// ClaimSideEffects marks the confirmation side effects as started. It returns
// true only for the first caller on a CONFIRMED booking.
func (r *BookingRepository) ClaimSideEffects(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET side_effects_at = $2
		WHERE id = $1 AND status = 'CONFIRMED' AND side_effects_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim side effects: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}
