package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
)

const paymentColumns = `id, booking_id, provider, provider_payment_id, status, amount, currency,
	captured_at, refunded_at, refunded_amount, error_code, error_message, created_at, updated_at`

// PaymentRepository handles payment database operations.
// Every status write is conditional so duplicate provider callbacks are harmless.
type PaymentRepository struct {
	db DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new payment attempt
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (
			id, booking_id, provider, provider_payment_id, status, amount, currency,
			refunded_amount, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.BookingID, p.Provider, p.ProviderPaymentID, p.Status, p.Amount, p.Currency,
		p.RefundedAmount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.Payment, error) {
	var p models.Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE `+where, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// GetByID returns the payment or nil
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetByProviderPaymentID returns the payment carrying the provider reference, or nil
func (r *PaymentRepository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Payment, error) {
	return r.getOne(ctx, `provider_payment_id = $1`, providerPaymentID)
}

// GetLatestForBooking returns the most recent payment attempt for a booking, or nil
func (r *PaymentRepository) GetLatestForBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, `booking_id = $1 ORDER BY created_at DESC LIMIT 1`, bookingID)
}

// SetCheckoutCreated stores the provider reference returned by the checkout handshake
func (r *PaymentRepository) SetCheckoutCreated(ctx context.Context, id uuid.UUID, providerPaymentID string, status models.PaymentStatus, now time.Time) error {
	query := `
		UPDATE payments
		SET provider_payment_id = $2, status = $3, updated_at = $4
		WHERE id = $1 AND status = 'REQUIRES_PAYMENT_METHOD'`
	result, err := r.db.ExecContext(ctx, query, id, providerPaymentID, status, now)
	if err != nil {
		return fmt.Errorf("failed to store checkout reference: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("payment %s is no longer awaiting checkout", id)
	}
	return nil
}

// MarkSucceeded records the capture. It returns false when the payment was
// already settled, which callers treat as a duplicate confirmation.
func (r *PaymentRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, providerPaymentID string, now time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'SUCCEEDED',
		    captured_at = $3,
		    provider_payment_id = COALESCE(NULLIF($2, ''), provider_payment_id),
		    error_code = NULL,
		    error_message = NULL,
		    updated_at = $3
		WHERE id = $1 AND status NOT IN ('SUCCEEDED', 'REFUNDED')`
	result, err := r.db.ExecContext(ctx, query, id, providerPaymentID, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// MarkCancelled records a failed or abandoned attempt. Settled payments are untouched.
func (r *PaymentRepository) MarkCancelled(ctx context.Context, id uuid.UUID, errorCode, errorMessage string, now time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'CANCELLED',
		    error_code = NULLIF($2, ''),
		    error_message = NULLIF($3, ''),
		    updated_at = $4
		WHERE id = $1 AND status NOT IN ('SUCCEEDED', 'REFUNDED', 'CANCELLED')`
	result, err := r.db.ExecContext(ctx, query, id, errorCode, errorMessage, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel payment: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// MarkProcessing records that the provider accepted the payment but has not settled it
func (r *PaymentRepository) MarkProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'PROCESSING', updated_at = $2
		WHERE id = $1 AND status IN ('REQUIRES_PAYMENT_METHOD', 'REQUIRES_ACTION')`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment processing: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// RecordRefund adds a refund to a settled payment. It returns false when the
// payment is not settled or the refund would exceed the captured amount.
func (r *PaymentRepository) RecordRefund(ctx context.Context, id uuid.UUID, amount float64, now time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'REFUNDED',
		    refunded_amount = refunded_amount + $2,
		    refunded_at = $3,
		    updated_at = $3
		WHERE id = $1
		  AND status IN ('SUCCEEDED', 'REFUNDED')
		  AND refunded_amount + $2 <= amount + 0.005`
	result, err := r.db.ExecContext(ctx, query, id, amount, now)
	if err != nil {
		return false, fmt.Errorf("failed to record refund: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

// CancelOpenForBooking cancels every attempt on the booking that can still be paid
func (r *PaymentRepository) CancelOpenForBooking(ctx context.Context, bookingID uuid.UUID, reason string, now time.Time) (int64, error) {
	query := `
		UPDATE payments
		SET status = 'CANCELLED', error_code = $2, updated_at = $3
		WHERE booking_id = $1
		  AND status IN ('REQUIRES_PAYMENT_METHOD', 'REQUIRES_ACTION', 'PROCESSING')`
	result, err := r.db.ExecContext(ctx, query, bookingID, reason, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel open payments: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
