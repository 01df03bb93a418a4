package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
)

const preferenceColumns = `user_id, toast_enabled, email_enabled, push_enabled,
	booking_created_enabled, booking_confirmed_enabled, booking_cancelled_enabled,
	payment_enabled, updated_at`

const notificationColumns = `id, user_id, title, message, priority, event_type, channels,
	href, metadata, read_at, created_at`

// NotificationRepository handles notifications and notification preferences
type NotificationRepository struct {
	db DB
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// ============================================================================
// PREFERENCES
// ============================================================================

// GetPreference returns the user's preference row or nil
func (r *NotificationRepository) GetPreference(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error) {
	var p models.NotificationPreference
	err := r.db.GetContext(ctx, &p,
		`SELECT `+preferenceColumns+` FROM notification_preferences WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification preference: %w", err)
	}
	return &p, nil
}

// EnsurePreference returns the user's preference, inserting the default row on
// first use. Concurrent first uses converge on a single row.
func (r *NotificationRepository) EnsurePreference(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error) {
	existing, err := r.GetPreference(ctx, userID)
	if err != nil || existing != nil {
		return existing, err
	}

	def := models.DefaultNotificationPreference(userID)
	query := `
		INSERT INTO notification_preferences (` + preferenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO NOTHING`
	_, err = r.db.ExecContext(ctx, query,
		def.UserID, def.ToastEnabled, def.EmailEnabled, def.PushEnabled,
		def.BookingCreatedEnabled, def.BookingConfirmedEnabled, def.BookingCancelledEnabled,
		def.PaymentEnabled, def.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create default notification preference: %w", err)
	}

	created, err := r.GetPreference(ctx, userID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return def, nil
	}
	return created, nil
}

// SavePreference writes every flag of the preference row
func (r *NotificationRepository) SavePreference(ctx context.Context, p *models.NotificationPreference) error {
	query := `
		INSERT INTO notification_preferences (` + preferenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			toast_enabled = EXCLUDED.toast_enabled,
			email_enabled = EXCLUDED.email_enabled,
			push_enabled = EXCLUDED.push_enabled,
			booking_created_enabled = EXCLUDED.booking_created_enabled,
			booking_confirmed_enabled = EXCLUDED.booking_confirmed_enabled,
			booking_cancelled_enabled = EXCLUDED.booking_cancelled_enabled,
			payment_enabled = EXCLUDED.payment_enabled,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		p.UserID, p.ToastEnabled, p.EmailEnabled, p.PushEnabled,
		p.BookingCreatedEnabled, p.BookingConfirmedEnabled, p.BookingCancelledEnabled,
		p.PaymentEnabled, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save notification preference: %w", err)
	}
	return nil
}

// ============================================================================
// NOTIFICATIONS
// ============================================================================

// Create inserts a notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Title, n.Message, n.Priority, n.EventType, n.Channels,
		n.Href, n.Metadata, n.ReadAt, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListRecent returns the user's most recent notifications, newest first
func (r *NotificationRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	items := []models.Notification{}
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &items, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}

// CountUnread counts the user's unread notifications
func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead sets read_at on the user's unread notifications among ids and
// returns how many changed. Already-read ids are left alone.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE notifications
		SET read_at = $3
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND read_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, userID, models.UUIDArray(ids), now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
