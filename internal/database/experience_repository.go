package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
)

// ExperienceRepository reads experiences and their sessions.
// Both are written by the organizer CRUD surface, never by the engine.
type ExperienceRepository struct {
	db DB
}

// NewExperienceRepository creates a new ExperienceRepository
func NewExperienceRepository(db DB) *ExperienceRepository {
	return &ExperienceRepository{db: db}
}

// GetExperience returns the experience or nil when it does not exist
func (r *ExperienceRepository) GetExperience(ctx context.Context, id uuid.UUID) (*models.Experience, error) {
	var exp models.Experience
	query := `
		SELECT id, organizer_id, title, price, currency, status, created_at, updated_at
		FROM experiences
		WHERE id = $1`
	err := r.db.GetContext(ctx, &exp, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experience: %w", err)
	}
	return &exp, nil
}

// GetSession returns the session or nil when it does not exist
func (r *ExperienceRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var s models.Session
	query := `
		SELECT id, experience_id, starts_at, duration_minutes, price_override, capacity, created_at
		FROM sessions
		WHERE id = $1`
	err := r.db.GetContext(ctx, &s, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}
