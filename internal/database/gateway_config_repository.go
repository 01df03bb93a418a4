package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/experiencehub/booking-engine/internal/models"
)

// GatewayConfigRepository reads per-provider gateway settings
type GatewayConfigRepository struct {
	db DB
}

// NewGatewayConfigRepository creates a new GatewayConfigRepository
func NewGatewayConfigRepository(db DB) *GatewayConfigRepository {
	return &GatewayConfigRepository{db: db}
}

// GetEnabled returns the enabled config row for a provider, or nil when there is none
func (r *GatewayConfigRepository) GetEnabled(ctx context.Context, provider models.PaymentProvider) (*models.PaymentGatewayConfig, error) {
	var cfg models.PaymentGatewayConfig
	query := `
		SELECT id, provider, name, type, config, test_mode, is_enabled, updated_at
		FROM payment_gateway_configs
		WHERE provider = $1 AND is_enabled = TRUE`
	err := r.db.GetContext(ctx, &cfg, query, provider)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway config: %w", err)
	}
	return &cfg, nil
}
