package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StaleBookingExpirer cancels lapsed reservation holds
type StaleBookingExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// BookingExpirationService runs expiry sweeps. Overlapping runs are skipped.
type BookingExpirationService struct {
	expirer StaleBookingExpirer
	logger  *logrus.Logger
	timeout time.Duration

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
	expired int
}

// NewBookingExpirationService creates a new booking expiration service
func NewBookingExpirationService(expirer StaleBookingExpirer, logger *logrus.Logger) *BookingExpirationService {
	return &BookingExpirationService{
		expirer: expirer,
		logger:  logger,
		timeout: 2 * time.Minute,
	}
}

// RunOnce runs a single expiration cycle. It returns false without sweeping
// when another cycle is still in progress.
func (s *BookingExpirationService) RunOnce(ctx context.Context) (int, bool, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("Expiry sweep already running, skipping")
		return 0, false, nil
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.expirer.ExpireStale(ctx)

	s.mu.Lock()
	s.running = false
	s.lastRun = time.Now()
	s.lastErr = err
	s.expired += count
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).WithField("expired", count).Error("Expiry sweep failed")
		return count, true, err
	}
	if count > 0 {
		s.logger.WithField("count", count).Info("Expiry sweep released reservation holds")
	}
	return count, true, nil
}

// GetStats returns the sweeper's counters
func (s *BookingExpirationService) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"running":       s.running,
		"total_expired": s.expired,
	}
	if !s.lastRun.IsZero() {
		stats["last_run"] = s.lastRun
	}
	if s.lastErr != nil {
		stats["last_error"] = s.lastErr.Error()
	}
	return stats
}
