package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron          *cron.Cron
	expirationSvc *BookingExpirationService
	sweepSchedule string
	logger        *logrus.Logger
}

// NewCronService creates a new CronService. sweepSchedule uses the
// six-field format with seconds.
func NewCronService(expirationSvc *BookingExpirationService, sweepSchedule string, logger *logrus.Logger) *CronService {
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:          c,
		expirationSvc: expirationSvc,
		sweepSchedule: sweepSchedule,
		logger:        logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Cron format: second minute hour day month weekday
	// "0 */1 * * * *" = every minute
	_, err := s.cron.AddFunc(s.sweepSchedule, s.expireBookingsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule booking expiry job: %w", err)
	}
	s.logger.WithField("schedule", s.sweepSchedule).Info("✓ Scheduled: Expire stale bookings")

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")

	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

// expireBookingsJob cancels PENDING bookings whose hold lapsed
func (s *CronService) expireBookingsJob() {
	startTime := time.Now()

	count, ran, err := s.expirationSvc.RunOnce(context.Background())
	if err != nil || !ran {
		return
	}

	s.logger.WithFields(logrus.Fields{
		"expired":  count,
		"duration": time.Since(startTime).String(),
	}).Debug("[CRON] Booking expiry job finished")
}

// RunExpireBookingsNow runs the expiry job immediately
func (s *CronService) RunExpireBookingsNow() {
	s.logger.Info("[MANUAL] Running booking expiry now...")
	s.expireBookingsJob()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
		"sweeper":   s.expirationSvc.GetStats(),
	}
}
