package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/experiencehub/booking-engine/internal/config"
	"github.com/experiencehub/booking-engine/internal/database"
	"github.com/experiencehub/booking-engine/internal/mailer"
	"github.com/experiencehub/booking-engine/internal/realtime"
	"github.com/experiencehub/booking-engine/internal/services"
	"github.com/sirupsen/logrus"
)

// expire-bookings runs one expiry sweep and exits. It is safe to run while
// the server's own sweeper is active.
func main() {
	var (
		dbURLFlag string
		grace     time.Duration
		timeout   time.Duration
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.DurationVar(&grace, "grace", -1, "override BOOKING_SWEEP_GRACE")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if dbURLFlag != "" {
		os.Setenv("DATABASE_URL", dbURLFlag)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if grace >= 0 {
		cfg.Booking.SweepGrace = grace
	}

	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var email mailer.Dispatcher
	if cfg.SMTP.Configured() {
		email = mailer.NewMailer(cfg.SMTP, logger)
	}

	bookingRepo := database.NewBookingRepository(db)
	experienceRepo := database.NewExperienceRepository(db)
	paymentRepo := database.NewPaymentRepository(db)

	// Nobody subscribes in this process, so the broker only swallows publishes
	notificationService := services.NewNotificationService(
		database.NewNotificationRepository(db),
		database.NewUserRepository(db),
		realtime.NewMemoryBroker(),
		email,
		cfg.Server.AppBaseURL,
		logger,
		nil,
	)
	defer notificationService.Wait()

	bookingService := services.NewBookingService(
		bookingRepo,
		experienceRepo,
		paymentRepo,
		services.NewInventoryService(bookingRepo, experienceRepo, nil),
		nil,
		nil,
		notificationService,
		services.BookingServiceConfig{
			HoldTTL:         cfg.Booking.HoldTTL,
			SweepGrace:      cfg.Booking.SweepGrace,
			DefaultCurrency: cfg.Payment.DefaultCurrency,
		},
		logger,
		nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	expired, err := bookingService.ExpireStale(ctx)
	log := logger.WithFields(logrus.Fields{
		"expired":     expired,
		"grace":       cfg.Booking.SweepGrace.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		log.WithError(err).Error("Expiry sweep failed")
		notificationService.Wait()
		os.Exit(1)
	}
	log.Info("Expiry sweep completed")
}
