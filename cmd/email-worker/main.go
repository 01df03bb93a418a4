package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/experiencehub/booking-engine/internal/config"
	"github.com/experiencehub/booking-engine/internal/mailer"
	"github.com/experiencehub/booking-engine/internal/metrics"
	"github.com/sirupsen/logrus"
)

// email-worker drains the notification email topic into SMTP
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if !cfg.Kafka.Enabled {
		logger.Fatal("KAFKA_ENABLED must be set for the email worker")
	}
	if !cfg.SMTP.Configured() {
		logger.Fatal("SMTP_HOST and SMTP_FROM_EMAIL are required for the email worker")
	}
	metrics.Register()

	consumer, err := mailer.NewQueueConsumer(cfg.Kafka, mailer.NewMailer(cfg.SMTP, logger), logger)
	if err != nil {
		logger.Fatalf("Failed to start email consumer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"topic":    cfg.Kafka.EmailTopic,
		"group_id": cfg.Kafka.GroupID,
	}).Info("Email worker started")

	if err := consumer.Run(ctx); err != nil {
		logger.WithError(err).Error("Email worker stopped")
	}
	if err := consumer.Close(); err != nil {
		logger.WithError(err).Warn("Failed to leave consumer group")
	}
	logger.Info("Email worker exited")
}
