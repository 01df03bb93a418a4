package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/experiencehub/booking-engine/internal/config"
	"github.com/experiencehub/booking-engine/internal/database"
	"github.com/experiencehub/booking-engine/internal/handlers"
	"github.com/experiencehub/booking-engine/internal/mailer"
	"github.com/experiencehub/booking-engine/internal/metrics"
	"github.com/experiencehub/booking-engine/internal/middleware"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/experiencehub/booking-engine/internal/realtime"
	"github.com/experiencehub/booking-engine/internal/services"
	"github.com/experiencehub/booking-engine/pkg/jwt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting booking engine")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	bookingRepo := database.NewBookingRepository(db)
	experienceRepo := database.NewExperienceRepository(db)
	paymentRepo := database.NewPaymentRepository(db)
	notificationRepo := database.NewNotificationRepository(db)
	userRepo := database.NewUserRepository(db)
	ticketRepo := database.NewTicketRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db, logger)
	gatewayConfigRepo := database.NewGatewayConfigRepository(db)

	// Realtime broker: Redis fans out across instances, memory is single-node
	var broker realtime.Broker
	if cfg.Redis.Enabled {
		redisBroker, err := realtime.NewRedisBroker(cfg.Redis, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisBroker.Close()
		broker = redisBroker
		logger.WithField("addr", cfg.Redis.Addr).Info("Realtime notifications via Redis")
	} else {
		broker = realtime.NewMemoryBroker()
		logger.Info("Realtime notifications in memory")
	}

	// Email: Kafka queue drained by cmd/email-worker, or direct SMTP
	var email mailer.Dispatcher
	switch {
	case cfg.Kafka.Enabled:
		queue, err := mailer.NewKafkaQueue(cfg.Kafka, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to Kafka: %v", err)
		}
		defer queue.Close()
		email = queue
		logger.WithField("topic", cfg.Kafka.EmailTopic).Info("Emails queued to Kafka")
	case cfg.SMTP.Configured():
		email = mailer.NewMailer(cfg.SMTP, logger)
		logger.WithField("host", cfg.SMTP.Host).Info("Emails sent over SMTP")
	default:
		logger.Warn("No email transport configured, EMAIL notifications are recorded only")
	}

	if cfg.Metrics.Enabled {
		metrics.Register()
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	gateways := services.NewGatewayRegistry(gatewayConfigRepo, cfg.Payment.Providers, os.LookupEnv, logger)
	inventoryService := services.NewInventoryService(bookingRepo, experienceRepo, nil)
	notificationService := services.NewNotificationService(notificationRepo, userRepo, broker, email, cfg.Server.AppBaseURL, logger, nil)

	ticketIssuer, err := services.NewSnowflakeTicketIssuer(ticketRepo, cfg.Booking.TicketNodeID, nil)
	if err != nil {
		logger.Fatalf("Failed to create ticket issuer: %v", err)
	}
	confirmationService := services.NewConfirmationService(bookingRepo, ticketIssuer, notificationService, logger, nil)
	auditService := services.NewAuditService(auditRepo, logger, nil)

	paymentService := services.NewPaymentService(
		paymentRepo,
		bookingRepo,
		experienceRepo,
		gateways,
		notificationService,
		auditService,
		services.PaymentServiceConfig{PublicBaseURL: cfg.Server.PublicBaseURL},
		logger,
		nil,
	)
	settlementService := services.NewSettlementService(
		paymentRepo,
		bookingRepo,
		gateways,
		confirmationService,
		paymentService,
		auditService,
		logger,
		nil,
	)
	bookingService := services.NewBookingService(
		bookingRepo,
		experienceRepo,
		paymentRepo,
		inventoryService,
		paymentService,
		confirmationService,
		notificationService,
		services.BookingServiceConfig{
			HoldTTL:         cfg.Booking.HoldTTL,
			SweepGrace:      cfg.Booking.SweepGrace,
			DefaultCurrency: cfg.Payment.DefaultCurrency,
		},
		logger,
		nil,
	)

	// Expiry sweeper
	expirationService := services.NewBookingExpirationService(bookingService, logger)
	cronService := services.NewCronService(expirationService, cfg.Booking.SweepSchedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.WithField("schedule", cfg.Booking.SweepSchedule).Info("Booking expiry sweeper started")

	// Handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, inventoryService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, settlementService, cfg.Payment.SuccessURL, cfg.Payment.CancelURL, logger)
	notificationHandler := handlers.NewNotificationHandler(notificationService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	auth := middleware.AuthMiddleware(jwtService, logger)

	v1 := router.Group("/api/v1")
	{
		bookings := v1.Group("/bookings")
		bookings.Use(auth)
		{
			bookings.POST("", middleware.RequireRole(models.RoleExplorer, models.RoleAdmin), bookingHandler.CreateBooking)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/checkout", bookingHandler.StartCheckout)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
		}

		sessions := v1.Group("/sessions")
		sessions.Use(auth)
		{
			sessions.GET("/:id/availability", bookingHandler.GetSessionAvailability)
		}

		organizer := v1.Group("/organizer")
		organizer.Use(auth, middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin))
		{
			organizer.PATCH("/bookings/status", bookingHandler.UpdateStatus)
		}

		payments := v1.Group("/payments")
		{
			// Provider callbacks are public; authenticity is checked by the adapter
			payments.GET("/:provider/return", paymentHandler.Return)
			payments.POST("/:provider/return", paymentHandler.Return)
			payments.POST("/:provider/webhook", paymentHandler.Webhook)

			payments.POST("/refunds", auth, middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin), paymentHandler.Refund)
		}

		notifications := v1.Group("/notifications")
		notifications.Use(auth)
		{
			notifications.GET("", notificationHandler.ListNotifications)
			notifications.PATCH("/read", notificationHandler.MarkRead)
			notifications.GET("/preferences", notificationHandler.GetPreferences)
			notifications.PUT("/preferences", notificationHandler.UpdatePreferences)
			notifications.GET("/stream", notificationHandler.Stream)
		}

		// Admin cron management routes
		admin := v1.Group("/admin")
		admin.Use(auth, middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/cron/expire-bookings", func(c *gin.Context) {
				cronService.RunExpireBookingsNow()
				c.JSON(http.StatusAccepted, gin.H{"message": "Booking expiry sweep triggered"})
			})

			admin.GET("/cron/status", func(c *gin.Context) {
				c.JSON(http.StatusOK, cronService.GetJobStatus())
			})
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop cron service
	logger.Info("Stopping cron service...")
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Let in-flight notification emails finish
	notificationService.Wait()

	logger.Info("Server exited successfully")
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
