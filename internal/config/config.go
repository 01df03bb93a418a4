package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Booking hold and sweeper configuration
	Booking BookingConfig

	// Payment redirect targets and provider env fallbacks
	Payment PaymentConfig

	// Realtime notification broker
	Redis RedisConfig

	// Email queue
	Kafka KafkaConfig

	// Outgoing mail
	SMTP SMTPConfig

	// Prometheus
	Metrics MetricsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port          string
	Environment   string // development, staging, production
	LogLevel      string // debug, info, warn, error
	PublicBaseURL string // externally reachable base URL, used for provider return URLs
	AppBaseURL    string // front-end base URL, used for notification links in emails
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig controls reservation holds
type BookingConfig struct {
	HoldTTL       time.Duration // how long a PENDING booking claims capacity
	SweepSchedule string        // cron expression with seconds field
	SweepGrace    time.Duration // extra time given to in-flight payments before a hold is cancelled
	TicketNodeID  int64         // snowflake node id, unique per running instance
}

// ProviderEnv describes the pure environment fallback for one payment provider.
// Each entry maps a credential field to the variable it is read from.
type ProviderEnv struct {
	TestMode bool
	Vars     map[string]string
}

// PaymentConfig holds checkout redirect targets and provider fallbacks
type PaymentConfig struct {
	SuccessURL      string // frontend page shown after a successful or pending payment
	CancelURL       string // frontend page shown after a failed or abandoned payment
	DefaultCurrency string
	Providers       map[string]ProviderEnv
}

// RedisConfig holds Redis connection configuration for the realtime broker
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds the email queue configuration
type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	EmailTopic string
	GroupID    string
}

// SMTPConfig holds outgoing mail configuration
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// Configured reports whether enough is set to send mail
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.FromEmail != ""
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			Environment:   getEnv("ENVIRONMENT", "development"),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			AppBaseURL:    strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Booking: BookingConfig{
			HoldTTL:       getEnvAsDuration("BOOKING_HOLD_TTL", 20*time.Minute),
			SweepSchedule: getEnv("BOOKING_SWEEP_SCHEDULE", "0 */1 * * * *"),
			SweepGrace:    getEnvAsDuration("BOOKING_SWEEP_GRACE", 5*time.Minute),
			TicketNodeID:  int64(getEnvAsInt("TICKET_NODE_ID", 1)),
		},
		Payment: PaymentConfig{
			SuccessURL:      getEnv("PAYMENT_SUCCESS_URL", "http://localhost:3000/bookings/success"),
			CancelURL:       getEnv("PAYMENT_CANCEL_URL", "http://localhost:3000/bookings/cancel"),
			DefaultCurrency: strings.ToUpper(getEnv("PAYMENT_DEFAULT_CURRENCY", "MAD")),
			Providers:       loadProviderEnv(),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:    getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:    getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			EmailTopic: getEnv("KAFKA_EMAIL_TOPIC", "notification-emails"),
			GroupID:    getEnv("KAFKA_EMAIL_GROUP_ID", "booking-engine-email-workers"),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", "Experience Hub"),
			Timeout:   getEnvAsDuration("SMTP_TIMEOUT", 30*time.Second),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadProviderEnv builds the environment fallback for every provider.
// Variable names are fixed; only the test-mode flags are read here, secrets are
// resolved lazily so a rotated variable takes effect on the next checkout.
func loadProviderEnv() map[string]ProviderEnv {
	return map[string]ProviderEnv{
		"STRIPE": {
			TestMode: getEnvAsBool("STRIPE_TEST_MODE", true),
			Vars: map[string]string{
				"secretKey":     "STRIPE_SECRET_KEY",
				"webhookSecret": "STRIPE_WEBHOOK_SECRET",
			},
		},
		"PAYPAL": {
			TestMode: getEnvAsBool("PAYPAL_TEST_MODE", true),
			Vars: map[string]string{
				"clientId":     "PAYPAL_CLIENT_ID",
				"clientSecret": "PAYPAL_CLIENT_SECRET",
			},
		},
		"CMI": {
			TestMode: getEnvAsBool("CMI_TEST_MODE", true),
			Vars: map[string]string{
				"clientId": "CMI_CLIENT_ID",
				"storeKey": "CMI_STORE_KEY",
			},
		},
		"PAYZONE": {
			TestMode: getEnvAsBool("PAYZONE_TEST_MODE", true),
			Vars: map[string]string{
				"merchantAccount": "PAYZONE_MERCHANT_ACCOUNT",
				"secretKey":       "PAYZONE_SECRET_KEY",
				"notificationKey": "PAYZONE_NOTIFICATION_KEY",
			},
		},
		"CASH": {
			TestMode: false,
			Vars:     map[string]string{},
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.HoldTTL <= 0 {
		return fmt.Errorf("BOOKING_HOLD_TTL must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
