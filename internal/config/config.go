package config

import (
	"fmt"
	"log"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/nekogravitycat/meeting-booking-backend/internal/db"
)

const PROD_STRING = "prod"

// Config holds all application configuration loaded from environment.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"dev"`
	ProdOrigins string `env:"PROD_ORIGINS"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DBDSN       string `env:"DB_DSN,required,notEmpty"`

	DBMaxConns        int32         `env:"DB_MAX_CONNS"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME"`

	// PublicBaseURL is prepended to the approve/reject/cancel links sent by email.
	PublicBaseURL string `env:"PUBLIC_BASE_URL,required,notEmpty"`

	// Business hours
	BusinessTimezone    string `env:"BUSINESS_TIMEZONE" envDefault:"Asia/Kolkata"`
	OpenHour            int    `env:"BUSINESS_OPEN_HOUR" envDefault:"8"`
	CloseHour           int    `env:"BUSINESS_CLOSE_HOUR" envDefault:"18"`
	AvailabilityMaxDays int    `env:"AVAILABILITY_MAX_DAYS" envDefault:"31"`

	// Google service account used for calendar access
	ServiceAccountEmail string `env:"GOOGLE_SERVICE_ACCOUNT_EMAIL,required,notEmpty"`
	PrivateKey          string `env:"GOOGLE_PRIVATE_KEY,required,notEmpty"`
	TokenURL            string `env:"GOOGLE_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	CalendarScope       string `env:"GOOGLE_CALENDAR_SCOPE" envDefault:"https://www.googleapis.com/auth/calendar"`
	CalendarID          string `env:"GOOGLE_CALENDAR_ID"`
	CalendarEndpoint    string `env:"GOOGLE_CALENDAR_ENDPOINT"`

	// Email
	OperatorEmail   string `env:"OPERATOR_EMAIL,required,notEmpty"`
	OperatorName    string `env:"OPERATOR_NAME" envDefault:"Operator"`
	BrevoAPIKey     string `env:"BREVO_API_KEY"`
	BrevoURL        string `env:"BREVO_URL" envDefault:"https://api.brevo.com/v3/smtp/email"`
	EmailSender     string `env:"EMAIL_SENDER"`
	EmailSenderName string `env:"EMAIL_SENDER_NAME" envDefault:"Bookings"`

	// Operator API. Empty hash disables the admin routes.
	OperatorUser         string `env:"OPERATOR_USER" envDefault:"operator"`
	OperatorPasswordHash string `env:"OPERATOR_PASSWORD_HASH"`

	// Uploads
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"./data/uploads"`
	UploadMaxBytes int64  `env:"UPLOAD_MAX_BYTES" envDefault:"10485760"`

	ReconcileMaxAttempts int           `env:"RECONCILE_MAX_ATTEMPTS" envDefault:"5"`
	ReconcileBatch       int           `env:"RECONCILE_BATCH" envDefault:"50"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	location *time.Location
}

// Load loads configuration from .env (optional) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finalize derives computed fields and checks cross-field rules.
func (c *Config) finalize() error {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return fmt.Errorf("invalid BUSINESS_TIMEZONE: %w", err)
	}
	c.location = loc

	if c.OpenHour < 0 || c.CloseHour > 24 || c.OpenHour >= c.CloseHour {
		return fmt.Errorf("invalid business hours: open %d, close %d", c.OpenHour, c.CloseHour)
	}
	if c.AvailabilityMaxDays < 1 {
		return fmt.Errorf("AVAILABILITY_MAX_DAYS must be positive")
	}
	if c.EmailSender == "" {
		c.EmailSender = c.OperatorEmail
	}
	return nil
}

// PoolOptions returns the database pool sizing.
func (c *Config) PoolOptions() db.PoolOptions {
	return db.PoolOptions{MaxConns: c.DBMaxConns, MaxConnLifetime: c.DBMaxConnLifetime}
}

// IsProduction reports whether APP_ENV is set to prod.
func (c *Config) IsProduction() bool {
	return c.AppEnv == PROD_STRING
}

// Location returns the business timezone. Load must have succeeded first.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
