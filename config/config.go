package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds the environment driven configuration for the courier service.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"courier"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	DBDriver       string        `env:"DB_DRIVER" envDefault:"sqlite3"`
	DatabaseURL    string        `env:"DATABASE_URL" envDefault:"courier.db"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`

	JWTSecret      string        `env:"JWT_SECRET" envDefault:"dev-secret-key-CHANGE-IN-PRODUCTION"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`

	AppName                  string        `env:"APP_NAME" envDefault:"Courier"`
	AppURL                   string        `env:"APP_URL" envDefault:"http://localhost:8080"`
	SendGridAPIKey           string        `env:"SENDGRID_API_KEY"`
	SendGridBaseURL          string        `env:"SENDGRID_BASE_URL" envDefault:"https://api.sendgrid.com"`
	SendGridFromEmail        string        `env:"SENDGRID_FROM_EMAIL" envDefault:"noreply@courier.local"`
	EnableEmailNotifications bool          `env:"ENABLE_EMAIL_NOTIFICATIONS" envDefault:"true"`
	NotifyConcurrency        int64         `env:"NOTIFY_CONCURRENCY" envDefault:"16"`
	NotifyTimeout            time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	DigestSchedule           string        `env:"DIGEST_SCHEDULE" envDefault:"0 8 * * *"`
}

// Load reads an optional .env file and parses environment variables into Config.
//
// Environment variables take precedence over .env values, which take
// precedence over the struct tag defaults.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	// Each pooled connection would open its own empty in-memory database.
	if c.DBDriver == DriverSQLite && strings.Contains(c.DatabaseURL, ":memory:") {
		return fmt.Errorf("DATABASE_URL must name a file for sqlite3, not :memory:")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && strings.Contains(c.JWTSecret, "CHANGE-IN-PRODUCTION") {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.NotifyConcurrency <= 0 {
		return fmt.Errorf("NOTIFY_CONCURRENCY must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// SendGridConfigured reports whether a usable SendGrid key is present.
func (c *Config) SendGridConfigured() bool {
	key := strings.TrimSpace(c.SendGridAPIKey)
	return key != "" && key != "your-sendgrid-api-key-here"
}
