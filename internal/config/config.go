// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string
	LogFmt   string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)

	// Payment provider webhook secrets
	YocoWebhookSecret   string // whsec_... signing secret from the Yoco dashboard
	PaystackSecretKey   string // sk_... secret key, also used to verify webhook signatures
	StripeWebhookSecret string // whsec_... endpoint signing secret

	// Security
	AllowedOrigins []string
	RateLimitRPM   int

	// Reconciliation sweep
	SweepInterval    time.Duration
	SweepMaxAttempts int

	// Plan quota overrides (0 means use the built-in default)
	FreeMonthlyQuota      int
	ProMonthlyQuota       int
	ExecutiveMonthlyQuota int
}

// Defaults
const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultRateLimitRPM  = 120
	DefaultSweepInterval = time.Minute
	DefaultSweepAttempts = 5
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFmt:                getEnv("LOG_FORMAT", "text"),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		YocoWebhookSecret:     os.Getenv("YOCO_WEBHOOK_SECRET"),
		PaystackSecretKey:     os.Getenv("PAYSTACK_SECRET_KEY"),
		StripeWebhookSecret:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		AllowedOrigins:        splitCommaList(os.Getenv("ALLOWED_ORIGINS")),
		RateLimitRPM:          getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		SweepMaxAttempts:      getEnvInt("SWEEP_MAX_ATTEMPTS", DefaultSweepAttempts),
		FreeMonthlyQuota:      getEnvInt("FREE_MONTHLY_QUOTA", 0),
		ProMonthlyQuota:       getEnvInt("PRO_MONTHLY_QUOTA", 0),
		ExecutiveMonthlyQuota: getEnvInt("EXECUTIVE_MONTHLY_QUOTA", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if c.YocoWebhookSecret == "" && c.PaystackSecretKey == "" && c.StripeWebhookSecret == "" {
			return fmt.Errorf("at least one webhook secret (YOCO_WEBHOOK_SECRET, PAYSTACK_SECRET_KEY, STRIPE_WEBHOOK_SECRET) is required in production")
		}
	}

	if c.SweepMaxAttempts < 1 {
		return fmt.Errorf("SWEEP_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
