package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	PayMongo  PayMongoConfig
	Checkout  CheckoutConfig
	RateLimit RateLimitConfig
	Reconcile ReconcileConfig
	Archive   ArchiveConfig
	Tracing   TracingConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	URL             string // takes precedence over the discrete fields when set
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// AuthConfig holds authentication configuration for the order lookup route.
type AuthConfig struct {
	APIKey string
}

// PayMongoConfig holds payment processor configuration.
type PayMongoConfig struct {
	SecretKey     string
	BaseURL       string
	WebhookSecret string
	// WebhookTolerance bounds the age of a signed webhook; zero disables the check.
	WebhookTolerance time.Duration
	PaymentMethods   []string
	Timeout          time.Duration
}

// CheckoutConfig holds the URLs the hosted checkout redirects back to.
type CheckoutConfig struct {
	PublicBaseURL string
	SuccessURL    string
	CancelURL     string
}

// RateLimitConfig holds per-client rate limiting for public endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ReconcileConfig controls the background sweeper that polls pending orders.
type ReconcileConfig struct {
	Interval  time.Duration // zero disables the sweeper
	MinAge    time.Duration
	BatchSize int
}

// ArchiveConfig controls archiving of raw webhook events.
type ArchiveConfig struct {
	Enabled   bool
	Dir       string
	S3Enabled bool
	Bucket    string
	Region    string
	Prefix    string // key prefix within bucket (e.g., "webhooks/")
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	JaegerEndpoint string
}

// Load loads configuration from environment variables. A .env file in the
// working directory, when present, is loaded first without overriding
// variables that are already set.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	publicBaseURL := strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/")

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("PORT", getEnvAsInt("SERVER_PORT", 3000)),
		},
		Database: databaseFromEnv(),
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		PayMongo: PayMongoConfig{
			SecretKey:        getEnv("PAYMONGO_SECRET", ""),
			BaseURL:          strings.TrimRight(getEnv("PAYMONGO_BASE_URL", "https://api.paymongo.com/v1"), "/"),
			WebhookSecret:    getEnv("PAYMONGO_WEBHOOK_SECRET", ""),
			WebhookTolerance: getEnvAsDuration("PAYMONGO_WEBHOOK_TOLERANCE", 5*time.Minute),
			PaymentMethods:   getEnvAsList("PAYMONGO_PAYMENT_METHODS", []string{"gcash", "paymaya", "card"}),
			Timeout:          getEnvAsDuration("PAYMONGO_TIMEOUT", 15*time.Second),
		},
		Checkout: CheckoutConfig{
			PublicBaseURL: publicBaseURL,
			SuccessURL:    getEnv("CHECKOUT_SUCCESS_URL", publicBaseURL+"/success.html"),
			CancelURL:     getEnv("CHECKOUT_CANCEL_URL", publicBaseURL+"/success.html"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 5),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Reconcile: ReconcileConfig{
			Interval:  getEnvAsDuration("RECONCILE_INTERVAL", 0),
			MinAge:    getEnvAsDuration("RECONCILE_MIN_AGE", 2*time.Minute),
			BatchSize: getEnvAsInt("RECONCILE_BATCH_SIZE", 50),
		},
		Archive: ArchiveConfig{
			Enabled:   getEnvAsBool("WEBHOOK_ARCHIVE_ENABLED", false),
			Dir:       getEnv("WEBHOOK_ARCHIVE_DIR", "data/webhooks"),
			S3Enabled: getEnvAsBool("S3_ENABLED", false),
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", "ap-southeast-1"),
			Prefix:    getEnv("S3_PREFIX", "webhooks/"),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvAsBool("TRACING_ENABLED", false),
			ServiceName:    getEnv("TRACING_SERVICE_NAME", "isawan"),
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}

	if c.PayMongo.SecretKey == "" {
		return fmt.Errorf("PayMongo secret key is required")
	}

	if _, err := url.ParseRequestURI(c.PayMongo.BaseURL); err != nil {
		return fmt.Errorf("invalid PayMongo base URL: %s", c.PayMongo.BaseURL)
	}

	if len(c.PayMongo.PaymentMethods) == 0 {
		return fmt.Errorf("at least one PayMongo payment method is required")
	}

	if c.PayMongo.Timeout <= 0 {
		return fmt.Errorf("PayMongo timeout must be positive")
	}

	if _, err := url.ParseRequestURI(c.Checkout.SuccessURL); err != nil {
		return fmt.Errorf("invalid checkout success URL: %s", c.Checkout.SuccessURL)
	}

	if _, err := url.ParseRequestURI(c.Checkout.CancelURL); err != nil {
		return fmt.Errorf("invalid checkout cancel URL: %s", c.Checkout.CancelURL)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1")
	}

	if c.Reconcile.Interval < 0 {
		return fmt.Errorf("reconcile interval must not be negative")
	}

	if c.Reconcile.Interval > 0 && c.Reconcile.BatchSize < 1 {
		return fmt.Errorf("reconcile batch size must be at least 1")
	}

	if c.Archive.Enabled {
		if c.Archive.Dir == "" && !c.Archive.S3Enabled {
			return fmt.Errorf("webhook archive needs a directory or S3")
		}
		if c.Archive.S3Enabled {
			if c.Archive.Bucket == "" {
				return fmt.Errorf("S3 bucket is required when S3 is enabled")
			}
			if c.Archive.Region == "" {
				return fmt.Errorf("S3 region is required when S3 is enabled")
			}
		}
	}

	if c.Tracing.Enabled && c.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("Jaeger endpoint is required when tracing is enabled")
	}

	return nil
}

// LoadDatabase loads only the database section, for tools that do not talk to
// the payment processor.
func LoadDatabase() (DatabaseConfig, error) {
	if err := loadDotEnv(); err != nil {
		return DatabaseConfig{}, err
	}

	cfg := databaseFromEnv()
	if err := cfg.Validate(); err != nil {
		return DatabaseConfig{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

func databaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("DATABASE_URL", ""),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "isawan"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
		MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 5),
		MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
	}
}

// Validate validates the database section.
func (c *DatabaseConfig) Validate() error {
	if c.URL == "" {
		if c.Host == "" {
			return fmt.Errorf("database host is required")
		}

		if c.Port < 1 || c.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Port)
		}

		if c.User == "" {
			return fmt.Errorf("database user is required")
		}

		if c.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration retrieves an environment variable as a duration ("30s", "5m").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList retrieves a comma-separated environment variable.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var list []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return list
}
