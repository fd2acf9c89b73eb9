package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxHoldCeiling is the longest hold the server will ever grant.
const MaxHoldCeiling = 15 * time.Minute

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Kafka     KafkaConfig
	Email     EmailConfig
	Stripe    StripeConfig
	Sales     SalesConfig
	Jobs      JobsConfig

	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string

	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	AvailabilityTTL time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool          `json:"enabled"`
	WindowDuration   time.Duration `json:"window_duration"`
	DefaultRequests  int           `json:"default_requests"`
	PublicRequests   int           `json:"public_requests"`
	HoldRequests     int           `json:"hold_requests"`
	PurchaseRequests int           `json:"purchase_requests"`
	CheckInRequests  int           `json:"check_in_requests"`
	WhitelistedIPs   []string      `json:"whitelisted_ips"`
}

// KafkaConfig holds notification broker configuration
type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	NotificationTopic string
	ConsumerGroup     string
	MaxRetries        int
	RetryBackoff      time.Duration
}

// EmailConfig holds email configuration
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

// StripeConfig holds payment processor configuration
type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	RequestTimeout time.Duration
}

// SalesConfig holds pricing and hold policy
type SalesConfig struct {
	MaxHold          time.Duration
	TaxRate          decimal.Decimal
	Currency         string
	MaxSeatsPerOrder int
}

// JobsConfig holds background job configuration
type JobsConfig struct {
	Enabled            bool
	SweepInterval      time.Duration
	SweepBatchSize     int
	ReconcileInterval  time.Duration
	ReconcileAfter     time.Duration
	ReconcileBatchSize int
	LockTTL            time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "ticketflow"),
			User:         getEnv("DB_USER", "ticketflow"),
			Password:     getEnv("DB_PASSWORD", "ticketflow"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 10),
		},

		Redis: RedisConfig{
			Host:            getEnv("REDIS_HOST", "localhost"),
			Port:            getEnv("REDIS_PORT", "6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getIntEnv("REDIS_DB", 0),
			AvailabilityTTL: getDurationEnv("REDIS_AVAILABILITY_TTL", 5*time.Second),
		},

		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me"),
		},

		RateLimit: RateLimitConfig{
			Enabled:          getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:   getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:  getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:   getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 120),
			HoldRequests:     getIntEnv("RATE_LIMIT_HOLD_REQUESTS", 20),
			PurchaseRequests: getIntEnv("RATE_LIMIT_PURCHASE_REQUESTS", 10),
			CheckInRequests:  getIntEnv("RATE_LIMIT_CHECK_IN_REQUESTS", 600),
			WhitelistedIPs:   getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		Kafka: KafkaConfig{
			Enabled:           getBoolEnv("KAFKA_ENABLED", false),
			Brokers:           getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "ticketflow.notifications"),
			ConsumerGroup:     getEnv("KAFKA_CONSUMER_GROUP", "ticketflow-mailer"),
			MaxRetries:        getIntEnv("KAFKA_MAX_RETRIES", 3),
			RetryBackoff:      getDurationEnv("KAFKA_RETRY_BACKOFF", 500*time.Millisecond),
		},

		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getIntEnv("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "tickets@ticketflow.local"),
			FromName:     getEnv("FROM_NAME", "Ticketflow"),
		},

		Stripe: StripeConfig{
			SecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
			RequestTimeout: getDurationEnv("STRIPE_REQUEST_TIMEOUT", 20*time.Second),
		},

		Sales: SalesConfig{
			MaxHold:          getDurationEnvMinutes("MAX_HOLD_MINUTES", MaxHoldCeiling),
			TaxRate:          getDecimalEnv("TAX_RATE", decimal.RequireFromString("0.16")),
			Currency:         strings.ToLower(getEnv("CURRENCY", "mxn")),
			MaxSeatsPerOrder: getIntEnv("MAX_SEATS_PER_ORDER", 10),
		},

		Jobs: JobsConfig{
			Enabled:            getBoolEnv("JOBS_ENABLED", true),
			SweepInterval:      getDurationEnv("JOBS_SWEEP_INTERVAL", time.Minute),
			SweepBatchSize:     getIntEnv("JOBS_SWEEP_BATCH_SIZE", 200),
			ReconcileInterval:  getDurationEnv("JOBS_RECONCILE_INTERVAL", 5*time.Minute),
			ReconcileAfter:     getDurationEnv("JOBS_RECONCILE_AFTER", 10*time.Minute),
			ReconcileBatchSize: getIntEnv("JOBS_RECONCILE_BATCH_SIZE", 50),
			LockTTL:            getDurationEnv("JOBS_LOCK_TTL", 2*time.Minute),
		},

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Sales.MaxHold <= 0 || cfg.Sales.MaxHold > MaxHoldCeiling {
		cfg.Sales.MaxHold = MaxHoldCeiling
	}

	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getDurationEnvMinutes reads an integer number of minutes
func getDurationEnvMinutes(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return fallback
}

func getDecimalEnv(key string, fallback decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil && !d.IsNegative() {
			return d
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the versioned prefix, e.g. /api/v1
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
