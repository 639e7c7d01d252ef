package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"digitlotto/database"
	"digitlotto/domain/currency"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated)

	// Redis configuration
	RedisAddr string

	// Wallet configuration
	TokenDir         string // Directory holding one JSON file per token
	CoinID           string
	OperatorIdentity string // Recipient of commission withdrawals
	SplitSearchDepth int

	// Round configuration
	RoundDuration        time.Duration
	SettlementRetryDelay time.Duration
	HouseFeePercent      decimal.Decimal

	// Payment configuration
	PaymentTimeout   time.Duration
	PaymentTolerance decimal.Decimal // Shortfall still accepted as paid, in smallest units; PAYMENT_TOLERANCE is given in coins
	ReceiptBuffer    int

	// Logging
	LogLevel string

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelServiceName          string
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelExportIntervalMillis int

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// load loads configuration from environment variables
func load() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	config := &Config{
		// Database
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		// NATS
		NATSServers: getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),

		// Redis
		RedisAddr: os.Getenv("REDIS_ADDR"),

		// Wallet
		TokenDir:         getEnvWithDefault("TOKEN_DIR", "./data/tokens"),
		CoinID:           os.Getenv("COIN_ID"),
		OperatorIdentity: os.Getenv("OPERATOR_IDENTITY"),
		SplitSearchDepth: 5,

		// Rounds
		RoundDuration:        time.Hour,
		SettlementRetryDelay: 5 * time.Second,
		HouseFeePercent:      decimal.NewFromInt(5),

		// Payments
		PaymentTimeout:   15 * time.Minute,
		PaymentTolerance: currency.MustSmallestUnit("0.0001"),
		ReceiptBuffer:    256,

		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),

		// OpenTelemetry
		OTelEnabled:              os.Getenv("OTEL_ENABLED") == "true",
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "digitlotto"),
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_OTLP_ENDPOINT", "otel-collector:4317"),
		OTelExportIntervalMillis: 30000,

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	var err error
	if config.RoundDuration, err = getDuration("ROUND_DURATION", config.RoundDuration); err != nil {
		return nil, err
	}
	if config.SettlementRetryDelay, err = getDuration("SETTLEMENT_RETRY_DELAY", config.SettlementRetryDelay); err != nil {
		return nil, err
	}
	if config.PaymentTimeout, err = getDuration("PAYMENT_TIMEOUT", config.PaymentTimeout); err != nil {
		return nil, err
	}
	if config.HouseFeePercent, err = getDecimal("HOUSE_FEE_PERCENT", config.HouseFeePercent); err != nil {
		return nil, err
	}
	if config.PaymentTolerance, err = getAmount("PAYMENT_TOLERANCE", config.PaymentTolerance); err != nil {
		return nil, err
	}
	if config.SplitSearchDepth, err = getInt("SPLIT_SEARCH_DEPTH", config.SplitSearchDepth); err != nil {
		return nil, err
	}
	if config.ReceiptBuffer, err = getInt("RECEIPT_BUFFER", config.ReceiptBuffer); err != nil {
		return nil, err
	}
	if config.OTelExportIntervalMillis, err = getInt("OTEL_EXPORT_INTERVAL_MS", config.OTelExportIntervalMillis); err != nil {
		return nil, err
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.RoundDuration <= 0 {
		return fmt.Errorf("ROUND_DURATION must be positive")
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	if c.HouseFeePercent.IsNegative() || c.HouseFeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("HOUSE_FEE_PERCENT must be between 0 and 100")
	}
	if c.PaymentTolerance.IsNegative() {
		return fmt.Errorf("PAYMENT_TOLERANCE cannot be negative")
	}
	if c.SplitSearchDepth < 1 {
		return fmt.Errorf("SPLIT_SEARCH_DEPTH must be at least 1")
	}
	if c.ReceiptBuffer < 1 {
		return fmt.Errorf("RECEIPT_BUFFER must be at least 1")
	}

	if c.Environment != "test" {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if c.CoinID == "" {
			return fmt.Errorf("COIN_ID is required")
		}
		// If DatabaseName is provided, ensure it's not empty
		if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
			return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func getDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

// getAmount reads a coin amount and scales it to smallest units
func getAmount(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := currency.ToSmallestUnit(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:          "test",
		CoinID:               "test-coin",
		TokenDir:             os.TempDir(),
		SplitSearchDepth:     5,
		RoundDuration:        time.Hour,
		SettlementRetryDelay: 10 * time.Millisecond,
		HouseFeePercent:      decimal.NewFromInt(5),
		PaymentTimeout:       15 * time.Minute,
		PaymentTolerance:     decimal.Zero,
		ReceiptBuffer:        16,
		LogLevel:             "debug",
		OTelExporterType:     "none",
	}
}
