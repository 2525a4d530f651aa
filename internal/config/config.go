package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName    string
	AppVersion string

	Environment string
	Network     string

	HTTPAddr string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	Webhook WebhookConfig
	Relay   RelayConfig
}

// WebhookConfig bounds outbound webhook deliveries.
type WebhookConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// RelayConfig controls the outbox relay loop.
type RelayConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "creditrail"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		Network:     normalizeNetwork(getenv("NETWORK", NetworkTestnet)),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Webhook: WebhookConfig{
			Timeout:   getenvDuration("WEBHOOK_TIMEOUT", 30*time.Second),
			UserAgent: getenv("WEBHOOK_USER_AGENT", "creditrail-webhooks/1.0"),
		},
		Relay: RelayConfig{
			Enabled:     getenvBool("OUTBOX_RELAY_ENABLED", true),
			Interval:    getenvDuration("OUTBOX_RELAY_INTERVAL", 5*time.Second),
			BatchSize:   getenvInt("OUTBOX_RELAY_BATCH_SIZE", 50),
			MaxAttempts: getenvInt("OUTBOX_RELAY_MAX_ATTEMPTS", 8),
		},
	}

	return cfg
}

// Livemode reports whether events should be stamped as live traffic.
func (c Config) Livemode() bool {
	return c.Network == NetworkMainnet
}

func normalizeNetwork(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case NetworkMainnet:
		return NetworkMainnet
	default:
		return NetworkTestnet
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
