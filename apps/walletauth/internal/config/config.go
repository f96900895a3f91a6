package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DbURL               string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	KafkaBroker         string
	KafkaTopic          string
	KafkaGroupID        string
	APIPort             int
	LogLevel            string
	SessionTTL          time.Duration
	SessionCookieName   string
	SessionCookieSecure bool
	BitcoinNetwork      string
	RegisterRateLimit   float64
	RegisterRateBurst   int
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxClaimLease    time.Duration
}

// NewConfig loads configuration from environment variables
func NewConfig() *Config {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	return &Config{
		DbURL:               getEnvOrFatal("DB_URL"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		KafkaBroker:         getEnvOrFatal("KAFKA_BROKER"),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "wallet-logins"),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "login-materializer"),
		APIPort:             getEnvInt("API_PORT", 8080),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		SessionTTL:          getEnvDuration("SESSION_TTL", 24*time.Hour),
		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "wallet_session"),
		SessionCookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),
		BitcoinNetwork:      strings.ToLower(getEnv("BITCOIN_NETWORK", "mainnet")),
		RegisterRateLimit:   getEnvFloat("REGISTER_RATE_LIMIT", 5),
		RegisterRateBurst:   getEnvInt("REGISTER_RATE_BURST", 10),
		OutboxPollInterval:  getEnvDuration("OUTBOX_POLL_INTERVAL", 3*time.Second),
		OutboxBatchSize:     getEnvInt("OUTBOX_BATCH_SIZE", 100),
		OutboxClaimLease:    getEnvDuration("OUTBOX_CLAIM_LEASE", 5*time.Minute),
	}
}

func getEnvOrFatal(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	log.Fatalf("Warning: environment variable %s not set", key)

	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("30s", "24h")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
