package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL       string
	Port              string
	LogLevel          string
	AccuracyThreshold decimal.Decimal
	NasdaqAPIKey      string
	RedisAddr         string
	LeaderboardTTL    time.Duration
	SweepLimit        int
	SweepInterval     time.Duration // zero disables the background sweep
}

// Load reads configuration from the environment, after loading .env if present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		Port:           getEnvWithDefault("PORT", "8080"),
		LogLevel:       getEnvWithDefault("LOG_LEVEL", "info"),
		NasdaqAPIKey:   os.Getenv("NASDAQ_API_KEY"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		LeaderboardTTL: time.Duration(getEnvIntWithDefault("LEADERBOARD_CACHE_TTL", 60)) * time.Second,
		SweepLimit:     getEnvIntWithDefault("SWEEP_LIMIT", 500),
		SweepInterval:  getEnvDurationWithDefault("SWEEP_INTERVAL", 0),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	threshold, err := decimal.NewFromString(getEnvWithDefault("ACCURACY_THRESHOLD", "90"))
	if err != nil {
		return nil, fmt.Errorf("parsing ACCURACY_THRESHOLD: %w", err)
	}
	if threshold.IsNegative() || threshold.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("ACCURACY_THRESHOLD %s outside [0, 100]", threshold)
	}
	cfg.AccuracyThreshold = threshold

	return &cfg, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-integer value")
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid duration")
	}
	return defaultValue
}
