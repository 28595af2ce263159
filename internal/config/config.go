// Package config provides environment configuration for the backend.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort string
	LogLevel   string

	// Database settings (postgres)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Platform gateway sidecar
	GatewayURL string

	// Credential vault: 32-byte hex key, required.
	CredentialKey string

	// JWT settings for the operational API
	JWTSecret string

	// Connection pool settings
	PoolMaxSessions    int
	PoolIdleTTL        time.Duration
	PoolAcquireTimeout time.Duration
	PoolProbeTimeout   time.Duration

	// Retry settings
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// Sync settings
	SyncPageSize    int
	SyncCallTimeout time.Duration
}

// Load reads configuration from environment variables. Settings without a
// usable default (the vault key, the JWT secret) are validated here so the
// process fails at startup rather than at first use.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort: getEnv("PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "karma"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		GatewayURL: getEnv("GATEWAY_URL", "http://localhost:8081"),

		CredentialKey: os.Getenv("CREDENTIAL_KEY"),
		JWTSecret:     os.Getenv("JWT_SECRET"),

		PoolMaxSessions:    getIntEnv("POOL_MAX_SESSIONS", 50),
		PoolIdleTTL:        getDurationEnv("POOL_IDLE_TTL", 10*time.Minute),
		PoolAcquireTimeout: getDurationEnv("POOL_ACQUIRE_TIMEOUT", 30*time.Second),
		PoolProbeTimeout:   getDurationEnv("POOL_PROBE_TIMEOUT", 10*time.Second),

		RetryMaxAttempts:     getIntEnv("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialInterval: getDurationEnv("RETRY_INITIAL_INTERVAL", 500*time.Millisecond),
		RetryMaxInterval:     getDurationEnv("RETRY_MAX_INTERVAL", 30*time.Second),

		SyncPageSize:    getIntEnv("SYNC_PAGE_SIZE", 100),
		SyncCallTimeout: getDurationEnv("SYNC_CALL_TIMEOUT", 45*time.Second),
	}

	if cfg.CredentialKey == "" {
		return nil, errors.New("CREDENTIAL_KEY is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
