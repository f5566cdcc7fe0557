// Package config loads and validates service configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	Security SecurityConfig
	Bridge   BridgeConfig
	Relay    RelayConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type LogConfig struct {
	Level string
	File  string
}

type SecurityConfig struct {
	OwnerTOTPSecret string
	IdempotencyTTL  time.Duration
	RateLimit       int
	RateWindow      time.Duration
	BodyLimit       int64
}

// BridgeConfig configures the custodial ledger. Amounts are decimal strings in
// asset smallest units.
type BridgeConfig struct {
	Owner                 string
	MinAmount             string
	MaxAmount             string
	ReplayOrder           string
	TransferFailurePolicy string
	Verifier              string
	VerifyingKeyPath      string
	BindRecipient         bool
}

// RelayConfig configures the intake relay in front of the ledger.
type RelayConfig struct {
	Owner         string
	TrustedSender string
	TrustedSigner string
	MinAmount     string
	MaxAmount     string
}

// JobsConfig sets the maintenance job intervals. Zero disables a job.
type JobsConfig struct {
	ChainCheckInterval    time.Duration
	PayoutBacklogInterval time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-this-secret"),
			Expiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		Security: SecurityConfig{
			OwnerTOTPSecret: getEnv("OWNER_TOTP_SECRET", ""),
			IdempotencyTTL:  getDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
			RateLimit:       getIntEnv("RATE_LIMIT", 120),
			RateWindow:      getDurationEnv("RATE_WINDOW", time.Minute),
			BodyLimit:       int64(getIntEnv("BODY_LIMIT", 1<<20)),
		},
		Bridge: BridgeConfig{
			Owner:                 getEnv("BRIDGE_OWNER", ""),
			MinAmount:             getEnv("BRIDGE_MIN_AMOUNT", "1"),
			MaxAmount:             getEnv("BRIDGE_MAX_AMOUNT", "1000000000000000000000"),
			ReplayOrder:           getEnv("BRIDGE_REPLAY_ORDER", "mark-then-verify"),
			TransferFailurePolicy: getEnv("BRIDGE_TRANSFER_FAILURE_POLICY", "swallow"),
			Verifier:              getEnv("BRIDGE_VERIFIER", "binding"),
			VerifyingKeyPath:      getEnv("BRIDGE_VERIFYING_KEY", ""),
			BindRecipient:         getBoolEnv("BRIDGE_BIND_RECIPIENT", false),
		},
		Relay: RelayConfig{
			Owner:         getEnv("RELAY_OWNER", ""),
			TrustedSender: getEnv("RELAY_TRUSTED_SENDER", ""),
			TrustedSigner: getEnv("RELAY_TRUSTED_SIGNER", ""),
			MinAmount:     getEnv("RELAY_MIN_AMOUNT", ""),
			MaxAmount:     getEnv("RELAY_MAX_AMOUNT", ""),
		},
		Jobs: JobsConfig{
			ChainCheckInterval:    getDurationEnv("JOB_CHAIN_CHECK_INTERVAL", 10*time.Minute),
			PayoutBacklogInterval: getDurationEnv("JOB_PAYOUT_BACKLOG_INTERVAL", time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}
