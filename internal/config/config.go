package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Payment  PaymentConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	// MaxOpenConns caps the pool size.
	MaxOpenConns int
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// PaymentConfig holds gateway integration settings.
type PaymentConfig struct {
	// Environment selects the gateway credential set: "test" or "live".
	Environment      string
	SurchargePercent int64
	GatewayTimeout   time.Duration
	SessionTTL       time.Duration
	VerifyLockTTL    time.Duration
	// PublicBaseURL is where gateways send the donor back to (callback endpoint host).
	PublicBaseURL string
	// WebBaseURL is the host of the donation web app used for redirect targets.
	WebBaseURL string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "donations"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 20),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "donation-payments"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Payment: PaymentConfig{
			Environment:      resolveEnvironment(getEnv("PAYMENT_ENVIRONMENT", ""), getEnv("APP_ENV", "local")),
			SurchargePercent: int64(getIntEnv("PAYMENT_SURCHARGE_PERCENT", 5)),
			GatewayTimeout:   getDurationEnv("PAYMENT_GATEWAY_TIMEOUT", 5*time.Second),
			SessionTTL:       getDurationEnv("PAYMENT_SESSION_TTL", 30*time.Minute),
			VerifyLockTTL:    getDurationEnv("PAYMENT_VERIFY_LOCK_TTL", 15*time.Second),
			PublicBaseURL:    strings.TrimRight(getEnv("PAYMENT_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			WebBaseURL:       strings.TrimRight(getEnv("PAYMENT_WEB_BASE_URL", "http://localhost:3000"), "/"),
		},
	}
}

// resolveEnvironment maps deployment settings onto a gateway environment.
// An explicit override wins; otherwise only production talks to live gateways.
func resolveEnvironment(override, appEnv string) string {
	switch strings.ToLower(override) {
	case "live":
		return "live"
	case "test":
		return "test"
	}
	if strings.EqualFold(appEnv, "production") {
		return "live"
	}
	return "test"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
