package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Sync holds realtime connection configuration
	Sync SyncConfig

	// API holds REST endpoint configuration
	API APIConfig

	// Session holds the operator credentials
	Session SessionConfig

	// Simulator holds the development feed server configuration
	Simulator SimulatorConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// SyncConfig holds persistent-connection configuration
type SyncConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// APIConfig holds REST snapshot configuration
type APIConfig struct {
	BaseURL string
}

// SessionConfig holds the configured operator identity
type SessionConfig struct {
	Token     string
	UserID    string
	UserName  string
	UserEmail string
	UserRole  string
}

// SimulatorConfig holds the development feed server configuration
type SimulatorConfig struct {
	Port            string
	JWTSecret       string
	AllowedOrigins  []string
	BidsPerSecond   float64
	BidBurst        int
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Sync: SyncConfig{
			URL:          getEnvOrDefault("SYNC_WS_URL", "ws://localhost:8080/ws"),
			DialTimeout:  getDurationOrDefault("SYNC_DIAL_TIMEOUT", 10*time.Second),
			ReconnectMin: getDurationOrDefault("SYNC_RECONNECT_MIN", 1*time.Second),
			ReconnectMax: getDurationOrDefault("SYNC_RECONNECT_MAX", 5*time.Second),
		},
		API: APIConfig{
			BaseURL: getEnvOrDefault("API_BASE_URL", "http://localhost:8080"),
		},
		Session: SessionConfig{
			Token:     os.Getenv("SESSION_TOKEN"),
			UserID:    os.Getenv("SESSION_USER_ID"),
			UserName:  getEnvOrDefault("SESSION_USER_NAME", "operator"),
			UserEmail: os.Getenv("SESSION_USER_EMAIL"),
			UserRole:  getEnvOrDefault("SESSION_USER_ROLE", "operator"),
		},
		Simulator: SimulatorConfig{
			Port:            getEnvOrDefault("SIM_PORT", ":8080"),
			JWTSecret:       os.Getenv("SIM_JWT_SECRET"),
			AllowedOrigins:  getStringSliceOrDefault("SIM_ALLOWED_ORIGINS", []string{"*"}),
			BidsPerSecond:   getFloatOrDefault("SIM_BIDS_PER_SECOND", 2),
			BidBurst:        getIntOrDefault("SIM_BID_BURST", 5),
			ShutdownTimeout: getDurationOrDefault("SIM_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "bidsync"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.Sync.URL == "" {
		errs = append(errs, "SYNC_WS_URL is required")
	}
	if c.Sync.ReconnectMin <= 0 || c.Sync.ReconnectMax < c.Sync.ReconnectMin {
		errs = append(errs, "SYNC_RECONNECT_MIN must be positive and no greater than SYNC_RECONNECT_MAX")
	}

	if c.App.Environment == "production" {
		if c.Session.Token == "" {
			errs = append(errs, "SESSION_TOKEN is required in production")
		}
		if len(c.Simulator.AllowedOrigins) == 1 && c.Simulator.AllowedOrigins[0] == "*" {
			errs = append(errs, "SIM_ALLOWED_ORIGINS must be restricted in production")
		}
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
