// Package config provides configuration management for the ledger service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/finance-ledger/recurrence"
)

// Config represents the application configuration.
type Config struct {
	DBPath   string
	Port     int
	LogLevel string
	Server   ServerConfig
	Sweep    SweepConfig
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	CORSOrigins []string
}

// SweepConfig represents materialization and scheduler knobs.
type SweepConfig struct {
	Enabled        bool
	Interval       time.Duration
	HorizonDays    int
	MaxOccurrences int
	InitialBatch   int
	Workers        int
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	port, err := parseIntEnv("LEDGER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	horizon, err := parseIntEnv("LEDGER_HORIZON_DAYS", recurrence.DefaultHorizonDays)
	if err != nil {
		return nil, err
	}
	maxOcc, err := parseIntEnv("LEDGER_MAX_OCCURRENCES", recurrence.MaxOccurrencesPerCall)
	if err != nil {
		return nil, err
	}
	batch, err := parseIntEnv("LEDGER_INITIAL_BATCH", recurrence.DefaultInitialBatch)
	if err != nil {
		return nil, err
	}
	workers, err := parseIntEnv("LEDGER_SWEEP_WORKERS", recurrence.DefaultSweepWorkers)
	if err != nil {
		return nil, err
	}
	interval, err := parseDurationEnv("LEDGER_SWEEP_INTERVAL", recurrence.DefaultSweepInterval)
	if err != nil {
		return nil, err
	}
	enabled, err := parseBoolEnv("LEDGER_SCHEDULER_ENABLED", true)
	if err != nil {
		return nil, err
	}

	config := &Config{
		DBPath:   getEnvOrDefault("LEDGER_DB_PATH", "ledger.db"),
		Port:     port,
		LogLevel: getEnvOrDefault("LEDGER_LOG_LEVEL", "info"),
		Server: ServerConfig{
			CORSOrigins: splitList(getEnvOrDefault("LEDGER_CORS_ORIGINS", "*")),
		},
		Sweep: SweepConfig{
			Enabled:        enabled,
			Interval:       interval,
			HorizonDays:    horizon,
			MaxOccurrences: maxOcc,
			InitialBatch:   batch,
			Workers:        workers,
		},
	}

	return config, nil
}

// Validate checks the knobs are usable.
func (c *Config) Validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "LEDGER_DB_PATH is empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("LEDGER_PORT %d out of range", c.Port))
	}
	if c.Sweep.Interval <= 0 {
		problems = append(problems, "LEDGER_SWEEP_INTERVAL must be positive")
	}
	if c.Sweep.HorizonDays <= 0 {
		problems = append(problems, "LEDGER_HORIZON_DAYS must be positive")
	}
	if c.Sweep.MaxOccurrences <= 0 || c.Sweep.MaxOccurrences > recurrence.MaxOccurrencesPerCall {
		problems = append(problems, fmt.Sprintf("LEDGER_MAX_OCCURRENCES must be in 1..%d", recurrence.MaxOccurrencesPerCall))
	}
	if c.Sweep.InitialBatch <= 0 || c.Sweep.InitialBatch > recurrence.MaxOccurrencesPerCall {
		problems = append(problems, fmt.Sprintf("LEDGER_INITIAL_BATCH must be in 1..%d", recurrence.MaxOccurrencesPerCall))
	}
	if c.Sweep.Workers <= 0 {
		problems = append(problems, "LEDGER_SWEEP_WORKERS must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}
	return parsed, nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("invalid boolean value for %s: %s", key, value)
	}
	return parsed, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
