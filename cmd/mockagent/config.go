package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the mock agent configuration loaded from environment variables.
type Config struct {
	Port     string
	LogLevel string // debug, info, warn, error

	// Token, when set, is the only bearer token accepted.
	Token string

	// ChunkDelay is the pause between streamed frames.
	ChunkDelay time.Duration
}

// LoadConfig loads configuration from environment variables.
// It loads a .env file if present (silent fail if not found).
func LoadConfig() (*Config, error) {
	godotenv.Load() // Load .env file if present

	cfg := &Config{
		Port:       getEnvOrDefault("MOCKAGENT_PORT", "8000"),
		LogLevel:   getEnvOrDefault("MOCKAGENT_LOG_LEVEL", "info"),
		Token:      os.Getenv("MOCKAGENT_TOKEN"),
		ChunkDelay: getEnvDurationOrDefault("MOCKAGENT_CHUNK_DELAY", 30*time.Millisecond),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("MOCKAGENT_PORT must be a number: %q", c.Port)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ChunkDelay < 0 {
		return fmt.Errorf("MOCKAGENT_CHUNK_DELAY must not be negative")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q (debug, info, warn, error)", s)
	}
	return level, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
