package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spetersoncode/threadline/toolcall"
)

// Config holds the terminal client configuration.
type Config struct {
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`

	// TokenFile is re-read when the backend rejects the current token.
	TokenFile string `yaml:"token_file"`
	Approval string `yaml:"approval"` // auto or manual
	LogLevel string `yaml:"log_level"`

	// DB is the SQLite file for conversations. Empty keeps them in memory.
	DB string `yaml:"db"`

	ContinuationDelay time.Duration `yaml:"continuation_delay"`
	MaxContinuations  int           `yaml:"max_continuations"`
	ApprovalTimeout   time.Duration `yaml:"approval_timeout"`
	StreamTimeout     time.Duration `yaml:"stream_timeout"`
	RetryAttempts     int           `yaml:"retry_attempts"`
}

// LoadConfig builds the configuration from defaults, the YAML file named
// by THREADLINE_CONFIG (if any) and THREADLINE_* environment variables,
// in that order. A .env file is loaded first if present.
func LoadConfig() (*Config, error) {
	godotenv.Load() // Load .env file if present

	cfg := &Config{
		BaseURL:  "http://localhost:8000",
		Approval: toolcall.ModeAuto.String(),
		LogLevel: "warn",
	}

	if path := os.Getenv("THREADLINE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.BaseURL = getEnvOrDefault("THREADLINE_BASE_URL", cfg.BaseURL)
	cfg.Token = getEnvOrDefault("THREADLINE_TOKEN", cfg.Token)
	cfg.TokenFile = getEnvOrDefault("THREADLINE_TOKEN_FILE", cfg.TokenFile)
	cfg.Approval = getEnvOrDefault("THREADLINE_APPROVAL", cfg.Approval)
	cfg.LogLevel = getEnvOrDefault("THREADLINE_LOG_LEVEL", cfg.LogLevel)
	cfg.DB = getEnvOrDefault("THREADLINE_DB", cfg.DB)
	cfg.ContinuationDelay = getEnvDurationOrDefault("THREADLINE_CONTINUATION_DELAY", cfg.ContinuationDelay)
	cfg.MaxContinuations = getEnvIntOrDefault("THREADLINE_MAX_CONTINUATIONS", cfg.MaxContinuations)
	cfg.ApprovalTimeout = getEnvDurationOrDefault("THREADLINE_APPROVAL_TIMEOUT", cfg.ApprovalTimeout)
	cfg.StreamTimeout = getEnvDurationOrDefault("THREADLINE_STREAM_TIMEOUT", cfg.StreamTimeout)
	cfg.RetryAttempts = getEnvIntOrDefault("THREADLINE_RETRY_ATTEMPTS", cfg.RetryAttempts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("THREADLINE_BASE_URL must be an absolute URL: %q", c.BaseURL)
	}
	if _, err := toolcall.ParseMode(c.Approval); err != nil {
		return fmt.Errorf("THREADLINE_APPROVAL: %w", err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxContinuations < 0 {
		return fmt.Errorf("THREADLINE_MAX_CONTINUATIONS must not be negative")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("THREADLINE_RETRY_ATTEMPTS must not be negative")
	}
	if c.ApprovalTimeout < 0 || c.StreamTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Mode returns the parsed approval mode.
func (c *Config) Mode() toolcall.Mode {
	m, _ := toolcall.ParseMode(c.Approval)
	return m
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

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
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
