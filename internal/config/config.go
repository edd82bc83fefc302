// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every runtime knob of the digest service.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `validate:"required"`

	// DataDir holds the SQLite database file.
	DataDir string `validate:"required"`

	LogLevel string `validate:"oneof=debug info warn error"`

	// CalendarAPIURL is the base URL of the paginated events feed.
	CalendarAPIURL string `validate:"required,url"`

	// CalendarAPIKeys maps a rep email to its feed API key. A user's own
	// calendar token takes precedence over this map.
	CalendarAPIKeys map[string]string

	// PersonAPIURL is the base URL of the person lookup service.
	PersonAPIURL string `validate:"required,url"`
	PersonAPIKey string

	// InternalDomain is the organization's email domain. Attendees in it
	// are colleagues and are never enriched.
	InternalDomain string `validate:"required,hostname_rfc1123"`

	// Timezone is used for feed timestamps and "today" when a user has none.
	Timezone string `validate:"required,timezone"`

	// HTTPTimeout bounds every outbound request.
	HTTPTimeout time.Duration `validate:"gt=0"`

	Retry Retry

	// DigestCron is a six-field (with seconds) cron spec for the daily digest.
	DigestCron string `validate:"required"`

	// SyncInterval schedules incremental syncs between digests; zero disables.
	SyncInterval time.Duration `validate:"gte=0"`

	// DigestWorkers bounds how many users are processed in parallel.
	DigestWorkers int `validate:"min=1,max=64"`
}

// Retry is the bounded retry policy applied to feed requests.
type Retry struct {
	MaxAttempts    int           `validate:"min=1,max=10"`
	InitialBackoff time.Duration `validate:"gte=0"`
	MaxBackoff     time.Duration `validate:"gte=0"`
}

// Load reads an optional .env file (or the given files) and the process
// environment, applies defaults and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Addr:           getEnv("ADDR", ":8099"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		CalendarAPIURL: getEnv("CALENDAR_API_URL", "http://localhost:8081"),
		PersonAPIURL:   getEnv("PERSON_API_URL", "http://localhost:8082"),
		PersonAPIKey:   getEnv("PERSON_API_KEY", ""),
		InternalDomain: strings.TrimPrefix(strings.ToLower(getEnv("INTERNAL_DOMAIN", "usergems.com")), "@"),
		Timezone:       getEnv("TIMEZONE", "UTC"),
		DigestCron:     getEnv("DIGEST_CRON", "0 0 8 * * *"),
	}

	keys, err := parseAPIKeys(getEnv("CALENDAR_API_KEYS", ""))
	if err != nil {
		return nil, err
	}
	cfg.CalendarAPIKeys = keys

	if cfg.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Retry.InitialBackoff, err = getDuration("RETRY_INITIAL_BACKOFF", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxBackoff, err = getDuration("RETRY_MAX_BACKOFF", time.Second); err != nil {
		return nil, err
	}
	if cfg.SyncInterval, err = getDuration("SYNC_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxAttempts, err = getInt("RETRY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.DigestWorkers, err = getInt("DIGEST_WORKERS", 4); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("invalid configuration: RETRY_MAX_BACKOFF (%s) is below RETRY_INITIAL_BACKOFF (%s)",
			c.Retry.MaxBackoff, c.Retry.InitialBackoff)
	}
	return nil
}

// Location returns the configured default time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabasePath returns the SQLite file location inside DataDir.
func (c *Config) DatabasePath() string {
	return strings.TrimRight(c.DataDir, "/") + "/meeting-digest.db"
}

// parseAPIKeys parses "email=key,email=key".
func parseAPIKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		email, key, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(email) == "" || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid CALENDAR_API_KEYS entry %q: want email=key", pair)
		}
		keys[strings.ToLower(strings.TrimSpace(email))] = strings.TrimSpace(key)
	}
	return keys, nil
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}
