// Package config loads the calbridge runtime configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/teemow/calbridge/internal/logging"
	"github.com/teemow/calbridge/internal/provider/caldav"
	"github.com/teemow/calbridge/internal/provider/google"
	"github.com/teemow/calbridge/internal/provider/outlook"
)

// DefaultEnvFile is read by Load when it exists.
const DefaultEnvFile = ".env"

// Config is the static configuration of every backend plus the runtime knobs.
type Config struct {
	Google  google.Config
	Outlook outlook.Config
	CalDAV  caldav.Config

	// ProviderTimeout bounds each backend call.
	ProviderTimeout time.Duration

	LogLevel  string
	LogFormat string

	// MetricsAddr is where the watch command serves /metrics and the probes.
	MetricsAddr string
}

// Load reads the configuration from the environment. Variables from envFile
// are applied first without overriding the process environment; a missing
// envFile is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	timeout, err := getEnvDurationOrDefault("PROVIDER_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	maxRetries, err := getEnvIntOrDefault("GOOGLE_MAX_RETRIES", google.DefaultMaxRetries)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Google: google.Config{
			ClientID:        os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret:    os.Getenv("GOOGLE_CLIENT_SECRET"),
			ApplicationName: os.Getenv("GOOGLE_APPLICATION_NAME"),
			TimeZone:        os.Getenv("GOOGLE_TIME_ZONE"),
			Endpoint:        os.Getenv("GOOGLE_ENDPOINT"),
			MaxRetries:      maxRetries,
		},
		Outlook: outlook.Config{
			ClientID:     os.Getenv("OUTLOOK_CLIENT_ID"),
			ClientSecret: os.Getenv("OUTLOOK_CLIENT_SECRET"),
			TenantID:     os.Getenv("OUTLOOK_TENANT_ID"),
		},
		CalDAV: caldav.Config{
			Endpoint:     os.Getenv("CALDAV_ENDPOINT"),
			CalendarPath: os.Getenv("CALDAV_CALENDAR_PATH"),
			CalendarName: os.Getenv("CALDAV_CALENDAR_NAME"),
		},
		ProviderTimeout: timeout,
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", logging.FormatText),
		MetricsAddr:     getEnvOrDefault("METRICS_ADDR", ":9090"),
	}, nil
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive, got %s", c.ProviderTimeout)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != logging.FormatText && c.LogFormat != logging.FormatJSON {
		return fmt.Errorf("invalid log format %q, must be one of: text, json", c.LogFormat)
	}
	if c.Google.MaxRetries < 0 {
		return fmt.Errorf("invalid GOOGLE_MAX_RETRIES %d: must not be negative", c.Google.MaxRetries)
	}
	if c.Google.TimeZone != "" {
		if _, err := time.LoadLocation(c.Google.TimeZone); err != nil {
			return fmt.Errorf("invalid GOOGLE_TIME_ZONE %q: %w", c.Google.TimeZone, err)
		}
	}
	if c.CalDAV.Endpoint != "" {
		u, err := url.Parse(c.CalDAV.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid CALDAV_ENDPOINT %q: must be an absolute URL", c.CalDAV.Endpoint)
		}
	}
	return nil
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
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

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
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
