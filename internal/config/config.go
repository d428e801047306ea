// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	APIURL       string
	ParamPrefix  string // if set, the API URL is read from SSM
	HTTPTimeout  time.Duration
	MaxRetries   int
	ArchiveTable string // empty disables the DynamoDB archive
	LogLevel     string
	MetricsAddr  string // empty disables the metrics endpoint
}

// LoadDotEnv seeds the environment from the given files, or ".env" when none
// are named. A missing file is not an error; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	present := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("config: load %s: %w", strings.Join(present, ", "), err)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	timeout, err := getEnvDuration("TRIAGE_HTTP_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:       getEnv("TRIAGE_API_URL", "http://localhost:8000"),
		ParamPrefix:  getEnv("TRIAGE_PARAM_PREFIX", ""),
		HTTPTimeout:  timeout,
		MaxRetries:   getEnvInt("TRIAGE_MAX_RETRIES", 3),
		ArchiveTable: getEnv("TRIAGE_ARCHIVE_TABLE", ""),
		LogLevel:     getEnv("TRIAGE_LOG_LEVEL", "info"),
		MetricsAddr:  getEnv("TRIAGE_METRICS_ADDR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ParamPrefix == "" {
		if c.APIURL == "" {
			return errors.New("TRIAGE_API_URL cannot be empty")
		}
		u, err := url.Parse(c.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("TRIAGE_API_URL must be an http(s) URL, got %q", c.APIURL)
		}
	} else if !strings.HasPrefix(c.ParamPrefix, "/") {
		return fmt.Errorf("TRIAGE_PARAM_PREFIX must start with '/', got %q", c.ParamPrefix)
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("TRIAGE_HTTP_TIMEOUT must be > 0")
	}
	if c.MaxRetries < 0 {
		return errors.New("TRIAGE_MAX_RETRIES must be >= 0")
	}
	return nil
}

// UsesAWS reports whether any AWS-backed feature is enabled.
func (c *Config) UsesAWS() bool {
	return c.ParamPrefix != "" || c.ArchiveTable != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	value = strings.TrimSpace(value)
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}
