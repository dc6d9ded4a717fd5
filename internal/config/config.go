package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port            string
	RateLimit       int
	TrustedProxies  []string
	ShutdownTimeout time.Duration

	// Database
	SQLiteDBPath string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	// AMQPQueue is the watcher's queue; empty gives each watcher its own
	// exclusive queue.
	AMQPQueue string

	// Spent cache, Redis when RedisURL is set
	RedisURL      string
	SpentCacheTTL time.Duration

	// Watcher
	BudgetbeeURL      string
	RemoteTimeout     time.Duration
	WarnPercent       int
	FullPercent       int
	ResyncConcurrency int
	RefreshDelay      time.Duration

	// Google Sheets alert log, disabled when the spreadsheet ID is empty
	GoogleSpreadsheetID  string
	GoogleAlertSheetName string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8081"),
		RateLimit:       getEnvInt("RATE_LIMIT", 60),
		TrustedProxies:  getEnvList("TRUSTED_PROXIES"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budgetbee.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budgetbee"),
		AMQPQueue:    getEnv("AMQP_QUEUE", ""),

		RedisURL:      getEnv("REDIS_URL", ""),
		SpentCacheTTL: getEnvDuration("SPENT_CACHE_TTL", 5*time.Minute),

		BudgetbeeURL:      getEnv("BUDGETBEE_URL", "http://localhost:8081"),
		RemoteTimeout:     getEnvDuration("REMOTE_TIMEOUT", 0),
		WarnPercent:       getEnvInt("BUDGET_WARN_PERCENT", 90),
		FullPercent:       getEnvInt("BUDGET_FULL_PERCENT", 100),
		ResyncConcurrency: getEnvInt("RESYNC_CONCURRENCY", 4),
		RefreshDelay:      getEnvDuration("REFRESH_DELAY", 200*time.Millisecond),

		GoogleSpreadsheetID:  getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleAlertSheetName: getEnv("GOOGLE_ALERT_SHEET_NAME", "Budget Alerts"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate checks the settings shared by every binary plus the server's.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimit))
	}
	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	errors = append(errors, c.validateAMQP()...)

	if c.RedisURL != "" {
		if parsedURL, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': %v", c.RedisURL, err))
		} else if parsedURL.Scheme != "redis" && parsedURL.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid Redis URL scheme '%s': must be 'redis' or 'rediss'", parsedURL.Scheme))
		}
	}
	if c.SpentCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid spent cache TTL %v: must be at least 1 second", c.SpentCacheTTL))
	}

	return joinErrors(errors)
}

// ValidateWatcher checks the settings of the budget watcher.
func (c *Config) ValidateWatcher() error {
	var errors []string

	if parsedURL, err := url.Parse(c.BudgetbeeURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid budgetbee URL '%s': %v", c.BudgetbeeURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid budgetbee URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.RemoteTimeout < 0 {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must not be negative", c.RemoteTimeout))
	}

	if c.WarnPercent < 1 || c.WarnPercent > 100 {
		errors = append(errors, fmt.Sprintf("invalid warn threshold %d: must be between 1 and 100", c.WarnPercent))
	}
	if c.FullPercent < c.WarnPercent {
		errors = append(errors, fmt.Sprintf("invalid full threshold %d: must be at least the warn threshold %d", c.FullPercent, c.WarnPercent))
	}

	if c.ResyncConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid resync concurrency %d: must be at least 1", c.ResyncConcurrency))
	} else if c.ResyncConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid resync concurrency %d: must be at most 64", c.ResyncConcurrency))
	}

	if c.RefreshDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid refresh delay %v: must not be negative", c.RefreshDelay))
	} else if c.RefreshDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid refresh delay %v: must be at most 1 minute", c.RefreshDelay))
	}

	errors = append(errors, c.validateAMQP()...)

	if c.GoogleSpreadsheetID != "" && strings.TrimSpace(c.GoogleAlertSheetName) == "" {
		errors = append(errors, "Google alert sheet name is required when a spreadsheet ID is set")
	}

	return joinErrors(errors)
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	return errors
}

func joinErrors(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
