// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	GapAnalyzerURL  string
	AnalyzerTimeout time.Duration
	AuditLog        AuditLogConfig
}

// AuditLogConfig controls NDJSON reconciler decision logging.
type AuditLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("AUDIT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	analyzerTimeout := time.Duration(getEnvInt("GAP_ANALYZER_TIMEOUT_MS", 5000)) * time.Millisecond

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/accord.db"),
		GapAnalyzerURL:  getEnv("GAP_ANALYZER_URL", ""),
		AnalyzerTimeout: analyzerTimeout,
		AuditLog: AuditLogConfig{
			Enabled:       getEnvBool("AUDIT_LOG_ENABLED", true),
			Dir:           getEnv("AUDIT_LOG_DIR", "./data/logs/audit"),
			GlobalEnabled: getEnvBool("AUDIT_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("AUDIT_LOG_GLOBAL_PATH", "./data/logs/audit/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.GapAnalyzerURL == "" {
		return fmt.Errorf("GAP_ANALYZER_URL cannot be empty")
	}
	if c.AnalyzerTimeout <= 0 {
		return fmt.Errorf("GAP_ANALYZER_TIMEOUT_MS must be > 0")
	}
	if c.AuditLog.Dir == "" {
		return fmt.Errorf("AUDIT_LOG_DIR cannot be empty")
	}
	if c.AuditLog.GlobalPath == "" {
		return fmt.Errorf("AUDIT_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.AuditLog.QueueSize <= 0 {
		return fmt.Errorf("AUDIT_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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
