package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GAP_ANALYZER_URL", "http://analyzer.local/analyze")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DBPath != "./data/accord.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.AnalyzerTimeout != 5*time.Second {
		t.Errorf("AnalyzerTimeout = %v, want 5s", cfg.AnalyzerTimeout)
	}
	if !cfg.AuditLog.Enabled || cfg.AuditLog.QueueSize != 1000 {
		t.Errorf("AuditLog = %+v", cfg.AuditLog)
	}
	if cfg.AuditLog.GlobalEnabled {
		t.Error("global audit log enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("GAP_ANALYZER_TIMEOUT_MS", "1500")
	t.Setenv("AUDIT_LOG_ENABLED", "off")
	t.Setenv("AUDIT_LOG_QUEUE_SIZE", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.AnalyzerTimeout != 1500*time.Millisecond {
		t.Errorf("AnalyzerTimeout = %v, want 1.5s", cfg.AnalyzerTimeout)
	}
	if cfg.AuditLog.Enabled {
		t.Error("AUDIT_LOG_ENABLED=off not honored")
	}
	if cfg.AuditLog.QueueSize != 50 {
		t.Errorf("QueueSize = %d, want 50", cfg.AuditLog.QueueSize)
	}
}

func TestLoadRequiresAnalyzerURL(t *testing.T) {
	t.Setenv("GAP_ANALYZER_URL", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "GAP_ANALYZER_URL") {
		t.Fatalf("Load without analyzer URL: err = %v", err)
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:3000", true},
		{"https://accord.example.com", false},
	}
	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.frontendURL}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.frontendURL, got, tt.want)
		}
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !getEnvBool("TEST_BOOL", false) {
		t.Error("yes not parsed as true")
	}
	t.Setenv("TEST_BOOL", "garbage")
	if !getEnvBool("TEST_BOOL", true) {
		t.Error("unparseable value should fall back")
	}
}
