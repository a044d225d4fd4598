package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/accord-labs/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}, discardLogger()); err == nil {
		t.Fatal("NewClient accepted empty URL")
	}

	c, err := NewClient(Config{URL: "http://analyzer.local/analyze"}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.cfg.RequestTimeout != DefaultConfig().RequestTimeout {
		t.Errorf("timeout = %v, want default %v", c.cfg.RequestTimeout, DefaultConfig().RequestTimeout)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"severity":              "Significant",
			"suggested_share_focus": "  the missed dinner  ",
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	result, err := c.Analyze(context.Background(), Request{
		GuesserAttemptText:      "you were just tired",
		SubjectExpressedContent: "I felt forgotten",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Severity != domain.SeveritySignificant {
		t.Errorf("severity = %s, want significant (case-insensitive)", result.Severity)
	}
	if result.SuggestedShareFocus != "the missed dinner" {
		t.Errorf("focus = %q, want trimmed text", result.SuggestedShareFocus)
	}
	if gotReq.GuesserAttemptText != "you were just tired" {
		t.Errorf("service received %+v", gotReq)
	}
}

func TestAnalyzeRetriesOnceOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"severity": "none"})
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	result, err := c.Analyze(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Severity != domain.SeverityNone {
		t.Errorf("severity = %s, want none", result.Severity)
	}
	if calls.Load() != 2 {
		t.Errorf("service calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestAnalyzeGivesUpAfterRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c.Analyze(context.Background(), Request{}); err == nil {
		t.Fatal("Analyze succeeded against a failing service")
	}
	if calls.Load() != 2 {
		t.Errorf("service calls = %d, want exactly 2", calls.Load())
	}
}

func TestAnalyzeNoRetryAfterContextCancel(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		<-release
	}))
	defer srv.Close()
	// Unpark the handler before the deferred Close waits on it.
	defer close(release)

	c, err := NewClient(Config{URL: srv.URL, RequestTimeout: time.Minute}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := c.Analyze(ctx, Request{}); err == nil {
		t.Fatal("Analyze succeeded past its deadline")
	}
	if calls.Load() != 1 {
		t.Errorf("service calls = %d, want 1 (no retry on expired context)", calls.Load())
	}
}

func TestAnalyzeRejectsUnknownSeverity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"severity": "catastrophic"})
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c.Analyze(context.Background(), Request{}); !errors.Is(err, errInvalidSeverity) {
		t.Fatalf("err = %v, want invalid severity", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.Severity
		wantErr bool
	}{
		{"none", domain.SeverityNone, false},
		{"MODERATE", domain.SeverityModerate, false},
		{" significant ", domain.SeveritySignificant, false},
		{"", "", true},
		{"mild", "", true},
	}
	for _, tt := range tests {
		got, err := normalize(tt.in, "")
		if tt.wantErr {
			if err == nil {
				t.Errorf("normalize(%q) accepted", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalize(%q): %v", tt.in, err)
			continue
		}
		if got.Severity != tt.want {
			t.Errorf("normalize(%q) = %s, want %s", tt.in, got.Severity, tt.want)
		}
	}
}
