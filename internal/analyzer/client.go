// Package analyzer wraps the external gap-analysis service.
//
// The service compares a guesser's empathy attempt against the subject's
// expressed perspective and returns a three-valued severity verdict. The
// adapter only shapes the request and normalizes the response; it never
// interprets the text itself.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/accord-labs/internal/domain"
)

var (
	errServiceStatus   = errors.New("gap analysis service returned error status")
	errInvalidSeverity = errors.New("gap analysis response has invalid severity")
)

// Request is the input to one gap analysis.
type Request struct {
	GuesserAttemptText      string `json:"guesser_attempt_text"`
	SubjectExpressedContent string `json:"subject_expressed_content"`
}

// Result is the normalized verdict of one gap analysis.
type Result struct {
	Severity            domain.Severity `json:"severity"`
	SuggestedShareFocus string          `json:"suggested_share_focus,omitempty"`
}

// Analyzer is the interface consumed by the reconciliation engine.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// Config holds configuration for the gap analysis client.
type Config struct {
	URL            string
	RequestTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 5 * time.Second,
	}
}

// Client is an HTTP client to the gap analysis service.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a gap analysis client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("gap analyzer URL is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}, nil
}

// Analyze performs one gap analysis with a bounded timeout. The call is
// retried at most once on transport errors or 5xx responses; the service is
// idempotent-safe for a single retry.
func (c *Client) Analyze(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal gap analysis request: %w", err)
	}

	result, err := c.analyzeOnce(ctx, body)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	c.logger.Warn("gap analysis call failed, retrying once", "error", err)
	result, retryErr := c.analyzeOnce(ctx, body)
	if retryErr != nil {
		return nil, fmt.Errorf("gap analysis failed after retry: %w", retryErr)
	}
	return result, nil
}

func (c *Client) analyzeOnce(ctx context.Context, body []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gap analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gap analysis request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close gap analysis response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d", errServiceStatus, resp.StatusCode)
	}

	var raw struct {
		Severity            string `json:"severity"`
		SuggestedShareFocus string `json:"suggested_share_focus"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode gap analysis response: %w", err)
	}

	return normalize(raw.Severity, raw.SuggestedShareFocus)
}

// normalize maps the service response onto the closed severity enum. Unknown
// severities are an error; the engine decides what failure means.
func normalize(severity, focus string) (*Result, error) {
	sev := domain.Severity(strings.ToLower(strings.TrimSpace(severity)))
	if !sev.Valid() {
		return nil, fmt.Errorf("%w: %q", errInvalidSeverity, severity)
	}
	return &Result{
		Severity:            sev,
		SuggestedShareFocus: strings.TrimSpace(focus),
	}, nil
}
