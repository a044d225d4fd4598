// Package audit records reconciler decisions as NDJSON for later review.
// One file per session plus an optional global stream. Writes are
// asynchronous and lossy under backpressure; the audit trail is an
// observability aid, not a system of record.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one audited reconciler decision.
type Event struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Direction string `json:"direction"`
	EventType string `json:"event_type"`
	Attempt   int    `json:"attempt,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Action    string `json:"action,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Event types recorded by the engine.
const (
	EventPassCompleted  = "pass_completed"
	EventBreakerTripped = "breaker_tripped"
	EventAnalyzerError  = "analyzer_error"
	EventOfferResolved  = "offer_resolved"
	EventContextShared  = "context_shared"
	EventFeedback       = "validation_feedback"
)

// Logger is the audit sink consumed by the engine.
type Logger interface {
	// Log enqueues an event. Never blocks; drops under backpressure.
	Log(event Event)
	// Close flushes pending events and releases resources.
	Close() error
}

// Config controls the NDJSON audit logger.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// NewLogger creates an audit logger. Returns a no-op logger when disabled.
func NewLogger(cfg Config, logger *slog.Logger) (Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return noopLogger{}, nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global audit log directory: %w", err)
		}
	}

	l := &ndjsonLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

type noopLogger struct{}

func (noopLogger) Log(Event)    {}
func (noopLogger) Close() error { return nil }

type ndjsonLogger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}

	closeOnce sync.Once
	dropped   int
	droppedMu sync.Mutex
}

// Log enqueues an event, dropping it if the queue is full.
func (l *ndjsonLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	select {
	case l.queue <- event:
	default:
		l.droppedMu.Lock()
		l.dropped++
		n := l.dropped
		l.droppedMu.Unlock()
		if n%100 == 1 {
			l.logger.Warn("audit log queue full, dropping events", "dropped_total", n)
		}
	}
}

// Close flushes the queue and stops the writer goroutine.
func (l *ndjsonLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.queue)
	})
	<-l.done
	return nil
}

func (l *ndjsonLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		l.write(event)
	}
}

func (l *ndjsonLogger) write(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal audit event", "error", err)
		return
	}
	line = append(line, '\n')

	path := filepath.Join(l.cfg.Dir, sanitizeFilename(event.SessionID)+".ndjson")
	if err := appendFile(path, line); err != nil {
		l.logger.Warn("failed to write audit log", "path", path, "error", err)
	}

	if l.cfg.GlobalEnabled {
		if err := appendFile(l.cfg.GlobalPath, line); err != nil {
			l.logger.Warn("failed to write global audit log", "path", l.cfg.GlobalPath, "error", err)
		}
	}
}

func appendFile(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = f.Write(line)
	return err
}

func sanitizeFilename(name string) string {
	if name == "" {
		return "unknown"
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
