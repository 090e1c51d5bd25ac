// Package audit records operational events that are not verdicts:
// config reloads, cooling bypasses, ledger fail-stops. These are
// observability records, not part of the hash-chained verdict ledger.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of the audit event.
type EventType string

const (
	EventSystem   EventType = "SYSTEM"
	EventConfig   EventType = "CONFIG"
	EventBypass   EventType = "BYPASS"
	EventFailStop EventType = "FAIL_STOP"
)

// Event represents a structured audit record.
type Event struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Type      EventType      `json:"type"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Logger defines the interface for recording audit events.
type Logger interface {
	Record(ctx context.Context, eventType EventType, actor, action, resource string, metadata map[string]any) error
}

type logger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w}
}

func (l *logger) Record(ctx context.Context, eventType EventType, actor, action, resource string, metadata map[string]any) error {
	if actor == "" {
		actor = "system"
	}
	event := Event{
		ID:        uuid.New().String(),
		Actor:     actor,
		Type:      eventType,
		Action:    action,
		Resource:  resource,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with AUDIT: for easy filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}

// Nop returns a Logger that discards events.
func Nop() Logger {
	return &logger{writer: io.Discard}
}
