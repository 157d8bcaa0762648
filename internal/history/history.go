package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventRestart EventType = "restart"
	EventStop    EventType = "stop"
	EventExit    EventType = "exit"
)

// Record identifies the process instance an event is about.
type Record struct {
	Name       string `json:"name"`
	PID        int    `json:"pid"`
	Command    string `json:"command"`
	PTY        bool   `json:"pty"`
	Diagnostic string `json:"diagnostic,omitempty"` // exit diagnostic for exit events
}

// Event represents a lifecycle event written to the session journal.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Nullable returns a pointer to s, or nil when s is empty.
func Nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
