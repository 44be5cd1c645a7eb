package history

import (
	"context"
	"time"
)

// EventType defines the kind of session lifecycle event.
type EventType string

const (
	EventLaunch  EventType = "launch"
	EventReady   EventType = "ready"
	EventRestart EventType = "restart"
	EventExit    EventType = "exit"
	EventStop    EventType = "stop"
)

// Event represents a session lifecycle event to be exported to external
// systems (audit/analytics).
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	SessionID  string    `json:"session_id"`
	PID        int       `json:"pid"`
	Port       int       `json:"port"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for session history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// NopSink discards all events. Used when no history DSN is configured.
type NopSink struct{}

func (NopSink) Send(context.Context, Event) error { return nil }
