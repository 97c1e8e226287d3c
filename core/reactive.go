package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags what happened to the sensed resource.
type EventType string

const (
	EventCreated EventType = "created"
	EventChanged EventType = "changed"
	EventDeleted EventType = "deleted"
)

// ReactiveEvent is a timestamped, typed observation emitted by a sensor.
// After construction it must be treated as immutable; the payload map is
// copied so later writes by the producer are not visible to consumers.
type ReactiveEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Source    string         `json:"source"`
	Priority  float64        `json:"priority"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewReactiveEvent builds an event with a fresh id and clamped priority.
func NewReactiveEvent(typ EventType, source string, priority float64, payload map[string]any) ReactiveEvent {
	cp := make(map[string]any, len(payload))
	for k, v := range payload {
		cp[k] = v
	}

	return ReactiveEvent{
		ID:        NewID(),
		Type:      typ,
		Source:    source,
		Priority:  ClampPriority(priority),
		Payload:   cp,
		CreatedAt: time.Now().UTC(),
	}
}

// PayloadString returns payload[key] when it is a string.
func (e ReactiveEvent) PayloadString(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// NewID generates a unique identifier for tasks, events, messages and conversations.
func NewID() string { return uuid.NewString() }
