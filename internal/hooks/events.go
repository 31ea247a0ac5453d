// Event system for the stream server's hooks.
// This file defines the core event types and data structures used by the hook system.
package hooks

import (
	"time"
)

// EventType represents the type of stream lifecycle event that occurred.
type EventType string

const (
	// Connection events
	EventConnectionAccept EventType = "connection_accept"
	EventConnectionClose  EventType = "connection_close"

	// Stream lifecycle events (Registry / LiveStream)
	EventStreamCreated EventType = "stream_created"
	EventStreamRemoved EventType = "stream_removed"

	// Producer/viewer attachment events
	EventProducerAttached EventType = "producer_attached"
	EventProducerDetached EventType = "producer_detached"
	EventViewerAttached   EventType = "viewer_attached"
	EventViewerDetached   EventType = "viewer_detached"
)

// Event represents a single stream lifecycle event that can trigger hooks.
// Hooks only ever see metadata about an event, never chunk payload bytes.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	StreamID  string                 `json:"stream_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]interface{}),
	}
}

// WithSessionID sets the originating session id for the event.
func (e *Event) WithSessionID(sessionID string) *Event {
	e.SessionID = sessionID
	return e
}

// WithStreamID sets the stream id for the event.
func (e *Event) WithStreamID(streamID string) *Event {
	e.StreamID = streamID
	return e
}

// WithData adds data fields to the event.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String returns a human-readable string representation of the event.
func (e *Event) String() string {
	if e.StreamID != "" {
		return string(e.Type) + ":" + e.StreamID
	}
	if e.SessionID != "" {
		return string(e.Type) + ":" + e.SessionID
	}
	return string(e.Type)
}
