package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const EventVersion = 1

// Event wraps all feed messages with metadata.
type Event struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	EventID string          `json:"event_id"`
	TaskID  string          `json:"task_id,omitempty"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent creates a new event of the given type for a task.
// The payload is automatically marshaled to JSON.
func NewEvent(eventType, taskID string, payload any) (Event, error) {
	var rawPayload json.RawMessage
	var err error

	if payload != nil {
		rawPayload, err = json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal payload: %w", err)
		}
	}

	return Event{
		V:       EventVersion,
		Type:    eventType,
		EventID: NewEventID(),
		TaskID:  taskID,
		At:      time.Now().UTC(),
		Payload: rawPayload,
	}, nil
}

// DecodePayload unmarshals the event's payload into the provided output struct.
func (e Event) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return errors.New("payload is empty")
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// ValidateBasic performs basic validation on the event.
func (e Event) ValidateBasic() error {
	if e.V != EventVersion {
		return fmt.Errorf("invalid event version: got %d, expected %d", e.V, EventVersion)
	}
	if e.Type == "" {
		return errors.New("type is required")
	}
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	return nil
}

// NewEventID generates a random 16-character hex string for event identification.
func NewEventID() string {
	b := make([]byte, 8) // 8 bytes = 16 hex characters
	if _, err := rand.Read(b); err != nil {
		// Fallback if rand fails (should be extremely rare)
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}
