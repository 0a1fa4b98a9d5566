// Package events defines the controller's published events and the sink interface.
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/fridge-controller/internal/logic"
)

// Type identifies an event.
type Type string

const (
	TypeStartup    Type = "STARTUP"
	TypeShutdown   Type = "SHUTDOWN"
	TypeHeartbeat  Type = "HEARTBEAT"
	TypeTick       Type = "TICK"
	TypeModeChange Type = "MODE_CHANGE"
	TypeCommand    Type = "COMMAND"
)

// Event is a single controller occurrence.
type Event struct {
	ID        string
	Type      Type
	Timestamp time.Time

	Mode     logic.Mode
	PrevMode logic.Mode // MODE_CHANGE only
	Action   logic.Action

	// TempC is nil when no reading was available.
	TempC     *float64
	FromCache bool

	// Power is "ON" or "OFF" for COMMAND events.
	Power  string
	Reason string
	Error  string

	// Retained asks brokers that support it to keep the last copy.
	Retained bool
}

// New creates an event with a fresh id.
func New(t Type, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: now,
	}
}

// Publisher sends events to a sink.
type Publisher interface {
	// Publish sends one event. A failure must not stop the controller.
	Publish(event Event) error

	// Close flushes and releases the sink.
	Close() error
}

// ConnectionStatus reports whether a sink's connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// Payload is the JSON wire shape.
type Payload struct {
	Fridge FridgePayload `json:"fridge"`
}

// FridgePayload contains the event details.
type FridgePayload struct {
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	Mode      string   `json:"mode,omitempty"`
	PrevMode  string   `json:"prev_mode,omitempty"`
	Action    string   `json:"action,omitempty"`
	TempC     *float64 `json:"temp_c,omitempty"`
	FromCache bool     `json:"from_cache,omitempty"`
	Power     string   `json:"power,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for an event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Fridge: FridgePayload{
			ID:        event.ID,
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Mode:      string(event.Mode),
			PrevMode:  string(event.PrevMode),
			Action:    string(event.Action),
			TempC:     event.TempC,
			FromCache: event.FromCache,
			Power:     event.Power,
			Reason:    event.Reason,
			Error:     event.Error,
		},
	}
	return json.Marshal(payload)
}

// Multi fans an event out to several publishers.
type Multi []Publisher

// Publish sends to every publisher, even when some fail.
func (m Multi) Publish(event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsConnected is true when every publisher that reports a connection is connected.
func (m Multi) IsConnected() bool {
	for _, p := range m {
		if cs, ok := p.(ConnectionStatus); ok && !cs.IsConnected() {
			return false
		}
	}
	return true
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) error { return nil }
func (Nop) Close() error        { return nil }
