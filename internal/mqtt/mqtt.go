// Package mqtt publishes clock sync events with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ntp-clock/internal/logic"
)

// Topic is the MQTT topic for sync outcome events.
const Topic = "clock/ntp/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "clock/ntp/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a sync event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event SyncEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SyncEvent is a sync outcome together with the time state it produced.
type SyncEvent struct {
	Outcome logic.Outcome
	State   logic.TimeState
	Server  string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message payload for sync events.
type Payload struct {
	Clock ClockPayload `json:"clock"`
}

// ClockPayload contains the sync event details.
type ClockPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Server    string `json:"server,omitempty"`
	Synced    bool   `json:"synced"`
	Epoch     uint64 `json:"epoch"`
	Local     string `json:"local"`
	Weekday   int    `json:"weekday"`
}

// FormatPayload creates the JSON payload for a sync event.
// The timestamp is the clock's own UTC time, not the host's.
func FormatPayload(event SyncEvent) ([]byte, error) {
	payload := Payload{
		Clock: ClockPayload{
			Timestamp: EpochTime(event.State.Epoch).Format(time.RFC3339),
			Event:     string(event.Outcome),
			Server:    event.Server,
			Synced:    event.State.Synced,
			Epoch:     event.State.Epoch,
			Local:     event.State.Calendar.String(),
			Weekday:   event.State.Weekday,
		},
	}
	return json.Marshal(payload)
}

// EpochTime converts clock epoch seconds to a UTC time.Time.
func EpochTime(epoch uint64) time.Time {
	return time.Unix(int64(epoch), 0).UTC()
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
