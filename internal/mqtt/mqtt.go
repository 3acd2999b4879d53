// Package mqtt publishes corrected light readings and daemon lifecycle
// events, with a fake for tests.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/als-corrector/internal/correction"
)

// Topic is the MQTT topic for corrected readings.
const Topic = "sensors/als/corrected"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "sensors/als/system"

// Publisher publishes readings to MQTT.
type Publisher interface {
	// Publish sends a corrected reading to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(r Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Reading is one Corrected outcome of the engine.
type Reading struct {
	Timestamp time.Time
	Lux       float64
	Raw       float64
	Reason    correction.Reason
}

// SystemEvent represents a system lifecycle event (STARTUP, SHUTDOWN, HEARTBEAT).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the MQTT message for a corrected reading.
type Payload struct {
	ALS ALSPayload `json:"als"`
}

// ALSPayload contains the reading details.
type ALSPayload struct {
	Timestamp string  `json:"timestamp"`
	Lux       float64 `json:"lux"`
	Raw       float64 `json:"raw"`
	Reason    string  `json:"reason"`
}

// FormatPayload creates the JSON payload for a reading.
func FormatPayload(r Reading) ([]byte, error) {
	return json.Marshal(Payload{
		ALS: ALSPayload{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
			Lux:       r.Lux,
			Raw:       r.Raw,
			Reason:    string(r.Reason),
		},
	})
}

// SystemPayload is the payload for events without a status snapshot
// (the last will).
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
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
