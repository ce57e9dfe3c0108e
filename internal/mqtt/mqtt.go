// Package mqtt publishes bed state and alarm events to a broker for
// home-automation consumers, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/Katharine/hypnos/internal/state"
)

// TopicState carries retained bed state snapshots.
const TopicState = "bedroom/hypnos/state"

// TopicEvents carries alarm lifecycle events.
const TopicEvents = "bedroom/hypnos/events"

// TopicSystem carries daemon lifecycle events.
const TopicSystem = "bedroom/hypnos/system"

// Publisher publishes engine state to MQTT.
type Publisher interface {
	// PublishState sends a retained bed state snapshot.
	// Returns error if publishing fails (should not crash the process).
	PublishState(at time.Time, s state.State) error

	// PublishEvent sends an alarm lifecycle event.
	PublishEvent(event Event) error

	// PublishSystem sends a daemon lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// EventType identifies an alarm lifecycle event.
type EventType string

const (
	EventAlarmStarted EventType = "ALARM_STARTED"
	EventAlarmStopped EventType = "ALARM_STOPPED"
)

// Event is an alarm lifecycle event with the state at that moment.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     state.State
}

// SystemEvent is a daemon lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // e.g. "STARTUP", "SHUTDOWN"
	Reason    string // e.g. "SIGTERM" (shutdown only)
	Retained  bool
}

// StatePayload is the MQTT message payload for a state snapshot.
type StatePayload struct {
	Bed BedPayload `json:"bed"`
}

// BedPayload contains the bed state details.
type BedPayload struct {
	Timestamp       string `json:"timestamp"`
	Mode            string `json:"mode"`
	Power           bool   `json:"power"`
	RequestedPower  bool   `json:"requested_power"`
	TargetTemp      int    `json:"target_temp"`
	LocalTargetTemp int    `json:"local_target_temp"`
	ActualTemp      int    `json:"actual_temp"`
	NextAlarm       string `json:"next_alarm,omitempty"`
}

// FormatStatePayload creates the JSON payload for a state snapshot.
func FormatStatePayload(at time.Time, s state.State) ([]byte, error) {
	payload := StatePayload{
		Bed: BedPayload{
			Timestamp:       at.UTC().Format(time.RFC3339),
			Mode:            s.Mode.String(),
			Power:           s.BedState,
			RequestedPower:  s.RequestedState,
			TargetTemp:      s.BedTargetTemp,
			LocalTargetTemp: s.LocalTargetTemp,
			ActualTemp:      s.BedActualTemp,
		},
	}
	if s.NextAlarm != nil {
		payload.Bed.NextAlarm = s.NextAlarm.UTC().Format(time.RFC3339)
	}
	return json.Marshal(payload)
}

// EventPayload is the MQTT message payload for an alarm event.
type EventPayload struct {
	Alarm EventPayloadInner `json:"alarm"`
}

// EventPayloadInner contains the alarm event details.
type EventPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Mode      string `json:"mode"`
	NextAlarm string `json:"next_alarm,omitempty"`
}

// FormatEventPayload creates the JSON payload for an alarm event.
func FormatEventPayload(event Event) ([]byte, error) {
	payload := EventPayload{
		Alarm: EventPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Mode:      event.State.Mode.String(),
		},
	}
	if event.State.NextAlarm != nil {
		payload.Alarm.NextAlarm = event.State.NextAlarm.UTC().Format(time.RFC3339)
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message payload for daemon lifecycle events.
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
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
