package worker

import (
	"encoding/json"

	"gitevents/internal"
)

// Event represents a notification received by the worker.
type Event struct {
	// Topic is the name of the topic the message was received on.
	Topic string `json:"topic"`
	// Metadata contains message-broker-specific metadata.
	Metadata map[string]string `json:"metadata"`
	// Notification is the stored event the message announces.
	Notification internal.Notification `json:"notification"`
	// Payload is the raw JSON payload of the message.
	Payload json.RawMessage `json:"payload"`
}

// Action is shorthand for the notification's action.
func (e *Event) Action() internal.Action {
	return e.Notification.Action
}
