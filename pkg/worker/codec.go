package worker

import (
	"encoding/json"
	"fmt"

	"gitevents/internal"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Codec is an interface for decoding messages from a message broker into an Event.
type Codec interface {
	// Decode transforms a Watermill message into an Event.
	Decode(topic string, msg *message.Message) (*Event, error)
}

// DefaultCodec decodes the JSON notification published by the fan-out.
type DefaultCodec struct{}

// Decode unmarshals a Watermill message into an Event. The event id and
// action fall back to message metadata when the body omits them.
func (DefaultCodec) Decode(topic string, msg *message.Message) (*Event, error) {
	var note internal.Notification
	if err := json.Unmarshal(msg.Payload, &note); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}

	metadata := make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		metadata[key] = value
	}

	if note.ID == "" {
		note.ID = msg.Metadata.Get("event_id")
	}
	if note.Action == "" {
		note.Action = internal.Action(msg.Metadata.Get("action"))
	}
	if note.ID == "" || note.Action == "" {
		return nil, fmt.Errorf("notification on %s is missing id or action", topic)
	}

	return &Event{
		Topic:        topic,
		Metadata:     metadata,
		Notification: note,
		Payload:      json.RawMessage(msg.Payload),
	}, nil
}
