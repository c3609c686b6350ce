package storage

import (
	"context"
	"time"

	"gitevents/internal"
)

// StoredEvent is a canonical event together with its store-generated id.
type StoredEvent struct {
	ID string
	internal.Event
}

// EventStore is the append-only persistence for canonical events.
// There is deliberately no update or delete.
type EventStore interface {
	// AppendEvent persists the event and returns its generated id.
	AppendEvent(ctx context.Context, event internal.Event) (string, error)
	// ListEventsSince returns events with timestamp >= since, newest first.
	ListEventsSince(ctx context.Context, since time.Time) ([]StoredEvent, error)
	Close() error
}
