package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitevents/pkg/storage"
)

// TimestampLayout renders display timestamps with microseconds and a numeric offset.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// EventView is one event as returned by /api/events.
type EventView struct {
	ID         string  `json:"_id"`
	Action     string  `json:"action"`
	Author     string  `json:"author"`
	FromBranch *string `json:"from_branch"`
	ToBranch   string  `json:"to_branch"`
	Timestamp  string  `json:"timestamp"`
	RequestID  string  `json:"request_id"`
}

// RecentEvents lists the events stored within a trailing time window,
// newest first, with timestamps converted to a display timezone.
type RecentEvents struct {
	Store    storage.EventStore
	Window   time.Duration
	Location *time.Location
	Now      func() time.Time
}

func (q *RecentEvents) List(ctx context.Context) ([]EventView, error) {
	if q == nil || q.Store == nil {
		return nil, errors.New("event store is not configured")
	}
	now := time.Now
	if q.Now != nil {
		now = q.Now
	}
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}

	since := now().UTC().Add(-q.Window)
	records, err := q.Store.ListEventsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list events since %s: %w", since.Format(time.RFC3339), err)
	}

	views := make([]EventView, 0, len(records))
	for _, record := range records {
		views = append(views, EventView{
			ID:         record.ID,
			Action:     string(record.Action),
			Author:     record.Author,
			FromBranch: record.FromBranch,
			ToBranch:   record.ToBranch,
			Timestamp:  record.Timestamp.In(loc).Format(TimestampLayout),
			RequestID:  record.RequestID,
		})
	}
	return views, nil
}
