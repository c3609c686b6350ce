package internal

import "time"

// Action is the normalized kind of a stored event.
type Action string

const (
	ActionPush        Action = "push"
	ActionPullRequest Action = "pull_request"
	ActionMerge       Action = "merge"
)

// Event is the canonical record produced from an accepted webhook.
type Event struct {
	Action     Action    `json:"action"`
	Author     string    `json:"author"`
	FromBranch *string   `json:"from_branch"`
	ToBranch   string    `json:"to_branch"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// Notification is what gets published once an event has been stored.
type Notification struct {
	ID string `json:"id"`
	Event
}

// Fields exposes the canonical event as rule parameters.
func (e Event) Fields() map[string]interface{} {
	from := ""
	if e.FromBranch != nil {
		from = *e.FromBranch
	}
	return map[string]interface{}{
		"action":      string(e.Action),
		"author":      e.Author,
		"from_branch": from,
		"to_branch":   e.ToBranch,
		"request_id":  e.RequestID,
	}
}
