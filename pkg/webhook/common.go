package webhook

import (
	"net/http"

	"github.com/go-chi/render"
	gh "github.com/google/go-github/v57/github"
	"github.com/google/uuid"
)

type successResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

type ignoredResponse struct {
	Status    string `json:"status"`
	EventType string `json:"event_type"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: message})
}

// requestID prefers the GitHub delivery id, then a caller supplied id.
func requestID(r *http.Request) string {
	if id := gh.DeliveryID(r); id != "" {
		return id
	}
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

var knownEventTypes = func() map[string]struct{} {
	types := gh.MessageTypes()
	known := make(map[string]struct{}, len(types))
	for _, name := range types {
		known[name] = struct{}{}
	}
	return known
}()

// eventLabel bounds metric cardinality to event types GitHub actually sends.
func eventLabel(eventType string) string {
	if _, ok := knownEventTypes[eventType]; ok {
		return eventType
	}
	return "unknown"
}
