package api

import (
	"embed"
	"net/http"
	"time"

	"gitevents/internal"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

//go:embed static/index.html
var staticFiles embed.FS

// EventsHandler serves the recent events read path.
type EventsHandler struct {
	Events *RecentEvents
	Logger *logrus.Entry
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	views, err := h.Events.List(r.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.WithError(err).Error("list recent events failed")
		}
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	render.JSON(w, r, views)
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// HealthHandler reports liveness. It does not touch the store.
func HealthHandler(now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, healthResponse{
			Status:    "healthy",
			Timestamp: now().UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
		})
	}
}

// IndexHandler serves the embedded dashboard page.
func IndexHandler() http.HandlerFunc {
	page, err := staticFiles.ReadFile("static/index.html")
	return func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			internal.NewLogger("api").WithError(err).Error("index page missing")
			http.Error(w, "index page missing", http.StatusInternalServerError)
			return
		}
		render.HTML(w, r, string(page))
	}
}
