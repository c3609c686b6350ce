package webhook

import (
	"fmt"
	"net/http"

	"gitevents/internal"
	"gitevents/pkg/storage"

	"github.com/go-chi/render"
	ghhooks "github.com/go-playground/webhooks/v6/github"
	gh "github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
)

// GitHub event types the handler normalizes. Everything else is ignored.
const (
	EventPush        = string(ghhooks.PushEvent)
	EventPullRequest = string(ghhooks.PullRequestEvent)
)

// GitHubHandler handles incoming webhooks from GitHub.
type GitHubHandler struct {
	store          storage.EventStore
	normalizer     *Normalizer
	fanout         *internal.Fanout
	logger         *logrus.Entry
	maxBody        int64
	mergeDetection bool
}

// NewGitHubHandler creates a new GitHubHandler. fanout may be nil when
// publishing is disabled.
func NewGitHubHandler(store storage.EventStore, fanout *internal.Fanout, logger *logrus.Entry, maxBody int64, mergeDetection bool) *GitHubHandler {
	if logger == nil {
		logger = internal.NewLogger("webhook")
	}
	return &GitHubHandler{
		store:          store,
		normalizer:     NewNormalizer(nil),
		fanout:         fanout,
		logger:         logger,
		maxBody:        maxBody,
		mergeDetection: mergeDetection,
	}
}

// ServeHTTP handles an incoming HTTP request.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	eventType := gh.WebHookType(r)
	label := eventLabel(eventType)
	logger := internal.WithRequestID(h.logger, reqID).WithField("event", eventType)

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Errorf("webhook handler panic: %v", recovered)
			internal.IncWebhook(label, internal.OutcomeFailed)
			respondError(w, r, http.StatusInternalServerError, fmt.Sprint(recovered))
		}
	}()

	payload, err := decodePayload(r)
	if err != nil {
		logger.WithError(err).Info("webhook rejected")
		internal.IncWebhook(label, internal.OutcomeRejected)
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result := h.normalize(eventType, payload)
	if !result.Accepted() {
		logger.Debugf("webhook ignored: %s", result.Reason)
		internal.IncWebhook(label, internal.OutcomeIgnored)
		render.JSON(w, r, ignoredResponse{Status: "ignored", EventType: eventType})
		return
	}

	event := *result.Event
	id, err := h.store.AppendEvent(r.Context(), event)
	if err != nil {
		logger.WithError(err).Error("store event failed")
		internal.IncWebhook(label, internal.OutcomeFailed)
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	internal.IncWebhook(label, internal.OutcomeStored)
	internal.IncStored(event.Action)
	logger.WithFields(logrus.Fields{
		"id":        id,
		"action":    event.Action,
		"author":    event.Author,
		"to_branch": event.ToBranch,
	}).Info("event stored")

	h.fanout.Emit(r.Context(), logger, internal.Notification{ID: id, Event: event}, payload)
	render.JSON(w, r, successResponse{Status: "success", ID: id})
}

// normalize routes a payload to the normalizer for its event type. Closed and
// merged pull requests go to the merge normalizer only when merge detection
// is enabled; otherwise the pull request normalizer ignores them.
func (h *GitHubHandler) normalize(eventType string, payload map[string]interface{}) Result {
	switch eventType {
	case EventPush:
		return h.normalizer.Push(payload)
	case EventPullRequest:
		if h.mergeDetection && IsMergedClose(payload) {
			return h.normalizer.Merge(payload)
		}
		return h.normalizer.PullRequest(payload)
	default:
		return reject("event type %q is not normalized", eventType)
	}
}
