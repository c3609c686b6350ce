package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitevents/pkg/storage/events"
	"gitevents/pkg/webhook"
)

func newTestServer(t *testing.T, metrics bool) *httptest.Server {
	t.Helper()
	store, err := events.Open(events.Config{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "events.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	router := NewRouter(RouterConfig{
		Webhook:        webhook.NewGitHubHandler(store, nil, nil, 1<<20, true),
		Events:         &RecentEvents{Store: store, Window: time.Minute, Location: kolkata},
		MetricsEnabled: metrics,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func postWebhook(t *testing.T, server *httptest.Server, eventType, contentType, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, server.URL+"/webhook", strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if eventType != "" {
		req.Header.Set("X-GitHub-Event", eventType)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, decoded
}

func getEvents(t *testing.T, server *httptest.Server) []map[string]interface{} {
	t.Helper()
	resp, err := http.Get(server.URL + "/api/events")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /api/events, got %d", resp.StatusCode)
	}
	var decoded []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	return decoded
}

// TestPushScenario posts a push and reads it back.
func TestPushScenario(t *testing.T) {
	server := newTestServer(t, false)
	status, body := postWebhook(t, server, "push", "application/json",
		`{"head_commit":{"author":{"name":"alice"},"id":"abc123"},"ref":"refs/heads/main"}`)
	if status != http.StatusOK || body["status"] != "success" || body["id"] == "" {
		t.Fatalf("unexpected response %d %v", status, body)
	}

	list := getEvents(t, server)
	if len(list) != 1 {
		t.Fatalf("expected 1 event, got %d", len(list))
	}
	got := list[0]
	if got["_id"] != body["id"] || got["action"] != "push" || got["author"] != "alice" ||
		got["to_branch"] != "main" || got["from_branch"] != nil || got["request_id"] != "abc123" {
		t.Fatalf("unexpected event %v", got)
	}
	stamp, err := time.Parse(TimestampLayout, got["timestamp"].(string))
	if err != nil {
		t.Fatalf("parse timestamp: %v", err)
	}
	if _, offset := stamp.Zone(); offset != 5*3600+1800 {
		t.Fatalf("expected +05:30 offset, got %d", offset)
	}
	if time.Since(stamp) > time.Minute {
		t.Fatalf("expected a recent timestamp, got %s", stamp)
	}
}

// TestPullRequestScenarios covers opened, closed and unknown events.
func TestPullRequestScenarios(t *testing.T) {
	server := newTestServer(t, false)
	opened := `{"action":"opened","pull_request":{"user":{"login":"bob"},"head":{"ref":"feature"},"base":{"ref":"main"},"id":42}}`

	status, body := postWebhook(t, server, "pull_request", "application/json", opened)
	if status != http.StatusOK || body["status"] != "success" {
		t.Fatalf("opened: unexpected response %d %v", status, body)
	}

	closed := strings.Replace(opened, `"opened"`, `"closed"`, 1)
	status, body = postWebhook(t, server, "pull_request", "application/json", closed)
	if status != http.StatusOK || body["status"] != "ignored" || body["event_type"] != "pull_request" {
		t.Fatalf("closed: unexpected response %d %v", status, body)
	}

	status, body = postWebhook(t, server, "unknown_event", "application/json", `{"hello":"world"}`)
	if status != http.StatusOK || body["status"] != "ignored" || body["event_type"] != "unknown_event" {
		t.Fatalf("unknown: unexpected response %d %v", status, body)
	}

	list := getEvents(t, server)
	if len(list) != 1 {
		t.Fatalf("expected only the opened pull request to be stored, got %v", list)
	}
	got := list[0]
	if got["action"] != "pull_request" || got["author"] != "bob" || got["from_branch"] != "feature" ||
		got["to_branch"] != "main" || got["request_id"] != "42" {
		t.Fatalf("unexpected event %v", got)
	}
}

func TestEmptyBodyScenario(t *testing.T) {
	server := newTestServer(t, false)
	status, body := postWebhook(t, server, "push", "", "")
	if status != http.StatusBadRequest || body["error"] != "No payload received" {
		t.Fatalf("unexpected response %d %v", status, body)
	}
	if list := getEvents(t, server); len(list) != 0 {
		t.Fatalf("expected nothing stored, got %v", list)
	}
}

func TestDuplicateDeliveriesAreStoredTwice(t *testing.T) {
	server := newTestServer(t, false)
	payload := `{"head_commit":{"author":{"name":"alice"},"id":"abc123"},"ref":"refs/heads/main"}`
	_, first := postWebhook(t, server, "push", "application/json", payload)
	_, second := postWebhook(t, server, "push", "application/json", payload)
	if first["id"] == second["id"] {
		t.Fatalf("expected distinct ids")
	}

	list := getEvents(t, server)
	if len(list) != 2 {
		t.Fatalf("expected 2 events, got %d", len(list))
	}
	if list[0]["_id"] != second["id"] {
		t.Fatalf("expected newest first")
	}
}

func TestHealthAndIndex(t *testing.T) {
	server := newTestServer(t, false)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	resp.Body.Close()
	if health["status"] != "healthy" || health["timestamp"] == "" {
		t.Fatalf("unexpected health %v", health)
	}

	resp, err = http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected index response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(server.URL + "/webhook")
	if err != nil {
		t.Fatalf("get webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /webhook, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, true)
	postWebhook(t, server, "push", "application/json",
		`{"head_commit":{"author":{"name":"alice"},"id":"abc123"},"ref":"refs/heads/main"}`)

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(buf.String(), `gitevents_webhooks_total{event="push",outcome="stored"}`) {
		t.Fatalf("expected webhook counter in metrics output")
	}

	disabled := newTestServer(t, false)
	resp, err = http.Get(disabled.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics disabled: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 when metrics are disabled, got %d", resp.StatusCode)
	}
}
