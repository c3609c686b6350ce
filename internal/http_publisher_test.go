package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
)

func TestHTTPPublisherPostsNotification(t *testing.T) {
	var (
		mu       sync.Mutex
		paths    []string
		body     []byte
		metadata map[string]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		_ = json.Unmarshal([]byte(r.Header.Get(wmhttp.HeaderMetadata)), &metadata)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	pub, err := NewPublisher(WatermillConfig{
		Driver: "http",
		HTTP:   HTTPConfig{Mode: "base_url", BaseURL: server.URL + "/hooks/"},
	}, nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer pub.Close()

	if err := pub.Publish(context.Background(), "gitevents.pull_request", sampleNotification()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || paths[0] != "/hooks/gitevents.pull_request" {
		t.Fatalf("unexpected request paths %v", paths)
	}
	var decoded Notification
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.ID != sampleNotification().ID || decoded.Author != "bob" {
		t.Fatalf("unexpected body %s", body)
	}
	if metadata["event_id"] != sampleNotification().ID || metadata["action"] != "pull_request" {
		t.Fatalf("unexpected metadata %v", metadata)
	}
}

func TestHTTPPublisherRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	pub, err := newHTTPPublisher(HTTPConfig{Mode: "topic_url"}, nil)
	if err != nil {
		t.Fatalf("new http publisher: %v", err)
	}
	wrapped := &watermillPublisher{publisher: pub}
	if err := wrapped.Publish(context.Background(), server.URL, sampleNotification()); err == nil {
		t.Fatalf("expected error for 400 response")
	}

	_ = wrapped.Close()
	if err := wrapped.Publish(context.Background(), server.URL, sampleNotification()); err == nil {
		t.Fatalf("expected error after close")
	}
}

func TestHTTPPublisherConfigValidation(t *testing.T) {
	if _, err := newHTTPPublisher(HTTPConfig{Mode: "queue"}, nil); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if _, err := newHTTPPublisher(HTTPConfig{Mode: "base_url"}, nil); err == nil {
		t.Fatalf("expected error for missing base url")
	}
	if _, err := newHTTPPublisher(HTTPConfig{Mode: "topic_url", MaxRetries: -1}, nil); err == nil {
		t.Fatalf("expected error for negative retries")
	}
}

func TestNATSPublisherRequiresURL(t *testing.T) {
	if _, err := newNATSPublisher(NATSConfig{}, nil); err == nil {
		t.Fatalf("expected error for missing url")
	}
}
