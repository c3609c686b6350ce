package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gitevents/internal"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

func testNotification() internal.Notification {
	return internal.Notification{
		ID: "0190f1c2-0000-7000-8000-000000000001",
		Event: internal.Event{
			Action:    internal.ActionPush,
			Author:    "alice",
			ToBranch:  "main",
			Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			RequestID: "abc123",
		},
	}
}

func TestWorkerReceivesFanoutNotifications(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	defer pubsub.Close()

	internal.RegisterPublisherDriver("worker-e2e", func(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
		return pubsub, nil, nil
	})
	publisher, err := internal.NewPublisher(internal.WatermillConfig{Driver: "worker-e2e"}, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}

	rules := []internal.Rule{{When: `to_branch == "main"`, Emit: "branches.main"}}
	engine, err := internal.NewRuleEngine(rules, nil)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	fanout := internal.NewFanout(publisher, engine, "gitevents", nil)
	fanout.Emit(context.Background(), nil, testNotification(), map[string]interface{}{})

	topics := TopicsFromConfig(internal.PublishConfig{TopicPrefix: "gitevents", Rules: rules})
	w := New(WithSubscriber(pubsub), WithTopics(topics...), WithConcurrency(2))

	received := make(chan *Event, 4)
	w.HandleAction(internal.ActionPush, func(ctx context.Context, evt *Event) error {
		received <- evt
		return nil
	})
	w.HandleTopic("branches.main", func(ctx context.Context, evt *Event) error {
		received <- evt
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	got := map[string]*Event{}
	for len(got) < 2 {
		select {
		case evt := <-received:
			got[evt.Topic] = evt
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, received %v", got)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	push, ok := got["gitevents.push"]
	if !ok {
		t.Fatalf("expected notification on gitevents.push, got %v", got)
	}
	if push.Notification.ID != testNotification().ID || push.Notification.Author != "alice" {
		t.Fatalf("unexpected notification: %+v", push.Notification)
	}
	if push.Metadata["request_id"] != "abc123" {
		t.Fatalf("expected request_id metadata, got %v", push.Metadata)
	}
	if _, ok := got["branches.main"]; !ok {
		t.Fatalf("expected rule topic delivery, got %v", got)
	}
}

func TestRunRequiresSubscriberAndTopics(t *testing.T) {
	if err := New().Run(context.Background()); err == nil {
		t.Fatalf("expected error without subscriber")
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubsub.Close()
	if err := New(WithSubscriber(pubsub)).Run(context.Background()); err == nil {
		t.Fatalf("expected error without topics")
	}
}

func TestDefaultCodecFallsBackToMetadata(t *testing.T) {
	msg := message.NewMessage("m1", []byte(`{"author":"alice","to_branch":"main"}`))
	msg.Metadata.Set("event_id", "e1")
	msg.Metadata.Set("action", "merge")

	evt, err := DefaultCodec{}.Decode("gitevents.merge", msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Notification.ID != "e1" || evt.Action() != internal.ActionMerge {
		t.Fatalf("expected metadata fallbacks, got %+v", evt.Notification)
	}
	if evt.Topic != "gitevents.merge" || evt.Metadata["event_id"] != "e1" {
		t.Fatalf("unexpected event: %+v", evt)
	}

	if _, err := (DefaultCodec{}).Decode("t", message.NewMessage("m2", []byte(`{"author":"alice"}`))); err == nil {
		t.Fatalf("expected error without id or action")
	}
	if _, err := (DefaultCodec{}).Decode("t", message.NewMessage("m3", []byte(`not json`))); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestHandlerPrecedence(t *testing.T) {
	var called string
	mark := func(name string) Handler {
		return func(ctx context.Context, evt *Event) error {
			called = name
			return nil
		}
	}

	w := New(WithFallback(mark("fallback")))
	w.HandleTopic("special", mark("topic"))
	w.HandleAction(internal.ActionMerge, mark("action"))

	cases := []struct {
		topic  string
		action internal.Action
		want   string
	}{
		{"special", internal.ActionMerge, "topic"},
		{"other", internal.ActionMerge, "action"},
		{"other", internal.ActionPush, "fallback"},
	}
	for _, tc := range cases {
		called = ""
		if err := w.handlerFor(tc.topic, tc.action)(context.Background(), &Event{}); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if called != tc.want {
			t.Fatalf("topic=%s action=%s: expected %s, got %s", tc.topic, tc.action, tc.want, called)
		}
	}

	if New().handlerFor("other", internal.ActionPush) != nil {
		t.Fatalf("expected no handler without fallback")
	}
}

func TestHandleTopicIgnoresUnsubscribedTopic(t *testing.T) {
	w := New(WithTopics("gitevents.push"))
	w.HandleTopic("gitevents.merge", func(ctx context.Context, evt *Event) error { return nil })
	if _, ok := w.topicHandlers["gitevents.merge"]; ok {
		t.Fatalf("expected handler for unsubscribed topic to be ignored")
	}
}

func TestSettleFollowsRetryPolicy(t *testing.T) {
	failure := errors.New("boom")

	msg := message.NewMessage("m1", nil)
	New(WithRetry(Drop{})).settle(context.Background(), msg, nil, failure)
	select {
	case <-msg.Acked():
	default:
		t.Fatalf("expected Drop to ack")
	}

	msg = message.NewMessage("m2", nil)
	New().settle(context.Background(), msg, nil, failure)
	select {
	case <-msg.Nacked():
	default:
		t.Fatalf("expected NoRetry to nack")
	}
}

func TestRecovererMiddlewareTurnsPanicIntoError(t *testing.T) {
	var finished error
	w := New(
		WithRetry(Drop{}),
		WithMiddleware(MiddlewareFromWatermill(middleware.Recoverer)),
		WithListener(Listener{
			OnMessageFinish: func(ctx context.Context, evt *Event, err error) {
				finished = err
			},
		}),
	)
	w.HandleAction(internal.ActionPush, func(ctx context.Context, evt *Event) error {
		panic("handler exploded")
	})

	payload := []byte(`{"id":"e1","action":"push","author":"alice"}`)
	msg := message.NewMessage("m1", payload)
	w.handleMessage(context.Background(), "gitevents.push", msg)

	var recovered middleware.RecoveredPanicError
	if !errors.As(finished, &recovered) {
		t.Fatalf("expected recovered panic error, got %v", finished)
	}
	select {
	case <-msg.Acked():
	default:
		t.Fatalf("expected message to be acked under Drop")
	}
}

func TestHandleMessageAcksWhenNoHandler(t *testing.T) {
	w := New()
	msg := message.NewMessage("m1", []byte(`{"id":"e1","action":"push"}`))
	w.handleMessage(context.Background(), "gitevents.push", msg)
	select {
	case <-msg.Acked():
	default:
		t.Fatalf("expected unhandled notification to be acked")
	}
}

func TestListenerSeesDecodeErrors(t *testing.T) {
	var (
		mu     sync.Mutex
		errs   []error
		events []*Event
	)
	w := New(WithRetry(Drop{}), WithListener(Listener{
		OnError: func(ctx context.Context, evt *Event, err error) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
			events = append(events, evt)
		},
	}))

	msg := message.NewMessage("m1", []byte(`[]`))
	w.handleMessage(context.Background(), "gitevents.push", msg)

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || events[0] != nil {
		t.Fatalf("expected one decode error without event, got %v", errs)
	}
}
