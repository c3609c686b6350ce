package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"gitevents/internal"
	"gitevents/pkg/worker"
)

func TestUsesDriver(t *testing.T) {
	cases := []struct {
		cfg  internal.WatermillConfig
		want bool
	}{
		{internal.WatermillConfig{Driver: "gochannel"}, true},
		{internal.WatermillConfig{Driver: "nats"}, false},
		{internal.WatermillConfig{Driver: "nats", Drivers: []string{"http", " GoChannel "}}, true},
		{internal.WatermillConfig{Drivers: []string{"http", "nats"}}, false},
	}
	for i, tc := range cases {
		if got := usesDriver(tc.cfg, "gochannel"); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}

func TestPrintNotificationWritesJSONLines(t *testing.T) {
	var out bytes.Buffer
	handler := printNotification(&out)
	evt := &worker.Event{
		Topic: "gitevents.push",
		Notification: internal.Notification{
			ID:    "e1",
			Event: internal.Event{Action: internal.ActionPush, Author: "alice", ToBranch: "main"},
		},
	}
	if err := handler(context.Background(), evt); err != nil {
		t.Fatalf("handler: %v", err)
	}

	var line notificationLine
	if err := json.Unmarshal(out.Bytes(), &line); err != nil {
		t.Fatalf("decode line %q: %v", out.String(), err)
	}
	if line.Topic != "gitevents.push" || line.Notification.ID != "e1" || line.Notification.Author != "alice" {
		t.Fatalf("unexpected line: %+v", line)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "recent", "listen"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, cmd, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("expected --config flag")
	}
}
