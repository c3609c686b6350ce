package internal

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Fanout publishes stored events to the default per-action topic and to every
// topic selected by the rule engine. Failures are logged, never returned.
type Fanout struct {
	publisher Publisher
	rules     *RuleEngine
	prefix    string
	logger    *logrus.Entry
	timeout   time.Duration
}

func NewFanout(publisher Publisher, rules *RuleEngine, topicPrefix string, logger *logrus.Entry) *Fanout {
	if logger == nil {
		logger = NewLogger("fanout")
	}
	return &Fanout{
		publisher: publisher,
		rules:     rules,
		prefix:    strings.TrimRight(topicPrefix, "."),
		logger:    logger,
	}
}

// WithTimeout bounds every Emit call. Emit runs inside the webhook request, so
// a stalled broker would otherwise hold the response until the client gives up.
func (f *Fanout) WithTimeout(timeout time.Duration) *Fanout {
	if f != nil {
		f.timeout = timeout
	}
	return f
}

// DefaultTopic is the topic every event of the given action is published to.
func (f *Fanout) DefaultTopic(action Action) string {
	if f.prefix == "" {
		return string(action)
	}
	return f.prefix + "." + string(action)
}

func (f *Fanout) Emit(ctx context.Context, logger *logrus.Entry, note Notification, raw map[string]interface{}) {
	if f == nil || f.publisher == nil {
		return
	}
	if logger == nil {
		logger = f.logger
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	matches := append([]RuleMatch{{Topic: f.DefaultTopic(note.Action)}}, f.rules.Evaluate(note.Event, raw)...)
	for _, match := range matches {
		if err := f.publisher.PublishForDrivers(ctx, match.Topic, note, match.Drivers); err != nil {
			logger.WithError(err).Warnf("publish %s failed", match.Topic)
			continue
		}
		logger.Debugf("published event %s to %s", note.ID, match.Topic)
	}
}
