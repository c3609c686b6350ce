package worker

import (
	"strings"

	"gitevents/internal"
)

// TopicsFromConfig lists every topic the fan-out can publish to: the default
// topic of each action followed by each distinct rule topic.
func TopicsFromConfig(cfg internal.PublishConfig) []string {
	prefix := strings.TrimRight(cfg.TopicPrefix, ".")
	actions := []internal.Action{internal.ActionPush, internal.ActionPullRequest, internal.ActionMerge}

	topics := make([]string, 0, len(actions)+len(cfg.Rules))
	for _, action := range actions {
		if prefix == "" {
			topics = append(topics, string(action))
			continue
		}
		topics = append(topics, prefix+"."+string(action))
	}
	for _, rule := range cfg.Rules {
		if topic := strings.TrimSpace(rule.Emit); topic != "" {
			topics = append(topics, topic)
		}
	}
	return unique(topics)
}
