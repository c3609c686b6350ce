package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gitevents/internal"

	"github.com/PaesslerAG/jsonpath"
)

// Result is the outcome of normalizing one payload: either an Event or the
// reason nothing was produced.
type Result struct {
	Event  *internal.Event
	Reason string
}

func (r Result) Accepted() bool {
	return r.Event != nil
}

func accept(event internal.Event) Result {
	return Result{Event: &event}
}

func reject(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Normalizer maps raw GitHub payloads onto canonical events.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

func (n *Normalizer) stamp() time.Time {
	return n.now().UTC()
}

// Push accepts any push payload carrying a head commit author and a ref.
func (n *Normalizer) Push(payload map[string]interface{}) Result {
	author, err := stringAt(payload, "$.head_commit.author.name")
	if err != nil {
		return reject("push: %v", err)
	}
	ref, err := stringAt(payload, "$.ref")
	if err != nil {
		return reject("push: %v", err)
	}
	commitID, err := stringAt(payload, "$.head_commit.id")
	if err != nil {
		commitID = ""
	}

	return accept(internal.Event{
		Action:    internal.ActionPush,
		Author:    author,
		ToBranch:  branchFromRef(ref),
		Timestamp: n.stamp(),
		RequestID: commitID,
	})
}

// PullRequest accepts only pull requests that were just opened.
func (n *Normalizer) PullRequest(payload map[string]interface{}) Result {
	if action := actionOf(payload); action != "opened" {
		return reject("pull_request: action %q is not opened", action)
	}
	author, err := stringAt(payload, "$.pull_request.user.login")
	if err != nil {
		return reject("pull_request: %v", err)
	}
	return n.pullRequestEvent(internal.ActionPullRequest, author, payload)
}

// Merge accepts pull requests that were closed by merging.
func (n *Normalizer) Merge(payload map[string]interface{}) Result {
	if !IsMergedClose(payload) {
		return reject("merge: pull request was not closed by a merge")
	}
	author, err := stringAt(payload, "$.pull_request.merged_by.login")
	if err != nil {
		return reject("merge: %v", err)
	}
	return n.pullRequestEvent(internal.ActionMerge, author, payload)
}

func (n *Normalizer) pullRequestEvent(action internal.Action, author string, payload map[string]interface{}) Result {
	from, err := stringAt(payload, "$.pull_request.head.ref")
	if err != nil {
		return reject("%s: %v", action, err)
	}
	to, err := stringAt(payload, "$.pull_request.base.ref")
	if err != nil {
		return reject("%s: %v", action, err)
	}
	id, err := idAt(payload, "$.pull_request.id")
	if err != nil {
		return reject("%s: %v", action, err)
	}

	return accept(internal.Event{
		Action:     action,
		Author:     author,
		FromBranch: &from,
		ToBranch:   to,
		Timestamp:  n.stamp(),
		RequestID:  id,
	})
}

// IsMergedClose reports whether a pull_request payload describes a merge.
func IsMergedClose(payload map[string]interface{}) bool {
	if actionOf(payload) != "closed" {
		return false
	}
	merged, err := jsonpath.Get("$.pull_request.merged", payload)
	if err != nil {
		return false
	}
	ok, _ := merged.(bool)
	return ok
}

func actionOf(payload map[string]interface{}) string {
	action, err := stringAt(payload, "$.action")
	if err != nil {
		return ""
	}
	return action
}

// branchFromRef keeps the last path segment, so refs/heads/main becomes main.
func branchFromRef(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func stringAt(payload map[string]interface{}, path string) (string, error) {
	value, err := jsonpath.Get(path, payload)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected string, got %T", path, value)
	}
	return s, nil
}

func idAt(payload map[string]interface{}, path string) (string, error) {
	value, err := jsonpath.Get(path, payload)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	switch typed := value.(type) {
	case json.Number:
		return typed.String(), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case string:
		return typed, nil
	case nil:
		return "", fmt.Errorf("%s: is null", path)
	default:
		return fmt.Sprint(typed), nil
	}
}
