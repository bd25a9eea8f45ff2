// Package event parses the issue webhook payload that triggers a federation
// run. Only the "labeled", "edited" and "closed" actions drive behavior; every
// other action is an explicit no-op for the engine.
package event

import (
	"encoding/json"
	"fmt"
	"os"
)

// Actions the engine reacts to. The payload may carry any other action string;
// unrecognized actions are passed through and ignored by the orchestrator.
const (
	ActionLabeled   = "labeled"
	ActionEdited    = "edited"
	ActionClosed    = "closed"
	ActionUnlabeled = "unlabeled"
)

// Label is an issue label in the webhook payload.
type Label struct {
	Name string `json:"name"`
}

// User is a GitHub account reference in the webhook payload.
type User struct {
	Login string `json:"login"`
}

// Issue is the issue object carried by the triggering event.
type Issue struct {
	Number int     `json:"number"`
	NodeID string  `json:"node_id"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	State  string  `json:"state"`
	Labels []Label `json:"labels"`
	User   User    `json:"user"`
}

// Repository is the repository the event fired in.
type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    User   `json:"owner"`
}

// IssueEvent is the subset of the issues webhook payload the engine consumes.
type IssueEvent struct {
	Action     string     `json:"action"`
	Issue      *Issue     `json:"issue"`
	Label      *Label     `json:"label"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

// Parse decodes an issues webhook payload.
func Parse(data []byte) (*IssueEvent, error) {
	var ev IssueEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse event payload: %w", err)
	}
	return &ev, nil
}

// ParseFile reads and decodes the event payload from the given path,
// typically the file named by GITHUB_EVENT_PATH.
func ParseFile(path string) (*IssueEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event payload %s: %w", path, err)
	}
	return Parse(data)
}

// HasLabel reports whether the event's issue carries the given label.
// Matching is exact; label gating is case-sensitive.
func (ev *IssueEvent) HasLabel(name string) bool {
	if ev.Issue == nil {
		return false
	}
	for _, label := range ev.Issue.Labels {
		if label.Name == name {
			return true
		}
	}
	return false
}

// Actor returns the login that triggered the event: the sender when present,
// otherwise the issue author.
func (ev *IssueEvent) Actor() string {
	if ev.Sender.Login != "" {
		return ev.Sender.Login
	}
	if ev.Issue != nil {
		return ev.Issue.User.Login
	}
	return ""
}
