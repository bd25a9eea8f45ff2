package github

import (
	"context"
	"fmt"
)

// Repository identifies a repository discovered for federation. NodeID is the
// GraphQL node identifier when known.
type Repository struct {
	Owner  string
	Name   string
	NodeID string
}

// IssueRef is a lightweight handle on an issue, not a full snapshot.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
	NodeID string
}

// IssueContent is the material propagated from a parent issue to its
// children.
type IssueContent struct {
	Title  string
	Body   string
	Labels []string
}

// createIssueRequest is the REST payload for issue creation.
type createIssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// issueResponse is the subset of the REST issue representation we consume.
type issueResponse struct {
	Number int    `json:"number"`
	NodeID string `json:"node_id"`
}

// CreateIssue creates an issue in the given repository and returns a handle
// carrying the assigned number and node ID.
func (c *Client) CreateIssue(ctx context.Context, owner, repo string, content IssueContent) (IssueRef, error) {
	var resp issueResponse
	path := fmt.Sprintf("/repos/%s/%s/issues", owner, repo)
	req := createIssueRequest{Title: content.Title, Body: content.Body, Labels: content.Labels}
	if err := c.do(ctx, "POST", path, req, &resp); err != nil {
		return IssueRef{}, fmt.Errorf("failed to create issue in %s/%s: %w", owner, repo, err)
	}
	return IssueRef{Owner: owner, Repo: repo, Number: resp.Number, NodeID: resp.NodeID}, nil
}

// UpdateIssue replaces the title and body of an existing issue.
func (c *Client) UpdateIssue(ctx context.Context, ref IssueRef, content IssueContent) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", ref.Owner, ref.Repo, ref.Number)
	req := struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}{Title: content.Title, Body: content.Body}
	if err := c.do(ctx, "PATCH", path, req, nil); err != nil {
		return fmt.Errorf("failed to update issue %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
	}
	return nil
}

// SetIssueState opens or closes an issue.
func (c *Client) SetIssueState(ctx context.Context, ref IssueRef, open bool) error {
	state := "closed"
	if open {
		state = "open"
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", ref.Owner, ref.Repo, ref.Number)
	req := struct {
		State string `json:"state"`
	}{State: state}
	if err := c.do(ctx, "PATCH", path, req, nil); err != nil {
		return fmt.Errorf("failed to set issue %s/%s#%d state to %s: %w", ref.Owner, ref.Repo, ref.Number, state, err)
	}
	return nil
}

// PostComment adds a comment to an issue. Used for the missing-permission
// notification on the parent issue.
func (c *Client) PostComment(ctx context.Context, ref IssueRef, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", ref.Owner, ref.Repo, ref.Number)
	req := struct {
		Body string `json:"body"`
	}{Body: body}
	if err := c.do(ctx, "POST", path, req, nil); err != nil {
		return fmt.Errorf("failed to comment on issue %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
	}
	return nil
}
