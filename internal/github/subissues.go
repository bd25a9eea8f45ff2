package github

import (
	"context"
	"encoding/json"
	"fmt"
)

// graphQLRequest is the POST body for the GraphQL endpoint.
type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// graphQLError is a single error entry in a GraphQL response.
type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// graphql executes a GraphQL request and decodes the "data" object into out.
// GraphQL-level errors are returned as a single wrapped error; a NOT_FOUND
// error type maps to ErrNotFound.
func (c *Client) graphql(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}

	if err := c.do(ctx, "POST", "/graphql", graphQLRequest{Query: query, Variables: variables}, &resp); err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		first := resp.Errors[0]
		if first.Type == "NOT_FOUND" {
			return fmt.Errorf("graphql: %s: %w", first.Message, ErrNotFound)
		}
		return fmt.Errorf("graphql error: %s", first.Message)
	}

	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("failed to parse graphql response: %w", err)
		}
	}

	return nil
}

// IssueNodeID resolves the GraphQL node ID of an issue. The node ID is the
// opaque handle the sub-issue graph operations work with.
func (c *Client) IssueNodeID(ctx context.Context, ref IssueRef) (string, error) {
	if ref.NodeID != "" {
		return ref.NodeID, nil
	}

	query := fmt.Sprintf(`{ repository(owner: %q, name: %q) { issue(number: %d) { id } } }`,
		ref.Owner, ref.Repo, ref.Number)

	var data struct {
		Repository struct {
			Issue struct {
				ID string `json:"id"`
			} `json:"issue"`
		} `json:"repository"`
	}
	if err := c.graphql(ctx, query, nil, &data); err != nil {
		return "", fmt.Errorf("failed to resolve node ID for %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, err)
	}
	if data.Repository.Issue.ID == "" {
		return "", fmt.Errorf("issue %s/%s#%d: %w", ref.Owner, ref.Repo, ref.Number, ErrNotFound)
	}
	return data.Repository.Issue.ID, nil
}

// LinkedChildren returns the issues tracked as sub-issues of the given parent
// node. The result is queried fresh from the issue graph on every call; the
// engine never caches parent/child links.
func (c *Client) LinkedChildren(ctx context.Context, parentNodeID string) ([]IssueRef, error) {
	query := fmt.Sprintf(`{ node(id: %q) { ... on Issue { subIssues(first: 100) { nodes { id number repository { name owner { login } } } } } } }`,
		parentNodeID)

	var data struct {
		Node struct {
			SubIssues struct {
				Nodes []struct {
					ID         string `json:"id"`
					Number     int    `json:"number"`
					Repository struct {
						Name  string `json:"name"`
						Owner struct {
							Login string `json:"login"`
						} `json:"owner"`
					} `json:"repository"`
				} `json:"nodes"`
			} `json:"subIssues"`
		} `json:"node"`
	}
	if err := c.graphql(ctx, query, nil, &data); err != nil {
		return nil, fmt.Errorf("failed to list sub-issues of %s: %w", parentNodeID, err)
	}

	children := make([]IssueRef, 0, len(data.Node.SubIssues.Nodes))
	for _, node := range data.Node.SubIssues.Nodes {
		children = append(children, IssueRef{
			Owner:  node.Repository.Owner.Login,
			Repo:   node.Repository.Name,
			Number: node.Number,
			NodeID: node.ID,
		})
	}
	return children, nil
}

// LinkSubIssue marks the child issue as a tracked sub-issue of the parent.
func (c *Client) LinkSubIssue(ctx context.Context, parentNodeID, childNodeID string) error {
	const mutation = `mutation($parent: ID!, $child: ID!) {
  addSubIssue(input: {issueId: $parent, subIssueId: $child}) {
    issue { id }
  }
}`

	variables := map[string]interface{}{
		"parent": parentNodeID,
		"child":  childNodeID,
	}
	if err := c.graphql(ctx, mutation, variables, nil); err != nil {
		return fmt.Errorf("failed to link sub-issue %s to %s: %w", childNodeID, parentNodeID, err)
	}
	return nil
}
