package github

import (
	"context"
	"fmt"
)

// reposPerPage is the page size used when listing organization repositories.
const reposPerPage = 100

// repoResponse is the subset of the REST repository representation we consume.
type repoResponse struct {
	Name   string `json:"name"`
	NodeID string `json:"node_id"`
	Owner  struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// ListRepositories returns all repositories owned by the given organization,
// following pagination until a short page is returned. Only name-pattern
// selectors trigger this call.
func (c *Client) ListRepositories(ctx context.Context, owner string) ([]Repository, error) {
	var all []Repository

	for page := 1; ; page++ {
		path := fmt.Sprintf("/orgs/%s/repos?per_page=%d&page=%d", owner, reposPerPage, page)
		var repos []repoResponse
		if err := c.do(ctx, "GET", path, nil, &repos); err != nil {
			return nil, fmt.Errorf("failed to list repositories for %s: %w", owner, err)
		}

		for _, r := range repos {
			o := r.Owner.Login
			if o == "" {
				o = owner
			}
			all = append(all, Repository{Owner: o, Name: r.Name, NodeID: r.NodeID})
		}

		if len(repos) < reposPerPage {
			return all, nil
		}
	}
}
