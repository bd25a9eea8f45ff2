package github

import (
	"context"
	"fmt"
)

// Team membership states returned by the GitHub API.
const (
	MembershipActive  = "active"
	MembershipPending = "pending"
)

// membershipResponse is the REST team membership representation.
type membershipResponse struct {
	State string `json:"state"`
	Role  string `json:"role"`
}

// TeamMembership returns the membership state of a user in an organization
// team ("active", "pending", ...). A missing membership is reported as
// ErrNotFound.
func (c *Client) TeamMembership(ctx context.Context, org, teamSlug, user string) (string, error) {
	path := fmt.Sprintf("/orgs/%s/teams/%s/memberships/%s", org, teamSlug, user)
	var resp membershipResponse
	if err := c.do(ctx, "GET", path, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to get membership of %s in %s/%s: %w", user, org, teamSlug, err)
	}
	return resp.State, nil
}
