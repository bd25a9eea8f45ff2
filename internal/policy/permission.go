package policy

import (
	"context"

	"github.com/andywolf/federator/internal/github"
)

// MembershipLookup returns the membership state of a user in an organization
// team. A missing membership is reported as github.ErrNotFound.
type MembershipLookup func(ctx context.Context, org, teamSlug, user string) (string, error)

// Authorize decides whether the actor may trigger federation. Rules are
// evaluated short-circuit in order: open policy, direct user match, then team
// membership in declaration order. A failed or not-found team lookup counts
// as a non-match and evaluation proceeds to the next team; a single broken
// lookup never aborts the remaining teams. Pure decision function: any
// notification on a false result is the caller's concern.
func Authorize(ctx context.Context, p *Policy, actor, repoOwner string, lookup MembershipLookup) bool {
	if p.OpenAccess() {
		return true
	}

	for _, user := range p.Allowed.Users {
		if user == actor {
			return true
		}
	}

	for _, team := range p.Allowed.Teams {
		org, slug := SplitTeamRef(team, repoOwner)
		if org == "" || slug == "" {
			continue
		}

		state, err := lookup(ctx, org, slug, actor)
		if err != nil {
			continue
		}
		if state == github.MembershipActive {
			return true
		}
	}

	return false
}
