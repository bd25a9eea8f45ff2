package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/andywolf/federator/internal/github"
)

// UnsupportedSelectorError reports a selector with an unrecognized method.
// Skipping it silently could hide a typo that causes zero child issues to be
// created, so resolution fails the run instead.
type UnsupportedSelectorError struct {
	Method string
}

func (e *UnsupportedSelectorError) Error() string {
	return fmt.Sprintf("unsupported target repository selector method %q", e.Method)
}

// RepositoryLister lists all repositories of an organization. Only
// name-pattern selectors invoke it; explicit selectors never fan out to the
// network.
type RepositoryLister func(ctx context.Context, owner string) ([]github.Repository, error)

// ResolveTargets evaluates the selectors in order and unions their results
// into a set keyed by repository name. Colliding entries are structurally
// identical within one owner, so last-write-wins dedup is safe. An empty
// result is a valid, non-error outcome.
func ResolveTargets(ctx context.Context, selectors []TargetSelector, owner string, list RepositoryLister) (map[string]github.Repository, error) {
	// Reject unknown methods before any listing happens so a bad document
	// produces no partial resolution and no network calls.
	for _, sel := range selectors {
		switch sel.Method {
		case MethodNamePattern, MethodExplicit:
		default:
			return nil, &UnsupportedSelectorError{Method: sel.Method}
		}
	}

	targets := make(map[string]github.Repository)

	for _, sel := range selectors {
		switch sel.Method {
		case MethodExplicit:
			for _, name := range sel.Repositories {
				if name == "" {
					continue
				}
				targets[name] = github.Repository{Owner: owner, Name: name}
			}

		case MethodNamePattern:
			if sel.Identifier == "" {
				continue
			}
			repos, err := list(ctx, owner)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve name-pattern selector %q: %w", sel.Identifier, err)
			}
			for _, repo := range repos {
				if matchesPattern(repo.Name, sel.Identifier, sel.PatternType) {
					targets[repo.Name] = repo
				}
			}
		}
	}

	return targets, nil
}

// matchesPattern applies the selector's string relation to the bare
// repository name. Matching is case-sensitive exact substring semantics; no
// normalization, globbing or regex.
func matchesPattern(name, identifier, patternType string) bool {
	switch patternType {
	case PatternStartsWith:
		return strings.HasPrefix(name, identifier)
	case PatternEndsWith:
		return strings.HasSuffix(name, identifier)
	default:
		return strings.Contains(name, identifier)
	}
}
