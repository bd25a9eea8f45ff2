// Package policy implements the federation policy: the allow-list that gates
// who may trigger federation and the selectors that discover target
// repositories. The policy document lives in the parent repository and is
// loaded fresh on every run.
package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Selector methods. The selector is a closed union: resolution matches
// exhaustively on Method and an unrecognized value is a configuration error,
// never silently skipped.
const (
	MethodNamePattern = "name-pattern"
	MethodExplicit    = "explicit"
)

// Pattern types for name-pattern selectors. An empty PatternType defaults to
// PatternContains.
const (
	PatternStartsWith = "starts-with"
	PatternContains   = "contains"
	PatternEndsWith   = "ends-with"
)

// Allowed is the allow-list of users and teams permitted to trigger
// federation. An empty allow-list means everyone with write access to the
// trigger is authorized.
type Allowed struct {
	Users []string `json:"users" yaml:"users"`
	Teams []string `json:"teams" yaml:"teams"`
}

// TargetSelector describes one rule for discovering target repositories.
// Exactly one of the method-specific field sets is meaningful depending on
// Method.
type TargetSelector struct {
	Method       string   `json:"method" yaml:"method"`
	Identifier   string   `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	PatternType  string   `json:"patternType,omitempty" yaml:"patternType,omitempty"`
	Repositories []string `json:"repositories,omitempty" yaml:"repositories,omitempty"`
}

// Policy is the persisted federation policy document.
type Policy struct {
	Allowed                   Allowed          `json:"allowed" yaml:"allowed"`
	TargetRepositorySelectors []TargetSelector `json:"targetRepositorySelectors" yaml:"targetRepositorySelectors"`
}

// Parse decodes a policy document. YAML documents are accepted when the
// configured path carries a .yaml/.yml extension; everything else is JSON.
func Parse(data []byte, path string) (*Policy, error) {
	var p Policy

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse policy document %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse policy document %s: %w", path, err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy document %s: %w", path, err)
	}

	return &p, nil
}

// Validate checks the document against the schema. A structurally invalid
// document is a fatal configuration error for the run.
func (p *Policy) Validate() error {
	for i, user := range p.Allowed.Users {
		if strings.TrimSpace(user) == "" {
			return fmt.Errorf("allowed.users[%d] is empty", i)
		}
	}
	for i, team := range p.Allowed.Teams {
		org, slug := SplitTeamRef(team, "org")
		if org == "" || slug == "" {
			return fmt.Errorf("allowed.teams[%d] %q is not a team slug or org/slug pair", i, team)
		}
	}

	for i, sel := range p.TargetRepositorySelectors {
		switch sel.Method {
		case MethodNamePattern:
			if sel.Identifier == "" {
				return fmt.Errorf("targetRepositorySelectors[%d]: name-pattern selector requires an identifier", i)
			}
			switch sel.PatternType {
			case "", PatternStartsWith, PatternContains, PatternEndsWith:
			default:
				return fmt.Errorf("targetRepositorySelectors[%d]: unknown patternType %q", i, sel.PatternType)
			}
		case MethodExplicit:
			// An absent or empty repositories list is valid and resolves to
			// nothing.
		case "":
			return fmt.Errorf("targetRepositorySelectors[%d]: missing method", i)
		default:
			return &UnsupportedSelectorError{Method: sel.Method}
		}
	}

	return nil
}

// OpenAccess reports whether the allow-list is empty, meaning any actor with
// write access to the trigger is authorized.
func (p *Policy) OpenAccess() bool {
	return len(p.Allowed.Users) == 0 && len(p.Allowed.Teams) == 0
}

// SplitTeamRef splits an allow-list team entry into organization and team
// slug. An entry with a separator is an explicit org/slug pair; a bare slug
// resolves against defaultOrg, the parent repository's owning organization.
func SplitTeamRef(entry, defaultOrg string) (org, slug string) {
	if before, after, found := strings.Cut(entry, "/"); found {
		return before, after
	}
	return defaultOrg, entry
}
