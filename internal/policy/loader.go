package policy

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andywolf/federator/internal/github"
)

// Source fetches a file from a repository. *github.Client satisfies it.
type Source interface {
	FileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

// Load fetches and parses the policy document from the parent repository.
// The document is loaded once per run; an absent, unparsable or
// schema-invalid document is fatal for the run.
func Load(ctx context.Context, src Source, owner, repo, path, ref string) (*Policy, error) {
	data, err := src.FileContent(ctx, owner, repo, path, ref)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return nil, fmt.Errorf("policy document %s not found in %s/%s: %w", path, owner, repo, err)
		}
		return nil, fmt.Errorf("failed to load policy document %s from %s/%s: %w", path, owner, repo, err)
	}

	return Parse(data, path)
}

// LoadFile parses a policy document from the local filesystem. Used for
// local debugging runs outside the Actions environment.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy document %s: %w", path, err)
	}
	return Parse(data, path)
}
