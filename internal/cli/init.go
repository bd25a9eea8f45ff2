package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andywolf/federator/internal/policy"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the policy document",
	Long: `Initialize a federation policy document for the current repository.

This creates .github/federated-issue-action-config.json with a starter
allow-list and target selectors that you can customize.

Example:
  federator init
  federator init --user octocat --pattern-prefix service-
  federator init --format yaml`,
	RunE: initPolicy,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringSlice("user", nil, "username to allow (repeatable; empty means anyone)")
	initCmd.Flags().StringSlice("team", nil, "team to allow, as org/slug (repeatable)")
	initCmd.Flags().String("pattern-prefix", "", "select target repositories whose name starts with this prefix")
	initCmd.Flags().StringSlice("repo", nil, "explicit target repository name (repeatable)")
	initCmd.Flags().String("format", "json", "output format (json, yaml)")
	initCmd.Flags().Bool("force", false, "overwrite an existing policy document")
}

func initPolicy(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported format %q (use json or yaml)", format)
	}

	configPath := filepath.Join(".github", "federated-issue-action-config."+format)

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("policy document already exists at %s (use --force to overwrite)", configPath)
	}

	doc := policy.Policy{}
	doc.Allowed.Users, _ = cmd.Flags().GetStringSlice("user")
	doc.Allowed.Teams, _ = cmd.Flags().GetStringSlice("team")

	prefix, _ := cmd.Flags().GetString("pattern-prefix")
	if prefix != "" {
		doc.TargetRepositorySelectors = append(doc.TargetRepositorySelectors, policy.TargetSelector{
			Method:      policy.MethodNamePattern,
			Identifier:  prefix,
			PatternType: policy.PatternStartsWith,
		})
	}

	repos, _ := cmd.Flags().GetStringSlice("repo")
	if len(repos) > 0 {
		doc.TargetRepositorySelectors = append(doc.TargetRepositorySelectors, policy.TargetSelector{
			Method:       policy.MethodExplicit,
			Repositories: repos,
		})
	}

	// A document without selectors resolves to zero targets; seed an
	// explicit selector so the scaffold is self-describing.
	if len(doc.TargetRepositorySelectors) == 0 {
		doc.TargetRepositorySelectors = append(doc.TargetRepositorySelectors, policy.TargetSelector{
			Method:       policy.MethodExplicit,
			Repositories: []string{"example-repo"},
		})
	}

	var data []byte
	var err error
	switch format {
	case "yaml":
		data, err = yaml.Marshal(doc)
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to marshal policy document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create .github directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write policy document: %w", err)
	}

	fmt.Printf("Created %s\n\n", configPath)
	fmt.Println("Next steps:")
	fmt.Println("  1. Replace the placeholder target repositories with your own")
	fmt.Println("  2. Restrict allowed users or teams if the issue should not be open to everyone")
	fmt.Println("  3. Add the federated-issue workflow to the parent repository")

	return nil
}
