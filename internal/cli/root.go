package cli

import (
	"github.com/andywolf/federator/internal/config"
	"github.com/andywolf/federator/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "federator",
	Short: "Federator - propagate a tracking issue across repositories",
	Long: `Federator propagates a parent tracking issue into linked child issues
across a set of target repositories, keeping their content and open/closed
status synchronized.

It runs as a GitHub Action on issue events: when a parent issue gains the
configured label, a child issue is created and linked in every repository
matched by the target selectors declared in the parent repository's policy
document. Edits and closes of the parent propagate to the children.

Example:
  federator run --event-path event.json`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(config.Init)

	// Set version for --version flag
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}
