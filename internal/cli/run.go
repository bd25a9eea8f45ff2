package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/andywolf/federator/internal/cloud/gcp"
	"github.com/andywolf/federator/internal/config"
	"github.com/andywolf/federator/internal/event"
	"github.com/andywolf/federator/internal/federation"
	"github.com/andywolf/federator/internal/github"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one issue event",
	Long: `Process a single issue event and federate the parent issue to its
target repositories.

The event payload is read from --event-path (defaulting to the file named by
GITHUB_EVENT_PATH in an Actions runner). The target selectors and allow-list
are loaded from the policy document in the parent repository.

Example:
  federator run --event-path event.json --required-label federated`,
	RunE: runFederation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("event-path", "", "path to the issue event payload (default: $GITHUB_EVENT_PATH)")
	runCmd.Flags().String("required-label", "federated", "label that gates federation")
	runCmd.Flags().String("config-path", ".github/federated-issue-action-config.json", "policy document path in the parent repository")
	runCmd.Flags().String("config-ref", "", "git ref to load the policy document from (default: default branch)")
	runCmd.Flags().Bool("notify-missing-permissions", true, "comment on the parent issue when the actor is denied")
	runCmd.Flags().Bool("close-issues-on-parent-close", true, "close child issues when the parent closes")
	runCmd.Flags().String("child-issue-title-template", "{{title}}", "child issue title template")
	runCmd.Flags().String("child-issue-body-template", "{{body}}", "child issue body template")

	_ = viper.BindPFlag("event-path", runCmd.Flags().Lookup("event-path"))
	_ = viper.BindPFlag(config.KeyRequiredLabel, runCmd.Flags().Lookup("required-label"))
	_ = viper.BindPFlag(config.KeyConfigPath, runCmd.Flags().Lookup("config-path"))
	_ = viper.BindPFlag(config.KeyConfigRef, runCmd.Flags().Lookup("config-ref"))
	_ = viper.BindPFlag(config.KeyNotifyMissingPermissions, runCmd.Flags().Lookup("notify-missing-permissions"))
	_ = viper.BindPFlag(config.KeyCloseOnParentClose, runCmd.Flags().Lookup("close-issues-on-parent-close"))
	_ = viper.BindPFlag(config.KeyTitleTemplate, runCmd.Flags().Lookup("child-issue-title-template"))
	_ = viper.BindPFlag(config.KeyBodyTemplate, runCmd.Flags().Lookup("child-issue-body-template"))
}

func runFederation(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "Received interrupt signal, aborting run")
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ev, err := event.ParseFile(cfg.EventPath)
	if err != nil {
		return err
	}

	token, err := resolveToken(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to resolve credentials: %w", err)
	}

	client := github.NewClient(token)
	runID := fmt.Sprintf("federator-%s", uuid.New().String()[:8])

	opts := federation.Options{
		RequiredLabel:            cfg.RequiredLabel,
		ConfigPath:               cfg.ConfigPath,
		ConfigRef:                cfg.ConfigRef,
		NotifyMissingPermissions: cfg.NotifyMissingPermissions,
		CloseIssuesOnParentClose: cfg.CloseIssuesOnParentClose,
		TitleTemplate:            cfg.ChildIssueTitleTemplate,
		BodyTemplate:             cfg.ChildIssueBodyTemplate,
	}

	services := federation.Services{
		Issues: client,
		Repos:  client,
		Teams:  client,
		Config: client,
	}

	orchOpts := []federation.Option{federation.WithRunID(runID)}

	// Cloud Logging is best-effort: outside GCP the run logs locally only.
	if cloudLogger, clErr := gcp.NewRunLogger(ctx, runID); clErr == nil {
		defer func() { _ = cloudLogger.Close() }()
		orchOpts = append(orchOpts, federation.WithCloudLogger(cloudLogger))
	} else if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Cloud Logging unavailable, using local logs only: %v\n", clErr)
	}

	orch := federation.New(opts, services, orchOpts...)

	report, err := orch.Run(ctx, ev)
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

// resolveToken returns the API token for the run: the configured token when
// present, otherwise an installation token minted from the GitHub App
// credentials. The App private key comes from the FEDERATOR_APP_PRIVATE_KEY
// environment variable or, failing that, Secret Manager.
func resolveToken(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.GitHubToken != "" {
		return cfg.GitHubToken, nil
	}

	privateKey := os.Getenv("FEDERATOR_APP_PRIVATE_KEY")
	if privateKey == "" {
		secrets, err := gcp.NewSecretManagerClient(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to create Secret Manager client: %w", err)
		}
		defer func() { _ = secrets.Close() }()

		privateKey, err = secrets.FetchSecret(ctx, cfg.PrivateKeySecret)
		if err != nil {
			return "", fmt.Errorf("failed to fetch App private key: %w", err)
		}
	}

	token, err := github.MintInstallationToken(github.AppCredentials{
		AppID:          strconv.FormatInt(cfg.AppID, 10),
		InstallationID: cfg.InstallationID,
		PrivateKey:     []byte(privateKey),
	})
	if err != nil {
		return "", err
	}

	return token.Token, nil
}

// printReport writes the run summary to stdout.
func printReport(report *federation.RunReport) {
	fmt.Printf("Run %s finished: %s\n", report.RunID, report.Outcome)
	for _, res := range report.Results {
		fmt.Printf("  %s\n", res)
	}
	if failures := report.Failures(); len(failures) > 0 {
		fmt.Printf("%d of %d target operations failed\n", len(failures), len(report.Results))
	}
	for _, orphan := range report.Orphans {
		fmt.Printf("Warning: child issue %s/%s#%d was created but not linked to the parent\n",
			orphan.Owner, orphan.Repo, orphan.Number)
	}
}
