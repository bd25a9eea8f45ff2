// Package config defines the action's input surface. Inputs arrive as
// INPUT_* environment variables in the Actions runner (or as CLI flags for
// local runs) and are materialized through viper.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Input keys. GitHub Actions exposes each input as INPUT_<NAME> with dashes
// replaced by underscores; Init wires viper accordingly.
const (
	KeyRequiredLabel            = "required-label"
	KeyConfigPath               = "config-path"
	KeyConfigRef                = "config-ref"
	KeyNotifyMissingPermissions = "notify-missing-permissions"
	KeyCloseOnParentClose       = "close-issues-on-parent-close"
	KeyTitleTemplate            = "child-issue-title-template"
	KeyBodyTemplate             = "child-issue-body-template"
	KeyGitHubToken              = "github-token"
	KeyAppID                    = "app-id"
	KeyInstallationID           = "installation-id"
	KeyPrivateKeySecret         = "private-key-secret"
)

// Config is the full runtime configuration of a federation run.
type Config struct {
	RequiredLabel            string `mapstructure:"required-label"`
	ConfigPath               string `mapstructure:"config-path"`
	ConfigRef                string `mapstructure:"config-ref"`
	NotifyMissingPermissions bool   `mapstructure:"notify-missing-permissions"`
	CloseIssuesOnParentClose bool   `mapstructure:"close-issues-on-parent-close"`
	ChildIssueTitleTemplate  string `mapstructure:"child-issue-title-template"`
	ChildIssueBodyTemplate   string `mapstructure:"child-issue-body-template"`

	// Credentials: either a plain token, or GitHub App credentials whose
	// private key is fetched from Secret Manager.
	GitHubToken      string `mapstructure:"github-token"`
	AppID            int64  `mapstructure:"app-id"`
	InstallationID   int64  `mapstructure:"installation-id"`
	PrivateKeySecret string `mapstructure:"private-key-secret"`

	// EventPath is the triggering payload file, normally GITHUB_EVENT_PATH.
	EventPath string `mapstructure:"event-path"`
}

// Init wires viper to the Actions input convention and registers defaults.
// Must run before Load.
func Init() {
	viper.SetEnvPrefix("INPUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault(KeyRequiredLabel, "federated")
	viper.SetDefault(KeyConfigPath, ".github/federated-issue-action-config.json")
	viper.SetDefault(KeyConfigRef, "")
	viper.SetDefault(KeyNotifyMissingPermissions, true)
	viper.SetDefault(KeyCloseOnParentClose, true)
	viper.SetDefault(KeyTitleTemplate, "{{title}}")
	viper.SetDefault(KeyBodyTemplate, "{{body}}")
	viper.SetDefault(KeyGitHubToken, "")
	viper.SetDefault(KeyAppID, 0)
	viper.SetDefault(KeyInstallationID, 0)
	viper.SetDefault(KeyPrivateKeySecret, "")
	viper.SetDefault("event-path", "")
}

// Load materializes the configuration from viper and the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills fields that only the process environment can supply.
func applyDefaults(cfg *Config) {
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.EventPath == "" {
		cfg.EventPath = os.Getenv("GITHUB_EVENT_PATH")
	}
}

// HasAppCredentials reports whether GitHub App credentials are configured.
func (c *Config) HasAppCredentials() bool {
	return c.AppID != 0 && c.InstallationID != 0 && c.PrivateKeySecret != ""
}

// Validate checks the configuration. A missing credential or event payload
// is fatal for the run.
func (c *Config) Validate() error {
	if c.RequiredLabel == "" {
		return fmt.Errorf("required-label must not be empty")
	}
	if c.ConfigPath == "" {
		return fmt.Errorf("config-path must not be empty")
	}
	if c.ChildIssueTitleTemplate == "" {
		return fmt.Errorf("child-issue-title-template must not be empty")
	}
	if c.ChildIssueBodyTemplate == "" {
		return fmt.Errorf("child-issue-body-template must not be empty")
	}
	if c.GitHubToken == "" && !c.HasAppCredentials() {
		return fmt.Errorf("missing credential: set github-token or app-id, installation-id and private-key-secret")
	}
	if c.EventPath == "" {
		return fmt.Errorf("no event payload: GITHUB_EVENT_PATH is not set")
	}
	return nil
}
