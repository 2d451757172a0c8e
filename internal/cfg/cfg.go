// Package cfg holds triagebot's process configuration. Repository policy
// lives in internal/repoconfig.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
)

// LLM providers.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

const defaultConfigPath = ".github/triagebot.yml"

// Config is shared by the CI entry point and the webhook server.
type Config struct {
	GitHubToken          string
	GitHubAppID          int64
	GitHubInstallationID int64
	GitHubAppKeyFile     string
	GitHubAPIURL         string
	GitHubWebURL         string

	Repository string
	EventName  string
	EventPath  string
	Workspace  string
	ConfigPath string

	LLMProvider            string
	ClaudeAPIKey           string
	ClaudeModel            string
	OpenAIAPIKey           string
	OpenAIBaseURL          string
	OpenAIModel            string
	ClassifyTimeoutSeconds int
	ClassifyMaxAttempts    int

	SlackWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.GitHubToken, "github-token", "", "GitHub token (falls back to GITHUB_TOKEN)")
	fs.Int64Var(&c.GitHubAppID, "github-app-id", 0, "GitHub App ID, used instead of a token when set")
	fs.Int64Var(&c.GitHubInstallationID, "github-installation-id", 0, "GitHub App installation ID")
	fs.StringVar(&c.GitHubAppKeyFile, "github-app-key-file", "", "path to the GitHub App private key (PEM)")
	fs.StringVar(&c.GitHubAPIURL, "github-api-url", "", "GitHub Enterprise API root (empty = api.github.com)")
	fs.StringVar(&c.GitHubWebURL, "github-web-url", "", "GitHub web root for links in notifications (empty = github.com)")
	fs.StringVar(&c.Repository, "repository", "", "owner/name of the repository (falls back to GITHUB_REPOSITORY)")
	fs.StringVar(&c.EventName, "event-name", "", "GitHub event name (falls back to GITHUB_EVENT_NAME)")
	fs.StringVar(&c.EventPath, "event-path", "", "path to the event payload JSON (falls back to GITHUB_EVENT_PATH)")
	fs.StringVar(&c.Workspace, "workspace", "", "repository checkout root (falls back to GITHUB_WORKSPACE, then .)")
	fs.StringVar(&c.ConfigPath, "config-path", defaultConfigPath, "triage config file, relative to the workspace root")
	fs.StringVar(&c.LLMProvider, "llm-provider", "", "classifier provider: claude or openai (empty = whichever key is set)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude provider (falls back to ANTHROPIC_API_KEY)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-haiku-4-5", "Claude model to classify with")
	fs.StringVar(&c.OpenAIAPIKey, "openai-api-key", "", "API key for the OpenAI-compatible provider (falls back to OPENAI_API_KEY)")
	fs.StringVar(&c.OpenAIBaseURL, "openai-base-url", "", "base URL of an OpenAI-compatible API (falls back to OPENAI_BASE_URL)")
	fs.StringVar(&c.OpenAIModel, "openai-model", "gpt-4o-mini", "OpenAI model to classify with (OPENAI_MODEL overrides the default)")
	fs.IntVar(&c.ClassifyTimeoutSeconds, "classify-timeout-seconds", 30, "timeout for a single classification call (1..300)")
	fs.IntVar(&c.ClassifyMaxAttempts, "classify-max-attempts", 3, "classification attempts on transient failures (1..10)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for runs that need a human")
}

// FillFromGitHubEnv fills unset fields from the variables a GitHub Actions
// runner and the provider SDKs conventionally use. It runs after flags and
// TRIAGEBOT_ variables and never overrides them. fs tells whether a flag
// with a default value was set explicitly.
func (c *Config) FillFromGitHubEnv(fs *flag.FlagSet, getenv func(string) string) {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = getenv(key)
		}
	}
	fill(&c.GitHubToken, "GITHUB_TOKEN")
	fill(&c.Repository, "GITHUB_REPOSITORY")
	fill(&c.EventName, "GITHUB_EVENT_NAME")
	fill(&c.EventPath, "GITHUB_EVENT_PATH")
	fill(&c.Workspace, "GITHUB_WORKSPACE")
	fill(&c.ClaudeAPIKey, "ANTHROPIC_API_KEY")
	fill(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	fill(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	if v := getenv("OPENAI_MODEL"); v != "" && !set["openai-model"] {
		c.OpenAIModel = v
	}
	if c.GitHubAPIURL == "" {
		if v := getenv("GITHUB_API_URL"); v != "" && v != "https://api.github.com" {
			c.GitHubAPIURL = v
		}
	}
	if c.GitHubWebURL == "" {
		if v := getenv("GITHUB_SERVER_URL"); v != "" && v != "https://github.com" {
			c.GitHubWebURL = v
		}
	}
	if c.Workspace == "" {
		c.Workspace = "."
	}
}

// Provider resolves the classifier provider. It is empty when no key is
// configured for the chosen or any provider.
func (c *Config) Provider() string {
	switch c.LLMProvider {
	case ProviderClaude:
		if c.ClaudeAPIKey != "" {
			return ProviderClaude
		}
		return ""
	case ProviderOpenAI:
		if c.OpenAIAPIKey != "" {
			return ProviderOpenAI
		}
		return ""
	}
	switch {
	case c.ClaudeAPIKey != "":
		return ProviderClaude
	case c.OpenAIAPIKey != "":
		return ProviderOpenAI
	}
	return ""
}

// UsesApp reports whether GitHub App authentication is configured.
func (c *Config) UsesApp() bool {
	return c.GitHubAppID != 0
}

// RepoConfigPath is the triage config file inside the workspace.
func (c *Config) RepoConfigPath() string {
	if filepath.IsAbs(c.ConfigPath) {
		return c.ConfigPath
	}
	return filepath.Join(c.Workspace, c.ConfigPath)
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// exactly one GitHub auth method
	switch {
	case c.UsesApp():
		if c.GitHubInstallationID <= 0 {
			errs = append(errs, errors.New("GITHUB_INSTALLATION_ID is required with GITHUB_APP_ID"))
		}
		if c.GitHubAppKeyFile == "" {
			errs = append(errs, errors.New("GITHUB_APP_KEY_FILE is required with GITHUB_APP_ID"))
		}
	case c.GitHubAppID < 0:
		errs = append(errs, fmt.Errorf("invalid GITHUB_APP_ID %d", c.GitHubAppID))
	case c.GitHubToken == "":
		errs = append(errs, errors.New("GITHUB_TOKEN or GITHUB_APP_ID is required"))
	}

	switch c.LLMProvider {
	case "", ProviderClaude, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("invalid LLM_PROVIDER %q (must be claude or openai)", c.LLMProvider))
	}
	if c.LLMProvider == ProviderClaude && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}
	if c.LLMProvider == ProviderOpenAI && c.OpenAIModel == "" {
		errs = append(errs, errors.New("OPENAI_MODEL is required"))
	}

	if c.ClassifyTimeoutSeconds <= 0 || c.ClassifyTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid CLASSIFY_TIMEOUT_SECONDS %d (must be 1..300)", c.ClassifyTimeoutSeconds))
	}
	if c.ClassifyMaxAttempts <= 0 || c.ClassifyMaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("invalid CLASSIFY_MAX_ATTEMPTS %d (must be 1..10)", c.ClassifyMaxAttempts))
	}

	if c.ConfigPath == "" {
		errs = append(errs, errors.New("CONFIG_PATH is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateEvent checks the fields the one-shot CI run needs on top of
// Validate.
func (c *Config) ValidateEvent() error {
	var errs []error
	if c.EventName == "" {
		errs = append(errs, errors.New("GITHUB_EVENT_NAME is required"))
	}
	if c.EventPath == "" {
		errs = append(errs, errors.New("GITHUB_EVENT_PATH is required (is this running inside a GitHub workflow?)"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ServerConfig adds the webhook server's listener and lifecycle settings.
type ServerConfig struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	WebhookSecret         string
	APIToken              string
	RunCapacity           int
}

// RegisterFlags binds ServerConfig fields to the given FlagSet with defaults inline
func (c *ServerConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.WebhookSecret, "webhook-secret", "", "secret GitHub signs webhook deliveries with")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token for the run lookup API")
	fs.IntVar(&c.RunCapacity, "run-capacity", 1000, "number of run records kept in memory for lookup")
}

// Validate checks all server fields for correctness.
func (c *ServerConfig) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// unsigned deliveries would be accepted without a secret
	if c.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required"))
	}
	if c.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}

	if c.RunCapacity <= 0 {
		errs = append(errs, fmt.Errorf("invalid RUN_CAPACITY %d (must be positive)", c.RunCapacity))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
