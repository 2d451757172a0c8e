// Package bootstrap builds the collaborators both entry points share from
// process configuration.
package bootstrap

import (
	"context"
	"time"

	gh "github.com/google/go-github/v84/github"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagebot/internal/cfg"
	"github.com/linnemanlabs/triagebot/internal/github"
	"github.com/linnemanlabs/triagebot/internal/llm/claude"
	"github.com/linnemanlabs/triagebot/internal/llm/openai"
	"github.com/linnemanlabs/triagebot/internal/triage"
)

// Provider returns the configured classification provider and its model,
// or nil when no API key is configured.
func Provider(c *cfg.Config) (triage.Provider, string) {
	switch c.Provider() {
	case cfg.ProviderClaude:
		return claude.New(c.ClaudeAPIKey, c.ClaudeModel, ""), c.ClaudeModel
	case cfg.ProviderOpenAI:
		return openai.New(c.OpenAIAPIKey, c.OpenAIModel, c.OpenAIBaseURL), c.OpenAIModel
	}
	return nil, ""
}

// RetryPolicy applies the configured attempt count and call timeout to the
// default backoff.
func RetryPolicy(c *cfg.Config) triage.RetryPolicy {
	rp := triage.DefaultRetryPolicy()
	rp.MaxAttempts = c.ClassifyMaxAttempts
	rp.CallTimeout = time.Duration(c.ClassifyTimeoutSeconds) * time.Second
	return rp
}

// Classifier wraps the configured provider. It returns nil without a
// provider; runs that need classification then fail as misconfigured.
func Classifier(ctx context.Context, c *cfg.Config, logger log.Logger, hooks triage.EngineHooks) *triage.Classifier {
	p, model := Provider(c)
	if p == nil {
		logger.Warn(ctx, "no LLM API key configured, classification unavailable")
		return nil
	}
	logger.Info(ctx, "initialized LLM provider", "provider", c.Provider(), "model", model)
	return triage.NewClassifier(p, RetryPolicy(c), logger, hooks)
}

// GitHubClient authenticates with the configured App or token.
func GitHubClient(c *cfg.Config) (*gh.Client, error) {
	return github.NewClient(github.Auth{
		Token:          c.GitHubToken,
		AppID:          c.GitHubAppID,
		InstallationID: c.GitHubInstallationID,
		PrivateKeyFile: c.GitHubAppKeyFile,
	}, c.GitHubAPIURL)
}
