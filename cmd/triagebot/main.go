// Triagebot classifies and checks one GitHub issue event, the way a
// workflow job runs it. It exits non-zero when the run fails.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/otelx"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/triagebot/internal/bootstrap"
	tc "github.com/linnemanlabs/triagebot/internal/cfg"
	"github.com/linnemanlabs/triagebot/internal/event"
	"github.com/linnemanlabs/triagebot/internal/github"
	"github.com/linnemanlabs/triagebot/internal/notify/slack"
	"github.com/linnemanlabs/triagebot/internal/repoconfig"
	"github.com/linnemanlabs/triagebot/internal/triage"
	"github.com/linnemanlabs/triagebot/internal/triage/memstore"
)

const appName = "triagebot"
const component = "action"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Getenv)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	var (
		appCfg   tc.Config
		logCfg   log.Config
		traceCfg otelx.Config
	)
	appCfg.RegisterFlags(fs)
	logCfg.RegisterFlags(fs)
	traceCfg.RegisterFlags(fs)
	var showVersion bool
	fs.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("%s (%s) %s (commit=%s, build_date=%s, go=%s)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion)
		return nil
	}

	// TRIAGEBOT_ variables, then the runner's GITHUB_* ones; neither overrides flags
	cfg.FillFromEnv(fs, "TRIAGEBOT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	appCfg.FillFromGitHubEnv(fs, getenv)

	if err := errors.Join(
		appCfg.Validate(),
		appCfg.ValidateEvent(),
		logCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		// flush spans even when the run fails
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	ev, reason, err := event.ReadFile(appCfg.EventName, appCfg.EventPath)
	if err != nil {
		return err
	}
	if ev == nil {
		L.Info(ctx, "nothing to do", "event", appCfg.EventName, "reason", reason)
		return nil
	}

	client, err := bootstrap.GitHubClient(&appCfg)
	if err != nil {
		return err
	}
	tracker := github.New(client, L)

	var notifier triage.Notifier
	if appCfg.SlackWebhookURL != "" {
		notifier = slack.New(appCfg.SlackWebhookURL, appCfg.GitHubWebURL, L)
	}

	hooks := triage.EngineHooks{}
	engine := triage.NewEngine(bootstrap.Classifier(ctx, &appCfg, L, hooks), nil, L, hooks)
	policies := repoconfig.FileSource{Path: appCfg.RepoConfigPath()}
	svc := triage.NewService(memstore.New(1), engine, tracker, policies, notifier, L, hooks)

	L.Info(ctx, "triaging issue",
		"version", vi.Version,
		"issue", ev.Ref.String(),
		"event_kind", ev.Kind,
		"config_path", policies.Path,
	)

	if _, err := svc.Handle(ctx, ev); err != nil {
		if triage.IsFatal(err) {
			return fmt.Errorf("triage %s aborted: %w", ev.Ref, err)
		}
		return fmt.Errorf("triage %s failed: %w", ev.Ref, err)
	}
	return nil
}
