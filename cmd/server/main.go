// Server receives GitHub issue webhooks and triages them in the background.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/triagebot/internal/authmw"
	"github.com/linnemanlabs/triagebot/internal/bootstrap"
	tc "github.com/linnemanlabs/triagebot/internal/cfg"
	"github.com/linnemanlabs/triagebot/internal/github"
	"github.com/linnemanlabs/triagebot/internal/notify/slack"
	"github.com/linnemanlabs/triagebot/internal/repoconfig"
	"github.com/linnemanlabs/triagebot/internal/triage"
	"github.com/linnemanlabs/triagebot/internal/triage/memstore"
	"github.com/linnemanlabs/triagebot/internal/webhookapi"
)

const appName = "triagebot"
const component = "server"

// maxBodyBytes caps every request on the API listener at the webhook limit.
const maxBodyBytes = authmw.MaxWebhookBytes

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Getenv)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

// serverConfig gathers the options of every package the server wires.
type serverConfig struct {
	app    tc.Config
	srv    tc.ServerConfig
	http   httpserver.Config
	httpmw httpmw.Config
	log    log.Config
	ops    opshttp.Config
	prof   prof.Config
	trace  otelx.Config

	showVersion bool
}

// parseConfig reads flags, then TRIAGEBOT_ and GitHub variables, which never
// override flags, and validates the result.
func parseConfig(args []string, getenv func(string) string) (*serverConfig, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	var c serverConfig
	c.app.RegisterFlags(fs)
	c.srv.RegisterFlags(fs)
	c.http.RegisterFlags(fs)
	c.httpmw.RegisterFlags(fs)
	c.log.RegisterFlags(fs)
	c.ops.RegisterFlags(fs)
	c.prof.RegisterFlags(fs)
	c.trace.RegisterFlags(fs)
	fs.BoolVar(&c.showVersion, "V", false, "Print version+build information and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if c.showVersion {
		return &c, nil
	}

	cfg.FillFromEnv(fs, "TRIAGEBOT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	c.app.FillFromGitHubEnv(fs, getenv)

	if err := errors.Join(
		c.app.Validate(),
		c.srv.Validate(),
		c.http.Validate(),
		c.httpmw.Validate(),
		c.log.Validate(),
		c.ops.Validate(),
		c.prof.Validate(),
		c.trace.Validate(),
	); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// only main sees both listeners
	if c.srv.APIPort == c.ops.Port {
		return nil, fmt.Errorf("http and admin ports must differ (both %d)", c.srv.APIPort)
	}
	return &c, nil
}

func run(ctx context.Context, args []string, getenv func(string) string) error {
	v.AppName = appName
	v.Component = component
	vi := v.Get()

	c, err := parseConfig(args, getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if c.showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	lg, err := log.New(c.log.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", c.srv.APIPort,
		"admin_port", c.ops.Port,
		"run_capacity", c.srv.RunCapacity,
		"enable_pyroscope", c.prof.EnablePyroscope,
		"enable_tracing", c.trace.EnableTracing,
		"otlp_endpoint", c.trace.OTLPEndpoint,
		"github_app_auth", c.app.UsesApp(),
		"github_api_url", c.app.GitHubAPIURL,
		"config_path", c.app.ConfigPath,
		"llm_provider", c.app.Provider(),
		"slack", c.app.SlackWebhookURL != "",
	)

	// profiles cover the whole process lifetime
	profOpts := c.prof.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", c.prof.PyroServer)
	}

	traceOpts := c.trace.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && c.prof.EnablePyroscope)

	triageSvc, err := newTriageService(ctx, &c.app, c.srv.RunCapacity, L, m.Registry())
	if err != nil {
		return err
	}

	// the gate fails readiness while draining so load balancers stop sending
	var shutdownGate health.ShutdownGate
	readiness := health.All(shutdownGate.Probe())
	liveness := health.Fixed(true, "")

	opsOpts := c.ops.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}

	api := webhookapi.New(L, triageSvc, c.srv.WebhookSecret, c.srv.APIToken)
	r := newRouter(api, health.HealthzHandler(liveness), health.ReadyzHandler(readiness))
	h := wrapHandler(r, L, m.Middleware, c.httpmw.TrustedProxyHops)

	apiOpts, err := c.http.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}
	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", c.srv.APIPort), h, L, apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		return err
	}

	if err := notifySystemd(); err != nil {
		// systemd kills the process after its own timeout if this matters
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	shutdownGate.Set("draining")
	drain(L, time.Duration(c.srv.DrainSeconds)*time.Second)

	stops := []stopFn{
		{"api http server", apiHTTPStop},
		{"triage runs", triageSvc.Wait},
		{"ops http server", opsHTTPStop},
	}
	if shutdownOtelx != nil {
		stops = append(stops, stopFn{"otel", shutdownOtelx})
	}
	shutdown(L, time.Duration(c.srv.ShutdownBudgetSeconds)*time.Second, stops)

	if stopProf != nil {
		stopProf()
	}
	L.Info(context.Background(), "shutdown complete")
	return nil
}

// newTriageService wires the GitHub tracker, repository policies, classifier,
// engine and notifier into the service behind the webhook.
func newTriageService(ctx context.Context, c *tc.Config, capacity int, L log.Logger, reg prometheus.Registerer) (*triage.Service, error) {
	client, err := bootstrap.GitHubClient(c)
	if err != nil {
		return nil, fmt.Errorf("github client: %w", err)
	}
	tracker := github.New(client, L)
	policies := repoconfig.NewRemoteSource(tracker, c.ConfigPath, L)

	hooks := triage.NewMetrics(reg).Hooks()
	engine := triage.NewEngine(bootstrap.Classifier(ctx, c, L, hooks), nil, L, hooks)

	var notifier triage.Notifier
	if c.SlackWebhookURL != "" {
		notifier = slack.New(c.SlackWebhookURL, c.GitHubWebURL, L)
		L.Info(ctx, "notifier enabled", "type", "slack")
	}

	// run records are for lookup only, issue state lives on GitHub
	return triage.NewService(memstore.New(capacity), engine, tracker, policies, notifier, L, hooks), nil
}

// newRouter mounts the health endpoints and the webhook API.
func newRouter(api *webhookapi.API, healthy, ready http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxBodyBytes))

	r.Get("/-/healthy", healthy)
	r.Get("/-/ready", ready)
	api.RegisterRoutes(r)
	return r
}

// wrapHandler applies the outer middleware. The last wrapper applied sees
// the raw request first.
func wrapHandler(h http.Handler, L log.Logger, metricsMW func(http.Handler) http.Handler, trustedHops int) http.Handler {
	h = httpmw.WithLogger(L)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// AnnotateHTTPRoute renames the span to the route pattern
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)
	h = metricsMW(h)
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: trustedHops})(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(L, nil)(h)
	return httpmw.SecurityHeaders(h)
}

// drain waits for load balancers to notice readiness failing. A
// second signal cuts it short.
func drain(L log.Logger, d time.Duration) {
	L.Info(context.Background(), "sleeping for drain period", "drain_seconds", d.Seconds())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(forceCh)

	select {
	case <-time.After(d):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}

type stopFn struct {
	name string
	fn   func(context.Context) error
}

// shutdown stops components in order, each within an equal slice of budget.
// A failing component is logged and does not stop the rest.
func shutdown(L log.Logger, budget time.Duration, stops []stopFn) {
	if len(stops) == 0 {
		return
	}
	perComponent := budget / time.Duration(len(stops))
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stops {
		cctx, ccancel := context.WithTimeout(ctx, perComponent)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}
}

func notifySystemd() error {
	// NOTIFY_SOCKET is set when systemd started us with Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // addr comes from systemd, unixgram dial takes no context
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
