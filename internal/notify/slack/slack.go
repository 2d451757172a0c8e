// Package slack posts runs that need a human to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagebot/internal/triage"
)

const (
	maxErrorLen = 1500
	httpTimeout = 10 * time.Second

	// DefaultIssueBaseURL is used when no GitHub web URL is configured.
	DefaultIssueBaseURL = "https://github.com"
)

// Notifier implements triage.Notifier on a Slack webhook.
type Notifier struct {
	webhookURL string
	issueBase  string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a
// no-op. issueBase is the web root issue links are built on.
func New(webhookURL, issueBase string, logger log.Logger) *Notifier {
	if issueBase == "" {
		issueBase = DefaultIssueBaseURL
	}
	return &Notifier{
		webhookURL: webhookURL,
		issueBase:  strings.TrimSuffix(issueBase, "/"),
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

var _ triage.Notifier = (*Notifier)(nil)

// Notify posts the run to the configured webhook.
func (n *Notifier) Notify(ctx context.Context, run *triage.Run) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(n.buildMessage(run))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	n.logger.Info(ctx, "slack notification sent", "run_id", run.ID, "issue", run.Issue.String())
	return nil
}

func (n *Notifier) issueURL(ref triage.IssueRef) string {
	return fmt.Sprintf("%s/%s/%s/issues/%d", n.issueBase, ref.Owner, ref.Repo, ref.Number)
}

func (n *Notifier) buildMessage(r *triage.Run) map[string]any {
	blocks := []map[string]any{
		headerBlock(r),
		linkBlock(r, n.issueURL(r.Issue)),
		fieldsBlock(r),
	}
	if r.Error != "" {
		blocks = append(blocks, errorBlock(r))
	}
	blocks = append(blocks, contextBlock(r))
	return map[string]any{"blocks": blocks}
}

func headerBlock(r *triage.Run) map[string]any {
	title := "Needs triage"
	if r.Status == triage.StatusFailed {
		title = "Triage failed"
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s: %s", statusEmoji(r), title, r.Issue),
		},
	}
}

func linkBlock(r *triage.Run, url string) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("<%s|%s>", url, r.Issue),
		},
	}
}

func fieldsBlock(r *triage.Run) map[string]any {
	rec := r.Record
	category := rec.Category
	if category == "" {
		category = "_unchanged_"
	}
	missing := "none"
	if len(rec.MissingFields) > 0 {
		missing = strings.Join(rec.MissingFields, ", ")
	}

	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Event:* %s", rec.EventKind)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Status:* %s", r.Status)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Category:* %s", category)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Confidence:* %.0f%%", rec.Confidence*100)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Missing fields:* %s", missing)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:* %.1fs", r.Duration)},
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func errorBlock(r *triage.Run) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Error*\n```%s```", truncate(r.Error, maxErrorLen)),
		},
	}
}

func contextBlock(r *triage.Run) map[string]any {
	ts := r.CompletedAt
	if ts.IsZero() {
		ts = r.CreatedAt
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("triagebot • run %s • %s", r.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func statusEmoji(r *triage.Run) string {
	if r.Status == triage.StatusFailed {
		return "\U0001f534" // red circle
	}
	return "\U0001f7e1" // yellow circle
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
