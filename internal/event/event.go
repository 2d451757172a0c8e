// Package event turns GitHub webhook payloads into triage events.
package event

import (
	"fmt"
	"os"
	"strings"

	gh "github.com/google/go-github/v84/github"

	"github.com/linnemanlabs/triagebot/internal/triage"
)

// GitHub event names handled by triagebot.
const (
	NameIssues       = "issues"
	NameIssueComment = "issue_comment"
)

// Parse decodes a webhook payload of the given event name. When the event
// needs no run, ev is nil and reason says why.
func Parse(name string, payload []byte) (ev *triage.Event, reason string, err error) {
	switch name {
	case NameIssues, NameIssueComment:
	case "":
		return nil, "", fmt.Errorf("missing event name")
	default:
		return nil, fmt.Sprintf("event %q is not handled", name), nil
	}

	raw, err := gh.ParseWebHook(name, payload)
	if err != nil {
		return nil, "", fmt.Errorf("parse %s payload: %w", name, err)
	}

	switch e := raw.(type) {
	case *gh.IssuesEvent:
		return fromIssues(e)
	case *gh.IssueCommentEvent:
		return fromIssueComment(e)
	}
	return nil, "", fmt.Errorf("unexpected payload type %T for %s", raw, name)
}

// ReadFile parses the event payload file a CI runner provides.
func ReadFile(name, path string) (*triage.Event, string, error) {
	if path == "" {
		return nil, "", fmt.Errorf("no event payload path (is this running inside a GitHub workflow?)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read event payload: %w", err)
	}
	return Parse(name, data)
}

func fromIssues(e *gh.IssuesEvent) (*triage.Event, string, error) {
	if e.Issue == nil {
		return nil, "event has no issue payload", nil
	}

	var kind triage.EventKind
	switch e.GetAction() {
	case "opened":
		kind = triage.KindOpened
	case "edited":
		kind = triage.KindEdited
	default:
		return nil, fmt.Sprintf("issues action %q is not handled", e.GetAction()), nil
	}

	ref, err := issueRef(e.Repo, e.Issue)
	if err != nil {
		return nil, "", err
	}
	return &triage.Event{Kind: kind, Ref: ref, Sender: e.GetSender().GetLogin()}, "", nil
}

func fromIssueComment(e *gh.IssueCommentEvent) (*triage.Event, string, error) {
	switch {
	case e.Issue == nil || e.Comment == nil:
		return nil, "event has no comment payload", nil
	case e.GetAction() != "created":
		return nil, fmt.Sprintf("comment action %q is not handled", e.GetAction()), nil
	case e.Issue.IsPullRequest():
		return nil, "comment is on a pull request", nil
	case isBot(e.GetSender()):
		return nil, "comment is from a bot", nil
	}

	ref, err := issueRef(e.Repo, e.Issue)
	if err != nil {
		return nil, "", err
	}
	return &triage.Event{
		Kind:        triage.KindCommented,
		Ref:         ref,
		CommentBody: e.GetComment().GetBody(),
		Sender:      e.GetSender().GetLogin(),
	}, "", nil
}

func issueRef(repo *gh.Repository, issue *gh.Issue) (triage.IssueRef, error) {
	ref := triage.IssueRef{
		Owner:  repo.GetOwner().GetLogin(),
		Repo:   repo.GetName(),
		Number: issue.GetNumber(),
	}
	if ref.Owner == "" || ref.Repo == "" {
		if owner, name, err := SplitRepository(repo.GetFullName()); err == nil {
			ref.Owner, ref.Repo = owner, name
		}
	}
	if ref.Owner == "" || ref.Repo == "" {
		return triage.IssueRef{}, fmt.Errorf("event has no repository")
	}
	if ref.Number <= 0 {
		return triage.IssueRef{}, fmt.Errorf("event has no issue number")
	}
	return ref, nil
}

func isBot(u *gh.User) bool {
	return u.GetType() == "Bot" || strings.HasSuffix(u.GetLogin(), "[bot]")
}

// SplitRepository splits "owner/name".
func SplitRepository(full string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(full, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q (want owner/name)", full)
	}
	return owner, name, nil
}
