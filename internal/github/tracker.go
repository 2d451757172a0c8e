package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v84/github"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagebot/internal/triage"
)

// labelColors are used when a label has to be created on the repository.
var labelColors = map[string]string{
	"bug":                   "d73a4a",
	"feature-request":       "a2eeef",
	"question":              "d876e3",
	"documentation":         "0075ca",
	triage.LabelNeedsTriage: "e4e669",
	triage.LabelNeedsInfo:   "f9d0c4",
}

const defaultLabelColor = "ededed"

// LabelColor returns the color used when creating name.
func LabelColor(name string) string {
	if c, ok := labelColors[name]; ok {
		return c
	}
	return defaultLabelColor
}

// Tracker implements triage.Tracker with go-github. It never retries.
type Tracker struct {
	client *gh.Client
	logger log.Logger
}

// New creates a tracker on the given client.
func New(client *gh.Client, logger log.Logger) *Tracker {
	return &Tracker{client: client, logger: logger}
}

var _ triage.Tracker = (*Tracker)(nil)

// Issue reads the current title, body and labels.
func (t *Tracker) Issue(ctx context.Context, ref triage.IssueRef) (*triage.IssueState, error) {
	issue, _, err := t.client.Issues.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", ref, err)
	}
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return &triage.IssueState{
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		Labels: labels,
	}, nil
}

// FindBotComments pages through the issue comments for the missing-info
// and low-confidence markers. The oldest marked comment of each kind wins.
func (t *Tracker) FindBotComments(ctx context.Context, ref triage.IssueRef) (triage.BotComments, error) {
	var found triage.BotComments
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := t.client.Issues.ListComments(ctx, ref.Owner, ref.Repo, ref.Number, opts)
		if err != nil {
			return triage.BotComments{}, fmt.Errorf("list comments %s: %w", ref, err)
		}
		for _, c := range comments {
			switch {
			case found.MissingInfo == nil && triage.IsBotComment(c.GetBody()):
				found.MissingInfo = &triage.BotComment{ID: c.GetID(), Body: c.GetBody()}
			case found.Notice == nil && triage.IsNoticeComment(c.GetBody()):
				found.Notice = &triage.BotComment{ID: c.GetID(), Body: c.GetBody()}
			}
		}
		if (found.MissingInfo != nil && found.Notice != nil) || resp.NextPage == 0 {
			return found, nil
		}
		opts.Page = resp.NextPage
	}
}

// EnsureLabel creates the label with its color if the repository lacks it.
func (t *Tracker) EnsureLabel(ctx context.Context, ref triage.IssueRef, name string) error {
	_, resp, err := t.client.Issues.GetLabel(ctx, ref.Owner, ref.Repo, name)
	if err == nil {
		return nil
	}
	if !isStatus(resp, err, http.StatusNotFound) {
		return fmt.Errorf("get label %q: %w", name, err)
	}

	color := LabelColor(name)
	_, resp, err = t.client.Issues.CreateLabel(ctx, ref.Owner, ref.Repo, &gh.Label{
		Name:  gh.Ptr(name),
		Color: gh.Ptr(color),
	})
	switch {
	case err == nil:
		t.logger.Info(ctx, "created label", "repo", ref.Owner+"/"+ref.Repo, "label", name, "color", color)
		return nil
	case isStatus(resp, err, http.StatusUnprocessableEntity):
		// created concurrently
		return nil
	}
	return fmt.Errorf("create label %q: %w", name, err)
}

// AddLabels adds labels to the issue.
func (t *Tracker) AddLabels(ctx context.Context, ref triage.IssueRef, names []string) error {
	if _, _, err := t.client.Issues.AddLabelsToIssue(ctx, ref.Owner, ref.Repo, ref.Number, names); err != nil {
		return fmt.Errorf("add labels to %s: %w", ref, err)
	}
	return nil
}

// RemoveLabel removes a label, treating an absent label as success.
func (t *Tracker) RemoveLabel(ctx context.Context, ref triage.IssueRef, name string) error {
	resp, err := t.client.Issues.RemoveLabelForIssue(ctx, ref.Owner, ref.Repo, ref.Number, name)
	if err != nil && !isStatus(resp, err, http.StatusNotFound) {
		return fmt.Errorf("remove label %q from %s: %w", name, ref, err)
	}
	return nil
}

// CreateComment posts a comment and returns its ID.
func (t *Tracker) CreateComment(ctx context.Context, ref triage.IssueRef, body string) (int64, error) {
	c, _, err := t.client.Issues.CreateComment(ctx, ref.Owner, ref.Repo, ref.Number, &gh.IssueComment{Body: gh.Ptr(body)})
	if err != nil {
		return 0, fmt.Errorf("create comment on %s: %w", ref, err)
	}
	return c.GetID(), nil
}

// EditComment replaces a comment body.
func (t *Tracker) EditComment(ctx context.Context, ref triage.IssueRef, id int64, body string) error {
	if _, _, err := t.client.Issues.EditComment(ctx, ref.Owner, ref.Repo, id, &gh.IssueComment{Body: gh.Ptr(body)}); err != nil {
		return fmt.Errorf("edit comment %d on %s: %w", id, ref, err)
	}
	return nil
}

// DeleteComment deletes a comment. An already deleted comment is success.
func (t *Tracker) DeleteComment(ctx context.Context, ref triage.IssueRef, id int64) error {
	resp, err := t.client.Issues.DeleteComment(ctx, ref.Owner, ref.Repo, id)
	if err != nil && !isStatus(resp, err, http.StatusNotFound) {
		return fmt.Errorf("delete comment %d on %s: %w", id, ref, err)
	}
	return nil
}

// ReadFile returns the content of a file on the default branch. found is
// false when the file does not exist.
func (t *Tracker) ReadFile(ctx context.Context, owner, repo, path string) (data []byte, found bool, err error) {
	file, _, resp, err := t.client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		if isStatus(resp, err, http.StatusNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get contents %s/%s:%s: %w", owner, repo, path, err)
	}
	if file == nil {
		return nil, false, fmt.Errorf("%s/%s:%s is a directory", owner, repo, path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, false, fmt.Errorf("decode %s/%s:%s: %w", owner, repo, path, err)
	}
	return []byte(content), true, nil
}

func isStatus(resp *gh.Response, err error, status int) bool {
	if resp != nil && resp.Response != nil && resp.StatusCode == status {
		return true
	}
	var er *gh.ErrorResponse
	return errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == status
}
