package triage

import (
	"context"
	"fmt"
)

// IssueState is the current remote view of an issue.
type IssueState struct {
	Title  string
	Body   string
	Labels []string
}

// Tracker is the issue tracker the service reads from and writes to.
// Implementations do not retry; a failed write is returned as is.
type Tracker interface {
	Issue(ctx context.Context, ref IssueRef) (*IssueState, error)
	// FindBotComments returns the comments carrying CommentMarker and
	// NoticeMarker.
	FindBotComments(ctx context.Context, ref IssueRef) (BotComments, error)

	// EnsureLabel creates the label on the repository if it does not exist.
	EnsureLabel(ctx context.Context, ref IssueRef, name string) error
	AddLabels(ctx context.Context, ref IssueRef, names []string) error
	// RemoveLabel succeeds when the label is already absent.
	RemoveLabel(ctx context.Context, ref IssueRef, name string) error

	CreateComment(ctx context.Context, ref IssueRef, body string) (int64, error)
	EditComment(ctx context.Context, ref IssueRef, id int64, body string) error
	DeleteComment(ctx context.Context, ref IssueRef, id int64) error
}

// Apply performs the mutations in d against the tracker. It stops at the
// first failure and reports which step failed; earlier steps are not rolled
// back, the next run converges from whatever state remains.
func Apply(ctx context.Context, t Tracker, ref IssueRef, d DesiredState) error {
	for _, l := range d.LabelsToAdd {
		if err := t.EnsureLabel(ctx, ref, l); err != nil {
			return fmt.Errorf("ensure label %q: %w", l, err)
		}
	}
	if len(d.LabelsToAdd) > 0 {
		if err := t.AddLabels(ctx, ref, d.LabelsToAdd); err != nil {
			return fmt.Errorf("add labels %v: %w", d.LabelsToAdd, err)
		}
	}
	for _, l := range d.LabelsToRemove {
		if err := t.RemoveLabel(ctx, ref, l); err != nil {
			return fmt.Errorf("remove label %q: %w", l, err)
		}
	}

	switch d.Comment {
	case CommentPost:
		if _, err := t.CreateComment(ctx, ref, d.CommentBody); err != nil {
			return fmt.Errorf("post comment: %w", err)
		}
	case CommentUpdate:
		if err := t.EditComment(ctx, ref, d.CommentID, d.CommentBody); err != nil {
			return fmt.Errorf("update comment %d: %w", d.CommentID, err)
		}
	case CommentDelete:
		if err := t.DeleteComment(ctx, ref, d.CommentID); err != nil {
			return fmt.Errorf("delete comment %d: %w", d.CommentID, err)
		}
	}

	if n := d.Notice; n != nil {
		switch n.Action {
		case CommentPost:
			if _, err := t.CreateComment(ctx, ref, n.Body); err != nil {
				return fmt.Errorf("post notice: %w", err)
			}
		case CommentUpdate:
			if err := t.EditComment(ctx, ref, n.ID, n.Body); err != nil {
				return fmt.Errorf("update notice %d: %w", n.ID, err)
			}
		case CommentDelete:
			if err := t.DeleteComment(ctx, ref, n.ID); err != nil {
				return fmt.Errorf("delete notice %d: %w", n.ID, err)
			}
		}
	}
	return nil
}
