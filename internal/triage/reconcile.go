package triage

import "strings"

// Reconciler computes the mutations that bring an issue's labels and bot
// comment in line with a classification and field check.
type Reconciler struct {
	categories map[string]bool
}

// NewReconciler creates a reconciler for the given category set.
func NewReconciler(categories []string) *Reconciler {
	set := make(map[string]bool, len(categories)+1)
	for _, c := range categories {
		set[strings.ToLower(c)] = true
	}
	set[LabelNeedsTriage] = true
	return &Reconciler{categories: set}
}

// Reconcile returns the desired state for one snapshot. A nil classification
// leaves category labels untouched. Calling it again against the converged
// issue returns an empty state.
func (r *Reconciler) Reconcile(s *IssueSnapshot, c *Classification, fields FieldCheckResult) DesiredState {
	d := DesiredState{Comment: CommentNone}

	// category labels are mutually exclusive, needs-triage included;
	// removals use the issue's own spelling of the label
	if c != nil {
		if !s.HasLabel(c.Category) {
			d.LabelsToAdd = append(d.LabelsToAdd, c.Category)
		}
		for _, l := range s.Labels {
			if r.categories[strings.ToLower(l)] && !strings.EqualFold(l, c.Category) {
				d.LabelsToRemove = append(d.LabelsToRemove, l)
			}
		}
		d.Notice = notice(s, c)
	}

	missing := fields.Missing()
	if len(missing) > 0 {
		if !s.HasLabel(LabelNeedsInfo) {
			d.LabelsToAdd = append(d.LabelsToAdd, LabelNeedsInfo)
		}
		body := RenderMissingInfoComment(missing)
		switch {
		case s.BotComment == nil:
			d.Comment = CommentPost
			d.CommentBody = body
		case !sameCommentBody(s.BotComment.Body, body):
			d.Comment = CommentUpdate
			d.CommentID = s.BotComment.ID
			d.CommentBody = body
		}
		return d
	}

	if l, ok := s.label(LabelNeedsInfo); ok {
		d.LabelsToRemove = append(d.LabelsToRemove, l)
	}
	if s.BotComment != nil {
		d.Comment = CommentDelete
		d.CommentID = s.BotComment.ID
	}
	return d
}

// notice keeps the low-confidence comment in step with the classification:
// present with the current confidence after a fallback, gone otherwise.
func notice(s *IssueSnapshot, c *Classification) *NoticeChange {
	if c.Source != SourceFallback {
		if s.Notice != nil {
			return &NoticeChange{Action: CommentDelete, ID: s.Notice.ID}
		}
		return nil
	}
	body := RenderLowConfidenceComment(c.Confidence)
	switch {
	case s.Notice == nil:
		return &NoticeChange{Action: CommentPost, Body: body}
	case !sameCommentBody(s.Notice.Body, body):
		return &NoticeChange{Action: CommentUpdate, ID: s.Notice.ID, Body: body}
	}
	return nil
}

func sameCommentBody(a, b string) bool {
	norm := func(s string) string {
		return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	}
	return norm(a) == norm(b)
}
